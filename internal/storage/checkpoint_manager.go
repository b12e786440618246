package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowmesh/memcache/internal/logger"
	"github.com/rs/zerolog"
)

// CheckpointFunc persists the cache and returns the number of saved entries
type CheckpointFunc func(ctx context.Context) (int, error)

// CheckpointHook observes every checkpoint attempt
type CheckpointHook func(entries int, duration time.Duration, err error)

// CheckpointManager manages periodic checkpointing of the cache
type CheckpointManager struct {
	save             CheckpointFunc
	hook             CheckpointHook
	interval         time.Duration
	stopCh           chan struct{}
	wg               sync.WaitGroup
	log              zerolog.Logger
	lastCheckpointAt time.Time
	mu               sync.RWMutex
	lifecycleMu      sync.Mutex
	started          bool
	stopped          bool
}

// NewCheckpointManager creates a new checkpoint manager. An interval of zero
// disables periodic checkpoints; Stop still saves a final one.
func NewCheckpointManager(save CheckpointFunc, interval time.Duration) *CheckpointManager {
	return &CheckpointManager{
		save:     save,
		interval: interval,
		stopCh:   make(chan struct{}),
		log:      logger.WithComponent("checkpoint"),
	}
}

// SetHook installs a hook called after every checkpoint attempt
func (cm *CheckpointManager) SetHook(hook CheckpointHook) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.hook = hook
}

// Start starts the checkpoint manager
func (cm *CheckpointManager) Start() {
	cm.lifecycleMu.Lock()
	defer cm.lifecycleMu.Unlock()

	if cm.started || cm.stopped {
		return
	}
	cm.started = true

	if cm.interval <= 0 {
		cm.log.Info().Msg("Periodic checkpoints disabled, saving on shutdown only")
		return
	}

	cm.wg.Add(1)
	go cm.run()
	cm.log.Info().Dur("interval", cm.interval).Msg("Checkpoint manager started")
}

// Stop stops the checkpoint loop and saves a final checkpoint
func (cm *CheckpointManager) Stop(ctx context.Context) error {
	cm.lifecycleMu.Lock()
	defer cm.lifecycleMu.Unlock()

	if cm.stopped {
		return nil
	}
	cm.stopped = true

	close(cm.stopCh)
	cm.wg.Wait()

	// Save final checkpoint before shutdown
	if err := cm.SaveCheckpoint(ctx); err != nil {
		return fmt.Errorf("failed to save final checkpoint: %w", err)
	}

	cm.log.Info().Msg("Checkpoint manager stopped")
	return nil
}

// run executes the checkpoint loop
func (cm *CheckpointManager) run() {
	defer cm.wg.Done()

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.stopCh:
			return
		case <-ticker.C:
			if err := cm.SaveCheckpoint(context.Background()); err != nil {
				cm.log.Error().Err(err).Msg("Failed to save checkpoint")
			}
		}
	}
}

// SaveCheckpoint persists the cache now
func (cm *CheckpointManager) SaveCheckpoint(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	start := time.Now()
	entries, err := cm.save(ctx)
	duration := time.Since(start)

	if cm.hook != nil {
		cm.hook(entries, duration, err)
	}
	if err != nil {
		return err
	}

	cm.lastCheckpointAt = start

	cm.log.Info().
		Int("entries", entries).
		Dur("duration", duration).
		Msg("Checkpoint saved successfully")

	return nil
}

// LastCheckpointAt returns the start time of the last successful checkpoint
func (cm *CheckpointManager) LastCheckpointAt() time.Time {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.lastCheckpointAt
}
