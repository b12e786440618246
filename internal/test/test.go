package test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TempDir creates a temporary directory for testing and returns its path.
// The directory is automatically cleaned up after the test.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "memcache-test-*")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = os.RemoveAll(dir) // Ignore cleanup errors in tests
	})
	return dir
}

// CreateTestDataDir creates a data directory with the snapshot layout.
func CreateTestDataDir(t *testing.T, baseDir string) string {
	t.Helper()
	dataDir := filepath.Join(baseDir, "data")
	//nolint:gosec // Acceptable: test directory permissions
	err := os.MkdirAll(filepath.Join(dataDir, "snapshot"), 0755)
	require.NoError(t, err)
	return dataDir
}

// AssertFileExists checks if a file exists and fails the test if it doesn't.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.NoError(t, err, "file should exist: %s", path)
}

// AssertFileNotExists checks if a file doesn't exist and fails the test if it does.
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.Error(t, err, "file should not exist: %s", path)
	require.True(t, os.IsNotExist(err), "expected file not to exist: %s", path)
}

// Deadline returns an epoch-millisecond deadline d from now.
func Deadline(d time.Duration) int64 {
	return time.Now().Add(d).UnixMilli()
}
