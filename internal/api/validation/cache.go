package validation

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	// MaxKeyLength is the maximum length of a key (1KB)
	MaxKeyLength = 1024
	// MaxValueSize is the maximum size of a value (1MB)
	MaxValueSize = 1024 * 1024
	// MaxTTL is the maximum relative lifetime (1 year)
	MaxTTL = 365 * 24 * time.Hour
	// MaxSnapshotEntries bounds an imported snapshot
	MaxSnapshotEntries = 1_000_000
)

// ValidateKey validates a key format
func ValidateKey(key string) error {
	if key == "" {
		return ValidationError{Field: "key", Reason: "cannot be empty"}
	}

	if len(key) > MaxKeyLength {
		return ValidationError{Field: "key", Reason: fmt.Sprintf("length (%d) exceeds maximum (%d)", len(key), MaxKeyLength)}
	}

	if !utf8.ValidString(key) {
		return ValidationError{Field: "key", Reason: "must be valid UTF-8"}
	}

	return nil
}

// ValidateValue validates a JSON value
func ValidateValue(value json.RawMessage) error {
	if len(value) == 0 {
		return ValidationError{Field: "value", Reason: "cannot be empty"}
	}

	if len(value) > MaxValueSize {
		return ValidationError{Field: "value", Reason: fmt.Sprintf("size (%d bytes) exceeds maximum (%d bytes)", len(value), MaxValueSize)}
	}

	if !json.Valid(value) {
		return ValidationError{Field: "value", Reason: "must be valid JSON"}
	}

	return nil
}

// ValidateTTL validates a relative lifetime. Zero means the default.
func ValidateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return ValidationError{Field: "ttl", Reason: "cannot be negative"}
	}

	if ttl > MaxTTL {
		return ValidationError{Field: "ttl", Reason: fmt.Sprintf("cannot exceed %v (1 year)", MaxTTL)}
	}

	return nil
}

// TTLFromMillis converts a relative lifetime in milliseconds. Values beyond
// MaxTTL are rejected before conversion so they cannot wrap around.
func TTLFromMillis(field string, ms int64) (time.Duration, error) {
	if ms < 0 {
		return 0, ValidationError{Field: field, Reason: "cannot be negative"}
	}
	if ms > MaxTTL.Milliseconds() {
		return 0, ValidationError{Field: field, Reason: fmt.Sprintf("cannot exceed %d", MaxTTL.Milliseconds())}
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ValidateSetRequest validates a set. expires keeps the store's dual
// meaning and any value is accepted; ttl and expires are exclusive.
func ValidateSetRequest(key string, value json.RawMessage, expires int64, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if err := ValidateValue(value); err != nil {
		return err
	}

	if err := ValidateTTL(ttl); err != nil {
		return err
	}

	if expires > 0 && ttl > 0 {
		return ValidationError{Field: "expires", Reason: "cannot be combined with ttl"}
	}

	return nil
}

// ValidateSnapshotKeys validates the keys of an imported snapshot
func ValidateSnapshotKeys(keys []string) error {
	if len(keys) > MaxSnapshotEntries {
		return ValidationError{Field: "snapshot", Reason: fmt.Sprintf("entry count (%d) exceeds maximum (%d)", len(keys), MaxSnapshotEntries)}
	}

	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return Wrap(fmt.Sprintf("snapshot key %q", key), err)
		}
	}

	return nil
}
