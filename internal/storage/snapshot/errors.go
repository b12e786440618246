package snapshot

import "fmt"

// InvalidEntryError indicates a persisted entry that cannot be restored
type InvalidEntryError struct {
	Key    string
	Reason string
}

func (e InvalidEntryError) Error() string {
	return fmt.Sprintf("invalid snapshot entry %q: %s", e.Key, e.Reason)
}

// UnknownBackendError indicates an unsupported snapshot backend name
type UnknownBackendError struct {
	Backend string
}

func (e UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown snapshot backend: %s", e.Backend)
}

// ClosedError indicates use of a closed snapshot store
type ClosedError struct{}

func (e ClosedError) Error() string {
	return "snapshot store is closed"
}
