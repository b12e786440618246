package snapshot

import (
	"path/filepath"
	"strings"
)

// Open creates the snapshot store for backend rooted at dir
func Open(backend, dir string) (Store, error) {
	switch strings.ToLower(backend) {
	case BackendPebble:
		return OpenPebble(filepath.Join(dir, "db"))
	case BackendFile:
		return NewFileStore(dir), nil
	case BackendNone, "":
		return NopStore{}, nil
	default:
		return nil, UnknownBackendError{Backend: backend}
	}
}
