package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/flowmesh/memcache/internal/api/validation"
	"github.com/flowmesh/memcache/internal/storage"
	"github.com/flowmesh/memcache/internal/storage/snapshot"
)

// StatusResponse is the body of errors and bodiless successes
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeMessage writes an error response with an explicit status code
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, StatusResponse{Status: "error", Message: message})
}

// MethodNotAllowed writes a 405 listing the methods the path accepts
func MethodNotAllowed(w http.ResponseWriter, allowed []string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeError maps err to an HTTP status code
func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr validation.ValidationError
		invalidEntry  snapshot.InvalidEntryError
		maxBytes      *http.MaxBytesError
	)

	switch {
	case errors.As(err, &validationErr), errors.As(err, &invalidEntry):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &maxBytes):
		writeMessage(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, storage.ErrNotReady), errors.Is(err, storage.ErrClosed):
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeMessage(w, http.StatusInternalServerError, err.Error())
	}
}
