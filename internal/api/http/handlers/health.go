package handlers

import (
	"net/http"

	"github.com/flowmesh/memcache/internal/storage"
)

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthCheck handles health check requests
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// ReadinessCheck returns a handler that checks if the storage is ready
func ReadinessCheck(storage storage.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if storage == nil || !storage.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not ready",
				Message: "storage is starting or stopped",
			})
			return
		}

		writeJSON(w, http.StatusOK, HealthResponse{Status: "ready"})
	}
}
