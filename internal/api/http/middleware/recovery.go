package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// errorBody is the JSON shape of middleware-generated errors
type errorBody struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Recovery turns a handler panic into a JSON 500 that carries the request
// id. http.ErrAbortHandler is re-raised so the server aborts the response.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := wrapResponseWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				// RequestID runs inside Recovery, so the id is only visible
				// on the response headers here.
				requestID := ww.Header().Get(RequestIDHeader)
				log.Error().
					Interface("panic", rec).
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("HTTP handler panic recovered")

				if ww.wroteHeader {
					return
				}
				writeErrorBody(ww, http.StatusInternalServerError, errorBody{
					Status:    "error",
					Message:   "internal server error",
					RequestID: requestID,
				})
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
