package middleware

import (
	"errors"
	"net/http"

	"github.com/flowmesh/memcache/internal/api/auth"
	"github.com/flowmesh/memcache/internal/metrics"
)

// Auth authenticates requests using API tokens and attaches the auth context
func Auth(tokenStore auth.TokenStore, m *metrics.APIMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
			if err != nil {
				m.RecordAuthFailure(metrics.TransportHTTP, "missing_token")
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}

			apiToken, err := tokenStore.ValidateToken(token)
			if err != nil {
				reason := "invalid_token"
				var unauthorized auth.UnauthorizedError
				if errors.As(err, &unauthorized) {
					reason = "expired_token"
				}
				m.RecordAuthFailure(metrics.TransportHTTP, reason)
				writeAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			// Attach to request context
			ctx := auth.WithAuthContext(r.Context(), auth.NewAuthContext(apiToken))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects requests whose auth context lacks permission
func RequirePermission(w http.ResponseWriter, r *http.Request, authorizer auth.Authorizer, permission auth.Permission, m *metrics.APIMetrics) bool {
	authCtx, _ := auth.FromContext(r.Context())
	if err := authorizer.Authorize(authCtx, permission); err != nil {
		var forbidden auth.ForbiddenError
		if errors.As(err, &forbidden) {
			m.RecordAuthFailure(metrics.TransportHTTP, "forbidden")
			writeAuthError(w, http.StatusForbidden, err.Error())
			return false
		}
		m.RecordAuthFailure(metrics.TransportHTTP, "missing_token")
		writeAuthError(w, http.StatusUnauthorized, err.Error())
		return false
	}
	return true
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	writeErrorBody(w, status, errorBody{Status: "error", Message: message})
}
