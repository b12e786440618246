package http

import (
	"net/http"
	"sort"
	"strings"

	"github.com/flowmesh/memcache/internal/api/auth"
	"github.com/flowmesh/memcache/internal/api/http/handlers"
	"github.com/flowmesh/memcache/internal/api/http/middleware"
	"github.com/flowmesh/memcache/internal/logger"
	"github.com/flowmesh/memcache/internal/metrics"
	"github.com/flowmesh/memcache/internal/storage"
)

const cachePath = "/api/v1/cache"

// Option configures a Router
type Option func(*Router)

// WithAuth requires bearer tokens from tokenStore on /api/v1
func WithAuth(tokenStore auth.TokenStore) Option {
	return func(r *Router) {
		r.tokenStore = tokenStore
	}
}

// WithMetrics serves collector on /metrics and records API metrics
func WithMetrics(collector *metrics.Collector, apiMetrics *metrics.APIMetrics) Option {
	return func(r *Router) {
		r.collector = collector
		r.apiMetrics = apiMetrics
	}
}

// Router manages HTTP routes and middleware
type Router struct {
	mux           *http.ServeMux
	handler       http.Handler
	storage       storage.StorageBackend
	cacheHandlers *handlers.CacheHandlers
	tokenStore    auth.TokenStore
	authorizer    auth.Authorizer
	collector     *metrics.Collector
	apiMetrics    *metrics.APIMetrics
}

// NewRouter creates a new router
func NewRouter(storage storage.StorageBackend, opts ...Option) *Router {
	r := &Router{
		mux:           http.NewServeMux(),
		storage:       storage,
		cacheHandlers: handlers.NewCacheHandlers(storage),
		authorizer:    auth.NewPermissionAuthorizer(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.setupRoutes()

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// setupRoutes sets up all HTTP routes
func (r *Router) setupRoutes() {
	log := logger.WithComponent("http.middleware")

	// Health check endpoints (no auth required)
	r.mux.HandleFunc("/health", handlers.HealthCheck)
	r.mux.HandleFunc("/ready", handlers.ReadinessCheck(r.storage))
	r.mux.Handle("/metrics", handlers.MetricsHandler(r.collector))

	api := middleware.Chain()
	if r.tokenStore != nil {
		api = middleware.Chain(middleware.Auth(r.tokenStore, r.apiMetrics))
	}

	// Cache API endpoints
	r.mux.Handle(cachePath, api(http.HandlerFunc(r.handleCacheRoutes)))
	r.mux.Handle(cachePath+"/", api(http.HandlerFunc(r.handleCacheRoutes)))

	// Default API v1 route (for unmatched paths)
	r.mux.Handle("/api/v1/", api(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	})))

	r.handler = middleware.Chain(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Tracing(routeTemplate),
		middleware.Metrics(r.apiMetrics, routeTemplate),
		middleware.Logging(log),
	)(r.mux)
}

type cacheRoute struct {
	permission auth.Permission
	handle     http.HandlerFunc
}

// cacheRoutes returns the handlers registered for path, keyed by method
func (r *Router) cacheRoutes(path string) map[string]cacheRoute {
	h := r.cacheHandlers
	switch {
	case path == handlers.KeysPath:
		return map[string]cacheRoute{
			http.MethodGet: {auth.PermissionCacheRead, h.Keys},
		}
	case strings.HasPrefix(path, handlers.KeysPath+"/"):
		return map[string]cacheRoute{
			http.MethodGet:    {auth.PermissionCacheRead, h.Get},
			http.MethodPut:    {auth.PermissionCacheWrite, h.Set},
			http.MethodDelete: {auth.PermissionCacheWrite, h.Remove},
		}
	case path == cachePath:
		return map[string]cacheRoute{
			http.MethodDelete: {auth.PermissionCacheAdmin, h.Clear},
		}
	case path == cachePath+"/snapshot":
		return map[string]cacheRoute{
			http.MethodGet: {auth.PermissionCacheAdmin, h.ExportSnapshot},
			http.MethodPut: {auth.PermissionCacheAdmin, h.ImportSnapshot},
		}
	case path == cachePath+"/checkpoint":
		return map[string]cacheRoute{
			http.MethodPost: {auth.PermissionCacheAdmin, h.Checkpoint},
		}
	}
	return nil
}

// handleCacheRoutes routes cache requests to handlers after checking the
// permission each route requires
func (r *Router) handleCacheRoutes(w http.ResponseWriter, req *http.Request) {
	routes := r.cacheRoutes(req.URL.Path)
	if routes == nil {
		http.NotFound(w, req)
		return
	}

	rt, ok := routes[req.Method]
	if !ok {
		allowed := make([]string, 0, len(routes))
		for method := range routes {
			allowed = append(allowed, method)
		}
		sort.Strings(allowed)
		handlers.MethodNotAllowed(w, allowed)
		return
	}

	if r.tokenStore != nil && !middleware.RequirePermission(w, req, r.authorizer, rt.permission, r.apiMetrics) {
		return
	}

	rt.handle(w, req)
}

// routeTemplate maps a request path to a low-cardinality route for spans
// and metric labels
func routeTemplate(req *http.Request) string {
	path := req.URL.Path
	switch {
	case strings.HasPrefix(path, handlers.KeysPath+"/"):
		return handlers.KeysPath + "/{key}"
	case path == handlers.KeysPath,
		path == cachePath,
		path == cachePath+"/snapshot",
		path == cachePath+"/checkpoint",
		path == "/health",
		path == "/ready",
		path == "/metrics":
		return path
	default:
		return "other"
	}
}
