package middleware

import (
	"net/http"
	"sync"
)

// publicEndpoints tracks routes exempt from rate limiting: health/readiness
// probes and the long-lived SSE streams, neither of which should be
// throttled the way job-creation endpoints are. A ServeMux is reused here
// purely for its pattern matching (so a registered "GET /deep/jobs/{jobId}/stream"
// matches the same way the real route does), not to actually serve anything.
type publicEndpointRegistry struct {
	mu  sync.RWMutex
	mux *http.ServeMux
}

var publicEndpoints = &publicEndpointRegistry{mux: http.NewServeMux()}

var noopHandler = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

// RegisterPublicEndpoint marks pattern — the exact net/http.ServeMux pattern
// a route was registered under, e.g. "GET /health" or
// "GET /search/jobs/{jobId}/stream" — as exempt from rate limiting.
func RegisterPublicEndpoint(pattern string) {
	publicEndpoints.mu.Lock()
	defer publicEndpoints.mu.Unlock()
	publicEndpoints.mux.Handle(pattern, noopHandler)
}

// isPublicEndpoint reports whether r matches a pattern previously passed to
// RegisterPublicEndpoint.
func isPublicEndpoint(r *http.Request) bool {
	publicEndpoints.mu.RLock()
	defer publicEndpoints.mu.RUnlock()

	_, pattern := publicEndpoints.mux.Handler(r)

	return pattern != ""
}
