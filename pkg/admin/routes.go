package admin

import "net/http"

// registerRoutes sets up all API routes. Group names containing "/" are
// sent percent-encoded.
func (a *API) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Registry.Handler())
	}

	mux.HandleFunc("GET /api/stats", a.handleStats)
	mux.HandleFunc("GET /api/groups", a.handleListGroups)
	mux.HandleFunc("GET /api/groups/{group}", a.handleGetGroup)
	mux.HandleFunc("POST /api/groups/{group}/messages", a.handlePublish)
}
