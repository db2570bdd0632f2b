package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// NewRouter registers the REST routes. Every route except /ws and /metrics
// is instrumented.
func NewRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	m := s.opts.Metrics

	route := func(path, name string, h http.HandlerFunc) *mux.Route {
		return r.Handle(path, m.Instrument(name, h))
	}

	route("/health", "health", s.health).Methods(http.MethodGet)
	route("/api/status/", "status", s.status).Methods(http.MethodGet)
	route("/api/live/", "live", s.live).Methods(http.MethodGet)
	route("/api/start/", "start", s.start).Methods(http.MethodPost)
	route("/api/configure/", "configure", s.configure).Methods(http.MethodPost)
	route("/api/data/", "data", s.data).Methods(http.MethodGet)
	route("/api/data/{start:[0-9]+}/", "data", s.data).Methods(http.MethodGet)
	route("/api/forecast/", "forecast_create", s.createForecast).Methods(http.MethodPost)
	route("/api/forecast/{id}/", "forecast_get", s.getForecast).Methods(http.MethodGet)

	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	if s.opts.WebSocket != nil {
		r.Handle("/ws", s.opts.WebSocket)
	}
	return r
}

// Handler returns the router wrapped with CORS headers for any origin.
func (s *Server) Handler() http.Handler {
	return WithCORS(NewRouter(s))
}

// WithCORS allows the dashboard to call the API from allowedOrigins, or
// from any origin when none are given.
func WithCORS(h http.Handler, allowedOrigins ...string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return cors(h)
}
