// Package server exposes the sync protocol over HTTP: push a batch of
// records, pull everything after a cursor, tombstone a single record.
// The server never interprets payloads; conflict resolution happens on
// the devices.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	records RecordStore
	log     *slog.Logger
	apiKey  string
	router  chi.Router
}

// New creates a new Server with all routes configured.
func New(records RecordStore, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		records: records,
		log:     log,
		apiKey:  apiKey,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// Sync endpoints (API key required)
	s.router.Route("/api/v1/sync", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/push", s.handlePush)
		r.Get("/pull", s.handlePull)
		r.Delete("/records/{id}", s.handleDelete)
	})

	// Probe endpoint (no auth — quality probes carry no key)
	s.router.Get("/api/v1/healthz", s.handleHealthz)
}
