package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// StatusFunc supplies the engine's current status snapshot for /status.
type StatusFunc func() interface{}

// Server exposes health, status, and metrics over HTTP. Strictly read-only:
// no endpoint mutates engine state.
type Server struct {
	srv *http.Server
}

// NewServer wires the route table. status may be nil; /status then returns an
// empty object.
func NewServer(addr string, registry *prometheus.Registry, status StatusFunc) *Server {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var payload interface{} = map[string]string{}
		if status != nil {
			payload = status()
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Warn().Err(err).Msg("status encode failed")
		}
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).
		Methods(http.MethodGet)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
