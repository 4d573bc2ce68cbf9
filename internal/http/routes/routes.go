// Package routes serves the operational endpoints of the long-running
// commands: liveness, Prometheus metrics and a JSON status snapshot.
package routes

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	appmw "github.com/johnqh/heavymath-indexer-client/internal/http/middleware"
)

type ServerOptions struct {
	Registry *prometheus.Registry
	Logger   zerolog.Logger
	// Status, when set, is rendered as JSON at /status.
	Status func() any
}

type Server struct {
	Router *chi.Mux
	logger zerolog.Logger
	status func() any
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(appmw.AccessLog(opts.Logger))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, logger: opts.Logger, status: opts.Status}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			s.logger.Error().Err(err).Msg("write health check response")
		}
	})
	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}
	r.Get("/status", s.handleStatus)
	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		s.logger.Error().Err(err).Msg("encode status")
	}
}
