package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mhertel/leadscout/internal/metrics"
)

// Server exposes batch progress and Prometheus metrics while a run is in
// flight.
type Server struct {
	router  chi.Router
	tracker *Tracker
	log     *zap.Logger
	srv     *http.Server
}

// NewServer builds the status server around a tracker.
func NewServer(addr string, tracker *Tracker, log *zap.Logger) *Server {
	s := &Server{tracker: tracker, log: log}
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/progress", s.progress)
	r.Handle("/metrics", metrics.Handler())
	s.router = r
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router for use with httptest or a custom listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It never returns ErrServerClosed.
func (s *Server) Start() error {
	s.log.Info("status server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) progress(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.tracker.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("writing status response", zap.Error(err))
	}
}
