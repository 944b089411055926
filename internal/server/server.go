package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kebairia/neoback/internal/backup"
	"github.com/kebairia/neoback/internal/health"
	"github.com/kebairia/neoback/internal/logger"
	"github.com/kebairia/neoback/internal/restore"
)

// HealthRunner runs one verification pass against the production database.
type HealthRunner interface {
	Run(ctx context.Context) *health.Report
}

// Server is the daemon's HTTP surface: health checks for collaborators,
// the manifest inventory, restore sessions, and metrics.
type Server struct {
	listen   string
	verifier HealthRunner
	store    *backup.Store
	registry *restore.Registry
	log      logger.Logger
	mux      *http.ServeMux
}

// Option adjusts a Server.
type Option func(*Server)

// WithRegistry exposes restore sessions on /sessions.
func WithRegistry(r *restore.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// WithLogger sets the server's logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New builds the HTTP surface. listen is the bind address.
func New(listen string, verifier HealthRunner, store *backup.Store, opts ...Option) *Server {
	s := &Server{
		listen:   listen,
		verifier: verifier,
		store:    store,
		log:      logger.Global(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /manifests", s.handleManifests)
	s.mux.HandleFunc("GET /sessions", s.handleSessions)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// Handler returns the routed handler, used directly in tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("http server listening", "addr", s.listen)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// handleHealth runs the checks and answers 200 only when all pass, so
// collaborators can probe with a bare status code.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.verifier.Run(r.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, report)
}

// manifestEntry adds the artifact id next to the manifest's own fields.
type manifestEntry struct {
	ID string `json:"id"`
	*backup.Manifest
}

func (s *Server) handleManifests(w http.ResponseWriter, r *http.Request) {
	manifests, err := s.store.List()
	if err != nil {
		s.log.Error("list manifests failed", "error", err.Error())
		http.Error(w, "listing manifests failed", http.StatusInternalServerError)
		return
	}

	entries := make([]manifestEntry, 0, len(manifests))
	for _, m := range manifests {
		entries = append(entries, manifestEntry{ID: m.ID, Manifest: m})
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	snapshots := []restore.Snapshot{}
	if s.registry != nil {
		for _, session := range s.registry.Sessions() {
			snapshots = append(snapshots, session.Snapshot())
		}
	}
	s.writeJSON(w, http.StatusOK, snapshots)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response failed", "error", err.Error())
	}
}
