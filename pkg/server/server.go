// Package server publishes the latest frame of a running simulation over HTTP.
//
// A [Server] is a [sim.Sink]: the runner hands it every frame and the server
// keeps a detached copy of the most recent one. Handlers never touch the
// live tree, so serving does not block propagation beyond that copy.
//
// Routes:
//
//	GET /healthz                 liveness, always 200
//	GET /config                  effective configuration
//	GET /frame                   latest frame as JSON
//	GET /frame/levels/{level}    one level's batch
//
// Frame routes answer 404 until the first frame has been drawn.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/fractal/pkg/buildinfo"
	"github.com/matzehuels/fractal/pkg/config"
	"github.com/matzehuels/fractal/pkg/errors"
	"github.com/matzehuels/fractal/pkg/observability"
	"github.com/matzehuels/fractal/pkg/sim"
)

// Server serves frames. The zero value is not usable; call [New].
type Server struct {
	logger *log.Logger
	router chi.Router

	mu     sync.RWMutex
	cfg    config.Config
	latest *sim.Frame
}

// New creates a server for a simulation with the given configuration.
// A nil logger uses log.Default().
func New(cfg config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{logger: logger, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Get("/healthz", s.handleHealth)
	r.Get("/config", s.handleConfig)
	r.Get("/frame", s.handleFrame)
	r.Get("/frame/levels/{level}", s.handleLevel)
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Draw stores a copy of f as the latest frame.
func (s *Server) Draw(_ context.Context, f *sim.Frame) error {
	c := f.Clone()
	s.mu.Lock()
	s.latest = c
	s.mu.Unlock()
	return nil
}

// SetConfig replaces the configuration reported by /config, for example
// after a rebuild at a different depth.
func (s *Server) SetConfig(cfg config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Server) frame() *sim.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("serving frames", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: buildinfo.Version})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	f := s.frame()
	if f == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "no frame yet"))
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type levelResponse struct {
	RunID string    `json:"run_id"`
	Tick  uint64    `json:"tick"`
	Batch sim.Batch `json:"batch"`
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	f := s.frame()
	if f == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "no frame yet"))
		return
	}
	raw := chi.URLParam(r, "level")
	level, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "level %q is not a number", raw))
		return
	}
	if level < 0 || level >= len(f.Batches) {
		writeError(w, errors.New(errors.ErrCodeNotFound, "level %d not in [0, %d)", level, len(f.Batches)))
		return
	}
	writeJSON(w, http.StatusOK, levelResponse{RunID: f.RunID, Tick: f.Tick, Batch: f.Batches[level]})
}

// observe reports requests to the HTTP hooks and the debug log.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		hooks := observability.HTTP()
		hooks.OnRequest(r.Context(), r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		hooks.OnResponse(r.Context(), r.Method, r.URL.Path, status, time.Since(start))
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path,
			"status", status, "duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type errorResponse struct {
	Error string      `json:"error"`
	Code  errors.Code `json:"code"`
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: errors.UserMessage(err), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var _ sim.Sink = (*Server)(nil)
