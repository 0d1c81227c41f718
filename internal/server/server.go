// Package server exposes the council pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ShayCichocki/council/internal/council"
)

// Deliberator runs a pipeline request off the calling goroutine.
type Deliberator interface {
	RunAsync(ctx context.Context, req council.Request) (*council.Result, error)
}

// Config holds server settings.
type Config struct {
	Addr string
	// MaxConcurrentRuns bounds in-flight deliberations; extra requests wait.
	MaxConcurrentRuns int
}

// Server is the HTTP adapter for the pipeline.
type Server struct {
	council Deliberator
	sem     *semaphore.Weighted
	addr    string
	logger  *zap.Logger
}

// New creates a Server.
func New(d Deliberator, cfg Config, logger *zap.Logger) *Server {
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 1
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		council: d,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns)),
		addr:    cfg.Addr,
		logger:  logger,
	}
}

// Router returns the chi router serving the council routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/council", s.handleCouncil)
	r.Post("/council", s.handleCouncil)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // deliberations can take minutes on local models
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a {"detail": message} response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"detail": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCouncil(w http.ResponseWriter, r *http.Request) {
	prompt, msg := decodePrompt(r)
	if msg != "" {
		Error(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		Error(w, http.StatusServiceUnavailable, "request cancelled while waiting for a council slot")
		return
	}
	defer s.sem.Release(1)

	res, err := s.council.RunAsync(ctx, council.Request{Prompt: prompt})
	if err != nil {
		s.logger.Warn("council request abandoned", zap.Error(err))
		Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if res.Interrupted {
		Error(w, http.StatusServiceUnavailable, "council run interrupted")
		return
	}
	if res.Failed() {
		s.logger.Warn("council run failed", zap.String("error", res.Error))
		Error(w, http.StatusInternalServerError, res.Error)
		return
	}
	JSON(w, http.StatusOK, res)
}

// decodePrompt returns the prompt, or a client error message.
func decodePrompt(r *http.Request) (string, string) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", "request body must be a JSON object"
	}
	raw, ok := body["prompt"]
	if !ok {
		return "", "prompt is required"
	}
	prompt, ok := raw.(string)
	if !ok {
		return "", "prompt must be a string"
	}
	if strings.TrimSpace(prompt) == "" {
		return "", "prompt must not be empty"
	}
	return prompt, ""
}
