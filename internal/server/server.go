// Package server provides the HTTP API for CV generation.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/cv-tailor/internal/generation"
	"github.com/jonathan/cv-tailor/internal/server/middleware"
	"github.com/jonathan/cv-tailor/internal/server/ratelimit"
	"github.com/jonathan/cv-tailor/internal/types"
)

// maxBodyBytes bounds request bodies. Image attachments arrive base64 encoded.
const maxBodyBytes = 16 << 20

// Generator runs one generation for a user.
type Generator interface {
	Generate(ctx context.Context, userID string, req types.GenerationRequest) (*types.GenerationResult, error)
}

// VariantCreator creates or returns the variant of a document for a context.
type VariantCreator interface {
	Create(ctx context.Context, userID string, req types.VariantRequest) (*generation.VariantResult, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Port         int
	WriteTimeout time.Duration // must exceed the dispatch timeout
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Generator Generator
	Variants  VariantCreator
	Tokens    middleware.TokenValidator
	Health    Pinger             // optional
	Limiter   *ratelimit.Limiter // optional
	Logger    *zap.Logger
}

// Server is the HTTP API.
type Server struct {
	httpServer *http.Server
	generator  Generator
	variants   VariantCreator
	health     Pinger
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
}

// New creates a server. Call Start to listen.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Generator == nil || deps.Variants == nil {
		return nil, fmt.Errorf("server requires a generator and a variant creator")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("server requires a token validator")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		generator: deps.Generator,
		variants:  deps.Variants,
		health:    deps.Health,
		limiter:   deps.Limiter,
		logger:    logger.Named("server"),
	}

	authed := middleware.RequireUser(deps.Tokens)
	mux := http.NewServeMux()
	mux.Handle("POST /v1/documents/{id}/generate", authed(s.withRateLimit(http.HandlerFunc(s.handleGenerate))))
	mux.Handle("POST /v1/documents/{id}/variants", authed(s.withRateLimit(http.HandlerFunc(s.handleCreateVariant))))
	mux.HandleFunc("GET /health", s.handleHealth)

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 6 * time.Minute
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           middleware.Logging(s.logger)(s.withCORS(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit throttles per user. It runs after authentication so the bucket
// follows the account rather than the address.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.limiter.Allow(clientID(r), r.URL.Path, r.Method)
		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		}
		if !allowed {
			body := map[string]any{"error": "rate limit exceeded"}
			if info.RetryAfter > 0 {
				secs := int(info.RetryAfter.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				body["retry_after"] = secs
			}
			s.logger.Info("rate limit exceeded", zap.String("path", r.URL.Path))
			s.jsonResponse(w, http.StatusTooManyRequests, body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientID is the authenticated user, or the remote IP when there is none.
func clientID(r *http.Request) string {
	if userID, ok := middleware.UserID(r.Context()); ok {
		return "user:" + userID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
