// Package api provides the HTTP API for workflow refinement.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/flowcanvas/flowrefine/internal/adapters/cli"
	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/logging"
	"github.com/flowcanvas/flowrefine/internal/service/refine"
)

// Refiner is the refinement pipeline the API drives.
type Refiner interface {
	RefineWorkflow(ctx context.Context, req refine.WorkflowRequest) refine.Result
	RefineNestedFlow(ctx context.Context, req refine.NestedFlowRequest) refine.Result
	Cancel(ctx context.Context, correlationID string) cli.CancelResult
}

// Server provides HTTP endpoints for refinement, diffing and history.
type Server struct {
	router         chi.Router
	refiner        Refiner
	history        core.HistoryStore
	logger         *logging.Logger
	metrics        http.Handler
	limiter        *RateLimiter
	allowedOrigins []string
	useSkills      bool
	newID          func() string

	// busy holds one mutex per history key so that two refinements never
	// interleave their load and save of the same conversation.
	busy sync.Map
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithRateLimiter limits refinement requests. Other routes are not limited.
func WithRateLimiter(l *RateLimiter) ServerOption {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithAllowedOrigins sets the CORS origin allow-list.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithDefaultUseSkills sets whether skills are offered when a request does
// not say.
func WithDefaultUseSkills(use bool) ServerOption {
	return func(s *Server) {
		s.useSkills = use
	}
}

// WithIDGenerator overrides correlation id generation.
func WithIDGenerator(fn func() string) ServerOption {
	return func(s *Server) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewServer creates a new API server.
func NewServer(refiner Refiner, history core.HistoryStore, opts ...ServerOption) *Server {
	s := &Server{
		refiner:        refiner,
		history:        history,
		logger:         logging.NewNop(),
		allowedOrigins: []string{"*"},
		useSkills:      true,
		newID:          newCorrelationID,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/workflows/{workflowID}", func(r chi.Router) {
			r.With(s.rateLimitMiddleware).Post("/refine", s.handleRefineWorkflow)
			r.Get("/history", s.handleGetHistory)
			r.Delete("/history", s.handleClearHistory)

			r.Route("/nested-flows/{flowID}", func(r chi.Router) {
				r.With(s.rateLimitMiddleware).Post("/refine", s.handleRefineNestedFlow)
				r.Get("/history", s.handleGetHistory)
				r.Delete("/history", s.handleClearHistory)
			})
		})

		r.Delete("/refinements/{correlationID}", s.handleCancel)
		r.Post("/diff", s.handleDiff)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	return srv.ListenAndServe()
}

// lockKey reserves a history key. The returned release must be called.
func (s *Server) lockKey(key string) (release func(), ok bool) {
	v, _ := s.busy.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, false
	}
	return mu.Unlock, true
}
