// Package api exposes the upload/transform HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/an-heidi/image-resizer/internal/config"
	"github.com/an-heidi/image-resizer/internal/resize"
	"github.com/an-heidi/image-resizer/internal/storage"
)

// Server hosts the upload endpoint plus health and metrics handlers.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	engine     *resize.Engine
	store      *storage.VariantStore
	metrics    *Metrics

	requestCount int64
	errorCount   int64
	startTime    time.Time
}

// NewServer wires the router and handlers. store may be nil when variant
// persistence is disabled.
func NewServer(cfg *config.Config, logger *zap.Logger, engine *resize.Engine, store *storage.VariantStore) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:    cfg,
		logger:    logger,
		router:    mux.NewRouter(),
		engine:    engine,
		store:     store,
		metrics:   NewMetrics(),
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: s.router,
		// Multipart bodies run to tens of megabytes, so the windows are
		// generous.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/upload", s.handleUpload).Methods("POST")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	s.router.Use(s.loggingMiddleware)
}

// Router exposes the handler tree for in-process test servers.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":   "healthy",
		"version":  "0.1.0",
		"uptime":   time.Since(s.startTime).Seconds(),
		"requests": atomic.LoadInt64(&s.requestCount),
		"errors":   atomic.LoadInt64(&s.errorCount),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.requestCount, 1)
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status >= 400 {
			atomic.AddInt64(&s.errorCount, 1)
		}
		s.metrics.ObserveRequest(r.Method, r.URL.Path, rec.status, time.Since(start).Seconds())

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Start blocks serving HTTP until the server shuts down or fails.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
