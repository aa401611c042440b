package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server is the HTTP API surface for detection, feedback, and configuration
type Server struct {
	router *chi.Mux
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a new API server
func NewServer(listenAddr string, handler *Handler, logger *zap.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	router.Get("/health", handler.Health)

	router.Route("/v1", func(r chi.Router) {
		r.Post("/detect", handler.Detect)
		r.Post("/feedback", handler.Feedback)
		r.Get("/reputation/{sender}", handler.SenderReputation)
		r.Put("/config/weights", handler.SetWeight)
		r.Put("/config/thresholds", handler.SetThresholds)
	})

	return &Server{
		router: router,
		server: &http.Server{
			Addr:         listenAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// Router exposes the router, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server in the background
func (s *Server) Start() error {
	s.logger.Info("HTTP API starting", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts the HTTP server down
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// requestLogger logs each request with method, path, status, and duration
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("Request handled",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
