// Package server exposes the risk engine over HTTP. Handlers are a thin
// translation layer: decode, delegate to the engine, map structured errors to
// status codes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/hrninfomeet-wq/riskengine/internal/engine"
	"github.com/hrninfomeet-wq/riskengine/internal/metrics"
	"github.com/hrninfomeet-wq/riskengine/internal/monitor"
)

// Config holds server construction parameters
type Config struct {
	Port    int
	DevMode bool
	Log     zerolog.Logger
	Engine  *engine.Engine
	Monitor *monitor.Monitor
}

// Server is the HTTP front of the risk engine
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	engine  *engine.Engine
	monitor *monitor.Monitor
	started time.Time
}

// New creates the HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		engine:  cfg.Engine,
		monitor: cfg.Monitor,
		started: time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the handler tree (used by tests)
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api/risk", func(r chi.Router) {
		r.Post("/var", s.handleVaR)
		r.Post("/position-size", s.handlePositionSize)
		r.Post("/portfolio/analyze", s.handlePortfolioAnalyze)
		r.Post("/controls", s.handleControls)
		r.Get("/alerts", s.handleAlerts)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
