// Package server provides the HTTP server and routing for the swing pipeline.
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

	"github.com/aristath/swingsentinel/internal/config"
	"github.com/aristath/swingsentinel/internal/database"
	"github.com/aristath/swingsentinel/internal/di"
	expectancyhandlers "github.com/aristath/swingsentinel/internal/modules/expectancy/handlers"
	portfoliohandlers "github.com/aristath/swingsentinel/internal/modules/portfolio/handlers"
	riskhandlers "github.com/aristath/swingsentinel/internal/modules/risk/handlers"
	scanninghandlers "github.com/aristath/swingsentinel/internal/modules/scanning/handlers"
	scoringhandlers "github.com/aristath/swingsentinel/internal/modules/scoring/handlers"
	sizinghandlers "github.com/aristath/swingsentinel/internal/modules/sizing/handlers"
	stopshandlers "github.com/aristath/swingsentinel/internal/modules/stops/handlers"
	universehandlers "github.com/aristath/swingsentinel/internal/modules/universe/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container // DI container with all services
	Jobs      *di.JobInstances
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	container *di.Container
	system    *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
	}
	s.system = NewSystemHandlers(
		cfg.Log,
		[]*database.DB{cfg.Container.PortfolioDB, cfg.Container.HistoryDB, cfg.Container.CacheDB},
		cfg.Container.Scheduler,
		cfg.Jobs,
	)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	c := s.container
	profile, equity := s.cfg.RiskProfile, s.cfg.Equity

	s.router.Get("/health", s.system.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		universehandlers.NewHandler(c.SecurityRepo, c.HistoryBars, c.RegimeDetector, s.log).RegisterRoutes(r)
		portfoliohandlers.NewHandler(c.PositionRepo, c.SecurityRepo, c.ExpectancyService, s.log).RegisterRoutes(r)
		riskhandlers.NewHandler(c.RiskValidator, c.Profiles, profile, equity, s.log).RegisterRoutes(r)
		sizinghandlers.NewHandler(c.Sizer, c.RiskValidator, c.Profiles, profile, equity, s.log).RegisterRoutes(r)
		stopshandlers.NewHandler(c.StopManager, c.PositionRepo, s.log).RegisterRoutes(r)
		scanninghandlers.NewHandler(c.Scanner, c.ScanResults, c.Profiles, profile, equity, s.log).RegisterRoutes(r)
		expectancyhandlers.NewHandler(c.ExpectancyService, c.ExpectancyRepo, s.log).RegisterRoutes(r)
		scoringhandlers.NewHandlers(c.SecurityRepo, c.MarketData, c.Scorer, s.cfg.Benchmark, s.log).RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.system.HandleSystemStatus)
			r.Get("/jobs", s.system.HandleListJobs)
			r.Post("/jobs/{name}", s.system.HandleTriggerJob)
		})
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
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
