package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tasktrack/internal/auth"
	"github.com/gosuda/tasktrack/internal/config"
	"github.com/gosuda/tasktrack/internal/metrics"
	"github.com/gosuda/tasktrack/internal/server/middleware"
	"github.com/gosuda/tasktrack/internal/service"
)

// Deps are the collaborators the HTTP layer is wired to.
type Deps struct {
	Tasks *service.TaskService
	// Auth is nil when no JWT secret is configured.
	Auth *auth.Service
	// Limiter is nil when rate limiting is disabled.
	Limiter        middleware.Limiter
	LimiterBackend string
	Metrics        *metrics.Metrics
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server with all routes wired.
func New(cfg *config.Config, deps Deps) *Server {
	var (
		httpObs middleware.HTTPObserver
		rateObs middleware.RateObserver
	)
	if deps.Metrics != nil {
		httpObs, rateObs = deps.Metrics, deps.Metrics
	}

	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.Observe(httpObs))
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.HeaderActorID, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	authOpts := middleware.AuthOptions{
		Users:       deps.Tasks,
		AllowHeader: cfg.Auth.ActorHeader,
	}
	if deps.Auth != nil {
		authOpts.Tokens = deps.Auth
	}

	// Mount API routes on /api/v1 with two sub-groups:
	// 1. Unauthenticated group for token endpoints.
	// 2. Authenticated group for everything else.
	router.Route("/api/v1", func(r chi.Router) {
		if deps.Auth != nil {
			r.Group(func(r chi.Router) {
				if deps.Limiter != nil {
					r.Use(middleware.RateLimit(deps.Limiter, deps.LimiterBackend, cfg.RateLimit.Window, rateObs))
				}
				tokenAPI := humachi.New(r, apiConfig("TaskTrack Auth API"))
				registerTokenRoutes(tokenAPI, deps.Auth, cfg.Auth.DevTokens)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authOpts))
			if deps.Limiter != nil {
				r.Use(middleware.RateLimit(deps.Limiter, deps.LimiterBackend, cfg.RateLimit.Window, rateObs))
			}
			api := humachi.New(r, apiConfig("TaskTrack API"))
			registerAPIRoutes(api, deps.Tasks)
		})
	})

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.Handler())
	}

	return s
}

func apiConfig(title string) huma.Config {
	c := huma.DefaultConfig(title, "1.0.0")
	c.Servers = []*huma.Server{
		{URL: "/api/v1"},
	}
	return c
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("server.Start: listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
