// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root of the web process: main builds the
// long-lived resources (database, execution engine, metrics) and hands them
// over in Deps; New wires services, handlers and middleware on top of them.
//
// ROUTES:
//
//	GET    /                     playground page (HTML)
//	GET    /static/*             static files
//	GET    /api/languages        registered language ids
//	POST   /api/execute          run code (rate limited per IP)
//	GET    /api/settings         settings of the current owner
//	PUT    /api/settings         partial settings update
//	DELETE /api/settings         back to defaults
//	PUT    /api/settings/code    debounced code autosave
//	GET    /api/me               signed-in user
//	GET    /auth/github/login    start GitHub login (when configured)
//	GET    /auth/github/callback finish GitHub login (when configured)
//	POST   /auth/logout          back to an anonymous session
//	GET    /metrics              Prometheus
//	GET    /healthz              liveness plus database ping
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/js-playground/internal/config"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/handler"
	"github.com/sakif/js-playground/internal/metrics"
	"github.com/sakif/js-playground/internal/middleware"
	sqliteRepo "github.com/sakif/js-playground/internal/repository/sqlite"
	"github.com/sakif/js-playground/internal/service"
	"github.com/sakif/js-playground/internal/session"
)

// Engine is what the server needs from the execution core.
// *executor.Engine satisfies it.
type Engine interface {
	executor.Executor
	Supports(language string) bool
}

// Deps are the resources main creates and the server owns from then on.
// Everything in Deps is closed when the server stops.
type Deps struct {
	DB      *sqliteRepo.DB
	Engine  Engine
	Metrics *metrics.Metrics
	// Sandboxes are closed after HTTP traffic has drained (e.g. the
	// Docker handler and its container pool). May be empty.
	Sandboxes []io.Closer
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	deps     Deps
	settings *service.SettingsService
	logger   *slog.Logger
}

// New wires every service, handler and route. It does not start listening.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.DB == nil || deps.Engine == nil || deps.Metrics == nil {
		return nil, errors.New("server: DB, Engine and Metrics are required")
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// Middleware order: RequestID, RealIP, Recoverer, then our request
// logger, then the session cookie. Every route below therefore sees an
// identity in its context.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := session.NewTokenService(s.config.Auth.SessionSecret)
	if err != nil {
		return fmt.Errorf("creating session tokens: %w", err)
	}
	secure := strings.HasPrefix(s.config.Auth.GitHubCallbackURL, "https://")
	sessions := session.NewManager(tokens, secure, s.logger)

	// Static assets do not need a session.
	fileServer := http.FileServer(http.Dir(s.config.Server.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	s.router.Handle("/metrics", s.deps.Metrics.Handler())
	s.router.Get("/healthz", s.handleHealth)

	s.settings = service.NewSettingsService(s.deps.DB, s.deps.Engine, s.config.Autosave.Delay, s.deps.Metrics, s.logger)
	authService := service.NewAuthService(s.deps.DB, s.settings, s.logger)

	executeHandler := handler.NewExecuteHandler(s.deps.Engine, s.logger)
	settingsHandler := handler.NewSettingsHandler(s.settings, s.logger)
	loginEnabled := s.config.Auth.GitHubEnabled()

	playgroundHandler, err := handler.NewPlaygroundHandler(s.config.Server.TemplateDir, s.deps.Engine, s.settings, loginEnabled, s.logger)
	if err != nil {
		return fmt.Errorf("creating playground handler: %w", err)
	}

	var github handler.OAuthProvider
	if loginEnabled {
		github = session.NewGitHubProvider(
			s.config.Auth.GitHubClientID,
			s.config.Auth.GitHubClientSecret,
			s.config.Auth.GitHubCallbackURL,
		)
	}
	authHandler := handler.NewAuthHandler(github, authService, sessions, s.logger)

	s.router.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)

		r.Get("/", playgroundHandler.HandlePlayground)

		r.Route("/api", func(r chi.Router) {
			r.Get("/languages", executeHandler.HandleLanguages)

			if s.config.RateLimit.Enabled {
				limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
					RequestsPerSecond: s.config.RateLimit.RPS,
					Burst:             s.config.RateLimit.Burst,
				})
				r.With(limiter.Handler).Post("/execute", executeHandler.HandleExecute)
			} else {
				r.Post("/execute", executeHandler.HandleExecute)
			}

			r.Get("/settings", settingsHandler.HandleGet)
			r.Put("/settings", settingsHandler.HandleUpdate)
			r.Delete("/settings", settingsHandler.HandleReset)
			r.Put("/settings/code", settingsHandler.HandleSaveCode)

			r.Get("/me", authHandler.HandleMe)
		})

		r.Route("/auth", func(r chi.Router) {
			if loginEnabled {
				r.Get("/github/login", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
			}
			r.Post("/logout", authHandler.HandleLogout)
		})
	})

	if !loginEnabled {
		s.logger.Info("GitHub login disabled; sessions stay anonymous")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.deps.DB.Ping(); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "database unavailable")
		return
	}
	fmt.Fprintln(w, "ok")
}

// Start runs the server until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves HTTP until ctx is done, then shuts down gracefully:
//
//  1. stop accepting connections and wait for in-flight requests (30s)
//  2. write pending code autosaves
//  3. close sandboxes, then the database
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second + s.config.Exec.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Path),
			slog.Any("languages", s.deps.Engine.Languages()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) close() {
	s.settings.Close()

	for _, c := range s.deps.Sandboxes {
		if err := c.Close(); err != nil {
			s.logger.Warn("closing sandbox", slog.String("error", err.Error()))
		}
	}
	if err := s.deps.DB.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
