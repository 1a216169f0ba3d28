// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB → services (repository interfaces) → handlers (services) → routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes) rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/pulsecheck/internal/auth"
	"github.com/sakif/pulsecheck/internal/config"
	"github.com/sakif/pulsecheck/internal/handler"
	"github.com/sakif/pulsecheck/internal/metrics"
	"github.com/sakif/pulsecheck/internal/middleware"
	sqliteRepo "github.com/sakif/pulsecheck/internal/repository/sqlite"
	"github.com/sakif/pulsecheck/internal/service"
	"github.com/sakif/pulsecheck/internal/telemetry"
)

// shutdownTimeout bounds the drain of in-flight requests.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database handle. Start closes it after the HTTP
// server has drained, so no request ever sees a closed database.
type Server struct {
	router  *chi.Mux
	handler http.Handler
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *metrics.Metrics
}

// New opens the database and wires every layer.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo so it cannot be confused with
// the modernc.org/sqlite driver.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	// otelhttp sits outside the router so every request gets a server span,
	// including ones chi rejects.
	s.handler = otelhttp.NewHandler(s.router, telemetry.ServiceName)
	return s, nil
}

// Handler returns the fully wrapped HTTP handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases the database. Start calls it on shutdown.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique id to each request (logged everywhere)
// 2. RealIP: extracts the client IP from proxy headers
// 3. Recoverer: turns panics into 500s instead of crashing
// 4. Logger: one log line per request
// 5. Metrics: request counters labelled by route pattern
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Middleware)

	// === Auth infrastructure ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordServiceWithCost(s.config.BcryptCost)

	// === Services ===
	// s.db implements every repository interface; each service only sees
	// the ones it needs.
	enrollments := service.NewEnrollmentService(s.db, s.db, s.db, s.config.AllowExplicitEnrollUser, s.metrics, s.logger)
	authService := service.NewAuthService(s.db, enrollments, tokens, passwords, s.logger)
	users := service.NewUserService(s.db, passwords, s.config.PublicURL, s.logger)
	courses := service.NewCourseService(s.db, s.db, s.db, s.logger)
	members := service.NewMembershipService(s.db, s.db, s.db, s.metrics, s.logger)
	topics := service.NewTopicService(s.db, s.db, s.db, s.logger)
	feedback := service.NewFeedbackService(s.db, s.db, s.db, s.db, s.db, s.metrics, s.logger)
	dashboard := service.NewDashboardService(s.db)

	// === Handlers ===
	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.CallbackURL())
	}
	cookies := handler.SessionCookies{Secure: s.config.CookieSecure, TTL: tokens.TTL()}

	authHandler := handler.NewAuthHandler(authService, users, github, cookies, s.logger)
	userHandler := handler.NewUserHandler(users, s.logger)
	courseHandler := handler.NewCourseHandler(courses, enrollments, s.logger)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollments, s.logger)
	memberHandler := handler.NewMemberHandler(members, s.logger)
	topicHandler := handler.NewTopicHandler(topics, s.logger)
	feedbackHandler := handler.NewFeedbackHandler(feedback, s.logger)
	dashboardHandler := handler.NewDashboardHandler(dashboard, s.logger)

	// === Operational routes ===
	s.router.Get("/healthz", handler.HandleHealth(s.db, s.logger))
	s.router.Handle("/metrics", s.metrics.Handler())

	// === Auth routes (public) ===
	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Post("/password/forgot", authHandler.HandleForgotPassword)
		r.Post("/password/reset", authHandler.HandleResetPassword)

		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		} else {
			s.logger.Info("GitHub sign-in disabled: PULSECHECK_GITHUB_CLIENT_ID/SECRET not set")
		}
	})

	// === API routes ===
	s.router.Route("/api", func(r chi.Router) {
		// Routes that also serve anonymous callers.
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(tokens))
			r.Get("/courses/enrollable", courseHandler.HandleListEnrollable)
			r.Post("/enrollments", enrollmentHandler.HandleEnroll)
		})

		// Everything else needs a session.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/me", userHandler.HandleMe)
			r.Patch("/me", userHandler.HandleUpdateMe)
			r.Post("/me/password", userHandler.HandleChangePassword)
			r.Get("/dashboard", dashboardHandler.HandleGet)

			r.Get("/enrollments", enrollmentHandler.HandleListMine)
			r.Delete("/enrollments/{courseID}", enrollmentHandler.HandleUnenroll)

			r.Get("/courses", courseHandler.HandleList)
			r.Post("/courses", courseHandler.HandleCreate)
			r.Route("/courses/{courseID}", func(r chi.Router) {
				r.Get("/", courseHandler.HandleGet)
				r.Patch("/", courseHandler.HandleUpdate)
				r.Delete("/", courseHandler.HandleDelete)

				r.Get("/members", memberHandler.HandleList)
				r.Post("/members", memberHandler.HandleAdd)
				r.Get("/members/search", memberHandler.HandleSearch)
				r.Delete("/members/{userID}", memberHandler.HandleRemove)

				r.Get("/topics", topicHandler.HandleList)
				r.Post("/topics", topicHandler.HandleCreate)
			})

			r.Patch("/topics/{topicID}", topicHandler.HandleRename)
			r.Delete("/topics/{topicID}", topicHandler.HandleDelete)
			r.Get("/topics/{topicID}/feedback", feedbackHandler.HandleListForTopic)
			r.Post("/topics/{topicID}/feedback", feedbackHandler.HandleSubmit)

			r.Get("/feedback/mine", feedbackHandler.HandleListMine)
			r.Patch("/feedback/{feedbackID}", feedbackHandler.HandleUpdate)
			r.Delete("/feedback/{feedbackID}", feedbackHandler.HandleDelete)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/users", userHandler.HandleListUsers)
				r.Patch("/users/{userID}/roles", userHandler.HandleSetRoles)
			})
		})
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new connections
// 2. Wait up to 30s for in-flight requests to finish
// 3. Close the database (flushes the WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.PublicURL),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
