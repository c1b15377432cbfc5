// Package server exposes the deployment engine over HTTP: project
// import and update, deploy/rollback triggers, deployment/log lookups, and the
// GitHub webhook intake.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shiphouse/internal/engine"
	"shiphouse/internal/project"
	"shiphouse/internal/secrets"
)

const (
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 60 * time.Second
	HTTPIdleTimeout  = 60 * time.Second
	RequestTimeout   = 60 * time.Second

	// GlobalRateLimit is requests per hour per IP; WebhookRateLimit is
	// requests per minute per IP.
	GlobalRateLimit  = 120
	WebhookRateLimit = 30

	MaxPayloadBytes = 1_000_000
)

// Server wires the HTTP facade to the engine and its stores.
type Server struct {
	Engine     *engine.Engine
	Projects   *project.Store
	Codec      *secrets.Codec
	AdminToken string
	Logger     *slog.Logger
	TestMode   bool
}

// NewServer builds a Server. adminToken gates every endpoint except
// /health and the webhook intake, which is authenticated separately
// by its per-project HMAC secret.
func NewServer(eng *engine.Engine, projects *project.Store, codec *secrets.Codec, adminToken string, logger *slog.Logger, testMode bool) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Engine:     eng,
		Projects:   projects,
		Codec:      codec,
		AdminToken: adminToken,
		Logger:     logger,
		TestMode:   testMode,
	}
}

// Router builds the chi router for the whole API surface.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(s.requestLogger)

	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdminToken)

		r.Post("/projects/import", s.handleImportProject)
		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Patch("/", s.handleUpdateProject)
			r.Post("/deploy", s.handleDeploy)
			r.Get("/deployments", s.handleListDeployments)
			r.Post("/rollback", s.handleRollback)
		})

		r.Get("/deployments/{deploymentID}", s.handleGetDeployment)
		r.Get("/deployments/{deploymentID}/log", s.handleGetDeploymentLog)
	})

	webhookRoute := r.With()
	if !s.TestMode {
		webhookRoute = r.With(NewWebhookRateLimitMiddleware(WebhookRateLimit, s.Logger))
	}
	webhookRoute.Post("/webhooks/github/{projectID}", s.handleWebhook)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.Logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds())
		}()
		next.ServeHTTP(ww, r)
	})
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("starting server", "addr", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}
	return srv.ListenAndServe()
}

// Shutdown stops the engine's worker pool; Engine.Stop returns once the
// in-flight deployments and every record still queued have run.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Engine != nil {
		s.Engine.Stop()
	}
	return nil
}
