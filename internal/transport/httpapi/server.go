// Package httpapi exposes the orchestrator over HTTP: the webhook ingestion
// endpoint, manual trigger endpoints for operators, the task-run audit
// listing and the health probes.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sentinel/internal/bootstrap/config"
	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/domain/workflow"
	"sentinel/internal/errs"
	"sentinel/internal/ports"
	"sentinel/internal/usecase/orchestrator"
)

// Orchestrator is the service surface the transport needs. The concrete
// implementation is orchestrator.Service.
type Orchestrator interface {
	HandleWebhook(ctx context.Context, input orchestrator.WebhookInput) (orchestrator.WebhookResult, error)
	TriggerAction(ctx context.Context, issueNumber int, action workflow.Action) error
	TriggerRefine(ctx context.Context, issueNumber int, feedback string) error
	RecentTaskRuns(ctx context.Context, limit int) ([]ports.TaskRun, error)
	Health(ctx context.Context) orchestrator.HealthReport
}

type Server struct {
	cfg     config.ServerConfig
	service Orchestrator
	server  *http.Server
}

func NewServer(cfg config.ServerConfig, service Orchestrator) *Server {
	s := &Server{cfg: cfg, service: service}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Post("/webhook/github", s.handleWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Post("/issues/{number}/analyze", s.handleAnalyze)
		r.Post("/issues/{number}/implement", s.handleImplement)
		r.Post("/issues/{number}/refine", s.handleRefine)
		r.Get("/runs", s.handleListRuns)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/livez", s.handleLive)
	r.Get("/readyz", s.handleHealth)

	s.server = &http.Server{
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start serves until ctx is cancelled, then drains connections. In-flight
// background tasks are the caller's to wait for; this only closes the HTTP
// side.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	addr := s.cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errs.Wrapf(err, "listen on %s", addr)
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "http.server"))
	logging.Info(logCtx, "http server listening", slog.String("addr", listener.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errs.Wrap(err, "serve http")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownTimeout := time.Duration(s.cfg.ShutdownTimeoutSeconds) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(err, "shutdown http server")
	}
	logging.Info(logCtx, "http server stopped")
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logging.Info(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(started)),
		)
	})
}
