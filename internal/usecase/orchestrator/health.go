package orchestrator

import (
	"context"
	"log/slog"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/errs"
)

// HealthReport is the readiness snapshot: configured credentials, a live
// probe of the AI CLI, git identity in the working clone, and how loaded
// the dispatcher is.
type HealthReport struct {
	Healthy           bool               `json:"healthy"`
	TokenConfigured   bool               `json:"token_configured"`
	AppConfigured     bool               `json:"app_configured"`
	PermissiveWebhook bool               `json:"permissive_webhook"`
	Runner            RunnerAvailability `json:"runner"`
	Git               GitConfigStatus    `json:"git"`
	InFlightTasks     int                `json:"in_flight_tasks"`
}

func (s *Service) Health(ctx context.Context) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}
	logCtx := logging.WithAttrs(ctx, slog.String("component", "orchestrator.health"))

	report := HealthReport{
		TokenConfigured:   s.cfg.GitHub.Token != "",
		AppConfigured:     s.cfg.GitHub.App.Configured(),
		PermissiveWebhook: s.cfg.GitHub.WebhookSecret == "",
		Runner:            s.runnerAvailability(logCtx),
		InFlightTasks:     s.dispatcher.InFlightCount(),
	}

	git, err := s.git.ConfigStatus(logCtx)
	if err != nil {
		logging.Warn(logCtx, "git config probe failed", slog.Any("err", errs.Loggable(err)))
	}
	report.Git = git

	report.Healthy = (report.TokenConfigured || report.AppConfigured) &&
		report.Runner.Available &&
		report.Git.Configured
	return report
}
