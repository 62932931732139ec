package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sentinel/internal/bootstrap"
	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/errs"
	"sentinel/internal/transport/httpapi"
	"sentinel/internal/usecase/orchestrator"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Long:  "Starts the HTTP server that receives GitHub webhook deliveries, exposes the manual trigger API, and processes issues in the background.",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *orchestrator.Service) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logCtx := logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		if err := app.InitSchema(logCtx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}

		// Hot-reload of the command allow-list; stops with the server.
		go func() {
			if err := svc.Executor().Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Warn(logCtx, "profile watcher stopped", slog.Any("err", errs.Loggable(err)))
			}
		}()

		server := httpapi.NewServer(app.Config.Server, svc)
		if err := server.Start(ctx); err != nil {
			return errs.Wrap(err, "run http server")
		}

		// Let in-flight tasks finish before tearing the process down.
		drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		logging.Info(logCtx, "waiting for in-flight tasks",
			slog.Int("in_flight", svc.Dispatcher().InFlightCount()),
		)
		if err := svc.Dispatcher().Wait(drainCtx); err != nil {
			logging.Warn(logCtx, "shutdown drain incomplete", slog.Any("err", errs.Loggable(err)))
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
