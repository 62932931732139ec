package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"sentinel/internal/bootstrap"
	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/errs"
	"sentinel/internal/infrastructure/githubtracker"
	"sentinel/internal/infrastructure/persistence/sqlite/repository"
	"sentinel/internal/infrastructure/persistence/sqlite/uow"
	"sentinel/internal/usecase/orchestrator"
)

// withApp boots the application and wires the orchestration service for a
// command, closing everything down afterwards.
func withApp(run func(cmd *cobra.Command, app *bootstrap.App, svc *orchestrator.Service) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := logging.WithAttrs(
			cmd.Context(),
			slog.String("command", cmd.CommandPath()),
			slog.String("config_file", cfgFile),
		)

		app, err := bootstrap.New(ctx, cfgFile)
		if err != nil {
			logging.Error(ctx, "bootstrap application failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "bootstrap application")
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.Close(closeCtx); err != nil {
				logging.Error(ctx, "application close failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		tracker, err := githubtracker.New(ctx, app.Config.GitHub)
		if err != nil {
			return errs.Wrap(err, "create github client")
		}

		executor, err := orchestrator.NewExecutor(app.Config.Runner.ProfileFile)
		if err != nil {
			return errs.Wrap(err, "load executor profile")
		}

		svc := orchestrator.NewService(
			app.Config,
			tracker,
			repository.NewDeliveryRepository(app.DB),
			uow.NewUnitOfWork(app.DB),
			executor,
		)

		if err := run(cmd, app, svc); err != nil {
			return errs.Wrap(err, "run command")
		}
		return nil
	}
}
