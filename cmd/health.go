package cmd

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"sentinel/internal/bootstrap"
	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/errs"
	"sentinel/internal/usecase/orchestrator"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check credentials, AI CLI and git configuration",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *orchestrator.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		report := svc.Health(ctx)

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return errs.Wrap(err, "write health output")
		}
		if !report.Healthy {
			return errors.New("health check failed")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
