package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"sentinel/internal/bootstrap"
	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/domain/workflow"
	"sentinel/internal/errs"
	"sentinel/internal/usecase/orchestrator"
)

var (
	processIssueNumber int
	processPhase       string
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a single issue synchronously",
	Long:  "Runs one issue through its current workflow stage (analysis or implementation) and waits for the result. Useful for recovery and local testing without webhook traffic.",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *orchestrator.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := app.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "initialize schema")
		}

		phase, err := parsePhase(processPhase)
		if err != nil {
			return err
		}

		logging.Info(ctx, "processing issue",
			slog.Int("issue", processIssueNumber),
			slog.String("phase", processPhase),
		)
		if err := svc.ProcessIssue(ctx, processIssueNumber, phase); err != nil {
			return errs.Wrapf(err, "process issue #%d", processIssueNumber)
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "issue #%d processed\n", processIssueNumber); err != nil {
			return errs.Wrap(err, "write process output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().IntVar(&processIssueNumber, "issue", 0, "Issue number to process")
	processCmd.Flags().StringVar(&processPhase, "phase", "", "Force a phase (analyze or implement); default decides from labels")
	_ = processCmd.MarkFlagRequired("issue")
}

func parsePhase(raw string) (workflow.Action, error) {
	switch raw {
	case "":
		return workflow.ActionNone, nil
	case "analyze":
		return workflow.ActionStartAnalysis, nil
	case "implement":
		return workflow.ActionStartImplementation, nil
	default:
		return workflow.ActionNone, fmt.Errorf("unknown phase %q (want analyze or implement)", raw)
	}
}
