package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/domain/workflow"
	"sentinel/internal/errs"
)

var ErrIssueBusy = errors.New("issue already being processed")

// TriggerAction queues an operator-initiated task for an issue, bypassing
// webhook verification and replay protection. Whether the action still
// applies is re-checked against live labels inside the task, exactly like a
// webhook-originated one.
func (s *Service) TriggerAction(ctx context.Context, issueNumber int, action workflow.Action) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "trigger action")
	}

	label, err := s.triggerLabelFor(action)
	if err != nil {
		return err
	}

	event := workflow.Event{
		DeliveryID:  "manual-" + uuid.NewString(),
		Kind:        workflow.LabelAdded,
		Label:       label,
		IssueNumber: issueNumber,
	}
	if !s.dispatchEvent(ctx, event, action) {
		return ErrIssueBusy
	}
	return nil
}

func (s *Service) triggerLabelFor(action workflow.Action) (string, error) {
	switch action {
	case workflow.ActionStartAnalysis:
		return s.labels.Ready, nil
	case workflow.ActionStartImplementation:
		return s.labels.Approved, nil
	default:
		return "", fmt.Errorf("action %q cannot be triggered manually", action)
	}
}

// ProcessIssue runs one issue synchronously from the CLI. With ActionNone
// the phase is decided from the live label set; a forced phase is still
// checked against the labels. An issue with no runnable stage is an error
// rather than a silent no-op, since the operator asked for it by number.
func (s *Service) ProcessIssue(ctx context.Context, issueNumber int, phase workflow.Action) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "orchestrator.process"),
		slog.Int("issue", issueNumber),
	)

	issue, err := s.fetchIssue(logCtx, issueNumber)
	if err != nil {
		return errs.Wrapf(err, "fetch issue #%d", issueNumber)
	}
	if issue.Closed {
		return fmt.Errorf("issue #%d is closed", issueNumber)
	}

	var action workflow.Action
	switch {
	case phase != workflow.ActionNone:
		if !s.labels.Allows(issue.Labels, phase) {
			return fmt.Errorf("issue #%d does not allow %s (labels: %v)", issueNumber, phase, issue.Labels)
		}
		action = phase
	case s.labels.Allows(issue.Labels, workflow.ActionStartImplementation):
		action = workflow.ActionStartImplementation
	case s.labels.Allows(issue.Labels, workflow.ActionStartAnalysis):
		action = workflow.ActionStartAnalysis
	default:
		return fmt.Errorf("issue #%d is not in a runnable state (labels: %v)", issueNumber, issue.Labels)
	}

	runID := uuid.NewString()
	logCtx = logging.WithAttrs(logCtx, slog.String("run_id", runID))
	s.auditStart(logCtx, runID, issueNumber, action)

	if err := s.runAction(logCtx, action, issue); err != nil {
		s.removeLabelBestEffort(logCtx, issueNumber, s.labels.Working)
		s.postFailureComment(logCtx, issueNumber, action, err)
		s.auditFinish(logCtx, runID, "failed", err.Error())
		return errs.Wrapf(err, "process issue #%d", issueNumber)
	}
	s.auditFinish(logCtx, runID, "succeeded", "")
	return nil
}
