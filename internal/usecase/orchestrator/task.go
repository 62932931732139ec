package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/domain/workflow"
	"sentinel/internal/errs"
	"sentinel/internal/ports"
)

const cleanupTimeout = 30 * time.Second

func (s *Service) dispatchEvent(ctx context.Context, event workflow.Event, provisional workflow.Action) bool {
	return s.dispatcher.Submit(ctx, event.IssueNumber, string(provisional), func(taskCtx context.Context) {
		s.runTask(taskCtx, event)
	})
}

// runTask is the body of every background task. It re-reads the issue live,
// re-decides the action against the current label set (the event is a hint,
// not the truth), runs it, and reports the outcome. Failures are contained
// here: they produce a failure comment and an audit row, never a crashed
// worker.
func (s *Service) runTask(ctx context.Context, event workflow.Event) {
	runID := uuid.NewString()
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "orchestrator.task"),
		slog.String("run_id", runID),
		slog.Int("issue", event.IssueNumber),
	)

	issue, err := s.fetchIssue(logCtx, event.IssueNumber)
	if err != nil {
		logging.Error(logCtx, "cannot fetch issue, task abandoned", slog.Any("err", errs.Loggable(err)))
		return
	}
	if issue.Closed {
		logging.Info(logCtx, "issue is closed, nothing to do")
		return
	}

	action := s.labels.Decide(issue.Labels, event)
	s.auditStart(logCtx, runID, event.IssueNumber, action)

	if action == workflow.ActionNone {
		// Trigger label was removed (or superseded) between delivery and
		// execution: abort without touching the tracker.
		logging.Info(logCtx, "trigger no longer applies, aborting gracefully")
		s.auditFinish(logCtx, runID, "aborted", "trigger label no longer present")
		return
	}

	logging.Info(logCtx, "task started", slog.String("action", string(action)))

	taskErr := s.runAction(logCtx, action, issue)
	if taskErr == nil {
		logging.Info(logCtx, "task completed", slog.String("action", string(action)))
		s.auditFinish(logCtx, runID, "succeeded", "")
		return
	}

	outcome := "failed"
	if errors.Is(taskErr, context.DeadlineExceeded) || errors.Is(taskErr, ErrRunnerTimedOut) {
		outcome = "timed_out"
	}
	logging.Error(logCtx, "task failed",
		slog.String("action", string(action)),
		slog.String("outcome", outcome),
		slog.Any("err", errs.Loggable(taskErr)),
	)

	// The task context may already be expired; cleanup gets its own bounded
	// one so the working label comes off and the failure is surfaced.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(logCtx), cleanupTimeout)
	defer cancel()
	s.removeLabelBestEffort(cleanupCtx, event.IssueNumber, s.labels.Working)
	s.postFailureComment(cleanupCtx, event.IssueNumber, action, taskErr)

	s.auditFinish(cleanupCtx, runID, outcome, taskErr.Error())
}

func (s *Service) runAction(ctx context.Context, action workflow.Action, issue ports.Issue) error {
	switch action {
	case workflow.ActionStartAnalysis:
		return s.runAnalysis(ctx, issue)
	case workflow.ActionStartImplementation:
		return s.runImplementation(ctx, issue)
	default:
		return errs.Wrapf(errors.New("unknown action"), "action %q", action)
	}
}

func (s *Service) auditStart(ctx context.Context, runID string, issueNumber int, action workflow.Action) {
	if err := s.repo.InsertTaskRun(ctx, ports.TaskRun{
		RunID:       runID,
		IssueNumber: issueNumber,
		Action:      string(action),
		Outcome:     "running",
		StartedAt:   nowUTCString(s.now()),
	}); err != nil {
		logging.Warn(ctx, "task audit insert failed", slog.Any("err", errs.Loggable(err)))
	}
}

func (s *Service) auditFinish(ctx context.Context, runID string, outcome string, detail string) {
	if err := s.repo.FinishTaskRun(ctx, runID, outcome, detail, nowUTCString(s.now())); err != nil {
		logging.Warn(ctx, "task audit update failed", slog.Any("err", errs.Loggable(err)))
	}
}
