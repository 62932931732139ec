package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/domain/workflow"
	"sentinel/internal/errs"
	"sentinel/internal/ports"
)

const refineAction = "refine_proposal"

// TriggerRefine queues a proposal refinement with operator feedback. The
// issue must still carry an open proposal when the task runs; approved or
// working issues are past the point of refinement.
func (s *Service) TriggerRefine(ctx context.Context, issueNumber int, feedback string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "trigger refine")
	}
	if strings.TrimSpace(feedback) == "" {
		return fmt.Errorf("refine issue #%d: feedback is required", issueNumber)
	}

	ok := s.dispatcher.Submit(ctx, issueNumber, refineAction, func(taskCtx context.Context) {
		s.runRefineTask(taskCtx, issueNumber, feedback)
	})
	if !ok {
		return ErrIssueBusy
	}
	return nil
}

func (s *Service) runRefineTask(ctx context.Context, issueNumber int, feedback string) {
	runID := uuid.NewString()
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "orchestrator.task"),
		slog.String("run_id", runID),
		slog.Int("issue", issueNumber),
		slog.String("action", refineAction),
	)

	issue, err := s.fetchIssue(logCtx, issueNumber)
	if err != nil {
		logging.Error(logCtx, "cannot fetch issue, refine abandoned", slog.Any("err", errs.Loggable(err)))
		return
	}

	s.auditStart(logCtx, runID, issueNumber, workflow.Action(refineAction))

	if issue.Closed || !contains(issue.Labels, s.labels.Proposal) {
		logging.Info(logCtx, "no open proposal, refine aborted")
		s.auditFinish(logCtx, runID, "aborted", "no open proposal on issue")
		return
	}

	if err := s.runRefine(logCtx, issue, feedback); err != nil {
		logging.Error(logCtx, "refine failed", slog.Any("err", errs.Loggable(err)))
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(logCtx), cleanupTimeout)
		defer cancel()
		s.postFailureComment(cleanupCtx, issueNumber, workflow.Action(refineAction), err)
		s.auditFinish(cleanupCtx, runID, "failed", err.Error())
		return
	}
	s.auditFinish(logCtx, runID, "succeeded", "")
}

func (s *Service) runRefine(ctx context.Context, issue ports.Issue, feedback string) error {
	refined, err := s.refineFn(ctx, issue, feedback)
	if err != nil {
		return errs.Wrap(err, "refine proposal")
	}
	if err := s.postComment(ctx, issue.Number, s.refinedProposalComment(issue.Number, refined)); err != nil {
		return errs.Wrap(err, "post refined proposal")
	}
	logging.Info(ctx, "refined proposal posted", slog.Int("issue", issue.Number))
	return nil
}

func (s *Service) refinedProposalComment(issueNumber int, proposal string) string {
	return fmt.Sprintf(
		"**Sentinel - Refined Proposal**\n\nBased on your feedback, here is the updated proposal for issue #%d:\n\n%s\n\n---\n\n**Next Steps:**\n- If you approve this proposal, add the `%s` label\n- If you want further changes, add more feedback\n\n*Generated at %s*",
		issueNumber,
		proposal,
		s.labels.Approved,
		s.now().UTC().Format("2006-01-02 15:04:05 UTC"),
	)
}
