package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/errs"
	"sentinel/internal/ports"
)

// runAnalysis drives the proposal phase: mark the issue working, ask the AI
// tool for an analysis without letting it change code, post the proposal,
// and transition ready -> proposal-pending in one atomic label replacement.
func (s *Service) runAnalysis(ctx context.Context, issue ports.Issue) error {
	logCtx := logging.WithAttrs(ctx, slog.String("phase", "analysis"))

	if err := s.addLabel(logCtx, issue.Number, s.labels.Working); err != nil {
		return errs.Wrap(err, "mark working")
	}

	proposal, err := s.analyzeFn(logCtx, issue)
	if err != nil {
		return errs.Wrap(err, "analyze issue")
	}

	if err := s.postComment(logCtx, issue.Number, s.proposalComment(issue.Number, proposal)); err != nil {
		return errs.Wrap(err, "post proposal")
	}

	next := replaceLabels(issue.Labels,
		[]string{s.labels.Ready, s.labels.Working},
		[]string{s.labels.Proposal},
	)
	if err := s.setLabels(logCtx, issue.Number, next); err != nil {
		return errs.Wrap(err, "transition labels")
	}

	logging.Info(logCtx, "proposal posted", slog.Int("issue", issue.Number))
	return nil
}

func (s *Service) proposalComment(issueNumber int, proposal string) string {
	return fmt.Sprintf(
		"**Sentinel - Issue Analysis & Proposal**\n\n## My Understanding\nI've analyzed issue #%d and here's my assessment:\n\n%s\n\n---\n\n**Next Steps:**\n- If you approve this proposal, add the `%s` label\n- If you want changes, remove the `%s` label and add feedback\n\n*Generated at %s*",
		issueNumber,
		proposal,
		s.labels.Approved,
		s.labels.Proposal,
		s.now().UTC().Format("2006-01-02 15:04:05 UTC"),
	)
}
