package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/errs"
	"sentinel/internal/ports"
)

// runImplementation drives the approved phase: branch off the base, let the
// AI tool implement the approved proposal, then commit, push, open a pull
// request and close the issue. When the tool produced no changes the issue
// gets an explanatory comment instead of a pull request.
func (s *Service) runImplementation(ctx context.Context, issue ports.Issue) error {
	logCtx := logging.WithAttrs(ctx, slog.String("phase", "implementation"))

	if err := s.addLabel(logCtx, issue.Number, s.labels.Working); err != nil {
		return errs.Wrap(err, "mark working")
	}

	branch := fmt.Sprintf("%s%d", s.cfg.Git.BranchPrefix, issue.Number)
	if err := s.git.CreateBranch(logCtx, branch, s.cfg.Git.BaseBranch); err != nil {
		return errs.Wrapf(err, "create branch %q", branch)
	}

	// A branch that never produces a pull request is deleted again.
	discardBranch := func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(logCtx), cleanupTimeout)
		defer cancel()
		if err := s.git.CleanupBranch(cleanupCtx, branch, s.cfg.Git.BaseBranch); err != nil {
			logging.Warn(cleanupCtx, "branch cleanup failed",
				slog.String("branch", branch),
				slog.Any("err", errs.Loggable(err)),
			)
		}
	}

	summary, err := s.implementFn(logCtx, issue)
	if err != nil {
		discardBranch()
		return errs.Wrap(err, "implement solution")
	}

	changed, err := s.git.HasChanges(logCtx)
	if err != nil {
		discardBranch()
		return errs.Wrap(err, "check for changes")
	}

	if !changed {
		discardBranch()
		if err := s.postComment(logCtx, issue.Number, s.noChangesComment(summary)); err != nil {
			return errs.Wrap(err, "post no-changes comment")
		}
		next := replaceLabels(issue.Labels,
			[]string{s.labels.Ready, s.labels.Proposal, s.labels.Approved, s.labels.Working},
			nil,
		)
		if err := s.setLabels(logCtx, issue.Number, next); err != nil {
			return errs.Wrap(err, "transition labels")
		}
		logging.Info(logCtx, "no changes required", slog.Int("issue", issue.Number))
		return nil
	}

	message := fmt.Sprintf("%sresolve issue #%d: %s", s.cfg.Git.CommitPrefix, issue.Number, issue.Title)
	commit, err := s.git.CommitAll(logCtx, message)
	if err != nil {
		discardBranch()
		return errs.Wrap(err, "commit changes")
	}
	if err := s.git.Push(logCtx, branch); err != nil {
		discardBranch()
		return errs.Wrapf(err, "push branch %q", branch)
	}
	// From here the branch is on the remote; failures below leave it in
	// place for inspection.

	pr, err := s.createPullRequest(logCtx, ports.PullRequestInput{
		Title: fmt.Sprintf("Fix issue #%d: %s", issue.Number, issue.Title),
		Body: fmt.Sprintf(
			"Resolves #%d\n\n## Implementation Summary\n\n%s\n\n## Changes Made\n- Implemented the solution approved on issue #%d\n\n**Auto-generated by Sentinel**",
			issue.Number, summary, issue.Number,
		),
		Head: branch,
		Base: s.cfg.Git.BaseBranch,
	})
	if err != nil {
		return errs.Wrap(err, "create pull request")
	}

	if err := s.postComment(logCtx, issue.Number, s.completionComment(summary, pr.URL)); err != nil {
		return errs.Wrap(err, "post completion comment")
	}

	next := replaceLabels(issue.Labels,
		[]string{s.labels.Ready, s.labels.Proposal, s.labels.Approved, s.labels.Working},
		[]string{s.labels.Done},
	)
	if err := s.setLabels(logCtx, issue.Number, next); err != nil {
		return errs.Wrap(err, "transition labels")
	}
	if err := s.closeIssue(logCtx, issue.Number); err != nil {
		return errs.Wrap(err, "close issue")
	}

	logging.Info(logCtx, "implementation complete",
		slog.Int("issue", issue.Number),
		slog.String("commit", commit),
		slog.String("pr", pr.URL),
	)
	return nil
}

func (s *Service) completionComment(summary string, prURL string) string {
	return fmt.Sprintf(
		"**Sentinel - Implementation Complete**\n\n## Solution Implemented\n\n%s\n\n## Pull Request\n%s\n\nThe solution has been implemented and is ready for review.\n\n*Completed at %s*",
		summary,
		prURL,
		s.now().UTC().Format("2006-01-02 15:04:05 UTC"),
	)
}

func (s *Service) noChangesComment(summary string) string {
	return fmt.Sprintf(
		"**Sentinel - No Changes Required**\n\nAfter implementing against the approved proposal, no code changes were required. This might mean the issue was already resolved, the solution needs no code, or the issue needs clarification.\n\n%s\n\n*Completed at %s*",
		summary,
		s.now().UTC().Format("2006-01-02 15:04:05 UTC"),
	)
}
