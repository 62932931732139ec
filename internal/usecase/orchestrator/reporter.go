package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/domain/workflow"
	"sentinel/internal/errs"
	"sentinel/internal/ports"
)

const trackerRetryAttempts = 3

// withTrackerRetry wraps one tracker mutation in bounded exponential
// backoff. Only rate-limited and transient failures are retried; permanent
// failures surface immediately.
func (s *Service) withTrackerRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !ports.TrackerRetryable(err) {
			return backoff.Permanent(err)
		}
		logging.Warn(ctx, "tracker call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Any("err", errs.Loggable(err)),
		)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, trackerRetryAttempts-1), ctx))

	if err != nil {
		return errs.Wrapf(err, "tracker %s", op)
	}
	return nil
}

func (s *Service) fetchIssue(ctx context.Context, number int) (ports.Issue, error) {
	var issue ports.Issue
	err := s.withTrackerRetry(ctx, "get issue", func(ctx context.Context) error {
		fetched, err := s.tracker.GetIssue(ctx, number)
		if err != nil {
			return err
		}
		issue = fetched
		return nil
	})
	return issue, err
}

func (s *Service) postComment(ctx context.Context, number int, body string) error {
	return s.withTrackerRetry(ctx, "add comment", func(ctx context.Context) error {
		return s.tracker.AddComment(ctx, number, body)
	})
}

func (s *Service) addLabel(ctx context.Context, number int, label string) error {
	return s.withTrackerRetry(ctx, "add label", func(ctx context.Context) error {
		return s.tracker.AddLabels(ctx, number, label)
	})
}

func (s *Service) removeLabel(ctx context.Context, number int, label string) error {
	return s.withTrackerRetry(ctx, "remove label", func(ctx context.Context) error {
		return s.tracker.RemoveLabel(ctx, number, label)
	})
}

func (s *Service) setLabels(ctx context.Context, number int, labels []string) error {
	return s.withTrackerRetry(ctx, "set labels", func(ctx context.Context) error {
		return s.tracker.SetLabels(ctx, number, labels)
	})
}

func (s *Service) createPullRequest(ctx context.Context, input ports.PullRequestInput) (ports.PullRequest, error) {
	var pr ports.PullRequest
	err := s.withTrackerRetry(ctx, "create pull request", func(ctx context.Context) error {
		created, err := s.tracker.CreatePullRequest(ctx, input)
		if err != nil {
			return err
		}
		pr = created
		return nil
	})
	return pr, err
}

func (s *Service) closeIssue(ctx context.Context, number int) error {
	return s.withTrackerRetry(ctx, "close issue", func(ctx context.Context) error {
		return s.tracker.CloseIssue(ctx, number)
	})
}

// removeLabelBestEffort is the cleanup-path variant: the failure is logged
// and swallowed so cleanup never masks the original task error.
func (s *Service) removeLabelBestEffort(ctx context.Context, number int, label string) {
	if err := s.removeLabel(ctx, number, label); err != nil {
		logging.Error(ctx, "cleanup label removal failed",
			slog.Int("issue", number),
			slog.String("label", label),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

// postFailureComment surfaces a task failure on the issue so a human can
// intervene. Best-effort: a broken tracker must not crash the worker.
func (s *Service) postFailureComment(ctx context.Context, number int, action workflow.Action, taskErr error) {
	body := fmt.Sprintf(
		"**Sentinel - Processing Error**\n\nAn error occurred while running `%s` for this issue:\n\n```\n%v\n```\n\nThe issue remains re-triggerable; check the orchestrator logs for details.",
		action,
		taskErr,
	)
	if err := s.postComment(ctx, number, body); err != nil {
		logging.Error(ctx, "failure comment could not be posted",
			slog.Int("issue", number),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}
