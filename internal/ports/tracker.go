package ports

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Issue is the tracker's view of a tracked item. It is always fetched fresh
// at the start of a processing task; label state is never cached across
// task boundaries.
type Issue struct {
	Number   int
	Title    string
	Body     string
	Labels   []string
	RepoName string
	Closed   bool
}

type PullRequestInput struct {
	Title string
	Body  string
	Head  string
	Base  string
}

type PullRequest struct {
	Number int
	URL    string
}

// IssueTracker is the consumed issue-tracker client surface. Implementations
// return *TrackerError so callers can classify failures.
type IssueTracker interface {
	GetIssue(ctx context.Context, number int) (Issue, error)
	AddComment(ctx context.Context, number int, body string) error
	AddLabels(ctx context.Context, number int, labels ...string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	SetLabels(ctx context.Context, number int, labels []string) error
	CreatePullRequest(ctx context.Context, input PullRequestInput) (PullRequest, error)
	CloseIssue(ctx context.Context, number int) error
}

type TrackerErrorKind string

const (
	TrackerUnauthorized TrackerErrorKind = "unauthorized"
	TrackerNotFound     TrackerErrorKind = "not_found"
	TrackerRateLimited  TrackerErrorKind = "rate_limited"
	TrackerTransient    TrackerErrorKind = "transient"
	TrackerPermanent    TrackerErrorKind = "permanent"
)

// TrackerError classifies a failed tracker call. ResetAt is set only for
// rate-limited failures.
type TrackerError struct {
	Kind       TrackerErrorKind
	StatusCode int
	ResetAt    time.Time
	Err        error
}

func (e *TrackerError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tracker %s", e.Kind)
	}
	return fmt.Sprintf("tracker %s: %v", e.Kind, e.Err)
}

func (e *TrackerError) Unwrap() error { return e.Err }

// TrackerKindOf returns the classification of err, or TrackerTransient when
// err is not a TrackerError (network-level failures land here).
func TrackerKindOf(err error) TrackerErrorKind {
	var te *TrackerError
	if errors.As(err, &te) {
		return te.Kind
	}
	return TrackerTransient
}

// TrackerRetryable reports whether a tracker failure is worth retrying with
// backoff. Unauthorized, not-found and other permanent failures are not.
func TrackerRetryable(err error) bool {
	switch TrackerKindOf(err) {
	case TrackerRateLimited, TrackerTransient:
		return true
	default:
		return false
	}
}
