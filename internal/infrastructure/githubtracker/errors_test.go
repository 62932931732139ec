package githubtracker

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v68/github"

	"sentinel/internal/ports"
)

func responseWithStatus(status int) *github.Response {
	return &github.Response{Response: &http.Response{StatusCode: status}}
}

func TestMapErrorStatusClassification(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		want   ports.TrackerErrorKind
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: ports.TrackerUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, want: ports.TrackerUnauthorized},
		{name: "not found", status: http.StatusNotFound, want: ports.TrackerNotFound},
		{name: "server error", status: http.StatusBadGateway, want: ports.TrackerTransient},
		{name: "validation failure", status: http.StatusUnprocessableEntity, want: ports.TrackerPermanent},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := mapError(responseWithStatus(testCase.status), errors.New("boom"))
			if got := ports.TrackerKindOf(err); got != testCase.want {
				t.Fatalf("TrackerKindOf() = %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestMapErrorRateLimit(t *testing.T) {
	reset := time.Now().Add(time.Minute)
	err := mapError(nil, &github.RateLimitError{
		Rate: github.Rate{Reset: github.Timestamp{Time: reset}},
	})

	var te *ports.TrackerError
	if !errors.As(err, &te) {
		t.Fatalf("err = %T, want *ports.TrackerError", err)
	}
	if te.Kind != ports.TrackerRateLimited {
		t.Fatalf("Kind = %q, want rate_limited", te.Kind)
	}
	if !te.ResetAt.Equal(reset) {
		t.Fatalf("ResetAt = %v, want %v", te.ResetAt, reset)
	}
	if !ports.TrackerRetryable(err) {
		t.Fatalf("rate-limited errors must be retryable")
	}
}

func TestMapErrorNetworkFailureIsTransient(t *testing.T) {
	err := mapError(nil, errors.New("dial tcp: connection refused"))
	if got := ports.TrackerKindOf(err); got != ports.TrackerTransient {
		t.Fatalf("TrackerKindOf() = %q, want transient", got)
	}
	if ports.TrackerRetryable(mapError(responseWithStatus(http.StatusNotFound), errors.New("missing"))) {
		t.Fatalf("not-found must not be retryable")
	}
}

func TestMapErrorNil(t *testing.T) {
	if err := mapError(nil, nil); err != nil {
		t.Fatalf("mapError(nil, nil) = %v, want nil", err)
	}
}
