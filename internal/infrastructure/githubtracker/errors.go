package githubtracker

import (
	"errors"
	"net/http"

	"github.com/google/go-github/v68/github"

	"sentinel/internal/ports"
)

// mapError folds go-github failures into the tracker error taxonomy.
func mapError(resp *github.Response, err error) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &ports.TrackerError{
			Kind:       ports.TrackerRateLimited,
			StatusCode: http.StatusForbidden,
			ResetAt:    rateErr.Rate.Reset.Time,
			Err:        err,
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &ports.TrackerError{
			Kind:       ports.TrackerRateLimited,
			StatusCode: http.StatusForbidden,
			Err:        err,
		}
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ports.TrackerError{Kind: ports.TrackerUnauthorized, StatusCode: status, Err: err}
	case status == http.StatusNotFound:
		return &ports.TrackerError{Kind: ports.TrackerNotFound, StatusCode: status, Err: err}
	case status >= 500:
		return &ports.TrackerError{Kind: ports.TrackerTransient, StatusCode: status, Err: err}
	case status >= 400:
		return &ports.TrackerError{Kind: ports.TrackerPermanent, StatusCode: status, Err: err}
	default:
		// No HTTP status at all: connection-level failure, worth a retry.
		return &ports.TrackerError{Kind: ports.TrackerTransient, Err: err}
	}
}
