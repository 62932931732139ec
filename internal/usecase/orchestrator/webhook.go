package orchestrator

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/domain/workflow"
	"sentinel/internal/errs"
	"sentinel/internal/ports"
)

const signaturePrefix = "sha256="

var (
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedEvent     = errors.New("malformed event payload")
	ErrRepositoryMismatch = errors.New("event repository does not match configuration")
	ErrUnsupportedEvent   = errors.New("unsupported event type")
)

// VerifySignature checks the HMAC-SHA256 signature header against the raw
// body. With no secret configured verification always passes; that is the
// documented permissive mode for local development and is flagged on every
// call. Malformed headers are simply invalid, never an error.
func VerifySignature(ctx context.Context, secret string, body []byte, signatureHeader string) bool {
	if secret == "" {
		logging.Warn(ctx, "webhook signature verification skipped: no secret configured (permissive mode)")
		return true
	}

	if !strings.HasPrefix(signatureHeader, signaturePrefix) {
		return false
	}
	received := strings.ToLower(strings.TrimPrefix(signatureHeader, signaturePrefix))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(received))
}

type webhookPayload struct {
	Action string `json:"action"`
	Label  struct {
		Name string `json:"name"`
	} `json:"label"`
	Issue struct {
		Number int `json:"number"`
	} `json:"issue"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// ClassifyEvent parses a verified payload into a typed workflow event.
// The label set carried in the payload is deliberately ignored: tasks
// re-read labels live before acting.
func ClassifyEvent(eventType string, deliveryID string, body []byte, expectedRepo string) (workflow.Event, error) {
	if eventType != "issues" {
		return workflow.Event{}, errs.Wrapf(ErrUnsupportedEvent, "event type %q", eventType)
	}
	if strings.TrimSpace(deliveryID) == "" {
		return workflow.Event{}, errs.Wrap(ErrMalformedEvent, "missing delivery id")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return workflow.Event{}, errs.Wrap(ErrMalformedEvent, "decode payload")
	}

	if payload.Repository.FullName != expectedRepo {
		return workflow.Event{}, errs.Wrapf(ErrRepositoryMismatch, "repository %q", payload.Repository.FullName)
	}

	var kind workflow.EventKind
	switch payload.Action {
	case "labeled":
		kind = workflow.LabelAdded
	case "unlabeled":
		kind = workflow.LabelRemoved
	default:
		return workflow.Event{}, errs.Wrapf(ErrUnsupportedEvent, "action %q", payload.Action)
	}

	if payload.Issue.Number <= 0 {
		return workflow.Event{}, errs.Wrap(ErrMalformedEvent, "missing issue number")
	}
	if strings.TrimSpace(payload.Label.Name) == "" {
		return workflow.Event{}, errs.Wrap(ErrMalformedEvent, "missing label name")
	}

	sum := sha256.Sum256(body)

	return workflow.Event{
		DeliveryID:  deliveryID,
		Kind:        kind,
		Label:       payload.Label.Name,
		IssueNumber: payload.Issue.Number,
		PayloadSHA:  hex.EncodeToString(sum[:]),
	}, nil
}

type WebhookInput struct {
	EventType  string
	DeliveryID string
	Signature  string
	Body       []byte
}

type WebhookStatus string

const (
	WebhookDispatched WebhookStatus = "dispatched"
	WebhookIgnored    WebhookStatus = "ignored"
	WebhookDuplicate  WebhookStatus = "duplicate"
	WebhookBusy       WebhookStatus = "busy"
)

type WebhookResult struct {
	Status      WebhookStatus
	IssueNumber int
	Action      workflow.Action
}

// HandleWebhook runs the request-path pipeline: verify, classify, admit,
// enqueue. It never blocks on AI-tool or git execution. The returned
// errors are the 400-class request-time failures only; duplicates and
// concurrency rejections report a skip status with a nil error so the
// event source is not driven into retry storms.
func (s *Service) HandleWebhook(ctx context.Context, input WebhookInput) (WebhookResult, error) {
	if ctx == nil {
		return WebhookResult{}, errors.New("context is required")
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "orchestrator.webhook"),
		slog.String("delivery_id", input.DeliveryID),
	)

	if !VerifySignature(logCtx, s.cfg.GitHub.WebhookSecret, input.Body, input.Signature) {
		return WebhookResult{}, ErrInvalidSignature
	}

	event, err := ClassifyEvent(input.EventType, input.DeliveryID, input.Body, s.cfg.GitHub.Repo)
	if err != nil {
		return WebhookResult{}, err
	}

	result := WebhookResult{IssueNumber: event.IssueNumber}

	// Removals and unrelated labels never trigger work and are not worth a
	// dedup record.
	if event.Kind != workflow.LabelAdded || !s.labels.IsTrigger(event.Label) {
		logging.Info(logCtx, "event ignored",
			slog.String("label", event.Label),
			slog.String("kind", string(event.Kind)),
		)
		result.Status = WebhookIgnored
		return result, nil
	}

	if err := s.admitDelivery(logCtx, event); err != nil {
		if errors.Is(err, ports.ErrDuplicateDelivery) {
			logging.Info(logCtx, "duplicate delivery dropped", slog.Int("issue", event.IssueNumber))
			result.Status = WebhookDuplicate
			return result, nil
		}
		return WebhookResult{}, errs.Wrap(err, "admit delivery")
	}

	action := s.provisionalAction(event)
	result.Action = action

	if !s.dispatchEvent(logCtx, event, action) {
		logging.Warn(logCtx, "task rejected: issue busy or concurrency budget exhausted",
			slog.Int("issue", event.IssueNumber),
			slog.String("action", string(action)),
		)
		result.Status = WebhookBusy
		return result, nil
	}

	logging.Info(logCtx, "task dispatched",
		slog.Int("issue", event.IssueNumber),
		slog.String("action", string(action)),
	)
	result.Status = WebhookDispatched
	return result, nil
}

// provisionalAction picks the action implied by the trigger label alone.
// The final decision is re-made inside the task against live labels.
func (s *Service) provisionalAction(event workflow.Event) workflow.Action {
	if event.Label == s.labels.Approved {
		return workflow.ActionStartImplementation
	}
	return workflow.ActionStartAnalysis
}
