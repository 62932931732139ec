package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sentinel/internal/bootstrap/config"
	"sentinel/internal/domain/workflow"
	"sentinel/internal/ports"
	"sentinel/internal/usecase/orchestrator"
)

type stubOrchestrator struct {
	webhookResult orchestrator.WebhookResult
	webhookErr    error
	triggerErr    error
	refineErr     error
	runs          []ports.TaskRun
	health        orchestrator.HealthReport

	lastInput    orchestrator.WebhookInput
	lastIssue    int
	lastAction   workflow.Action
	lastFeedback string
}

func (s *stubOrchestrator) HandleWebhook(ctx context.Context, input orchestrator.WebhookInput) (orchestrator.WebhookResult, error) {
	s.lastInput = input
	return s.webhookResult, s.webhookErr
}

func (s *stubOrchestrator) TriggerAction(ctx context.Context, issueNumber int, action workflow.Action) error {
	s.lastIssue = issueNumber
	s.lastAction = action
	return s.triggerErr
}

func (s *stubOrchestrator) TriggerRefine(ctx context.Context, issueNumber int, feedback string) error {
	s.lastIssue = issueNumber
	s.lastFeedback = feedback
	return s.refineErr
}

func (s *stubOrchestrator) RecentTaskRuns(ctx context.Context, limit int) ([]ports.TaskRun, error) {
	if limit < len(s.runs) {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

func (s *stubOrchestrator) Health(ctx context.Context) orchestrator.HealthReport {
	return s.health
}

func newTestServer(stub *stubOrchestrator) *httptest.Server {
	srv := NewServer(config.ServerConfig{}, stub)
	return httptest.NewServer(srv.Handler())
}

func TestWebhookEndpoint(t *testing.T) {
	stub := &stubOrchestrator{
		webhookResult: orchestrator.WebhookResult{
			Status:      orchestrator.WebhookDispatched,
			IssueNumber: 7,
			Action:      workflow.ActionStartAnalysis,
		},
	}
	ts := newTestServer(stub)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/webhook/github", strings.NewReader(`{"action":"labeled"}`))
	req.Header.Set("X-GitHub-Event", "issues")
	req.Header.Set("X-GitHub-Delivery", "d-1")
	req.Header.Set("X-Hub-Signature-256", "sha256=abc")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "dispatched" {
		t.Fatalf("status field = %v, want dispatched", body["status"])
	}

	if stub.lastInput.EventType != "issues" || stub.lastInput.DeliveryID != "d-1" {
		t.Fatalf("headers not forwarded: %+v", stub.lastInput)
	}
	if stub.lastInput.Signature != "sha256=abc" {
		t.Fatalf("signature not forwarded: %q", stub.lastInput.Signature)
	}
}

func TestWebhookEndpointErrorMapping(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid signature", orchestrator.ErrInvalidSignature, http.StatusBadRequest},
		{"malformed event", orchestrator.ErrMalformedEvent, http.StatusBadRequest},
		{"repository mismatch", orchestrator.ErrRepositoryMismatch, http.StatusBadRequest},
		{"unsupported event type", orchestrator.ErrUnsupportedEvent, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(&stubOrchestrator{webhookErr: tc.err})
			defer ts.Close()

			resp, err := http.Post(ts.URL+"/webhook/github", "application/json", strings.NewReader("{}"))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
		})
	}
}

func TestTriggerEndpoints(t *testing.T) {
	testCases := []struct {
		name       string
		path       string
		wantAction workflow.Action
	}{
		{"analyze", "/api/issues/7/analyze", workflow.ActionStartAnalysis},
		{"implement", "/api/issues/7/implement", workflow.ActionStartImplementation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubOrchestrator{}
			ts := newTestServer(stub)
			defer ts.Close()

			resp, err := http.Post(ts.URL+tc.path, "application/json", nil)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusAccepted {
				t.Fatalf("status = %d, want 202", resp.StatusCode)
			}
			if stub.lastIssue != 7 || stub.lastAction != tc.wantAction {
				t.Fatalf("forwarded issue/action = %d/%q", stub.lastIssue, stub.lastAction)
			}
		})
	}
}

func TestTriggerEndpointConflictWhenBusy(t *testing.T) {
	ts := newTestServer(&stubOrchestrator{triggerErr: orchestrator.ErrIssueBusy})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/issues/7/analyze", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestTriggerEndpointRejectsBadIssueNumber(t *testing.T) {
	ts := newTestServer(&stubOrchestrator{})
	defer ts.Close()

	for _, path := range []string{"/api/issues/abc/analyze", "/api/issues/0/implement"} {
		resp, err := http.Post(ts.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestRefineEndpoint(t *testing.T) {
	stub := &stubOrchestrator{}
	ts := newTestServer(stub)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/issues/9/refine", "application/json",
		strings.NewReader(`{"feedback":"use smaller steps"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if stub.lastIssue != 9 || stub.lastFeedback != "use smaller steps" {
		t.Fatalf("forwarded issue/feedback = %d/%q", stub.lastIssue, stub.lastFeedback)
	}
}

func TestListRunsEndpoint(t *testing.T) {
	stub := &stubOrchestrator{
		runs: []ports.TaskRun{
			{RunID: "r-1", IssueNumber: 7, Action: "start_analysis", Outcome: "succeeded"},
		},
	}
	ts := newTestServer(stub)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/runs")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Runs []struct {
			RunID   string `json:"run_id"`
			Outcome string `json:"outcome"`
		} `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Runs) != 1 || body.Runs[0].RunID != "r-1" {
		t.Fatalf("unexpected runs: %+v", body.Runs)
	}
}

func TestListRunsEndpointRejectsBadLimit(t *testing.T) {
	ts := newTestServer(&stubOrchestrator{})
	defer ts.Close()

	for _, limit := range []string{"0", "-1", "9999", "abc"} {
		resp, err := http.Get(ts.URL + "/api/runs?limit=" + limit)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("limit %q: status = %d, want 400", limit, resp.StatusCode)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	healthy := &stubOrchestrator{health: orchestrator.HealthReport{Healthy: true}}
	ts := newTestServer(healthy)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthy status = %d, want 200", resp.StatusCode)
	}

	unhealthy := newTestServer(&stubOrchestrator{health: orchestrator.HealthReport{Healthy: false}})
	defer unhealthy.Close()

	resp, err = http.Get(unhealthy.URL + "/readyz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d, want 503", resp.StatusCode)
	}

	resp, err = http.Get(unhealthy.URL + "/livez")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("livez status = %d, want 200", resp.StatusCode)
	}
}
