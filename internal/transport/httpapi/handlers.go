package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/domain/workflow"
	"sentinel/internal/errs"
	"sentinel/internal/usecase/orchestrator"
)

// Webhook bodies are small label events; anything bigger is hostile.
const maxWebhookBody = 1 << 20

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	result, err := s.service.HandleWebhook(r.Context(), orchestrator.WebhookInput{
		EventType:  r.Header.Get("X-GitHub-Event"),
		DeliveryID: r.Header.Get("X-GitHub-Delivery"),
		Signature:  r.Header.Get("X-Hub-Signature-256"),
		Body:       body,
	})
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrInvalidSignature),
			errors.Is(err, orchestrator.ErrUnsupportedEvent),
			errors.Is(err, orchestrator.ErrMalformedEvent),
			errors.Is(err, orchestrator.ErrRepositoryMismatch):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			logging.Error(r.Context(), "webhook processing failed", slog.Any("err", errs.Loggable(err)))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": string(result.Status),
		"issue":  result.IssueNumber,
		"action": string(result.Action),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s.handleTrigger(w, r, workflow.ActionStartAnalysis)
}

func (s *Server) handleImplement(w http.ResponseWriter, r *http.Request) {
	s.handleTrigger(w, r, workflow.ActionStartImplementation)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request, action workflow.Action) {
	number, ok := issueNumber(w, r)
	if !ok {
		return
	}

	if err := s.service.TriggerAction(r.Context(), number, action); err != nil {
		if errors.Is(err, orchestrator.ErrIssueBusy) {
			writeError(w, http.StatusConflict, "issue already being processed")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "queued",
		"issue":  number,
		"action": string(action),
	})
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	number, ok := issueNumber(w, r)
	if !ok {
		return
	}

	var req struct {
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.service.TriggerRefine(r.Context(), number, req.Feedback); err != nil {
		if errors.Is(err, orchestrator.ErrIssueBusy) {
			writeError(w, http.StatusConflict, "issue already being processed")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "queued",
		"issue":  number,
		"action": "refine_proposal",
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	runs, err := s.service.RecentTaskRuns(r.Context(), limit)
	if err != nil {
		logging.Error(r.Context(), "listing task runs failed", slog.Any("err", errs.Loggable(err)))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	type runView struct {
		RunID       string `json:"run_id"`
		IssueNumber int    `json:"issue_number"`
		Action      string `json:"action"`
		Outcome     string `json:"outcome"`
		Detail      string `json:"detail,omitempty"`
		StartedAt   string `json:"started_at"`
		FinishedAt  string `json:"finished_at,omitempty"`
	}
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, runView{
			RunID:       run.RunID,
			IssueNumber: run.IssueNumber,
			Action:      run.Action,
			Outcome:     run.Outcome,
			Detail:      run.Detail,
			StartedAt:   run.StartedAt,
			FinishedAt:  run.FinishedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": views})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.service.Health(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func issueNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "number")
	number, err := strconv.Atoi(raw)
	if err != nil || number <= 0 {
		writeError(w, http.StatusBadRequest, "invalid issue number")
		return 0, false
	}
	return number, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
