// Package api exposes the synchronous reconciliation checks over a
// thin JSON surface. The watchers do not depend on it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"reconagent/internal/dedupe"
	"reconagent/internal/domain"
	"reconagent/internal/ports"
	"reconagent/internal/usecase"
)

// Handler wires the duplicate detector and reschedule coordinator.
type Handler struct {
	detector    *dedupe.Detector
	coordinator *usecase.RescheduleCoordinator
	policy      dedupe.KeyPolicy
	assistant   ports.Assistant
	logger      *slog.Logger
}

// NewRouter builds the management mux. The assistant is optional; a nil
// one simply leaves review notes empty.
func NewRouter(detector *dedupe.Detector, coordinator *usecase.RescheduleCoordinator, policy dedupe.KeyPolicy, assistant ports.Assistant, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{detector: detector, coordinator: coordinator, policy: policy, assistant: assistant, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/api/reconciliation/check-duplicates", h.checkDuplicates)
	mux.HandleFunc("/api/reconciliation/reschedule", h.reschedule)
	return mux
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

type checkDuplicatesRequest struct {
	BatchID    string `json:"batch_id"`
	AutoRemove bool   `json:"auto_remove"`
}

type checkDuplicatesResponse struct {
	Status     string `json:"status"`
	Duplicates []int  `json:"duplicates"`
	// Note is assistant-phrased guidance for the operator reviewing the
	// duplicates. Empty when no assistant is configured.
	Note string `json:"note,omitempty"`
}

func (h *Handler) checkDuplicates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", h.logger)
		return
	}

	var req checkDuplicatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BatchID == "" {
		writeError(w, r, http.StatusBadRequest, "batch_id is required", h.logger)
		return
	}

	res, err := h.detector.Check(r.Context(), req.BatchID, h.policy, req.AutoRemove)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "batch not found", h.logger)
			return
		}
		h.logger.Error("check duplicates", "batch", req.BatchID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error", h.logger)
		return
	}

	out := checkDuplicatesResponse{
		Status:     string(res.Status),
		Duplicates: res.Duplicates,
	}
	if len(res.Duplicates) > 0 {
		out.Note = h.reviewNote(r.Context(), req.BatchID, res)
	}
	writeJSON(w, r, http.StatusOK, out, h.logger)
}

// reviewNote asks the assistant to phrase the duplicate findings for the
// operator. Best effort: any failure is logged and the note stays empty.
func (h *Handler) reviewNote(ctx context.Context, batchID string, res dedupe.Result) string {
	if h.assistant == nil {
		return ""
	}

	action := "flagged for review"
	if res.Status == dedupe.StatusCleaned {
		action = "removed"
	}
	prompt := fmt.Sprintf(
		"Write one short sentence for an operator reviewing asset batch %s: %d duplicate rows were %s at positions %v.",
		batchID, len(res.Duplicates), action, res.Duplicates,
	)

	note, err := h.assistant.Ask(ctx, prompt, "")
	if err != nil {
		h.logger.Warn("duplicate review note", "batch", batchID, "error", err)
		return ""
	}
	return note
}

type rescheduleRequest struct {
	RequestID string `json:"request_id"`
}

type rescheduleResponse struct {
	NewRequestID string `json:"new_request_id"`
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", h.logger)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequestID == "" {
		writeError(w, r, http.StatusBadRequest, "request_id is required", h.logger)
		return
	}

	newID, err := h.coordinator.Reschedule(r.Context(), req.RequestID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "request not found", h.logger)
	case errors.Is(err, domain.ErrAlreadyRescheduled):
		writeError(w, r, http.StatusConflict, "request already rescheduled", h.logger)
	case errors.Is(err, domain.ErrDeliveryNotFailed):
		writeError(w, r, http.StatusConflict, "delivery is not confirmed failed", h.logger)
	case err != nil:
		h.logger.Error("reschedule", "request", req.RequestID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error", h.logger)
	default:
		writeJSON(w, r, http.StatusOK, rescheduleResponse{NewRequestID: newID}, h.logger)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", "method", r.Method, "path", r.URL.Path, "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string, logger *slog.Logger) {
	writeJSON(w, r, status, map[string]string{"error": msg}, logger)
}
