// Package httpapi exposes the orchestration surface over HTTP for the agent
// runtime and billing webhooks: workflow starts, signals, and status reads.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	orchestration "github.com/velia-ai/velia/go/orchestrator/internal/client"
	"github.com/velia-ai/velia/go/orchestrator/internal/workflows"
)

// OrchestrationHandler translates HTTP calls into workflow starts and
// signals. All endpoints require the bearer token when one is configured.
type OrchestrationHandler struct {
	orch      *orchestration.Orchestrator
	logger    *zap.Logger
	authToken string
}

// NewOrchestrationHandler creates the handler.
func NewOrchestrationHandler(orch *orchestration.Orchestrator, logger *zap.Logger, authToken string) *OrchestrationHandler {
	return &OrchestrationHandler{orch: orch, logger: logger, authToken: authToken}
}

// RegisterRoutes registers all orchestration routes on the provided mux.
func (h *OrchestrationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/workflows/payment", h.post(h.handleStartPayment))
	mux.HandleFunc("/api/workflows/payment/completed", h.post(h.handlePaymentCompleted))
	mux.HandleFunc("/api/workflows/payment/cancel", h.post(h.handleCancelPayment))
	mux.HandleFunc("/api/workflows/booking", h.post(h.handleStartBooking))
	mux.HandleFunc("/api/workflows/booking/cancel", h.post(h.handleCancelBooking))
	mux.HandleFunc("/api/workflows/booking/reschedule", h.post(h.handleReschedule))
	mux.HandleFunc("/api/workflows/followup", h.post(h.handleStartFollowUp))
	mux.HandleFunc("/api/workflows/followup/cancel", h.post(h.handleCancelFollowUp))
	mux.HandleFunc("/api/workflows/reengagement", h.post(h.handleStartReengagement))
	mux.HandleFunc("/api/workflows/memory", h.post(h.handleStartMemory))
	mux.HandleFunc("/api/workflows/sync", h.post(h.handleStartSync))
	mux.HandleFunc("/api/workflows/sync/bulk", h.post(h.handleStartBulkSync))
	mux.HandleFunc("/api/workflows/status", h.handleStatus)
}

func (h *OrchestrationHandler) authorized(r *http.Request) bool {
	if h.authToken == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == h.authToken
}

// post wraps a handler with method and auth checks.
func (h *OrchestrationHandler) post(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		if !h.authorized(r) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		fn(w, r)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeStartResult maps start outcomes: a duplicate start returns 409 with
// the id of the instance already doing the work.
func (h *OrchestrationHandler) writeStartResult(w http.ResponseWriter, workflowID string, err error) {
	switch {
	case errors.Is(err, orchestration.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":       "already running",
			"workflow_id": workflowID,
		})
	case err != nil:
		h.logger.Error("workflow start failed", zap.Error(err))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": workflowID})
	}
}

func (h *OrchestrationHandler) writeSignalResult(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestration.ErrNotFound):
		http.Error(w, `{"error":"workflow not found"}`, http.StatusNotFound)
	case err != nil:
		h.logger.Error("signal delivery failed", zap.Error(err))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *OrchestrationHandler) handleStartPayment(w http.ResponseWriter, r *http.Request) {
	var req workflows.PaymentInput
	if !decode(w, r, &req) {
		return
	}
	if req.LeadID == "" || req.TenantID == "" || req.Plan == "" {
		http.Error(w, `{"error":"lead_id, tenant_id and plan are required"}`, http.StatusBadRequest)
		return
	}
	id, err := h.orch.StartPayment(r.Context(), req)
	h.writeStartResult(w, id, err)
}

// paymentCompletedRequest is posted by the billing webhook receiver.
type paymentCompletedRequest struct {
	LeadID         string `json:"lead_id"`
	Plan           string `json:"plan"`
	SessionID      string `json:"session_id"`
	SubscriptionID string `json:"subscription_id"`
}

func (h *OrchestrationHandler) handlePaymentCompleted(w http.ResponseWriter, r *http.Request) {
	var req paymentCompletedRequest
	if !decode(w, r, &req) {
		return
	}
	if req.LeadID == "" || req.Plan == "" {
		http.Error(w, `{"error":"lead_id and plan are required"}`, http.StatusBadRequest)
		return
	}
	err := h.orch.NotifyPaymentCompleted(r.Context(), req.LeadID, req.Plan, workflows.PaymentCompleted{
		SessionID:      req.SessionID,
		SubscriptionID: req.SubscriptionID,
	})
	h.writeSignalResult(w, err)
}

type cancelRequest struct {
	LeadID     string `json:"lead_id,omitempty"`
	Plan       string `json:"plan,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func (h *OrchestrationHandler) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decode(w, r, &req) {
		return
	}
	if req.LeadID == "" || req.Plan == "" {
		http.Error(w, `{"error":"lead_id and plan are required"}`, http.StatusBadRequest)
		return
	}
	h.writeSignalResult(w, h.orch.CancelPayment(r.Context(), req.LeadID, req.Plan, req.Reason))
}

func (h *OrchestrationHandler) handleStartBooking(w http.ResponseWriter, r *http.Request) {
	var req workflows.DemoBookingInput
	if !decode(w, r, &req) {
		return
	}
	if req.LeadID == "" || req.TenantID == "" || req.Slot.Start.IsZero() {
		http.Error(w, `{"error":"lead_id, tenant_id and slot are required"}`, http.StatusBadRequest)
		return
	}
	id, err := h.orch.StartDemoBooking(r.Context(), req)
	h.writeStartResult(w, id, err)
}

// bookingCancelRequest signals a live booking instance, or falls back to a
// standalone cancellation workflow when only the appointment is known.
type bookingCancelRequest struct {
	WorkflowID    string `json:"workflow_id,omitempty"`
	TenantID      string `json:"tenant_id,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
	EventID       string `json:"event_id,omitempty"`
	LeadID        string `json:"lead_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func (h *OrchestrationHandler) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingCancelRequest
	if !decode(w, r, &req) {
		return
	}
	if req.WorkflowID != "" {
		h.writeSignalResult(w, h.orch.CancelBooking(r.Context(), req.WorkflowID, req.Reason))
		return
	}
	if req.AppointmentID == "" || req.EventID == "" || req.TenantID == "" {
		http.Error(w, `{"error":"workflow_id or (tenant_id, appointment_id, event_id) required"}`, http.StatusBadRequest)
		return
	}
	id, err := h.orch.StartCancelBooking(r.Context(), req.TenantID, workflows.CancelBookingInput{
		AppointmentID: req.AppointmentID,
		EventID:       req.EventID,
		LeadID:        req.LeadID,
		Reason:        req.Reason,
	})
	h.writeStartResult(w, id, err)
}

type rescheduleRequest struct {
	WorkflowID    string                      `json:"workflow_id,omitempty"`
	TenantID      string                      `json:"tenant_id,omitempty"`
	AppointmentID string                      `json:"appointment_id,omitempty"`
	EventID       string                      `json:"event_id,omitempty"`
	Request       workflows.RescheduleRequest `json:"request"`
}

func (h *OrchestrationHandler) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Request.NewSlot.Start.IsZero() {
		http.Error(w, `{"error":"request.new_slot is required"}`, http.StatusBadRequest)
		return
	}
	if req.WorkflowID != "" {
		h.writeSignalResult(w, h.orch.RescheduleBooking(r.Context(), req.WorkflowID, req.Request))
		return
	}
	if req.AppointmentID == "" || req.EventID == "" || req.TenantID == "" {
		http.Error(w, `{"error":"workflow_id or (tenant_id, appointment_id, event_id) required"}`, http.StatusBadRequest)
		return
	}
	id, err := h.orch.StartReschedule(r.Context(), req.TenantID, workflows.RescheduleInput{
		AppointmentID: req.AppointmentID,
		EventID:       req.EventID,
		NewSlot:       req.Request.NewSlot,
	})
	h.writeStartResult(w, id, err)
}

func (h *OrchestrationHandler) handleStartFollowUp(w http.ResponseWriter, r *http.Request) {
	var req workflows.FollowUpInput
	if !decode(w, r, &req) {
		return
	}
	if req.LeadID == "" || req.TenantID == "" || req.Type == "" || req.ScheduledFor.IsZero() {
		http.Error(w, `{"error":"lead_id, tenant_id, type and scheduled_for are required"}`, http.StatusBadRequest)
		return
	}
	id, err := h.orch.StartFollowUp(r.Context(), req)
	h.writeStartResult(w, id, err)
}

func (h *OrchestrationHandler) handleCancelFollowUp(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decode(w, r, &req) {
		return
	}
	if req.WorkflowID == "" {
		http.Error(w, `{"error":"workflow_id is required"}`, http.StatusBadRequest)
		return
	}
	h.writeSignalResult(w, h.orch.CancelFollowUp(r.Context(), req.WorkflowID, req.Reason))
}

func (h *OrchestrationHandler) handleStartReengagement(w http.ResponseWriter, r *http.Request) {
	var req workflows.ReengagementInput
	if !decode(w, r, &req) {
		return
	}
	if req.LeadID == "" || req.TenantID == "" {
		http.Error(w, `{"error":"lead_id and tenant_id are required"}`, http.StatusBadRequest)
		return
	}
	id, err := h.orch.StartReengagement(r.Context(), req)
	h.writeStartResult(w, id, err)
}

func (h *OrchestrationHandler) handleStartMemory(w http.ResponseWriter, r *http.Request) {
	var req workflows.MemoryGenerationInput
	if !decode(w, r, &req) {
		return
	}
	if req.ConversationID == "" || req.LeadID == "" || req.TenantID == "" {
		http.Error(w, `{"error":"conversation_id, lead_id and tenant_id are required"}`, http.StatusBadRequest)
		return
	}
	id, err := h.orch.StartMemoryGeneration(r.Context(), req)
	h.writeStartResult(w, id, err)
}

func (h *OrchestrationHandler) handleStartSync(w http.ResponseWriter, r *http.Request) {
	var req workflows.IntegrationSyncInput
	if !decode(w, r, &req) {
		return
	}
	if req.LeadID == "" {
		http.Error(w, `{"error":"lead_id is required"}`, http.StatusBadRequest)
		return
	}
	id, err := h.orch.StartIntegrationSync(r.Context(), req)
	h.writeStartResult(w, id, err)
}

func (h *OrchestrationHandler) handleStartBulkSync(w http.ResponseWriter, r *http.Request) {
	var req workflows.BulkSyncInput
	if !decode(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		http.Error(w, `{"error":"tenant_id is required"}`, http.StatusBadRequest)
		return
	}
	id, err := h.orch.StartBulkSync(r.Context(), req)
	h.writeStartResult(w, id, err)
}

func (h *OrchestrationHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	workflowID := r.URL.Query().Get("workflow_id")
	if workflowID == "" {
		http.Error(w, `{"error":"workflow_id is required"}`, http.StatusBadRequest)
		return
	}
	status, err := h.orch.GetStatus(r.Context(), workflowID)
	if errors.Is(err, orchestration.ErrNotFound) {
		http.Error(w, `{"error":"workflow not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("status lookup failed", zap.Error(err), zap.String("workflow_id", workflowID))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
