package activities

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velia-ai/velia/go/orchestrator/internal/db"
	"github.com/velia-ai/velia/go/orchestrator/internal/metrics"
)

// PersistenceActivities is the only path from workflows to the store.
type PersistenceActivities struct {
	store  *db.Client
	logger *zap.Logger
}

// NewPersistenceActivities creates the persistence activity set.
func NewPersistenceActivities(store *db.Client, logger *zap.Logger) *PersistenceActivities {
	return &PersistenceActivities{store: store, logger: logger}
}

// CreateFollowUpInput persists a pending follow-up record. WorkflowID is
// stored in metadata so compensation can signal the owning instance.
type CreateFollowUpInput struct {
	LeadID        string    `json:"lead_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	TenantID      string    `json:"tenant_id"`
	Type          string    `json:"type"`
	ScheduledFor  time.Time `json:"scheduled_for"`
	WorkflowID    string    `json:"workflow_id"`
}

// CreateFollowUpResult returns the persisted record id.
type CreateFollowUpResult struct {
	FollowUpID string `json:"follow_up_id"`
}

// CreateFollowUpRecord inserts a pending follow-up row.
func (p *PersistenceActivities) CreateFollowUpRecord(ctx context.Context, input CreateFollowUpInput) (*CreateFollowUpResult, error) {
	leadID, err := uuid.Parse(input.LeadID)
	if err != nil {
		return nil, configError("invalid lead id %q", input.LeadID)
	}
	rec := &db.FollowUpRecord{
		LeadID:       leadID,
		TenantID:     input.TenantID,
		Type:         db.FollowUpType(input.Type),
		ScheduledFor: input.ScheduledFor,
		Metadata:     db.JSONB{"workflow_id": input.WorkflowID},
	}
	if input.AppointmentID != "" {
		apptID, err := uuid.Parse(input.AppointmentID)
		if err != nil {
			return nil, configError("invalid appointment id %q", input.AppointmentID)
		}
		rec.AppointmentID = &apptID
	}
	if err := p.store.CreateFollowUp(ctx, rec); err != nil {
		return nil, err
	}
	return &CreateFollowUpResult{FollowUpID: rec.ID.String()}, nil
}

// TransitionFollowUpInput moves a follow-up out of pending.
type TransitionFollowUpInput struct {
	FollowUpID string `json:"follow_up_id"`
	Status     string `json:"status"` // sent | cancelled
}

// TransitionFollowUpResult reports whether this call performed the
// transition. False means another path already closed the record.
type TransitionFollowUpResult struct {
	Transitioned bool `json:"transitioned"`
}

// TransitionFollowUp transitions a follow-up record exactly once.
func (p *PersistenceActivities) TransitionFollowUp(ctx context.Context, input TransitionFollowUpInput) (*TransitionFollowUpResult, error) {
	id, err := uuid.Parse(input.FollowUpID)
	if err != nil {
		return nil, configError("invalid follow-up id %q", input.FollowUpID)
	}
	ok, err := p.store.TransitionFollowUp(ctx, id, db.FollowUpStatus(input.Status))
	if err != nil {
		return nil, err
	}
	if ok {
		metrics.FollowUpTransitions.WithLabelValues(input.Status).Inc()
	}
	return &TransitionFollowUpResult{Transitioned: ok}, nil
}

// CreateAppointmentInput persists a scheduled appointment.
type CreateAppointmentInput struct {
	LeadID      string    `json:"lead_id"`
	TenantID    string    `json:"tenant_id"`
	EventID     string    `json:"event_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// CreateAppointmentResult returns the persisted appointment id.
type CreateAppointmentResult struct {
	AppointmentID string `json:"appointment_id"`
	Conflict      bool   `json:"conflict"`
}

// CreateAppointmentRecord inserts the appointment row. A conflict with the
// one-scheduled-per-lead invariant is an expected result, not an error.
func (p *PersistenceActivities) CreateAppointmentRecord(ctx context.Context, input CreateAppointmentInput) (*CreateAppointmentResult, error) {
	leadID, err := uuid.Parse(input.LeadID)
	if err != nil {
		return nil, configError("invalid lead id %q", input.LeadID)
	}
	appt := &db.Appointment{
		LeadID:      leadID,
		TenantID:    input.TenantID,
		EventID:     input.EventID,
		ScheduledAt: input.ScheduledAt,
	}
	err = p.store.CreateAppointment(ctx, appt)
	if errors.Is(err, db.ErrAppointmentExists) {
		return &CreateAppointmentResult{Conflict: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &CreateAppointmentResult{AppointmentID: appt.ID.String()}, nil
}

// RescheduleAppointmentInput moves the row in place.
type RescheduleAppointmentInput struct {
	AppointmentID string    `json:"appointment_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
}

// RescheduleAppointmentRecord updates scheduled_at on the existing row.
func (p *PersistenceActivities) RescheduleAppointmentRecord(ctx context.Context, input RescheduleAppointmentInput) error {
	id, err := uuid.Parse(input.AppointmentID)
	if err != nil {
		return configError("invalid appointment id %q", input.AppointmentID)
	}
	return p.store.RescheduleAppointment(ctx, id, input.ScheduledAt)
}

// CloseAppointmentInput transitions the appointment to a terminal status.
type CloseAppointmentInput struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"` // completed | cancelled | no_show
}

// CloseAppointmentResult reports whether this call closed the row.
type CloseAppointmentResult struct {
	Closed bool `json:"closed"`
}

// CloseAppointmentRecord closes the appointment exactly once.
func (p *PersistenceActivities) CloseAppointmentRecord(ctx context.Context, input CloseAppointmentInput) (*CloseAppointmentResult, error) {
	id, err := uuid.Parse(input.AppointmentID)
	if err != nil {
		return nil, configError("invalid appointment id %q", input.AppointmentID)
	}
	closed, err := p.store.CloseAppointment(ctx, id, db.AppointmentStatus(input.Status))
	if err != nil {
		return nil, err
	}
	return &CloseAppointmentResult{Closed: closed}, nil
}

// UpdateLeadStageInput transitions the lead's funnel stage.
type UpdateLeadStageInput struct {
	LeadID string `json:"lead_id"`
	Stage  string `json:"stage"`
}

// UpdateLeadStage transitions the lead stage.
func (p *PersistenceActivities) UpdateLeadStage(ctx context.Context, input UpdateLeadStageInput) error {
	id, err := uuid.Parse(input.LeadID)
	if err != nil {
		return configError("invalid lead id %q", input.LeadID)
	}
	stage := db.LeadStage(input.Stage)
	if !stage.Valid() {
		return configError("invalid lead stage %q", input.Stage)
	}
	return p.store.UpdateLeadStage(ctx, id, stage)
}

// LeadRef identifies a lead.
type LeadRef struct {
	LeadID string `json:"lead_id"`
}

// TouchLead bumps the lead's last_interaction.
func (p *PersistenceActivities) TouchLead(ctx context.Context, input LeadRef) error {
	id, err := uuid.Parse(input.LeadID)
	if err != nil {
		return configError("invalid lead id %q", input.LeadID)
	}
	return p.store.TouchLead(ctx, id)
}

// RecordSubscriptionInput stores the subscription id on the lead.
type RecordSubscriptionInput struct {
	LeadID         string `json:"lead_id"`
	SubscriptionID string `json:"subscription_id"`
}

// RecordSubscription stores the billing subscription id on the lead.
func (p *PersistenceActivities) RecordSubscription(ctx context.Context, input RecordSubscriptionInput) error {
	id, err := uuid.Parse(input.LeadID)
	if err != nil {
		return configError("invalid lead id %q", input.LeadID)
	}
	return p.store.SetLeadSubscription(ctx, id, input.SubscriptionID)
}

// LeadSnapshot is the lead state a workflow branches on.
type LeadSnapshot struct {
	LeadID          string    `json:"lead_id"`
	TenantID        string    `json:"tenant_id"`
	Phone           string    `json:"phone"`
	Name            string    `json:"name,omitempty"`
	Email           string    `json:"email,omitempty"`
	Stage           string    `json:"stage"`
	LastInteraction time.Time `json:"last_interaction"`
}

func snapshotFromLead(lead *db.Lead) *LeadSnapshot {
	snap := &LeadSnapshot{
		LeadID:          lead.ID.String(),
		TenantID:        lead.TenantID,
		Phone:           lead.Phone,
		Stage:           string(lead.Stage),
		LastInteraction: lead.LastInteraction,
	}
	if lead.Name != nil {
		snap.Name = *lead.Name
	}
	if lead.Email != nil {
		snap.Email = *lead.Email
	}
	return snap
}

// GetLead loads a lead snapshot.
func (p *PersistenceActivities) GetLead(ctx context.Context, input LeadRef) (*LeadSnapshot, error) {
	id, err := uuid.Parse(input.LeadID)
	if err != nil {
		return nil, configError("invalid lead id %q", input.LeadID)
	}
	lead, err := p.store.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	return snapshotFromLead(lead), nil
}

// ListColdLeadsInput is the windowed cold-lead scan.
type ListColdLeadsInput struct {
	TenantID  string    `json:"tenant_id"`
	IdleSince time.Time `json:"idle_since"`
	NotBefore time.Time `json:"not_before"`
	Limit     int       `json:"limit"`
}

// ListColdLeads returns leads gone quiet inside the window.
func (p *PersistenceActivities) ListColdLeads(ctx context.Context, input ListColdLeadsInput) ([]LeadSnapshot, error) {
	leads, err := p.store.GetColdLeads(ctx, input.TenantID, input.IdleSince, input.NotBefore, input.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]LeadSnapshot, 0, len(leads))
	for i := range leads {
		out = append(out, *snapshotFromLead(&leads[i]))
	}
	return out, nil
}

// ListPendingFollowUpsInput is the windowed pending sweep.
type ListPendingFollowUpsInput struct {
	TenantID string    `json:"tenant_id"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Limit    int       `json:"limit"`
}

// PendingFollowUp is one due record.
type PendingFollowUp struct {
	FollowUpID   string    `json:"follow_up_id"`
	LeadID       string    `json:"lead_id"`
	Type         string    `json:"type"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// ListPendingFollowUps returns pending records due inside the window.
func (p *PersistenceActivities) ListPendingFollowUps(ctx context.Context, input ListPendingFollowUpsInput) ([]PendingFollowUp, error) {
	recs, err := p.store.GetPendingFollowUps(ctx, input.TenantID, input.From, input.To, input.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]PendingFollowUp, 0, len(recs))
	for _, r := range recs {
		out = append(out, PendingFollowUp{
			FollowUpID:   r.ID.String(),
			LeadID:       r.LeadID.String(),
			Type:         string(r.Type),
			ScheduledFor: r.ScheduledFor,
		})
	}
	return out, nil
}

// SaveOutboundMessageInput records an outbound conversation turn.
type SaveOutboundMessageInput struct {
	LeadID         string `json:"lead_id"`
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body"`
	WAMessageID    string `json:"wa_message_id,omitempty"`
}

// SaveOutboundMessage persists an outbound message row.
func (p *PersistenceActivities) SaveOutboundMessage(ctx context.Context, input SaveOutboundMessageInput) error {
	leadID, err := uuid.Parse(input.LeadID)
	if err != nil {
		return configError("invalid lead id %q", input.LeadID)
	}
	msg := &db.Message{
		LeadID:         leadID,
		TenantID:       input.TenantID,
		ConversationID: input.ConversationID,
		Direction:      "outbound",
		Body:           input.Body,
	}
	if input.WAMessageID != "" {
		msg.WAMessageID = &input.WAMessageID
	}
	return p.store.SaveMessage(ctx, msg)
}

// GetConversationInput loads a conversation transcript.
type GetConversationInput struct {
	ConversationID string `json:"conversation_id"`
	Limit          int    `json:"limit"`
}

// ConversationTurn is one transcript line.
type ConversationTurn struct {
	Direction string `json:"direction"`
	Body      string `json:"body"`
}

// GetConversation returns a conversation's turns in order.
func (p *PersistenceActivities) GetConversation(ctx context.Context, input GetConversationInput) ([]ConversationTurn, error) {
	msgs, err := p.store.GetConversationMessages(ctx, input.ConversationID, input.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationTurn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ConversationTurn{Direction: m.Direction, Body: m.Body})
	}
	return out, nil
}

// SaveLeadMemoryInput stores a conversation summary.
type SaveLeadMemoryInput struct {
	LeadID         string `json:"lead_id"`
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
	Summary        string `json:"summary"`
}

// SaveLeadMemory upserts the summary keyed by conversation id.
func (p *PersistenceActivities) SaveLeadMemory(ctx context.Context, input SaveLeadMemoryInput) error {
	leadID, err := uuid.Parse(input.LeadID)
	if err != nil {
		return configError("invalid lead id %q", input.LeadID)
	}
	return p.store.SaveLeadMemory(ctx, &db.LeadMemory{
		LeadID:         leadID,
		TenantID:       input.TenantID,
		ConversationID: input.ConversationID,
		Summary:        input.Summary,
	})
}
