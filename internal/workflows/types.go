package workflows

import (
	"time"

	"github.com/velia-ai/velia/go/orchestrator/internal/activities"
)

// FollowUpInput schedules a single future nudge for a lead.
type FollowUpInput struct {
	LeadID         string    `json:"lead_id"`
	AppointmentID  string    `json:"appointment_id,omitempty"`
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Phone          string    `json:"phone"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	ScheduledFor   time.Time `json:"scheduled_for"`
}

// FollowUpResult reports the terminal state of the record.
type FollowUpResult struct {
	FollowUpID string `json:"follow_up_id,omitempty"`
	Status     string `json:"status"` // sent | cancelled | rejected
}

// DemoRemindersInput drives the reminder sequence for one appointment.
type DemoRemindersInput struct {
	LeadID         string          `json:"lead_id"`
	AppointmentID  string          `json:"appointment_id"`
	TenantID       string          `json:"tenant_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Phone          string          `json:"phone"`
	LeadName       string          `json:"lead_name,omitempty"`
	ScheduledAt    time.Time       `json:"scheduled_at"`
	Offsets        []time.Duration `json:"offsets,omitempty"`
	NoShowGrace    time.Duration   `json:"no_show_grace,omitempty"`
}

// DemoRemindersResult reports how the sequence ended.
type DemoRemindersResult struct {
	RemindersSent int    `json:"reminders_sent"`
	Outcome       string `json:"outcome"` // cancelled | completed | no_show
}

// ReengagementInput nudges a lead that went quiet. The workflow id is keyed
// purely by lead, so a second start while one runs is rejected outright.
type ReengagementInput struct {
	LeadID         string        `json:"lead_id"`
	TenantID       string        `json:"tenant_id"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Phone          string        `json:"phone"`
	Message        string        `json:"message"`
	Delay          time.Duration `json:"delay,omitempty"`
}

// ReengagementResult reports the terminal state.
type ReengagementResult struct {
	Status string `json:"status"` // sent | cancelled | skipped | rejected
}

// DemoBookingInput books a calendar slot and holds the workflow open for
// reschedule/cancel signals while the appointment is upcoming.
type DemoBookingInput struct {
	LeadID          string             `json:"lead_id"`
	TenantID        string             `json:"tenant_id"`
	ConversationID  string             `json:"conversation_id,omitempty"`
	Phone           string             `json:"phone"`
	Name            string             `json:"name"`
	Email           string             `json:"email"`
	Slot            activities.CalSlot `json:"slot"`
	HoldOpenGrace   time.Duration      `json:"hold_open_grace,omitempty"`
	ReminderOffsets []time.Duration    `json:"reminder_offsets,omitempty"`
	NoShowGrace     time.Duration      `json:"no_show_grace,omitempty"`
}

// DemoBookingResult is the terminal booking state.
type DemoBookingResult struct {
	Status        string    `json:"status"` // completed | cancelled | slot_unavailable | conflict
	AppointmentID string    `json:"appointment_id,omitempty"`
	EventID       string    `json:"event_id,omitempty"`
	ScheduledAt   time.Time `json:"scheduled_at,omitempty"`
	Reschedules   int       `json:"reschedules,omitempty"`
}

// BookingState is the in-memory workflow state exposed via the status query.
// Once Cancelled or Completed is set no further side-effecting activity runs.
type BookingState struct {
	Cancelled     bool      `json:"cancelled"`
	Completed     bool      `json:"completed"`
	EventID       string    `json:"event_id,omitempty"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	ScheduledAt   time.Time `json:"scheduled_at,omitempty"`
	Reschedules   int       `json:"reschedules"`
}

// RescheduleInput moves an existing appointment when no live booking
// workflow is holding it.
type RescheduleInput struct {
	AppointmentID string             `json:"appointment_id"`
	EventID       string             `json:"event_id"`
	NewSlot       activities.CalSlot `json:"new_slot"`
}

// RescheduleResult reports the move.
type RescheduleResult struct {
	Status      string    `json:"status"` // rescheduled | slot_unavailable
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
}

// CancelBookingInput cancels an appointment and compensates its follow-ups.
type CancelBookingInput struct {
	AppointmentID string `json:"appointment_id"`
	EventID       string `json:"event_id"`
	LeadID        string `json:"lead_id"`
	Reason        string `json:"reason,omitempty"`
}

// CancelBookingResult reports the cancellation.
type CancelBookingResult struct {
	Status             string `json:"status"` // cancelled | already_closed
	FollowUpsCancelled int    `json:"follow_ups_cancelled"`
}

// PaymentInput starts a checkout for (lead, plan). The workflow id is
// derived purely from that pair with duplicate-start rejection, so a repeat
// request is a no-op against the running instance.
type PaymentInput struct {
	LeadID         string        `json:"lead_id"`
	TenantID       string        `json:"tenant_id"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Phone          string        `json:"phone"`
	Email          string        `json:"email"`
	Name           string        `json:"name,omitempty"`
	Plan           string        `json:"plan"`
	Expiry         time.Duration `json:"expiry,omitempty"`
}

// PaymentResult is the terminal payment state.
type PaymentResult struct {
	Status         string `json:"status"` // completed | cancelled | expired | failed
	SessionID      string `json:"session_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	CheckoutURL    string `json:"checkout_url,omitempty"`
	Error          string `json:"error,omitempty"`
}

// PaymentState is the in-memory payment machine exposed via the status
// query: created -> awaiting_payment -> completed | cancelled | expired.
type PaymentState struct {
	Status         string `json:"status"`
	SessionID      string `json:"session_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// IntegrationSyncInput pushes one lead to the CRM and ad platform.
type IntegrationSyncInput struct {
	LeadID string `json:"lead_id"`
}

// IntegrationSyncResult reports per-target outcomes. Failures after retry
// exhaustion are recorded rather than failing the whole fan-out.
type IntegrationSyncResult struct {
	CRMSynced bool   `json:"crm_synced"`
	AdTracked bool   `json:"ad_tracked"`
	CRMError  string `json:"crm_error,omitempty"`
	AdError   string `json:"ad_error,omitempty"`
}

// BulkSyncInput sweeps cold leads for a tenant and fans out per-lead syncs.
type BulkSyncInput struct {
	TenantID  string        `json:"tenant_id"`
	IdleFor   time.Duration `json:"idle_for,omitempty"`
	Horizon   time.Duration `json:"horizon,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	BatchSize int           `json:"batch_size,omitempty"`
}

// BulkSyncResult summarizes the sweep.
type BulkSyncResult struct {
	LeadsProcessed int `json:"leads_processed"`
	Failures       int `json:"failures"`
}

// MemoryGenerationInput summarizes one conversation. The workflow id is
// keyed by conversation id with duplicate-start rejection, so a memory is
// generated at most once per conversation.
type MemoryGenerationInput struct {
	ConversationID string `json:"conversation_id"`
	LeadID         string `json:"lead_id"`
	TenantID       string `json:"tenant_id"`
}

// MemoryGenerationResult reports whether a summary was stored.
type MemoryGenerationResult struct {
	Saved  bool   `json:"saved"`
	Reason string `json:"reason,omitempty"`
}
