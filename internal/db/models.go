package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSONB represents a PostgreSQL jsonb column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// LeadStage is the funnel position of a lead. Leads are never deleted, only
// transitioned between stages.
type LeadStage string

const (
	StageNew           LeadStage = "new"
	StageContacted     LeadStage = "contacted"
	StageQualified     LeadStage = "qualified"
	StageDemoScheduled LeadStage = "demo_scheduled"
	StageProposalSent  LeadStage = "proposal_sent"
	StageNegotiation   LeadStage = "negotiation"
	StageWon           LeadStage = "won"
	StageLost          LeadStage = "lost"
)

// Valid reports whether s is a known stage. Stage strings cross the activity
// boundary as plain JSON, so writes validate before touching the row.
func (s LeadStage) Valid() bool {
	switch s {
	case StageNew, StageContacted, StageQualified, StageDemoScheduled,
		StageProposalSent, StageNegotiation, StageWon, StageLost:
		return true
	}
	return false
}

// AppointmentStatus tracks the lifecycle of a booked demo.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// FollowUpStatus tracks a scheduled nudge. A record transitions out of
// pending exactly once.
type FollowUpStatus string

const (
	FollowUpPending   FollowUpStatus = "pending"
	FollowUpSent      FollowUpStatus = "sent"
	FollowUpCancelled FollowUpStatus = "cancelled"
)

// FollowUpType identifies the sequence step a record belongs to.
type FollowUpType string

const (
	FollowUpNoResponse   FollowUpType = "no_response"
	FollowUpDemoReminder FollowUpType = "demo_reminder"
	FollowUpPostDemo     FollowUpType = "post_demo"
	FollowUpReengagement FollowUpType = "reengagement"
	FollowUpPayment      FollowUpType = "payment_pending"
)

// Lead is a prospect owned by a tenant. Mutated by workflows and by the
// conversational agent.
type Lead struct {
	ID              uuid.UUID `db:"id"`
	TenantID        string    `db:"tenant_id"`
	Phone           string    `db:"phone"`
	Name            *string   `db:"name"`
	Email           *string   `db:"email"`
	Company         *string   `db:"company"`
	Industry        *string   `db:"industry"`
	Stage           LeadStage `db:"stage"`
	SubscriptionID  *string   `db:"subscription_id"`
	LastInteraction time.Time `db:"last_interaction"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Appointment references a lead and the external calendar booking. At most
// one scheduled appointment may exist per lead at any time (enforced by a
// partial unique index on (lead_id) WHERE status = 'scheduled').
type Appointment struct {
	ID          uuid.UUID         `db:"id"`
	LeadID      uuid.UUID         `db:"lead_id"`
	TenantID    string            `db:"tenant_id"`
	EventID     string            `db:"event_id"`
	ScheduledAt time.Time         `db:"scheduled_at"`
	Status      AppointmentStatus `db:"status"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
}

// FollowUpRecord is a persisted future nudge created by a sequence workflow.
// Metadata carries the owning workflow id so compensating logic can signal
// the instance when a booking is cancelled.
type FollowUpRecord struct {
	ID            uuid.UUID      `db:"id"`
	LeadID        uuid.UUID      `db:"lead_id"`
	AppointmentID *uuid.UUID     `db:"appointment_id"`
	TenantID      string         `db:"tenant_id"`
	Type          FollowUpType   `db:"type"`
	Status        FollowUpStatus `db:"status"`
	ScheduledFor  time.Time      `db:"scheduled_for"`
	Attempt       int            `db:"attempt"`
	Metadata      JSONB          `db:"metadata"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// Message is one turn of a WhatsApp conversation, kept for summary
// generation and audit.
type Message struct {
	ID             uuid.UUID `db:"id"`
	LeadID         uuid.UUID `db:"lead_id"`
	TenantID       string    `db:"tenant_id"`
	ConversationID string    `db:"conversation_id"`
	Direction      string    `db:"direction"` // inbound | outbound
	Body           string    `db:"body"`
	WAMessageID    *string   `db:"wa_message_id"`
	CreatedAt      time.Time `db:"created_at"`
}

// LeadMemory is the generated summary of a conversation, at most one row per
// conversation id.
type LeadMemory struct {
	ID             uuid.UUID `db:"id"`
	LeadID         uuid.UUID `db:"lead_id"`
	TenantID       string    `db:"tenant_id"`
	ConversationID string    `db:"conversation_id"`
	Summary        string    `db:"summary"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}
