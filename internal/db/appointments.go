package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrAppointmentExists is returned when a lead already has a scheduled
// appointment. The schema enforces this with a partial unique index on
// (lead_id) WHERE status = 'scheduled'.
var ErrAppointmentExists = errors.New("lead already has a scheduled appointment")

// CreateAppointment inserts a scheduled appointment for a lead.
func (c *Client) CreateAppointment(ctx context.Context, appt *Appointment) error {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.Status = AppointmentScheduled
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO appointments (id, lead_id, tenant_id, event_id, scheduled_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		appt.ID, appt.LeadID, appt.TenantID, appt.EventID, appt.ScheduledAt, appt.Status)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAppointmentExists
		}
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// GetAppointment returns an appointment by id.
func (c *Client) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var appt Appointment
	err := c.db.GetContext(ctx, &appt, `
		SELECT id, lead_id, tenant_id, event_id, scheduled_at, status, created_at, updated_at
		FROM appointments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return &appt, nil
}

// GetScheduledAppointmentForLead returns the lead's single scheduled
// appointment, if any.
func (c *Client) GetScheduledAppointmentForLead(ctx context.Context, leadID uuid.UUID) (*Appointment, error) {
	var appt Appointment
	err := c.db.GetContext(ctx, &appt, `
		SELECT id, lead_id, tenant_id, event_id, scheduled_at, status, created_at, updated_at
		FROM appointments WHERE lead_id = $1 AND status = 'scheduled'`, leadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled appointment: %w", err)
	}
	return &appt, nil
}

// RescheduleAppointment moves a scheduled appointment to a new time in place.
// The external event id does not change: reschedules move the existing
// calendar event rather than creating a new one.
func (c *Client) RescheduleAppointment(ctx context.Context, id uuid.UUID, scheduledAt time.Time) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE appointments SET scheduled_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`, id, scheduledAt)
	if err != nil {
		return fmt.Errorf("reschedule appointment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseAppointment transitions a scheduled appointment to a terminal status.
// The scheduled-only guard makes the transition idempotent under retries.
func (c *Client) CloseAppointment(ctx context.Context, id uuid.UUID, status AppointmentStatus) (bool, error) {
	switch status {
	case AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
	default:
		return false, fmt.Errorf("invalid terminal appointment status %q", status)
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE appointments SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`, id, status)
	if err != nil {
		return false, fmt.Errorf("close appointment: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
