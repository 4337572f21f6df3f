package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateFollowUp inserts a pending follow-up record.
func (c *Client) CreateFollowUp(ctx context.Context, rec *FollowUpRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Status = FollowUpPending
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO follow_ups (id, lead_id, appointment_id, tenant_id, type, status, scheduled_for, attempt, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`,
		rec.ID, rec.LeadID, rec.AppointmentID, rec.TenantID, rec.Type, rec.Status,
		rec.ScheduledFor, rec.Attempt, rec.Metadata)
	if err != nil {
		return fmt.Errorf("create follow-up: %w", err)
	}
	return nil
}

// TransitionFollowUp moves a follow-up out of pending. The pending-only guard
// means the transition happens at most once: a retried activity that lost the
// race reports transitioned=false instead of double-writing.
func (c *Client) TransitionFollowUp(ctx context.Context, id uuid.UUID, status FollowUpStatus) (bool, error) {
	if status != FollowUpSent && status != FollowUpCancelled {
		return false, fmt.Errorf("invalid follow-up transition to %q", status)
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE follow_ups SET status = $2, attempt = attempt + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, status)
	if err != nil {
		return false, fmt.Errorf("transition follow-up: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetPendingFollowUps returns pending records due inside the window, bounded
// by limit. Time-windowed so the sweep never scans the full table.
func (c *Client) GetPendingFollowUps(ctx context.Context, tenantID string, from, to time.Time, limit int) ([]FollowUpRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var recs []FollowUpRecord
	err := c.db.SelectContext(ctx, &recs, `
		SELECT id, lead_id, appointment_id, tenant_id, type, status, scheduled_for, attempt, metadata, created_at, updated_at
		FROM follow_ups
		WHERE tenant_id = $1 AND status = 'pending'
		  AND scheduled_for >= $2 AND scheduled_for < $3
		ORDER BY scheduled_for ASC
		LIMIT $4`, tenantID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending follow-ups: %w", err)
	}
	return recs, nil
}

// CancelPendingForAppointment marks every pending follow-up tied to an
// appointment as cancelled and returns the affected rows so the caller can
// signal the owning workflow instances.
func (c *Client) CancelPendingForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]FollowUpRecord, error) {
	var recs []FollowUpRecord
	err := c.db.SelectContext(ctx, &recs, `
		UPDATE follow_ups SET status = 'cancelled', updated_at = NOW()
		WHERE appointment_id = $1 AND status = 'pending'
		RETURNING id, lead_id, appointment_id, tenant_id, type, status, scheduled_for, attempt, metadata, created_at, updated_at`,
		appointmentID)
	if err != nil {
		return nil, fmt.Errorf("cancel pending follow-ups: %w", err)
	}
	return recs, nil
}
