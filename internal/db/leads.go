package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// GetLead returns a lead by id.
func (c *Client) GetLead(ctx context.Context, id uuid.UUID) (*Lead, error) {
	var lead Lead
	err := c.db.GetContext(ctx, &lead, `
		SELECT id, tenant_id, phone, name, email, company, industry, stage,
		       subscription_id, last_interaction, created_at, updated_at
		FROM leads WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return &lead, nil
}

// GetLeadByPhone returns the tenant's lead for a phone number.
func (c *Client) GetLeadByPhone(ctx context.Context, tenantID, phone string) (*Lead, error) {
	var lead Lead
	err := c.db.GetContext(ctx, &lead, `
		SELECT id, tenant_id, phone, name, email, company, industry, stage,
		       subscription_id, last_interaction, created_at, updated_at
		FROM leads WHERE tenant_id = $1 AND phone = $2`, tenantID, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead by phone: %w", err)
	}
	return &lead, nil
}

// UpsertLead inserts a lead or refreshes the existing row for the same
// tenant+phone. The stage of an existing lead is never regressed here.
func (c *Client) UpsertLead(ctx context.Context, lead *Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.Stage == "" {
		lead.Stage = StageNew
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO leads (id, tenant_id, phone, name, email, company, industry, stage, last_interaction, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), NOW())
		ON CONFLICT (tenant_id, phone) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, leads.name),
			email = COALESCE(EXCLUDED.email, leads.email),
			company = COALESCE(EXCLUDED.company, leads.company),
			industry = COALESCE(EXCLUDED.industry, leads.industry),
			last_interaction = NOW(),
			updated_at = NOW()`,
		lead.ID, lead.TenantID, lead.Phone, lead.Name, lead.Email, lead.Company, lead.Industry, lead.Stage)
	if err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	return nil
}

// UpdateLeadStage transitions a lead to a new funnel stage.
func (c *Client) UpdateLeadStage(ctx context.Context, id uuid.UUID, stage LeadStage) error {
	if !stage.Valid() {
		return fmt.Errorf("invalid lead stage %q", stage)
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE leads SET stage = $2, updated_at = NOW() WHERE id = $1`, id, stage)
	if err != nil {
		return fmt.Errorf("update lead stage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLead bumps last_interaction after an outbound message.
func (c *Client) TouchLead(ctx context.Context, id uuid.UUID) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE leads SET last_interaction = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch lead: %w", err)
	}
	return nil
}

// SetLeadSubscription records the billing subscription id on the lead.
func (c *Client) SetLeadSubscription(ctx context.Context, id uuid.UUID, subscriptionID string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE leads SET subscription_id = $2, updated_at = NOW() WHERE id = $1`, id, subscriptionID)
	if err != nil {
		return fmt.Errorf("set lead subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetColdLeads returns leads with no interaction inside the window, bounded
// by limit. Won and lost leads are excluded. The window is required so the
// bulk re-engagement scan never degenerates into a full-table read.
func (c *Client) GetColdLeads(ctx context.Context, tenantID string, idleSince, notBefore time.Time, limit int) ([]Lead, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var leads []Lead
	err := c.db.SelectContext(ctx, &leads, `
		SELECT id, tenant_id, phone, name, email, company, industry, stage,
		       subscription_id, last_interaction, created_at, updated_at
		FROM leads
		WHERE tenant_id = $1
		  AND stage NOT IN ('won', 'lost')
		  AND last_interaction < $2
		  AND last_interaction >= $3
		ORDER BY last_interaction ASC
		LIMIT $4`, tenantID, idleSince, notBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("get cold leads: %w", err)
	}
	return leads, nil
}
