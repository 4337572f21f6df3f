package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SaveLeadMemory upserts a conversation summary, keyed by conversation id so
// a replayed activity overwrites rather than duplicates.
func (c *Client) SaveLeadMemory(ctx context.Context, mem *LeadMemory) error {
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO lead_memory (id, lead_id, tenant_id, conversation_id, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (conversation_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			updated_at = NOW()`,
		mem.ID, mem.LeadID, mem.TenantID, mem.ConversationID, mem.Summary)
	if err != nil {
		return fmt.Errorf("save lead memory: %w", err)
	}
	return nil
}

// GetLeadMemory returns the stored summary for a conversation.
func (c *Client) GetLeadMemory(ctx context.Context, conversationID string) (*LeadMemory, error) {
	var mem LeadMemory
	err := c.db.GetContext(ctx, &mem, `
		SELECT id, lead_id, tenant_id, conversation_id, summary, created_at, updated_at
		FROM lead_memory WHERE conversation_id = $1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead memory: %w", err)
	}
	return &mem, nil
}
