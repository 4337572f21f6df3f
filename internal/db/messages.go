package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SaveMessage records one conversation turn.
func (c *Client) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO messages (id, lead_id, tenant_id, conversation_id, direction, body, wa_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		msg.ID, msg.LeadID, msg.TenantID, msg.ConversationID, msg.Direction, msg.Body, msg.WAMessageID)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// GetConversationMessages returns a conversation's turns in order, bounded by
// limit so summary generation has a capped input.
func (c *Client) GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var msgs []Message
	err := c.db.SelectContext(ctx, &msgs, `
		SELECT id, lead_id, tenant_id, conversation_id, direction, body, wa_message_id, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("get conversation messages: %w", err)
	}
	return msgs, nil
}
