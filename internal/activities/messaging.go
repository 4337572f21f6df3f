package activities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/velia-ai/velia/go/orchestrator/internal/config"
	"github.com/velia-ai/velia/go/orchestrator/internal/metrics"
	"github.com/velia-ai/velia/go/orchestrator/internal/tenant"
	"github.com/velia-ai/velia/go/orchestrator/internal/tracing"
)

// maxListRows is the WhatsApp interactive-list transport cap. Longer lists
// are truncated silently.
const maxListRows = 10

// MessagingActivities sends outbound WhatsApp messages through the Cloud
// API. Tenant credentials arrive on every input, either inline or resolved
// from the tenant id.
type MessagingActivities struct {
	resolver *tenant.Resolver
	http     *http.Client
	limiter  *rate.Limiter
	baseURL  string
	version  string
	logger   *zap.Logger
}

// NewMessagingActivities creates the messaging activity set.
func NewMessagingActivities(cfg config.WhatsAppConfig, resolver *tenant.Resolver, logger *zap.Logger) *MessagingActivities {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 40
	}
	return &MessagingActivities{
		resolver: resolver,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		baseURL:  cfg.BaseURL,
		version:  cfg.APIVersion,
		logger:   logger,
	}
}

// MessageTarget identifies the tenant and recipient for one send. When
// Credentials is nil they are resolved from TenantID.
type MessageTarget struct {
	TenantID    string              `json:"tenant_id"`
	Credentials *tenant.Credentials `json:"credentials,omitempty"`
	To          string              `json:"to"`
}

// SendTextInput is the input for a plain text send.
type SendTextInput struct {
	MessageTarget
	Body string `json:"body"`
}

// ListRow is one selectable row of an interactive list.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// SendListInput is the input for an interactive list send.
type SendListInput struct {
	MessageTarget
	Header     string    `json:"header,omitempty"`
	Body       string    `json:"body"`
	ButtonText string    `json:"button_text"`
	Rows       []ListRow `json:"rows"`
}

// Button is one reply button.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SendButtonsInput is the input for an interactive buttons send.
type SendButtonsInput struct {
	MessageTarget
	Body    string   `json:"body"`
	Buttons []Button `json:"buttons"`
}

// SendMediaInput is the input for a document or image send by link.
type SendMediaInput struct {
	MessageTarget
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

func (m *MessagingActivities) credentials(ctx context.Context, target MessageTarget) (*tenant.Credentials, error) {
	if target.Credentials != nil {
		if target.Credentials.PhoneNumberID == "" || target.Credentials.AccessToken == "" {
			return nil, configError("incomplete messaging credentials for tenant %s", target.TenantID)
		}
		return target.Credentials, nil
	}
	if m.resolver == nil {
		return nil, configError("no tenant resolver configured and no inline credentials")
	}
	creds, _, err := m.resolver.Resolve(ctx, target.TenantID)
	if err != nil {
		return nil, configError("resolve credentials for tenant %s: %v", target.TenantID, err)
	}
	return creds, nil
}

// post sends one message payload to the Cloud API and normalizes the
// response into a SendResult or a classified error.
func (m *MessagingActivities) post(ctx context.Context, creds *tenant.Credentials, kind string, payload map[string]interface{}) (*SendResult, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	version := creds.APIVersion
	if version == "" {
		version = m.version
	}
	url := fmt.Sprintf("%s/%s/%s/messages", m.baseURL, version, creds.PhoneNumberID)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal message payload: %w", err)
	}

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	tracing.InjectTraceparent(ctx, req)

	start := time.Now()
	resp, err := m.http.Do(req)
	metrics.ThirdPartyLatency.WithLabelValues("whatsapp").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ThirdPartyCalls.WithLabelValues("whatsapp", "error").Inc()
		return nil, upstreamError("whatsapp", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out struct {
			Messages []struct {
				ID string `json:"id"`
			} `json:"messages"`
		}
		_ = json.Unmarshal(raw, &out)
		id := ""
		if len(out.Messages) > 0 {
			id = out.Messages[0].ID
		}
		metrics.ThirdPartyCalls.WithLabelValues("whatsapp", "ok").Inc()
		metrics.MessagesSent.WithLabelValues(kind).Inc()
		return &SendResult{Success: true, MessageID: id}, nil
	}

	if retryableStatus(resp.StatusCode) {
		metrics.ThirdPartyCalls.WithLabelValues("whatsapp", "retryable").Inc()
		return nil, upstreamError("whatsapp", fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}

	// 4xx: the API rejected the message. Expected failure, not an error.
	metrics.ThirdPartyCalls.WithLabelValues("whatsapp", "rejected").Inc()
	m.logger.Warn("WhatsApp rejected message",
		zap.String("kind", kind),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("response", raw),
	)
	return &SendResult{Success: false, Error: fmt.Sprintf("whatsapp status %d", resp.StatusCode)}, nil
}

// SendText sends a plain text message.
func (m *MessagingActivities) SendText(ctx context.Context, input SendTextInput) (*SendResult, error) {
	creds, err := m.credentials(ctx, input.MessageTarget)
	if err != nil {
		return nil, err
	}
	return m.post(ctx, creds, "text", map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                input.To,
		"type":              "text",
		"text":              map[string]interface{}{"body": input.Body},
	})
}

// SendList sends an interactive list, truncated to the transport cap.
func (m *MessagingActivities) SendList(ctx context.Context, input SendListInput) (*SendResult, error) {
	creds, err := m.credentials(ctx, input.MessageTarget)
	if err != nil {
		return nil, err
	}

	rows := input.Rows
	if len(rows) > maxListRows {
		rows = rows[:maxListRows]
	}
	rowPayload := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		row := map[string]interface{}{"id": r.ID, "title": r.Title}
		if r.Description != "" {
			row["description"] = r.Description
		}
		rowPayload = append(rowPayload, row)
	}

	interactive := map[string]interface{}{
		"type": "list",
		"body": map[string]interface{}{"text": input.Body},
		"action": map[string]interface{}{
			"button":   input.ButtonText,
			"sections": []map[string]interface{}{{"rows": rowPayload}},
		},
	}
	if input.Header != "" {
		interactive["header"] = map[string]interface{}{"type": "text", "text": input.Header}
	}

	return m.post(ctx, creds, "list", map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                input.To,
		"type":              "interactive",
		"interactive":       interactive,
	})
}

// SendButtons sends an interactive reply-buttons message.
func (m *MessagingActivities) SendButtons(ctx context.Context, input SendButtonsInput) (*SendResult, error) {
	creds, err := m.credentials(ctx, input.MessageTarget)
	if err != nil {
		return nil, err
	}

	buttons := make([]map[string]interface{}, 0, len(input.Buttons))
	for _, b := range input.Buttons {
		buttons = append(buttons, map[string]interface{}{
			"type":  "reply",
			"reply": map[string]interface{}{"id": b.ID, "title": b.Title},
		})
	}

	return m.post(ctx, creds, "buttons", map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                input.To,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "button",
			"body":   map[string]interface{}{"text": input.Body},
			"action": map[string]interface{}{"buttons": buttons},
		},
	})
}

// SendDocument sends a document by link.
func (m *MessagingActivities) SendDocument(ctx context.Context, input SendMediaInput) (*SendResult, error) {
	creds, err := m.credentials(ctx, input.MessageTarget)
	if err != nil {
		return nil, err
	}
	doc := map[string]interface{}{"link": input.Link}
	if input.Caption != "" {
		doc["caption"] = input.Caption
	}
	if input.Filename != "" {
		doc["filename"] = input.Filename
	}
	return m.post(ctx, creds, "document", map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                input.To,
		"type":              "document",
		"document":          doc,
	})
}

// SendImage sends an image by link.
func (m *MessagingActivities) SendImage(ctx context.Context, input SendMediaInput) (*SendResult, error) {
	creds, err := m.credentials(ctx, input.MessageTarget)
	if err != nil {
		return nil, err
	}
	img := map[string]interface{}{"link": input.Link}
	if input.Caption != "" {
		img["caption"] = input.Caption
	}
	return m.post(ctx, creds, "image", map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                input.To,
		"type":              "image",
		"image":             img,
	})
}
