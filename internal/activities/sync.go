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

	"github.com/velia-ai/velia/go/orchestrator/internal/config"
	"github.com/velia-ai/velia/go/orchestrator/internal/db"
	"github.com/velia-ai/velia/go/orchestrator/internal/metrics"
	"github.com/velia-ai/velia/go/orchestrator/internal/tracing"
)

// crmLifecycleStages maps the lead funnel onto CRM lifecycle stages. An
// explicit finite table keyed by the closed enum, so a new stage fails loudly
// here instead of silently syncing as nothing.
var crmLifecycleStages = map[db.LeadStage]string{
	db.StageNew:           "lead",
	db.StageContacted:     "lead",
	db.StageQualified:     "marketingqualifiedlead",
	db.StageDemoScheduled: "salesqualifiedlead",
	db.StageProposalSent:  "opportunity",
	db.StageNegotiation:   "opportunity",
	db.StageWon:           "customer",
	db.StageLost:          "other",
}

// adConversionEvents maps stages worth reporting to the ad platform. Stages
// absent from the table are not conversions.
var adConversionEvents = map[db.LeadStage]string{
	db.StageQualified:     "Lead",
	db.StageDemoScheduled: "Schedule",
	db.StageWon:           "Purchase",
}

// SyncActivities pushes lead state to the CRM and ad platform and generates
// conversation summaries through the agent service.
type SyncActivities struct {
	http            *http.Client
	crmBaseURL      string
	crmAPIKey       string
	adsPixelID      string
	adsAccessToken  string
	agentServiceURL string
	logger          *zap.Logger
}

// NewSyncActivities creates the third-party sync activity set.
func NewSyncActivities(cfg config.SyncConfig, logger *zap.Logger) *SyncActivities {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &SyncActivities{
		http:            &http.Client{Timeout: timeout},
		crmBaseURL:      cfg.CRMBaseURL,
		crmAPIKey:       cfg.CRMAPIKey,
		adsPixelID:      cfg.AdsPixelID,
		adsAccessToken:  cfg.AdsAccessToken,
		agentServiceURL: cfg.AgentServiceURL,
		logger:          logger,
	}
}

func (s *SyncActivities) postJSON(ctx context.Context, target, url string, headers map[string]string, payload interface{}) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal %s payload: %w", target, err)
	}
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	tracing.InjectTraceparent(ctx, req)

	start := time.Now()
	resp, err := s.http.Do(req)
	metrics.ThirdPartyLatency.WithLabelValues(target).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ThirdPartyCalls.WithLabelValues(target, "error").Inc()
		return 0, nil, upstreamError(target, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<18))
	if retryableStatus(resp.StatusCode) {
		metrics.ThirdPartyCalls.WithLabelValues(target, "retryable").Inc()
		return resp.StatusCode, body, upstreamError(target, fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		metrics.ThirdPartyCalls.WithLabelValues(target, "ok").Inc()
	} else {
		metrics.ThirdPartyCalls.WithLabelValues(target, "rejected").Inc()
	}
	return resp.StatusCode, body, nil
}

// CRMContactInput upserts a lead into the CRM, keyed by email or phone.
type CRMContactInput struct {
	LeadID  string `json:"lead_id"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone"`
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Stage   string `json:"stage"`
}

// UpsertCRMContact pushes the lead's current state to the CRM.
func (s *SyncActivities) UpsertCRMContact(ctx context.Context, input CRMContactInput) (*SyncResult, error) {
	if s.crmBaseURL == "" || s.crmAPIKey == "" {
		return nil, configError("CRM not configured")
	}

	lifecycle, ok := crmLifecycleStages[db.LeadStage(input.Stage)]
	if !ok {
		return nil, configError("no CRM lifecycle mapping for stage %q", input.Stage)
	}

	payload := map[string]interface{}{
		"properties": map[string]interface{}{
			"email":          input.Email,
			"phone":          input.Phone,
			"firstname":      input.Name,
			"company":        input.Company,
			"lifecyclestage": lifecycle,
			"velia_lead_id":  input.LeadID,
		},
	}
	status, body, err := s.postJSON(ctx, "crm", s.crmBaseURL+"/crm/v3/objects/contacts/upsert",
		map[string]string{"Authorization": "Bearer " + s.crmAPIKey}, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		s.logger.Warn("CRM rejected upsert", zap.Int("status", status), zap.ByteString("body", body))
		return &SyncResult{Success: false, Error: fmt.Sprintf("crm status %d", status)}, nil
	}
	return &SyncResult{Success: true}, nil
}

// AdConversionInput reports a stage transition to the ad platform.
type AdConversionInput struct {
	LeadID string `json:"lead_id"`
	Phone  string `json:"phone"`
	Stage  string `json:"stage"`
}

// TrackAdConversion reports a conversion event for stages that map to one.
// Unmapped stages return success without a call.
func (s *SyncActivities) TrackAdConversion(ctx context.Context, input AdConversionInput) (*SyncResult, error) {
	event, ok := adConversionEvents[db.LeadStage(input.Stage)]
	if !ok {
		return &SyncResult{Success: true}, nil
	}
	if s.adsPixelID == "" || s.adsAccessToken == "" {
		return nil, configError("ad conversion tracking not configured")
	}

	payload := map[string]interface{}{
		"data": []map[string]interface{}{{
			"event_name":    event,
			"event_time":    time.Now().Unix(),
			"action_source": "chat",
			"user_data":     map[string]interface{}{"ph": []string{input.Phone}},
			"custom_data":   map[string]interface{}{"lead_id": input.LeadID},
		}},
	}
	url := fmt.Sprintf("https://graph.facebook.com/v21.0/%s/events?access_token=%s", s.adsPixelID, s.adsAccessToken)
	status, _, err := s.postJSON(ctx, "ads", url, nil, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return &SyncResult{Success: false, Error: fmt.Sprintf("ads status %d", status)}, nil
	}
	return &SyncResult{Success: true}, nil
}

// SummaryInput asks the agent service to summarize a transcript.
type SummaryInput struct {
	ConversationID string             `json:"conversation_id"`
	Turns          []ConversationTurn `json:"turns"`
}

// SummaryResult carries the generated summary.
type SummaryResult struct {
	Success bool   `json:"success"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GenerateSummary asks the agent service for a conversation summary.
func (s *SyncActivities) GenerateSummary(ctx context.Context, input SummaryInput) (*SummaryResult, error) {
	if s.agentServiceURL == "" {
		return nil, configError("agent service not configured")
	}
	if len(input.Turns) == 0 {
		return &SummaryResult{Success: false, Error: "empty conversation"}, nil
	}

	status, body, err := s.postJSON(ctx, "agent", s.agentServiceURL+"/summaries", nil, input)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return &SummaryResult{Success: false, Error: fmt.Sprintf("agent service status %d", status)}, nil
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Summary == "" {
		return nil, upstreamError("agent", fmt.Errorf("summary response malformed"))
	}
	return &SummaryResult{Success: true, Summary: out.Summary}, nil
}
