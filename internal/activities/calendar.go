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
	"github.com/velia-ai/velia/go/orchestrator/internal/metrics"
	"github.com/velia-ai/velia/go/orchestrator/internal/tracing"
)

// CalendarActivities talks to the scheduling API. All slot times returned to
// workflows are normalized to the business timezone.
type CalendarActivities struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	eventTypeID string
	timezone    string
	duration    time.Duration
	logger      *zap.Logger
}

// NewCalendarActivities creates the calendar activity set.
func NewCalendarActivities(cfg config.CalendarConfig, logger *zap.Logger) *CalendarActivities {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	duration := cfg.SlotDuration
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	tz := cfg.BusinessTimezone
	if tz == "" {
		tz = "America/Sao_Paulo"
	}
	return &CalendarActivities{
		http:        &http.Client{Timeout: timeout},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		eventTypeID: cfg.EventTypeID,
		timezone:    tz,
		duration:    duration,
		logger:      logger,
	}
}

// CheckAvailabilityInput queries open slots for a date range (inclusive,
// YYYY-MM-DD).
type CheckAvailabilityInput struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// CreateEventInput books a slot. WorkflowID is attached as provenance
// metadata on the booking so the external record can be traced back.
type CreateEventInput struct {
	LeadID     string  `json:"lead_id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	Slot       CalSlot `json:"slot"`
	WorkflowID string  `json:"workflow_id"`
}

// EventMutationInput keys a thin mutation by the external event id.
type EventMutationInput struct {
	EventID string    `json:"event_id"`
	NewTime time.Time `json:"new_time,omitempty"`
	Email   string    `json:"email,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

func (c *CalendarActivities) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	if c.apiKey == "" {
		return 0, nil, configError("calendar API key not configured")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal calendar payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	ctx, span := tracing.StartHTTPSpan(ctx, method, c.baseURL+path)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	tracing.InjectTraceparent(ctx, req)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ThirdPartyLatency.WithLabelValues("calendar").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ThirdPartyCalls.WithLabelValues("calendar", "error").Inc()
		return 0, nil, upstreamError("calendar", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if retryableStatus(resp.StatusCode) {
		metrics.ThirdPartyCalls.WithLabelValues("calendar", "retryable").Inc()
		return resp.StatusCode, raw, upstreamError("calendar", fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		metrics.ThirdPartyCalls.WithLabelValues("calendar", "ok").Inc()
	} else {
		metrics.ThirdPartyCalls.WithLabelValues("calendar", "rejected").Inc()
	}
	return resp.StatusCode, raw, nil
}

// CheckAvailability returns open slots for the range, in business-local time.
func (c *CalendarActivities) CheckAvailability(ctx context.Context, input CheckAvailabilityInput) (*AvailabilityResult, error) {
	if c.eventTypeID == "" {
		return nil, configError("calendar event type not configured")
	}
	loc, err := time.LoadLocation(c.timezone)
	if err != nil {
		return nil, configError("invalid business timezone %q", c.timezone)
	}

	path := fmt.Sprintf("/slots?eventTypeId=%s&start=%s&end=%s&timeZone=%s",
		c.eventTypeID, input.StartDate, input.EndDate, c.timezone)
	status, raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return &AvailabilityResult{Success: false, Error: fmt.Sprintf("calendar status %d", status)}, nil
	}

	var out struct {
		Data map[string][]struct {
			Start time.Time `json:"start"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, upstreamError("calendar", fmt.Errorf("decode slots: %w", err))
	}

	var slots []CalSlot
	for _, day := range out.Data {
		for _, s := range day {
			local := s.Start.In(loc)
			slots = append(slots, CalSlot{
				Start: local,
				Label: local.Format("Mon 02 Jan 15:04"),
			})
		}
	}
	return &AvailabilityResult{Success: true, Slots: slots}, nil
}

// CreateEvent books the slot for the fixed demo duration, tagging the
// booking with workflow provenance metadata.
func (c *CalendarActivities) CreateEvent(ctx context.Context, input CreateEventInput) (*BookingResult, error) {
	if c.eventTypeID == "" {
		return nil, configError("calendar event type not configured")
	}

	start := input.Slot.Start
	end := start.Add(c.duration)
	payload := map[string]interface{}{
		"eventTypeId": c.eventTypeID,
		"start":       start.Format(time.RFC3339),
		"end":         end.Format(time.RFC3339),
		"timeZone":    c.timezone,
		"attendee": map[string]interface{}{
			"name":  input.Name,
			"email": input.Email,
			"phone": input.Phone,
		},
		"metadata": map[string]interface{}{
			"lead_id":     input.LeadID,
			"workflow_id": input.WorkflowID,
			"source":      "velia",
		},
	}

	status, raw, err := c.do(ctx, http.MethodPost, "/bookings", payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		// Slot taken or otherwise rejected: expected business failure.
		return &BookingResult{Success: false, Error: fmt.Sprintf("calendar status %d", status)}, nil
	}

	var out struct {
		Data struct {
			UID string `json:"uid"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Data.UID == "" {
		return nil, upstreamError("calendar", fmt.Errorf("booking response missing uid"))
	}

	return &BookingResult{Success: true, EventID: out.Data.UID, Start: start, End: end}, nil
}

// CancelEvent cancels the external booking.
func (c *CalendarActivities) CancelEvent(ctx context.Context, input EventMutationInput) (*BookingResult, error) {
	payload := map[string]interface{}{"cancellationReason": input.Reason}
	status, _, err := c.do(ctx, http.MethodPost, "/bookings/"+input.EventID+"/cancel", payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		// Already gone upstream; treat as done so cancellation is idempotent.
		return &BookingResult{Success: true, EventID: input.EventID}, nil
	}
	if status < 200 || status >= 300 {
		return &BookingResult{Success: false, EventID: input.EventID, Error: fmt.Sprintf("calendar status %d", status)}, nil
	}
	return &BookingResult{Success: true, EventID: input.EventID}, nil
}

// RescheduleEvent moves the existing booking to a new start time. The event
// id does not change.
func (c *CalendarActivities) RescheduleEvent(ctx context.Context, input EventMutationInput) (*BookingResult, error) {
	start := input.NewTime
	payload := map[string]interface{}{
		"start":    start.Format(time.RFC3339),
		"timeZone": c.timezone,
	}
	status, _, err := c.do(ctx, http.MethodPost, "/bookings/"+input.EventID+"/reschedule", payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return &BookingResult{Success: false, EventID: input.EventID, Error: fmt.Sprintf("calendar status %d", status)}, nil
	}
	return &BookingResult{Success: true, EventID: input.EventID, Start: start, End: start.Add(c.duration)}, nil
}

// UpdateEventEmail updates the attendee email on an existing booking.
func (c *CalendarActivities) UpdateEventEmail(ctx context.Context, input EventMutationInput) (*BookingResult, error) {
	payload := map[string]interface{}{
		"attendee": map[string]interface{}{"email": input.Email},
	}
	status, _, err := c.do(ctx, http.MethodPatch, "/bookings/"+input.EventID, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return &BookingResult{Success: false, EventID: input.EventID, Error: fmt.Sprintf("calendar status %d", status)}, nil
	}
	return &BookingResult{Success: true, EventID: input.EventID}, nil
}
