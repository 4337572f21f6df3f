package activities

import "time"

// CalSlot is a normalized local-time availability slot returned by the
// calendar API. Value object: never persisted directly.
type CalSlot struct {
	Start time.Time `json:"start"`
	Label string    `json:"label"`
}

// BookingResult is the outcome of a calendar event mutation. Expected
// failures (slot taken, event gone) arrive as Success=false.
type BookingResult struct {
	Success bool      `json:"success"`
	EventID string    `json:"event_id,omitempty"`
	Start   time.Time `json:"start,omitempty"`
	End     time.Time `json:"end,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// AvailabilityResult carries the normalized slots for a date range.
type AvailabilityResult struct {
	Success bool      `json:"success"`
	Slots   []CalSlot `json:"slots,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// CheckoutResult is the outcome of creating a checkout session.
type CheckoutResult struct {
	Success     bool   `json:"success"`
	SessionID   string `json:"session_id,omitempty"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	CustomerID  string `json:"customer_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SendResult is the outcome of an outbound message.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SyncResult is the outcome of a CRM/ads/summary sync call.
type SyncResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
