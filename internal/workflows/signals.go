package workflows

import "github.com/velia-ai/velia/go/orchestrator/internal/activities"

// Signal and query names. Signals addressed to the same instance are
// observed in arrival order; cancellation is cooperative and checked before
// each side-effecting step.
const (
	SignalCancelFollowUp   = "cancel-followup"
	SignalCancelBooking    = "cancel-booking"
	SignalReschedule       = "reschedule"
	SignalPaymentCompleted = "payment-completed"
	SignalCancelPayment    = "cancel-payment"

	QueryStatus = "status"
)

// CancelRequest asks a workflow to stop before its next side effect.
type CancelRequest struct {
	Reason      string `json:"reason,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// RescheduleRequest moves an upcoming booking to a new slot.
type RescheduleRequest struct {
	NewSlot activities.CalSlot `json:"new_slot"`
	Reason  string             `json:"reason,omitempty"`
}

// PaymentCompleted is delivered by the billing webhook handler when a
// checkout session finishes.
type PaymentCompleted struct {
	SessionID      string `json:"session_id"`
	SubscriptionID string `json:"subscription_id"`
}
