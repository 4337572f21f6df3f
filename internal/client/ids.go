package client

import (
	"fmt"
	"strings"
	"time"
)

// Workflow ids are deterministic functions of their business keys, so a
// repeated request addresses the same instance instead of spawning a twin.
// Ids keyed purely by entity (payment, reengagement, memory) combine with a
// rejecting reuse policy to make duplicate starts fail fast; time-suffixed
// ids (booking, follow-up) distinguish legitimately repeated operations.

// PaymentWorkflowID keys a checkout per lead and plan.
func PaymentWorkflowID(leadID, plan string) string {
	return fmt.Sprintf("payment-%s-%s", leadID, plan)
}

// BookingWorkflowID keys a booking per lead and requested slot.
func BookingWorkflowID(leadID string, slot time.Time) string {
	return fmt.Sprintf("booking-%s-%d", leadID, slot.Unix())
}

// RemindersWorkflowID keys the reminder sequence per appointment.
func RemindersWorkflowID(appointmentID string) string {
	return "demo-reminders-" + appointmentID
}

// FollowUpWorkflowID keys a follow-up per type, lead, and due time.
func FollowUpWorkflowID(followUpType, leadID string, due time.Time) string {
	return fmt.Sprintf("followup-%s-%s-%d", sanitize(followUpType), leadID, due.Unix())
}

// ReengagementWorkflowID keys the reengagement nudge per lead.
func ReengagementWorkflowID(leadID string) string {
	return "reengagement-" + leadID
}

// MemoryWorkflowID keys summary generation per conversation.
func MemoryWorkflowID(conversationID string) string {
	return "memory-" + conversationID
}

// IntegrationSyncWorkflowID keys one sync run per lead and instant.
func IntegrationSyncWorkflowID(leadID string, at time.Time) string {
	return fmt.Sprintf("integration-sync-%s-%d", leadID, at.Unix())
}

// BulkSyncWorkflowID keys one sweep per tenant per day.
func BulkSyncWorkflowID(tenantID string, at time.Time) string {
	return fmt.Sprintf("bulk-sync-%s-%s", tenantID, at.UTC().Format("20060102"))
}

// CancelBookingWorkflowID keys the cancellation per appointment.
func CancelBookingWorkflowID(appointmentID string) string {
	return "cancel-booking-" + appointmentID
}

// RescheduleWorkflowID keys the reschedule per appointment and instant.
func RescheduleWorkflowID(appointmentID string, at time.Time) string {
	return fmt.Sprintf("reschedule-%s-%d", appointmentID, at.Unix())
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '_', r == ' ':
			return '-'
		default:
			return -1
		}
	}, s)
}
