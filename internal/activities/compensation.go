package activities

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/velia-ai/velia/go/orchestrator/internal/db"
	"github.com/velia-ai/velia/go/orchestrator/internal/metrics"
)

// CompensationActivities undoes work spawned as separate workflow instances.
// Activities across instances have no ordering guarantee, so cancelling a
// booking must explicitly chase down its reminder and follow-up workflows.
type CompensationActivities struct {
	temporal client.Client
	store    *db.Client
	logger   *zap.Logger
}

// NewCompensationActivities creates the compensation activity set.
func NewCompensationActivities(temporalClient client.Client, store *db.Client, logger *zap.Logger) *CompensationActivities {
	return &CompensationActivities{temporal: temporalClient, store: store, logger: logger}
}

// CancelFollowUpsInput identifies the appointment whose pending follow-ups
// must be cancelled.
type CancelFollowUpsInput struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason,omitempty"`
}

// CancelFollowUpsResult reports how many records and workflows were reached.
type CancelFollowUpsResult struct {
	RecordsCancelled  int `json:"records_cancelled"`
	WorkflowsSignaled int `json:"workflows_signaled"`
}

// CancelAppointmentFollowUps marks every pending follow-up row for the
// appointment cancelled, then signals the owning workflow instances (and the
// appointment's reminder workflow) so their timers stop cleanly. A workflow
// that already finished is fine; NotFound is not an error here.
func (c *CompensationActivities) CancelAppointmentFollowUps(ctx context.Context, input CancelFollowUpsInput) (*CancelFollowUpsResult, error) {
	apptID, err := uuid.Parse(input.AppointmentID)
	if err != nil {
		return nil, configError("invalid appointment id %q", input.AppointmentID)
	}

	recs, err := c.store.CancelPendingForAppointment(ctx, apptID)
	if err != nil {
		return nil, err
	}

	result := &CancelFollowUpsResult{RecordsCancelled: len(recs)}
	for _, rec := range recs {
		metrics.FollowUpTransitions.WithLabelValues("cancelled").Inc()
		wfID, _ := rec.Metadata["workflow_id"].(string)
		if wfID == "" {
			continue
		}
		if c.signalCancel(ctx, wfID, input.Reason) {
			result.WorkflowsSignaled++
		}
	}

	// The reminder sequence runs as its own instance keyed by appointment
	// id, with a -r<N> revision suffix after each reschedule. Only the
	// highest revision can still be live, but earlier ones are swept too
	// since signalling a closed instance is just NotFound.
	for rev := 0; rev <= maxReminderRevisions; rev++ {
		id := "demo-reminders-" + input.AppointmentID
		if rev > 0 {
			id = fmt.Sprintf("%s-r%d", id, rev)
		}
		if c.signalCancel(ctx, id, input.Reason) {
			result.WorkflowsSignaled++
		}
	}

	return result, nil
}

// maxReminderRevisions bounds the reminder-instance sweep. An appointment
// rescheduled more times than this has long since drowned the lead in
// confirmations anyway.
const maxReminderRevisions = 10

func (c *CompensationActivities) signalCancel(ctx context.Context, workflowID, reason string) bool {
	err := c.temporal.SignalWorkflow(ctx, workflowID, "", "cancel-followup", map[string]string{"reason": reason})
	if err == nil {
		metrics.SignalsDelivered.WithLabelValues("cancel-followup").Inc()
		return true
	}
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return false
	}
	c.logger.Warn("Failed to signal follow-up workflow",
		zap.String("workflow_id", workflowID),
		zap.Error(err),
	)
	return false
}
