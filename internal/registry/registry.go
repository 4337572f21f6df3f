// Package registry binds every workflow and activity onto a worker. Each
// lane worker gets the full set, so any lane can serve any workflow type.
package registry

import (
	"go.temporal.io/sdk/worker"

	"github.com/velia-ai/velia/go/orchestrator/internal/activities"
	"github.com/velia-ai/velia/go/orchestrator/internal/workflows"
)

// ActivitySets carries the constructed activity implementations.
type ActivitySets struct {
	Messaging    *activities.MessagingActivities
	Calendar     *activities.CalendarActivities
	Billing      *activities.BillingActivities
	Persistence  *activities.PersistenceActivities
	Compensation *activities.CompensationActivities
	Sync         *activities.SyncActivities
}

// RegisterAll registers workflows and activities on one worker. Activity
// structs register each exported method under its method name, which is
// exactly what workflow code schedules by.
func RegisterAll(w worker.Worker, sets ActivitySets) {
	w.RegisterWorkflow(workflows.FollowUpWorkflow)
	w.RegisterWorkflow(workflows.DemoRemindersWorkflow)
	w.RegisterWorkflow(workflows.ReengagementWorkflow)
	w.RegisterWorkflow(workflows.DemoBookingWorkflow)
	w.RegisterWorkflow(workflows.RescheduleWorkflow)
	w.RegisterWorkflow(workflows.CancelBookingWorkflow)
	w.RegisterWorkflow(workflows.PaymentWorkflow)
	w.RegisterWorkflow(workflows.IntegrationSyncWorkflow)
	w.RegisterWorkflow(workflows.BulkSyncWorkflow)
	w.RegisterWorkflow(workflows.MemoryGenerationWorkflow)

	w.RegisterActivity(sets.Messaging)
	w.RegisterActivity(sets.Calendar)
	w.RegisterActivity(sets.Billing)
	w.RegisterActivity(sets.Persistence)
	w.RegisterActivity(sets.Compensation)
	w.RegisterActivity(sets.Sync)
}
