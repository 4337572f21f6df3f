package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/velia-ai/velia/go/orchestrator/internal/activities"
	"github.com/velia-ai/velia/go/orchestrator/internal/workflows/opts"
)

// IntegrationSyncWorkflow pushes one lead's current state to the CRM and
// the ad platform. The two targets are independent: a failure on one after
// retries are exhausted is recorded in the result, not propagated.
func IntegrationSyncWorkflow(ctx workflow.Context, input IntegrationSyncInput) (*IntegrationSyncResult, error) {
	logger := workflow.GetLogger(ctx)
	pctx := opts.WithPersistenceOptions(ctx)
	sctx := opts.WithSyncOptions(ctx)

	var lead activities.LeadSnapshot
	err := workflow.ExecuteActivity(pctx, activities.ActivityGetLead, activities.LeadRef{LeadID: input.LeadID}).
		Get(ctx, &lead)
	if err != nil {
		return nil, err
	}

	result := &IntegrationSyncResult{}

	var crm activities.SyncResult
	err = workflow.ExecuteActivity(sctx, activities.ActivityUpsertCRMContact, activities.CRMContactInput{
		LeadID: lead.LeadID,
		Email:  lead.Email,
		Phone:  lead.Phone,
		Name:   lead.Name,
		Stage:  lead.Stage,
	}).Get(ctx, &crm)
	switch {
	case err != nil:
		logger.Warn("CRM sync failed", "lead_id", input.LeadID, "error", err)
		result.CRMError = err.Error()
	case !crm.Success:
		result.CRMError = crm.Error
	default:
		result.CRMSynced = true
	}

	var ad activities.SyncResult
	err = workflow.ExecuteActivity(sctx, activities.ActivityTrackAdConversion, activities.AdConversionInput{
		LeadID: lead.LeadID,
		Phone:  lead.Phone,
		Stage:  lead.Stage,
	}).Get(ctx, &ad)
	switch {
	case err != nil:
		logger.Warn("ad conversion tracking failed", "lead_id", input.LeadID, "error", err)
		result.AdError = err.Error()
	case !ad.Success:
		result.AdError = ad.Error
	default:
		result.AdTracked = true
	}

	return result, nil
}

// BulkSyncWorkflow sweeps a tenant's cold leads and fans per-lead syncs out
// as child workflows in bounded batches, so a large sweep never floods the
// task queue.
func BulkSyncWorkflow(ctx workflow.Context, input BulkSyncInput) (*BulkSyncResult, error) {
	logger := workflow.GetLogger(ctx)
	pctx := opts.WithPersistenceOptions(ctx)

	idleFor := input.IdleFor
	if idleFor <= 0 {
		idleFor = 72 * time.Hour
	}
	horizon := input.Horizon
	if horizon <= 0 {
		horizon = 30 * 24 * time.Hour
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 500
	}
	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	now := workflow.Now(ctx)
	var leads []activities.LeadSnapshot
	err := workflow.ExecuteActivity(pctx, activities.ActivityListColdLeads, activities.ListColdLeadsInput{
		TenantID:  input.TenantID,
		IdleSince: now.Add(-idleFor),
		NotBefore: now.Add(-horizon),
		Limit:     limit,
	}).Get(ctx, &leads)
	if err != nil {
		return nil, err
	}

	result := &BulkSyncResult{}
	for start := 0; start < len(leads); start += batchSize {
		end := start + batchSize
		if end > len(leads) {
			end = len(leads)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-start)
		for _, lead := range leads[start:end] {
			futures = append(futures, workflow.ExecuteChildWorkflow(ctx, IntegrationSyncWorkflow, IntegrationSyncInput{
				LeadID: lead.LeadID,
			}))
		}
		for _, f := range futures {
			var sync IntegrationSyncResult
			if err := f.Get(ctx, &sync); err != nil {
				logger.Warn("lead sync child failed", "error", err)
				result.Failures++
				continue
			}
			result.LeadsProcessed++
			if sync.CRMError != "" || sync.AdError != "" {
				result.Failures++
			}
		}
	}

	logger.Info("bulk sync finished",
		"tenant_id", input.TenantID,
		"processed", result.LeadsProcessed,
		"failures", result.Failures)
	return result, nil
}

// MemoryGenerationWorkflow summarizes a finished conversation into durable
// lead memory. The workflow id is keyed by conversation, so the summary is
// generated at most once even if the agent requests it twice.
func MemoryGenerationWorkflow(ctx workflow.Context, input MemoryGenerationInput) (*MemoryGenerationResult, error) {
	pctx := opts.WithPersistenceOptions(ctx)
	sctx := opts.WithSyncOptions(ctx)

	var turns []activities.ConversationTurn
	err := workflow.ExecuteActivity(pctx, activities.ActivityGetConversation, activities.GetConversationInput{
		ConversationID: input.ConversationID,
		Limit:          200,
	}).Get(ctx, &turns)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return &MemoryGenerationResult{Saved: false, Reason: "empty conversation"}, nil
	}

	var summary activities.SummaryResult
	err = workflow.ExecuteActivity(sctx, activities.ActivityGenerateSummary, activities.SummaryInput{
		ConversationID: input.ConversationID,
		Turns:          turns,
	}).Get(ctx, &summary)
	if err != nil {
		return nil, err
	}
	if !summary.Success {
		return &MemoryGenerationResult{Saved: false, Reason: summary.Error}, nil
	}

	err = workflow.ExecuteActivity(pctx, activities.ActivitySaveLeadMemory, activities.SaveLeadMemoryInput{
		LeadID:         input.LeadID,
		TenantID:       input.TenantID,
		ConversationID: input.ConversationID,
		Summary:        summary.Summary,
	}).Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &MemoryGenerationResult{Saved: true}, nil
}
