package workflows

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/velia-ai/velia/go/orchestrator/internal/activities"
)

type syncStubs struct {
	crmUpserts    []activities.CRMContactInput
	adConversions []activities.AdConversionInput
	summaries     []activities.SummaryInput
	memories      []activities.SaveLeadMemoryInput

	lead          activities.LeadSnapshot
	coldLeads     []activities.LeadSnapshot
	turns         []activities.ConversationTurn
	crmResult     activities.SyncResult
	adResult      activities.SyncResult
	summaryResult activities.SummaryResult
}

func newSyncStubs() *syncStubs {
	return &syncStubs{
		lead: activities.LeadSnapshot{
			LeadID:   "11111111-1111-1111-1111-111111111111",
			TenantID: "acme",
			Phone:    "+5511999990000",
			Name:     "Maria",
			Email:    "maria@example.com",
			Stage:    "demo_scheduled",
		},
		crmResult:     activities.SyncResult{Success: true},
		adResult:      activities.SyncResult{Success: true},
		summaryResult: activities.SummaryResult{Success: true, Summary: "prefers yearly billing"},
	}
}

func (s *syncStubs) register(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivityWithOptions(func(ctx context.Context, ref activities.LeadRef) (*activities.LeadSnapshot, error) {
		out := s.lead
		if ref.LeadID != "" {
			out.LeadID = ref.LeadID
		}
		return &out, nil
	}, activity.RegisterOptions{Name: activities.ActivityGetLead})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.CRMContactInput) (*activities.SyncResult, error) {
		s.crmUpserts = append(s.crmUpserts, input)
		out := s.crmResult
		return &out, nil
	}, activity.RegisterOptions{Name: activities.ActivityUpsertCRMContact})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.AdConversionInput) (*activities.SyncResult, error) {
		s.adConversions = append(s.adConversions, input)
		out := s.adResult
		return &out, nil
	}, activity.RegisterOptions{Name: activities.ActivityTrackAdConversion})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.ListColdLeadsInput) ([]activities.LeadSnapshot, error) {
		return s.coldLeads, nil
	}, activity.RegisterOptions{Name: activities.ActivityListColdLeads})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.GetConversationInput) ([]activities.ConversationTurn, error) {
		return s.turns, nil
	}, activity.RegisterOptions{Name: activities.ActivityGetConversation})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.SummaryInput) (*activities.SummaryResult, error) {
		s.summaries = append(s.summaries, input)
		out := s.summaryResult
		return &out, nil
	}, activity.RegisterOptions{Name: activities.ActivityGenerateSummary})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.SaveLeadMemoryInput) error {
		s.memories = append(s.memories, input)
		return nil
	}, activity.RegisterOptions{Name: activities.ActivitySaveLeadMemory})
}

func TestIntegrationSyncWorkflow_BothTargets(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newSyncStubs()
	stubs.register(env)

	env.ExecuteWorkflow(IntegrationSyncWorkflow, IntegrationSyncInput{
		LeadID: "11111111-1111-1111-1111-111111111111",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result IntegrationSyncResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.CRMSynced)
	assert.True(t, result.AdTracked)
	assert.Empty(t, result.CRMError)

	require.Len(t, stubs.crmUpserts, 1)
	assert.Equal(t, "demo_scheduled", stubs.crmUpserts[0].Stage)
	assert.Equal(t, "maria@example.com", stubs.crmUpserts[0].Email)
	require.Len(t, stubs.adConversions, 1)
}

func TestIntegrationSyncWorkflow_CRMFailureDoesNotBlockAds(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newSyncStubs()
	stubs.crmResult = activities.SyncResult{Success: false, Error: "contact validation failed"}
	stubs.register(env)

	env.ExecuteWorkflow(IntegrationSyncWorkflow, IntegrationSyncInput{
		LeadID: "11111111-1111-1111-1111-111111111111",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result IntegrationSyncResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.False(t, result.CRMSynced)
	assert.Equal(t, "contact validation failed", result.CRMError)
	// Ad tracking still runs after the CRM target fails.
	assert.True(t, result.AdTracked)
	require.Len(t, stubs.adConversions, 1)
}

func TestBulkSyncWorkflow_SweepsColdLeads(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newSyncStubs()
	for i := 0; i < 7; i++ {
		stubs.coldLeads = append(stubs.coldLeads, activities.LeadSnapshot{
			LeadID: fmt.Sprintf("00000000-0000-0000-0000-0000000000%02d", i),
		})
	}
	stubs.register(env)
	env.RegisterWorkflow(IntegrationSyncWorkflow)

	env.ExecuteWorkflow(BulkSyncWorkflow, BulkSyncInput{
		TenantID:  "acme",
		BatchSize: 3,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result BulkSyncResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 7, result.LeadsProcessed)
	assert.Equal(t, 0, result.Failures)
	assert.Len(t, stubs.crmUpserts, 7)
	assert.Len(t, stubs.adConversions, 7)
}

func TestBulkSyncWorkflow_CountsPartialFailures(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newSyncStubs()
	stubs.coldLeads = []activities.LeadSnapshot{
		{LeadID: "00000000-0000-0000-0000-000000000001"},
		{LeadID: "00000000-0000-0000-0000-000000000002"},
	}
	stubs.adResult = activities.SyncResult{Success: false, Error: "pixel not configured"}
	stubs.register(env)
	env.RegisterWorkflow(IntegrationSyncWorkflow)

	env.ExecuteWorkflow(BulkSyncWorkflow, BulkSyncInput{TenantID: "acme"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result BulkSyncResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 2, result.LeadsProcessed)
	assert.Equal(t, 2, result.Failures)
}

func TestBulkSyncWorkflow_NoColdLeads(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newSyncStubs()
	stubs.register(env)
	env.RegisterWorkflow(IntegrationSyncWorkflow)

	env.ExecuteWorkflow(BulkSyncWorkflow, BulkSyncInput{TenantID: "acme"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result BulkSyncResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 0, result.LeadsProcessed)
	assert.Empty(t, stubs.crmUpserts)
}

func TestMemoryGenerationWorkflow_SavesSummary(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newSyncStubs()
	stubs.turns = []activities.ConversationTurn{
		{Direction: "inbound", Body: "do you have a yearly plan?"},
		{Direction: "outbound", Body: "we do, it saves two months"},
	}
	stubs.register(env)

	env.ExecuteWorkflow(MemoryGenerationWorkflow, MemoryGenerationInput{
		LeadID:         "11111111-1111-1111-1111-111111111111",
		TenantID:       "acme",
		ConversationID: "22222222-2222-2222-2222-222222222222",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result MemoryGenerationResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Saved)

	require.Len(t, stubs.summaries, 1)
	assert.Len(t, stubs.summaries[0].Turns, 2)
	require.Len(t, stubs.memories, 1)
	assert.Equal(t, "prefers yearly billing", stubs.memories[0].Summary)
	assert.Equal(t, "acme", stubs.memories[0].TenantID)
}

func TestMemoryGenerationWorkflow_EmptyConversation(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newSyncStubs()
	stubs.register(env)

	env.ExecuteWorkflow(MemoryGenerationWorkflow, MemoryGenerationInput{
		LeadID:         "11111111-1111-1111-1111-111111111111",
		TenantID:       "acme",
		ConversationID: "22222222-2222-2222-2222-222222222222",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result MemoryGenerationResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.False(t, result.Saved)
	assert.Equal(t, "empty conversation", result.Reason)
	assert.Empty(t, stubs.summaries)
	assert.Empty(t, stubs.memories)
}

func TestMemoryGenerationWorkflow_SummaryRejected(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newSyncStubs()
	stubs.turns = []activities.ConversationTurn{{Direction: "inbound", Body: "hi"}}
	stubs.summaryResult = activities.SummaryResult{Success: false, Error: "conversation too short"}
	stubs.register(env)

	env.ExecuteWorkflow(MemoryGenerationWorkflow, MemoryGenerationInput{
		LeadID:         "11111111-1111-1111-1111-111111111111",
		TenantID:       "acme",
		ConversationID: "22222222-2222-2222-2222-222222222222",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result MemoryGenerationResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.False(t, result.Saved)
	assert.Equal(t, "conversation too short", result.Reason)
	assert.Empty(t, stubs.memories)
}
