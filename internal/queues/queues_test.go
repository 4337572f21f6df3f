package queues

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/velia-ai/velia/go/orchestrator/internal/config"
	"github.com/velia-ai/velia/go/orchestrator/internal/tenant"
)

func testRouter() *Router {
	return NewRouter(config.QueuesConfig{
		SharedActivitySlots:     50,
		SharedWorkflowSlots:     20,
		PriorityActivitySlots:   100,
		PriorityWorkflowSlots:   40,
		EnterpriseActivitySlots: 200,
		EnterpriseWorkflowSlots: 80,
		EnterpriseTenants:       []string{"megacorp", "bigco"},
	})
}

func TestLaneFor_TierRouting(t *testing.T) {
	r := testRouter()

	assert.Equal(t, SharedQueue, r.LaneFor("t1", tenant.PlanFree).Queue)
	assert.Equal(t, SharedQueue, r.LaneFor("t1", tenant.PlanStarter).Queue)
	assert.Equal(t, PriorityQueue, r.LaneFor("t1", tenant.PlanGrowth).Queue)
	assert.Equal(t, PriorityQueue, r.LaneFor("t1", tenant.PlanBusiness).Queue)
}

func TestLaneFor_EnterpriseDedicatedLane(t *testing.T) {
	r := testRouter()

	lane := r.LaneFor("megacorp", tenant.PlanEnterprise)
	assert.Equal(t, "velia-tasks-ent-megacorp", lane.Queue)
	assert.Equal(t, 200, lane.MaxConcurrentActivity)
	assert.Equal(t, 80, lane.MaxConcurrentWorkflow)
}

func TestLaneFor_EnterprisePlanWithoutAllowListEntry(t *testing.T) {
	r := testRouter()

	// No dedicated pool is provisioned implicitly.
	lane := r.LaneFor("newcorp", tenant.PlanEnterprise)
	assert.Equal(t, PriorityQueue, lane.Queue)
}

func TestLaneFor_UnknownPlanFallsBackToShared(t *testing.T) {
	r := testRouter()

	lane := r.LaneFor("t1", tenant.Plan("trial"))
	assert.Equal(t, SharedQueue, lane.Queue)
	assert.Equal(t, 50, lane.MaxConcurrentActivity)
}

func TestLanes_StableOrder(t *testing.T) {
	r := testRouter()

	lanes := r.Lanes()
	queues := make([]string, 0, len(lanes))
	for _, lane := range lanes {
		queues = append(queues, lane.Queue)
	}
	assert.Equal(t, []string{
		SharedQueue,
		PriorityQueue,
		"velia-tasks-ent-bigco",
		"velia-tasks-ent-megacorp",
	}, queues)
}
