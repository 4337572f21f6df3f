// Package queues routes workflows onto concurrency-isolated task queues by
// subscription tier. Each lane is served by an independent worker pool with a
// hard cap on concurrent activity tasks, so one tenant's burst cannot starve
// another lane.
package queues

import (
	"sort"

	"github.com/velia-ai/velia/go/orchestrator/internal/config"
	"github.com/velia-ai/velia/go/orchestrator/internal/tenant"
)

const (
	SharedQueue   = "velia-tasks"
	PriorityQueue = "velia-tasks-priority"

	enterprisePrefix = "velia-tasks-ent-"
)

// Lane is one task queue plus the worker concurrency ceilings that serve it.
type Lane struct {
	Queue                 string
	MaxConcurrentActivity int
	MaxConcurrentWorkflow int
}

// Router maps tenants to lanes. Enterprise tenants come from an allow-list;
// everyone else shares the tier lanes.
type Router struct {
	shared     Lane
	priority   Lane
	enterprise map[string]Lane
}

// NewRouter builds the lane set from configuration. A dedicated lane is
// provisioned per allow-listed enterprise tenant.
func NewRouter(cfg config.QueuesConfig) *Router {
	r := &Router{
		shared: Lane{
			Queue:                 SharedQueue,
			MaxConcurrentActivity: cfg.SharedActivitySlots,
			MaxConcurrentWorkflow: cfg.SharedWorkflowSlots,
		},
		priority: Lane{
			Queue:                 PriorityQueue,
			MaxConcurrentActivity: cfg.PriorityActivitySlots,
			MaxConcurrentWorkflow: cfg.PriorityWorkflowSlots,
		},
		enterprise: make(map[string]Lane, len(cfg.EnterpriseTenants)),
	}
	for _, tenantID := range cfg.EnterpriseTenants {
		r.enterprise[tenantID] = Lane{
			Queue:                 enterprisePrefix + tenantID,
			MaxConcurrentActivity: cfg.EnterpriseActivitySlots,
			MaxConcurrentWorkflow: cfg.EnterpriseWorkflowSlots,
		}
	}
	return r
}

// LaneFor selects the lane for a tenant and plan. An enterprise plan without
// an allow-list entry falls back to the priority lane rather than silently
// provisioning an unbounded dedicated pool.
func (r *Router) LaneFor(tenantID string, plan tenant.Plan) Lane {
	switch plan {
	case tenant.PlanEnterprise:
		if lane, ok := r.enterprise[tenantID]; ok {
			return lane
		}
		return r.priority
	case tenant.PlanGrowth, tenant.PlanBusiness:
		return r.priority
	default:
		return r.shared
	}
}

// Lanes returns every lane the worker process must serve, in stable order.
func (r *Router) Lanes() []Lane {
	lanes := []Lane{r.shared, r.priority}
	keys := make([]string, 0, len(r.enterprise))
	for k := range r.enterprise {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lanes = append(lanes, r.enterprise[k])
	}
	return lanes
}
