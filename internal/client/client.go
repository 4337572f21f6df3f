// Package client is the orchestration surface the agent runtime calls into:
// it starts workflows on the right task queue, signals running instances,
// and inspects their status. Workflow ids are deterministic so the agent
// can address an instance without storing run handles.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	sdkclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/velia-ai/velia/go/orchestrator/internal/config"
	"github.com/velia-ai/velia/go/orchestrator/internal/metrics"
	"github.com/velia-ai/velia/go/orchestrator/internal/queues"
	"github.com/velia-ai/velia/go/orchestrator/internal/tenant"
	"github.com/velia-ai/velia/go/orchestrator/internal/workflows"
)

// ErrAlreadyRunning reports a duplicate start against a live instance. The
// caller already has a workflow doing this work; the id in the error text
// addresses it.
var ErrAlreadyRunning = errors.New("workflow already running")

// ErrNotFound reports a signal or query against an instance that does not
// exist or has already closed.
var ErrNotFound = errors.New("workflow not found")

// Orchestrator starts and addresses workflows for the agent runtime.
type Orchestrator struct {
	temporal sdkclient.Client
	router   *queues.Router
	resolver *tenant.Resolver
	cfg      config.WorkflowsConfig
	logger   *zap.Logger
}

// NewOrchestrator wires the orchestration client.
func NewOrchestrator(tc sdkclient.Client, router *queues.Router, resolver *tenant.Resolver, cfg config.WorkflowsConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		temporal: tc,
		router:   router,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

// queueFor resolves the tenant's plan and picks its lane. An unknown tenant
// is a hard error: workflows for it would fail on every send anyway.
func (o *Orchestrator) queueFor(ctx context.Context, tenantID string) (string, error) {
	_, plan, err := o.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("resolve tenant %s: %w", tenantID, err)
	}
	return o.router.LaneFor(tenantID, plan).Queue, nil
}

// start runs a workflow with duplicate-start rejection and translates the
// already-started error to the package sentinel.
func (o *Orchestrator) start(ctx context.Context, opts sdkclient.StartWorkflowOptions, workflowType string, wf interface{}, input interface{}) (string, error) {
	opts.WorkflowIDReusePolicy = enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY
	opts.WorkflowExecutionErrorWhenAlreadyStarted = true

	run, err := o.temporal.ExecuteWorkflow(ctx, opts, wf, input)
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			metrics.WorkflowStartsRejected.WithLabelValues(workflowType).Inc()
			return opts.ID, fmt.Errorf("%w: %s", ErrAlreadyRunning, opts.ID)
		}
		return "", fmt.Errorf("start %s: %w", workflowType, err)
	}
	metrics.WorkflowsStarted.WithLabelValues(workflowType, opts.TaskQueue).Inc()
	o.logger.Info("workflow started",
		zap.String("workflow_type", workflowType),
		zap.String("workflow_id", run.GetID()),
		zap.String("task_queue", opts.TaskQueue))
	return run.GetID(), nil
}

// StartPayment opens a checkout flow for a lead and plan. At most one flow
// per (lead, plan) can be open at a time.
func (o *Orchestrator) StartPayment(ctx context.Context, input workflows.PaymentInput) (string, error) {
	queue, err := o.queueFor(ctx, input.TenantID)
	if err != nil {
		return "", err
	}
	if input.Expiry <= 0 {
		input.Expiry = o.cfg.CheckoutExpiry
	}
	return o.start(ctx, sdkclient.StartWorkflowOptions{
		ID:        PaymentWorkflowID(input.LeadID, input.Plan),
		TaskQueue: queue,
	}, "PaymentWorkflow", workflows.PaymentWorkflow, input)
}

// StartDemoBooking books a slot for a lead.
func (o *Orchestrator) StartDemoBooking(ctx context.Context, input workflows.DemoBookingInput) (string, error) {
	queue, err := o.queueFor(ctx, input.TenantID)
	if err != nil {
		return "", err
	}
	if len(input.ReminderOffsets) == 0 {
		input.ReminderOffsets = o.cfg.ReminderOffsets
	}
	if input.NoShowGrace <= 0 {
		input.NoShowGrace = o.cfg.NoShowGrace
	}
	if input.HoldOpenGrace <= 0 {
		input.HoldOpenGrace = o.cfg.NoShowGrace
	}
	return o.start(ctx, sdkclient.StartWorkflowOptions{
		ID:        BookingWorkflowID(input.LeadID, input.Slot.Start),
		TaskQueue: queue,
	}, "DemoBookingWorkflow", workflows.DemoBookingWorkflow, input)
}

// StartFollowUp schedules a single future nudge.
func (o *Orchestrator) StartFollowUp(ctx context.Context, input workflows.FollowUpInput) (string, error) {
	queue, err := o.queueFor(ctx, input.TenantID)
	if err != nil {
		return "", err
	}
	return o.start(ctx, sdkclient.StartWorkflowOptions{
		ID:        FollowUpWorkflowID(input.Type, input.LeadID, input.ScheduledFor),
		TaskQueue: queue,
	}, "FollowUpWorkflow", workflows.FollowUpWorkflow, input)
}

// StartReengagement opens the idle-lead nudge. One per lead at a time.
func (o *Orchestrator) StartReengagement(ctx context.Context, input workflows.ReengagementInput) (string, error) {
	queue, err := o.queueFor(ctx, input.TenantID)
	if err != nil {
		return "", err
	}
	if input.Delay <= 0 {
		input.Delay = o.cfg.ColdLeadIdle
	}
	return o.start(ctx, sdkclient.StartWorkflowOptions{
		ID:        ReengagementWorkflowID(input.LeadID),
		TaskQueue: queue,
	}, "ReengagementWorkflow", workflows.ReengagementWorkflow, input)
}

// StartMemoryGeneration summarizes a conversation once.
func (o *Orchestrator) StartMemoryGeneration(ctx context.Context, input workflows.MemoryGenerationInput) (string, error) {
	queue, err := o.queueFor(ctx, input.TenantID)
	if err != nil {
		return "", err
	}
	return o.start(ctx, sdkclient.StartWorkflowOptions{
		ID:        MemoryWorkflowID(input.ConversationID),
		TaskQueue: queue,
	}, "MemoryGenerationWorkflow", workflows.MemoryGenerationWorkflow, input)
}

// StartIntegrationSync pushes one lead to the CRM and ad platform. Syncs
// run on the shared lane regardless of plan: they carry no tenant-visible
// latency.
func (o *Orchestrator) StartIntegrationSync(ctx context.Context, input workflows.IntegrationSyncInput) (string, error) {
	return o.start(ctx, sdkclient.StartWorkflowOptions{
		ID:        IntegrationSyncWorkflowID(input.LeadID, time.Now()),
		TaskQueue: queues.SharedQueue,
	}, "IntegrationSyncWorkflow", workflows.IntegrationSyncWorkflow, input)
}

// StartBulkSync sweeps a tenant's cold leads. At most one sweep per tenant
// per day.
func (o *Orchestrator) StartBulkSync(ctx context.Context, input workflows.BulkSyncInput) (string, error) {
	if input.IdleFor <= 0 {
		input.IdleFor = o.cfg.ColdLeadIdle
	}
	if input.Horizon <= 0 {
		input.Horizon = o.cfg.ColdLeadHorizon
	}
	if input.BatchSize <= 0 {
		input.BatchSize = o.cfg.BulkSyncBatchSize
	}
	return o.start(ctx, sdkclient.StartWorkflowOptions{
		ID:        BulkSyncWorkflowID(input.TenantID, time.Now()),
		TaskQueue: queues.SharedQueue,
	}, "BulkSyncWorkflow", workflows.BulkSyncWorkflow, input)
}

// StartReschedule moves an appointment outside a live booking instance.
func (o *Orchestrator) StartReschedule(ctx context.Context, queueTenantID string, input workflows.RescheduleInput) (string, error) {
	queue, err := o.queueFor(ctx, queueTenantID)
	if err != nil {
		return "", err
	}
	return o.start(ctx, sdkclient.StartWorkflowOptions{
		ID:        RescheduleWorkflowID(input.AppointmentID, time.Now()),
		TaskQueue: queue,
	}, "RescheduleWorkflow", workflows.RescheduleWorkflow, input)
}

// StartCancelBooking cancels an appointment outside a live booking instance.
func (o *Orchestrator) StartCancelBooking(ctx context.Context, queueTenantID string, input workflows.CancelBookingInput) (string, error) {
	queue, err := o.queueFor(ctx, queueTenantID)
	if err != nil {
		return "", err
	}
	return o.start(ctx, sdkclient.StartWorkflowOptions{
		ID:        CancelBookingWorkflowID(input.AppointmentID),
		TaskQueue: queue,
	}, "CancelBookingWorkflow", workflows.CancelBookingWorkflow, input)
}

// signal delivers a signal and translates a missing instance to ErrNotFound.
func (o *Orchestrator) signal(ctx context.Context, workflowID, name string, payload interface{}) error {
	err := o.temporal.SignalWorkflow(ctx, workflowID, "", name, payload)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, workflowID)
		}
		return fmt.Errorf("signal %s to %s: %w", name, workflowID, err)
	}
	metrics.SignalsDelivered.WithLabelValues(name).Inc()
	return nil
}

// NotifyPaymentCompleted forwards the checkout completion webhook to the
// owning payment workflow.
func (o *Orchestrator) NotifyPaymentCompleted(ctx context.Context, leadID, plan string, payload workflows.PaymentCompleted) error {
	return o.signal(ctx, PaymentWorkflowID(leadID, plan), workflows.SignalPaymentCompleted, payload)
}

// CancelPayment abandons an open checkout flow.
func (o *Orchestrator) CancelPayment(ctx context.Context, leadID, plan, reason string) error {
	return o.signal(ctx, PaymentWorkflowID(leadID, plan), workflows.SignalCancelPayment, workflows.CancelRequest{Reason: reason})
}

// CancelBooking asks a live booking instance to cancel.
func (o *Orchestrator) CancelBooking(ctx context.Context, bookingWorkflowID, reason string) error {
	return o.signal(ctx, bookingWorkflowID, workflows.SignalCancelBooking, workflows.CancelRequest{Reason: reason})
}

// RescheduleBooking asks a live booking instance to move to a new slot.
func (o *Orchestrator) RescheduleBooking(ctx context.Context, bookingWorkflowID string, req workflows.RescheduleRequest) error {
	return o.signal(ctx, bookingWorkflowID, workflows.SignalReschedule, req)
}

// CancelFollowUp stops a pending follow-up before it fires.
func (o *Orchestrator) CancelFollowUp(ctx context.Context, followUpWorkflowID, reason string) error {
	return o.signal(ctx, followUpWorkflowID, workflows.SignalCancelFollowUp, workflows.CancelRequest{Reason: reason})
}

// WorkflowStatus is the externally visible state of one instance.
type WorkflowStatus struct {
	WorkflowID string      `json:"workflow_id"`
	RunID      string      `json:"run_id"`
	Status     string      `json:"status"`
	Detail     interface{} `json:"detail,omitempty"`
}

// GetStatus describes an instance and, while it runs, attaches its status
// query result.
func (o *Orchestrator) GetStatus(ctx context.Context, workflowID string) (*WorkflowStatus, error) {
	desc, err := o.temporal.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, workflowID)
		}
		return nil, fmt.Errorf("describe %s: %w", workflowID, err)
	}
	info := desc.GetWorkflowExecutionInfo()
	status := &WorkflowStatus{
		WorkflowID: workflowID,
		RunID:      info.GetExecution().GetRunId(),
		Status:     info.GetStatus().String(),
	}
	if info.GetStatus() == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING {
		resp, err := o.temporal.QueryWorkflow(ctx, workflowID, "", workflows.QueryStatus)
		if err == nil {
			var detail interface{}
			if err := resp.Get(&detail); err == nil {
				status.Detail = detail
			}
		}
	}
	return status, nil
}
