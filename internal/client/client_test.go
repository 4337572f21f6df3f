package client

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	sdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.uber.org/zap"

	"github.com/velia-ai/velia/go/orchestrator/internal/config"
	"github.com/velia-ai/velia/go/orchestrator/internal/queues"
	"github.com/velia-ai/velia/go/orchestrator/internal/tenant"
	"github.com/velia-ai/velia/go/orchestrator/internal/workflows"
)

func newTestOrchestrator(t *testing.T, cfg config.WorkflowsConfig) (*Orchestrator, sqlmock.Sqlmock, *mocks.Client) {
	t.Helper()
	rawDB, dbMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })

	resolver := tenant.NewResolver(sqlx.NewDb(rawDB, "sqlmock"), nil, time.Minute, zap.NewNop())
	router := queues.NewRouter(config.QueuesConfig{
		SharedActivitySlots:   50,
		SharedWorkflowSlots:   20,
		PriorityActivitySlots: 100,
		PriorityWorkflowSlots: 40,
	})
	tc := &mocks.Client{}
	return NewOrchestrator(tc, router, resolver, cfg, zap.NewNop()), dbMock, tc
}

func expectTenant(dbMock sqlmock.Sqlmock, tenantID, plan string) {
	dbMock.ExpectQuery(`SELECT phone_number_id, access_token, api_version, plan`).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"phone_number_id", "access_token", "api_version", "plan"}).
			AddRow("1555000111", "token", "v21.0", plan))
}

func TestOrchestrator_StartPayment_DuplicateBecomesAlreadyRunning(t *testing.T) {
	o, dbMock, tc := newTestOrchestrator(t, config.WorkflowsConfig{CheckoutExpiry: 24 * time.Hour})
	expectTenant(dbMock, "acme", "growth")

	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "req-1", "run-1"))

	input := workflows.PaymentInput{
		LeadID:   "11111111-1111-1111-1111-111111111111",
		TenantID: "acme",
		Plan:     "growth",
		Phone:    "+5511999990000",
	}
	id, err := o.StartPayment(context.Background(), input)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	// The id still comes back so the caller can signal the live instance.
	assert.Equal(t, PaymentWorkflowID(input.LeadID, input.Plan), id)
	assert.Contains(t, err.Error(), id)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestOrchestrator_StartDemoBooking_InjectsReminderDefaults(t *testing.T) {
	cfg := config.WorkflowsConfig{
		ReminderOffsets: []time.Duration{24 * time.Hour, time.Hour},
		NoShowGrace:     30 * time.Minute,
	}
	o, dbMock, tc := newTestOrchestrator(t, cfg)
	expectTenant(dbMock, "acme", "starter")

	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("booking-id")

	var gotOpts sdkclient.StartWorkflowOptions
	var gotInput workflows.DemoBookingInput
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotOpts = args.Get(1).(sdkclient.StartWorkflowOptions)
			gotInput = args.Get(3).(workflows.DemoBookingInput)
		}).
		Return(run, nil)

	id, err := o.StartDemoBooking(context.Background(), workflows.DemoBookingInput{
		LeadID:   "11111111-1111-1111-1111-111111111111",
		TenantID: "acme",
		Phone:    "+5511999990000",
	})

	require.NoError(t, err)
	assert.Equal(t, "booking-id", id)

	// Unset reminder settings fall back to the configured values.
	assert.Equal(t, cfg.ReminderOffsets, gotInput.ReminderOffsets)
	assert.Equal(t, cfg.NoShowGrace, gotInput.NoShowGrace)
	assert.Equal(t, cfg.NoShowGrace, gotInput.HoldOpenGrace)

	assert.Equal(t, enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY, gotOpts.WorkflowIDReusePolicy)
	assert.True(t, gotOpts.WorkflowExecutionErrorWhenAlreadyStarted)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestOrchestrator_StartDemoBooking_KeepsExplicitReminderSettings(t *testing.T) {
	cfg := config.WorkflowsConfig{
		ReminderOffsets: []time.Duration{24 * time.Hour, time.Hour},
		NoShowGrace:     30 * time.Minute,
	}
	o, dbMock, tc := newTestOrchestrator(t, cfg)
	expectTenant(dbMock, "acme", "starter")

	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("booking-id")

	var gotInput workflows.DemoBookingInput
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotInput = args.Get(3).(workflows.DemoBookingInput)
		}).
		Return(run, nil)

	offsets := []time.Duration{48 * time.Hour}
	_, err := o.StartDemoBooking(context.Background(), workflows.DemoBookingInput{
		LeadID:          "11111111-1111-1111-1111-111111111111",
		TenantID:        "acme",
		Phone:           "+5511999990000",
		ReminderOffsets: offsets,
		NoShowGrace:     10 * time.Minute,
	})

	require.NoError(t, err)
	assert.Equal(t, offsets, gotInput.ReminderOffsets)
	assert.Equal(t, 10*time.Minute, gotInput.NoShowGrace)
}

func TestOrchestrator_CancelBooking_MissingInstanceIsNotFound(t *testing.T) {
	o, _, tc := newTestOrchestrator(t, config.WorkflowsConfig{})

	tc.On("SignalWorkflow", mock.Anything, "demo-booking-x-1", "", workflows.SignalCancelBooking, mock.Anything).
		Return(serviceerror.NewNotFound("workflow not found"))

	err := o.CancelBooking(context.Background(), "demo-booking-x-1", "lead asked")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}
