package workflows

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/velia-ai/velia/go/orchestrator/internal/activities"
)

type paymentStubs struct {
	checkouts     []activities.CheckoutInput
	expired       []activities.SessionInput
	subscriptions []activities.RecordSubscriptionInput
	stageUpdates  []activities.UpdateLeadStageInput
	sent          []activities.SendTextInput

	customerResult activities.CustomerResult
	checkoutResult activities.CheckoutResult
}

func newPaymentStubs() *paymentStubs {
	return &paymentStubs{
		customerResult: activities.CustomerResult{Success: true, CustomerID: "cus_123"},
		checkoutResult: activities.CheckoutResult{
			Success:     true,
			SessionID:   "cs_test_1",
			CheckoutURL: "https://checkout.example.com/cs_test_1",
			CustomerID:  "cus_123",
		},
	}
}

func (s *paymentStubs) register(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.CustomerInput) (*activities.CustomerResult, error) {
		out := s.customerResult
		return &out, nil
	}, activity.RegisterOptions{Name: activities.ActivityCreateOrGetCustomer})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.CheckoutInput) (*activities.CheckoutResult, error) {
		s.checkouts = append(s.checkouts, input)
		out := s.checkoutResult
		return &out, nil
	}, activity.RegisterOptions{Name: activities.ActivityCreateCheckoutSession})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.SessionInput) (*activities.SyncResult, error) {
		s.expired = append(s.expired, input)
		return &activities.SyncResult{Success: true}, nil
	}, activity.RegisterOptions{Name: activities.ActivityExpireCheckoutSession})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.RecordSubscriptionInput) error {
		s.subscriptions = append(s.subscriptions, input)
		return nil
	}, activity.RegisterOptions{Name: activities.ActivityRecordSubscription})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.UpdateLeadStageInput) error {
		s.stageUpdates = append(s.stageUpdates, input)
		return nil
	}, activity.RegisterOptions{Name: activities.ActivityUpdateLeadStage})

	env.RegisterActivityWithOptions(func(ctx context.Context, input activities.SendTextInput) (*activities.SendResult, error) {
		s.sent = append(s.sent, input)
		return &activities.SendResult{Success: true}, nil
	}, activity.RegisterOptions{Name: activities.ActivitySendText})
}

func paymentInput() PaymentInput {
	return PaymentInput{
		LeadID:   "11111111-1111-1111-1111-111111111111",
		TenantID: "acme",
		Phone:    "+5511999990000",
		Email:    "maria@example.com",
		Name:     "Maria",
		Plan:     "growth",
		Expiry:   24 * time.Hour,
	}
}

func TestPaymentWorkflow_CompletedBeforeExpiry(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newPaymentStubs()
	stubs.register(env)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalPaymentCompleted, PaymentCompleted{
			SessionID:      "cs_test_1",
			SubscriptionID: "sub_42",
		})
	}, 3*time.Hour)

	env.ExecuteWorkflow(PaymentWorkflow, paymentInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PaymentResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, "sub_42", result.SubscriptionID)

	require.Len(t, stubs.subscriptions, 1)
	assert.Equal(t, "sub_42", stubs.subscriptions[0].SubscriptionID)
	require.Len(t, stubs.stageUpdates, 1)
	assert.Equal(t, "won", stubs.stageUpdates[0].Stage)
	assert.Empty(t, stubs.expired)
	// Checkout link plus the welcome message.
	assert.Len(t, stubs.sent, 2)
}

func TestPaymentWorkflow_ExpiresUnpaid(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newPaymentStubs()
	stubs.register(env)

	env.ExecuteWorkflow(PaymentWorkflow, paymentInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PaymentResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "expired", result.Status)
	assert.Equal(t, "cs_test_1", result.SessionID)

	// The open session is expired so the stale link cannot be paid.
	require.Len(t, stubs.expired, 1)
	assert.Equal(t, "cs_test_1", stubs.expired[0].SessionID)
	assert.Empty(t, stubs.subscriptions)
	// Link, midway reminder, expiry notice.
	assert.Len(t, stubs.sent, 3)
	// Expiry never moves the funnel; the agent owns the stage here.
	assert.Empty(t, stubs.stageUpdates)
}

func TestPaymentWorkflow_CompletedAfterReminder(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newPaymentStubs()
	stubs.register(env)

	// Signal lands after the halfway reminder but before expiry.
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalPaymentCompleted, PaymentCompleted{
			SessionID:      "cs_test_1",
			SubscriptionID: "sub_42",
		})
	}, 18*time.Hour)

	env.ExecuteWorkflow(PaymentWorkflow, paymentInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PaymentResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Status)
	// Link, reminder, welcome.
	assert.Len(t, stubs.sent, 3)
	assert.Empty(t, stubs.expired)
}

func TestPaymentWorkflow_Cancelled(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newPaymentStubs()
	stubs.register(env)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCancelPayment, CancelRequest{Reason: "lead chose another plan"})
	}, 2*time.Hour)

	env.ExecuteWorkflow(PaymentWorkflow, paymentInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PaymentResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "cancelled", result.Status)
	// Abandoning the flow also expires the open session.
	require.Len(t, stubs.expired, 1)
	assert.Empty(t, stubs.subscriptions)
	assert.Empty(t, stubs.stageUpdates)
}

func TestPaymentWorkflow_NoEmailFails(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newPaymentStubs()
	stubs.customerResult = activities.CustomerResult{Success: false, Error: "lead has no email"}
	stubs.register(env)

	env.ExecuteWorkflow(PaymentWorkflow, paymentInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PaymentResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "lead has no email", result.Error)
	assert.Empty(t, stubs.checkouts)
	assert.Empty(t, stubs.sent)
}

func TestPaymentWorkflow_StatusQuery(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	stubs := newPaymentStubs()
	stubs.register(env)

	env.RegisterDelayedCallback(func() {
		val, err := env.QueryWorkflow(QueryStatus)
		require.NoError(t, err)
		var state PaymentState
		require.NoError(t, val.Get(&state))
		assert.Equal(t, "awaiting_payment", state.Status)
		assert.Equal(t, "cs_test_1", state.SessionID)

		env.SignalWorkflow(SignalPaymentCompleted, PaymentCompleted{SessionID: "cs_test_1", SubscriptionID: "sub_42"})
	}, time.Hour)

	env.ExecuteWorkflow(PaymentWorkflow, paymentInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}
