package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/velia-ai/velia/go/orchestrator/internal/activities"
	"github.com/velia-ai/velia/go/orchestrator/internal/workflows/opts"
)

// PaymentWorkflow creates a checkout session, delivers the link, and races
// the completion webhook against the expiry clock. One instance exists per
// (lead, plan); the id policy rejects a second start while one is open.
func PaymentWorkflow(ctx workflow.Context, input PaymentInput) (*PaymentResult, error) {
	logger := workflow.GetLogger(ctx)
	info := workflow.GetInfo(ctx)

	state := &PaymentState{Status: "created"}
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (*PaymentState, error) {
		return state, nil
	}); err != nil {
		return nil, err
	}

	expiry := input.Expiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	completedCh := workflow.GetSignalChannel(ctx, SignalPaymentCompleted)
	cancelCh := workflow.GetSignalChannel(ctx, SignalCancelPayment)

	var cancelReq CancelRequest
	if cancelCh.ReceiveAsync(&cancelReq) {
		state.Status = "cancelled"
		return &PaymentResult{Status: "cancelled"}, nil
	}

	bctx := opts.WithBillingOptions(ctx)
	mctx := opts.WithMessagingOptions(ctx)

	var customer activities.CustomerResult
	err := workflow.ExecuteActivity(bctx, activities.ActivityCreateOrGetCustomer, activities.CustomerInput{
		LeadID: input.LeadID,
		Email:  input.Email,
		Name:   input.Name,
		Phone:  input.Phone,
	}).Get(ctx, &customer)
	if err != nil {
		return nil, err
	}
	if !customer.Success {
		state.Status = "failed"
		return &PaymentResult{Status: "failed", Error: customer.Error}, nil
	}

	var checkout activities.CheckoutResult
	err = workflow.ExecuteActivity(bctx, activities.ActivityCreateCheckoutSession, activities.CheckoutInput{
		LeadID:     input.LeadID,
		Plan:       input.Plan,
		CustomerID: customer.CustomerID,
		WorkflowID: info.WorkflowExecution.ID,
		ExpiresIn:  expiry,
	}).Get(ctx, &checkout)
	if err != nil {
		return nil, err
	}
	if !checkout.Success {
		state.Status = "failed"
		logger.Warn("checkout session rejected", "lead_id", input.LeadID, "error", checkout.Error)
		return &PaymentResult{Status: "failed", Error: checkout.Error}, nil
	}
	state.Status = "awaiting_payment"
	state.SessionID = checkout.SessionID

	var sent activities.SendResult
	err = workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
		MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
		Body:          checkoutLinkBody(input.Name, input.Plan, checkout.CheckoutURL),
	}).Get(ctx, &sent)
	if err != nil {
		return nil, err
	}

	startedAt := workflow.Now(ctx)
	reminderAt := startedAt.Add(expiry / 2)
	expiresAt := startedAt.Add(expiry)
	reminderSent := false

	for {
		deadline := expiresAt
		if !reminderSent && reminderAt.Before(expiresAt) {
			deadline = reminderAt
		}

		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		timer := workflow.NewTimer(timerCtx, deadline.Sub(workflow.Now(ctx)))

		var (
			completed    PaymentCompleted
			gotCompleted bool
			gotCancel    bool
			timerFired   bool
		)
		sel := workflow.NewSelector(ctx)
		sel.AddReceive(completedCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, &completed)
			gotCompleted = true
		})
		sel.AddReceive(cancelCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, &cancelReq)
			gotCancel = true
		})
		sel.AddFuture(timer, func(workflow.Future) {
			timerFired = true
		})
		sel.Select(ctx)
		cancelTimer()

		switch {
		case gotCompleted:
			return finishPayment(ctx, input, state, completed)

		case gotCancel:
			state.Status = "cancelled"
			_ = workflow.ExecuteActivity(bctx, activities.ActivityExpireCheckoutSession, activities.SessionInput{
				SessionID: state.SessionID,
			}).Get(ctx, nil)
			return &PaymentResult{Status: "cancelled", SessionID: state.SessionID}, nil

		case timerFired && !reminderSent && deadline.Equal(reminderAt):
			reminderSent = true
			err = workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
				MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
				Body:          "Just a reminder: your payment link is still open. Let us know if you have any questions!",
			}).Get(ctx, nil)
			if err != nil {
				return nil, err
			}

		case timerFired:
			state.Status = "expired"
			err = workflow.ExecuteActivity(bctx, activities.ActivityExpireCheckoutSession, activities.SessionInput{
				SessionID: state.SessionID,
			}).Get(ctx, nil)
			if err != nil {
				return nil, err
			}
			// A webhook that raced the expiry is still honored.
			if completedCh.ReceiveAsync(&completed) {
				return finishPayment(ctx, input, state, completed)
			}
			err = workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
				MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
				Body:          "Your payment link has expired. Reply here whenever you're ready and we'll send a fresh one.",
			}).Get(ctx, nil)
			if err != nil {
				return nil, err
			}
			// The lead stage stays where the agent left it; only the state
			// and the expiry metric record the failed attempt.
			return &PaymentResult{Status: "expired", SessionID: state.SessionID}, nil
		}
	}
}

func finishPayment(ctx workflow.Context, input PaymentInput, state *PaymentState, completed PaymentCompleted) (*PaymentResult, error) {
	pctx := opts.WithPersistenceOptions(ctx)
	mctx := opts.WithMessagingOptions(ctx)

	state.Status = "completed"
	state.SubscriptionID = completed.SubscriptionID

	if completed.SubscriptionID != "" {
		err := workflow.ExecuteActivity(pctx, activities.ActivityRecordSubscription, activities.RecordSubscriptionInput{
			LeadID:         input.LeadID,
			SubscriptionID: completed.SubscriptionID,
		}).Get(ctx, nil)
		if err != nil {
			return nil, err
		}
	}
	err := workflow.ExecuteActivity(pctx, activities.ActivityUpdateLeadStage, activities.UpdateLeadStageInput{
		LeadID: input.LeadID,
		Stage:  "won",
	}).Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	err = workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
		MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
		Body:          fmt.Sprintf("Payment received, welcome aboard! Your %s plan is now active.", input.Plan),
	}).Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &PaymentResult{
		Status:         "completed",
		SessionID:      state.SessionID,
		SubscriptionID: completed.SubscriptionID,
	}, nil
}

func checkoutLinkBody(name, plan, url string) string {
	greeting := "Hi"
	if name != "" {
		greeting = "Hi " + name
	}
	return fmt.Sprintf("%s! Here's your secure checkout link for the %s plan: %s", greeting, plan, url)
}
