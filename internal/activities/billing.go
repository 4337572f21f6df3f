package activities

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v79"
	stripeclient "github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"github.com/velia-ai/velia/go/orchestrator/internal/config"
	"github.com/velia-ai/velia/go/orchestrator/internal/metrics"
)

// BillingActivities wraps Stripe. Retries are safe: customer creation is
// get-or-create by email and checkout creation reuses the workflow id as the
// idempotency key, so a retried activity never issues a second session.
type BillingActivities struct {
	api        *stripeclient.API
	priceIDs   map[string]string
	successURL string
	cancelURL  string
	portalURL  string
	logger     *zap.Logger
}

// NewBillingActivities creates the billing activity set.
func NewBillingActivities(cfg config.BillingConfig, logger *zap.Logger) *BillingActivities {
	api := &stripeclient.API{}
	api.Init(cfg.APIKey, nil)
	return &BillingActivities{
		api:        api,
		priceIDs:   cfg.PriceIDs,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		portalURL:  cfg.PortalURL,
		logger:     logger,
	}
}

// classifyStripeError maps a Stripe failure onto the error taxonomy: 5xx/429
// stay retryable, everything else is an expected rejection the caller
// branches on.
func classifyStripeError(err error) (business string, retryable error) {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		if retryableStatus(sErr.HTTPStatusCode) {
			return "", upstreamError("stripe", err)
		}
		return sErr.Msg, nil
	}
	// Transport-level failure.
	return "", upstreamError("stripe", err)
}

// CustomerInput identifies or creates a Stripe customer by email.
type CustomerInput struct {
	LeadID string `json:"lead_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// CustomerResult is the outcome of CreateOrGetCustomer.
type CustomerResult struct {
	Success    bool   `json:"success"`
	CustomerID string `json:"customer_id,omitempty"`
	Created    bool   `json:"created,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CreateOrGetCustomer searches by email before creating, so retries and
// repeat checkouts never produce duplicate customer records.
func (b *BillingActivities) CreateOrGetCustomer(ctx context.Context, input CustomerInput) (*CustomerResult, error) {
	if input.Email == "" {
		return &CustomerResult{Success: false, Error: "lead has no email"}, nil
	}

	listParams := &stripe.CustomerListParams{Email: stripe.String(input.Email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)
	it := b.api.Customers.List(listParams)
	if it.Next() {
		metrics.ThirdPartyCalls.WithLabelValues("stripe", "ok").Inc()
		return &CustomerResult{Success: true, CustomerID: it.Customer().ID}, nil
	}
	if err := it.Err(); err != nil {
		msg, retry := classifyStripeError(err)
		if retry != nil {
			return nil, retry
		}
		return &CustomerResult{Success: false, Error: msg}, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(input.Email),
	}
	params.Context = ctx
	if input.Name != "" {
		params.Name = stripe.String(input.Name)
	}
	if input.Phone != "" {
		params.Phone = stripe.String(input.Phone)
	}
	params.AddMetadata("lead_id", input.LeadID)

	cust, err := b.api.Customers.New(params)
	if err != nil {
		msg, retry := classifyStripeError(err)
		if retry != nil {
			return nil, retry
		}
		return &CustomerResult{Success: false, Error: msg}, nil
	}
	metrics.ThirdPartyCalls.WithLabelValues("stripe", "ok").Inc()
	return &CustomerResult{Success: true, CustomerID: cust.ID, Created: true}, nil
}

// CheckoutInput creates a subscription checkout session for a lead and plan.
type CheckoutInput struct {
	LeadID     string        `json:"lead_id"`
	Plan       string        `json:"plan"`
	CustomerID string        `json:"customer_id"`
	WorkflowID string        `json:"workflow_id"`
	ExpiresIn  time.Duration `json:"expires_in,omitempty"`
}

// CreateCheckoutSession embeds {lead_id, plan} in the session metadata so the
// completion webhook correlates back to the lead without a lookup table, and
// keys the request on the workflow id so retries reuse the same session.
func (b *BillingActivities) CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	priceID, ok := b.priceIDs[input.Plan]
	if !ok || priceID == "" {
		return nil, configError("no price id configured for plan %q", input.Plan)
	}
	if b.successURL == "" || b.cancelURL == "" {
		return nil, configError("billing success/cancel URLs not configured")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(input.CustomerID),
		SuccessURL: stripe.String(b.successURL),
		CancelURL:  stripe.String(b.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
	}
	params.Context = ctx
	// Stripe accepts checkout expiry between 30 minutes and 24 hours.
	if input.ExpiresIn >= 30*time.Minute && input.ExpiresIn <= 24*time.Hour {
		params.ExpiresAt = stripe.Int64(time.Now().Add(input.ExpiresIn).Unix())
	}
	params.AddMetadata("lead_id", input.LeadID)
	params.AddMetadata("plan", input.Plan)
	params.AddMetadata("workflow_id", input.WorkflowID)
	if input.WorkflowID != "" {
		params.SetIdempotencyKey(input.WorkflowID + "-checkout")
	}

	sess, err := b.api.CheckoutSessions.New(params)
	if err != nil {
		msg, retry := classifyStripeError(err)
		if retry != nil {
			return nil, retry
		}
		return &CheckoutResult{Success: false, Error: msg}, nil
	}

	metrics.CheckoutSessionsCreated.Inc()
	return &CheckoutResult{
		Success:     true,
		SessionID:   sess.ID,
		CheckoutURL: sess.URL,
		CustomerID:  input.CustomerID,
	}, nil
}

// SessionInput keys a session mutation.
type SessionInput struct {
	SessionID string `json:"session_id"`
}

// ExpireCheckoutSession expires an open session so an abandoned link cannot
// be paid after the workflow has given up on it.
func (b *BillingActivities) ExpireCheckoutSession(ctx context.Context, input SessionInput) (*SyncResult, error) {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := b.api.CheckoutSessions.Expire(input.SessionID, params); err != nil {
		msg, retry := classifyStripeError(err)
		if retry != nil {
			return nil, retry
		}
		// Already completed or expired: nothing left to do.
		return &SyncResult{Success: true, Error: msg}, nil
	}
	metrics.PaymentsExpired.Inc()
	return &SyncResult{Success: true}, nil
}

// CancelSubscriptionInput cancels immediately or at period end.
type CancelSubscriptionInput struct {
	SubscriptionID string `json:"subscription_id"`
	AtPeriodEnd    bool   `json:"at_period_end"`
}

// CancelSubscription cancels a subscription.
func (b *BillingActivities) CancelSubscription(ctx context.Context, input CancelSubscriptionInput) (*SyncResult, error) {
	var err error
	if input.AtPeriodEnd {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		params.Context = ctx
		_, err = b.api.Subscriptions.Update(input.SubscriptionID, params)
	} else {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		_, err = b.api.Subscriptions.Cancel(input.SubscriptionID, params)
	}
	if err != nil {
		msg, retry := classifyStripeError(err)
		if retry != nil {
			return nil, retry
		}
		return &SyncResult{Success: false, Error: msg}, nil
	}
	return &SyncResult{Success: true}, nil
}

// PortalInput creates a billing portal session for a customer.
type PortalInput struct {
	CustomerID string `json:"customer_id"`
}

// PortalResult carries the portal URL.
type PortalResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreatePortalSession creates a billing-portal session.
func (b *BillingActivities) CreatePortalSession(ctx context.Context, input PortalInput) (*PortalResult, error) {
	if b.portalURL == "" {
		return nil, configError("billing portal return URL not configured")
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(input.CustomerID),
		ReturnURL: stripe.String(b.portalURL),
	}
	params.Context = ctx
	sess, err := b.api.BillingPortalSessions.New(params)
	if err != nil {
		msg, retry := classifyStripeError(err)
		if retry != nil {
			return nil, retry
		}
		return &PortalResult{Success: false, Error: msg}, nil
	}
	return &PortalResult{Success: true, URL: sess.URL}, nil
}
