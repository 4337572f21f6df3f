// Package opts centralizes activity options per activity class. Retry
// policies follow the classification in internal/activities: configuration
// errors never retry, transient upstream failures back off exponentially.
package opts

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const errTypeConfig = "ConfigError"

// PersistenceOptions covers store reads and writes.
func PersistenceOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{errTypeConfig},
		},
	}
}

// MessagingOptions covers WhatsApp sends.
func MessagingOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{errTypeConfig},
		},
	}
}

// CalendarOptions covers booking mutations.
func CalendarOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{errTypeConfig},
		},
	}
}

// BillingOptions covers Stripe calls.
func BillingOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{errTypeConfig},
		},
	}
}

// SyncOptions covers CRM, ads, and summary generation.
func SyncOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{errTypeConfig},
		},
	}
}

// WithPersistenceOptions applies PersistenceOptions to a context.
func WithPersistenceOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, PersistenceOptions())
}

// WithMessagingOptions applies MessagingOptions to a context.
func WithMessagingOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, MessagingOptions())
}

// WithCalendarOptions applies CalendarOptions to a context.
func WithCalendarOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, CalendarOptions())
}

// WithBillingOptions applies BillingOptions to a context.
func WithBillingOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, BillingOptions())
}

// WithSyncOptions applies SyncOptions to a context.
func WithSyncOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, SyncOptions())
}
