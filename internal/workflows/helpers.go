package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"
)

// cancelState is shared between a workflow body and its signal watcher.
// The flag is only ever read and written from workflow goroutines, so no
// locking is needed under the replay model.
type cancelState struct {
	Cancelled bool
	Reason    string
}

// watchCancellation drains a cancel signal channel in the background and
// flips the shared flag. Workflow bodies check the flag before every
// side-effecting activity so a cancel lands between steps, not mid-call.
func watchCancellation(ctx workflow.Context, signalName string, st *cancelState) {
	workflow.Go(ctx, func(ctx workflow.Context) {
		ch := workflow.GetSignalChannel(ctx, signalName)
		var req CancelRequest
		ch.Receive(ctx, &req)
		st.Cancelled = true
		st.Reason = req.Reason
	})
}

// waitUntil sleeps in bounded increments so a cancellation observed by the
// watcher goroutine interrupts the wait instead of being noticed only after
// the full delay elapses. Returns false if cancelled before the deadline.
func waitUntil(ctx workflow.Context, target time.Time, st *cancelState) bool {
	for {
		if st.Cancelled {
			return false
		}
		now := workflow.Now(ctx)
		if !now.Before(target) {
			return true
		}
		delay := target.Sub(now)
		ok, err := workflow.AwaitWithTimeout(ctx, delay, func() bool {
			return st.Cancelled
		})
		if err != nil {
			return false
		}
		if ok {
			// Condition fired, meaning cancellation.
			return false
		}
	}
}

// drainCancel checks for a cancel signal already buffered on the channel
// without blocking. Used for the race where a cancel arrives while the
// creating activity is still in flight.
func drainCancel(ctx workflow.Context, signalName string, st *cancelState) {
	ch := workflow.GetSignalChannel(ctx, signalName)
	var req CancelRequest
	for ch.ReceiveAsync(&req) {
		st.Cancelled = true
		st.Reason = req.Reason
	}
}
