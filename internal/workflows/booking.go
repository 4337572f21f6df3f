package workflows

import (
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/workflow"

	"github.com/velia-ai/velia/go/orchestrator/internal/activities"
	"github.com/velia-ai/velia/go/orchestrator/internal/workflows/opts"
)

// DemoBookingWorkflow books a calendar slot, persists the appointment, and
// then stays open until the slot has passed so reschedule and cancel signals
// land on a live instance. Reminder scheduling runs as an abandoned child so
// it survives this workflow completing.
func DemoBookingWorkflow(ctx workflow.Context, input DemoBookingInput) (*DemoBookingResult, error) {
	logger := workflow.GetLogger(ctx)
	info := workflow.GetInfo(ctx)

	state := &BookingState{ScheduledAt: input.Slot.Start}
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (*BookingState, error) {
		return state, nil
	}); err != nil {
		return nil, err
	}

	grace := input.HoldOpenGrace
	if grace <= 0 {
		grace = 30 * time.Minute
	}

	cancelCh := workflow.GetSignalChannel(ctx, SignalCancelBooking)
	reschedCh := workflow.GetSignalChannel(ctx, SignalReschedule)

	// A cancel can arrive before the event exists. Nothing to undo then.
	var cancelReq CancelRequest
	if cancelCh.ReceiveAsync(&cancelReq) {
		state.Cancelled = true
		return &DemoBookingResult{Status: "cancelled"}, nil
	}

	cctx := opts.WithCalendarOptions(ctx)
	pctx := opts.WithPersistenceOptions(ctx)
	mctx := opts.WithMessagingOptions(ctx)

	var booked activities.BookingResult
	err := workflow.ExecuteActivity(cctx, activities.ActivityCreateEvent, activities.CreateEventInput{
		LeadID:     input.LeadID,
		Name:       input.Name,
		Email:      input.Email,
		Phone:      input.Phone,
		Slot:       input.Slot,
		WorkflowID: info.WorkflowExecution.ID,
	}).Get(ctx, &booked)
	if err != nil {
		return nil, err
	}
	if !booked.Success {
		logger.Info("slot rejected by calendar", "lead_id", input.LeadID, "slot", input.Slot.Start, "error", booked.Error)
		return &DemoBookingResult{Status: "slot_unavailable"}, nil
	}
	state.EventID = booked.EventID
	if !booked.Start.IsZero() {
		state.ScheduledAt = booked.Start
	}

	// A cancel that raced the create leaves a booked event to tear down.
	if cancelCh.ReceiveAsync(&cancelReq) {
		state.Cancelled = true
		_ = workflow.ExecuteActivity(cctx, activities.ActivityCancelEvent, activities.EventMutationInput{
			EventID: state.EventID,
			Reason:  cancelReq.Reason,
		}).Get(ctx, nil)
		return &DemoBookingResult{Status: "cancelled", EventID: state.EventID}, nil
	}

	var appt activities.CreateAppointmentResult
	err = workflow.ExecuteActivity(pctx, activities.ActivityCreateAppointment, activities.CreateAppointmentInput{
		LeadID:      input.LeadID,
		TenantID:    input.TenantID,
		EventID:     state.EventID,
		ScheduledAt: state.ScheduledAt,
	}).Get(ctx, &appt)
	if err != nil {
		return nil, err
	}
	if appt.Conflict {
		// The lead already has a scheduled appointment. Release the slot.
		logger.Info("appointment conflict, releasing event", "lead_id", input.LeadID, "event_id", state.EventID)
		_ = workflow.ExecuteActivity(cctx, activities.ActivityCancelEvent, activities.EventMutationInput{
			EventID: state.EventID,
			Reason:  "duplicate booking",
		}).Get(ctx, nil)
		return &DemoBookingResult{Status: "conflict", EventID: state.EventID}, nil
	}
	state.AppointmentID = appt.AppointmentID

	err = workflow.ExecuteActivity(pctx, activities.ActivityUpdateLeadStage, activities.UpdateLeadStageInput{
		LeadID: input.LeadID,
		Stage:  "demo_scheduled",
	}).Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	if err := startReminders(ctx, input, state); err != nil {
		return nil, err
	}

	var sent activities.SendResult
	err = workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
		MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
		Body:          bookingConfirmationBody(input.Name, state.ScheduledAt),
	}).Get(ctx, &sent)
	if err != nil {
		return nil, err
	}

	for {
		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		remaining := state.ScheduledAt.Add(grace).Sub(workflow.Now(ctx))
		timer := workflow.NewTimer(timerCtx, remaining)

		var (
			passed      bool
			cancelled   bool
			rescheduled bool
			reschedReq  RescheduleRequest
		)
		sel := workflow.NewSelector(ctx)
		sel.AddReceive(cancelCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, &cancelReq)
			cancelled = true
		})
		sel.AddReceive(reschedCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, &reschedReq)
			rescheduled = true
		})
		sel.AddFuture(timer, func(workflow.Future) {
			passed = true
		})
		sel.Select(ctx)
		cancelTimer()

		switch {
		case cancelled:
			state.Cancelled = true
			return cancelBooking(ctx, input, state, cancelReq.Reason)

		case rescheduled:
			moved, err := rescheduleBooking(ctx, input, state, reschedReq)
			if err != nil {
				return nil, err
			}
			if !moved {
				continue
			}
			if err := startReminders(ctx, input, state); err != nil {
				return nil, err
			}
			err = workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
				MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
				Body:          bookingConfirmationBody(input.Name, state.ScheduledAt),
			}).Get(ctx, nil)
			if err != nil {
				return nil, err
			}

		case passed:
			state.Completed = true
			return &DemoBookingResult{
				Status:        "completed",
				AppointmentID: state.AppointmentID,
				EventID:       state.EventID,
				ScheduledAt:   state.ScheduledAt,
				Reschedules:   state.Reschedules,
			}, nil
		}
	}
}

// remindersWorkflowID derives the reminder child id. Rescheduling starts a
// fresh sequence, so its id carries the revision to stay unique.
func remindersWorkflowID(appointmentID string, revision int) string {
	if revision == 0 {
		return "demo-reminders-" + appointmentID
	}
	return fmt.Sprintf("demo-reminders-%s-r%d", appointmentID, revision)
}

func startReminders(ctx workflow.Context, input DemoBookingInput, state *BookingState) error {
	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID:            remindersWorkflowID(state.AppointmentID, state.Reschedules),
		ParentClosePolicy:     enumspb.PARENT_CLOSE_POLICY_ABANDON,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
	})
	future := workflow.ExecuteChildWorkflow(childCtx, DemoRemindersWorkflow, DemoRemindersInput{
		LeadID:         input.LeadID,
		AppointmentID:  state.AppointmentID,
		TenantID:       input.TenantID,
		ConversationID: input.ConversationID,
		Phone:          input.Phone,
		LeadName:       input.Name,
		ScheduledAt:    state.ScheduledAt,
		Offsets:        input.ReminderOffsets,
		NoShowGrace:    input.NoShowGrace,
	})
	// Wait for the child to be scheduled so abandonment cannot lose it.
	return future.GetChildWorkflowExecution().Get(ctx, nil)
}

func rescheduleBooking(ctx workflow.Context, input DemoBookingInput, state *BookingState, req RescheduleRequest) (bool, error) {
	logger := workflow.GetLogger(ctx)
	cctx := opts.WithCalendarOptions(ctx)
	pctx := opts.WithPersistenceOptions(ctx)
	mctx := opts.WithMessagingOptions(ctx)

	var moved activities.BookingResult
	err := workflow.ExecuteActivity(cctx, activities.ActivityRescheduleEvent, activities.EventMutationInput{
		EventID: state.EventID,
		NewTime: req.NewSlot.Start,
		Reason:  req.Reason,
	}).Get(ctx, &moved)
	if err != nil {
		return false, err
	}
	if !moved.Success {
		// The requested slot is gone. Keep the existing booking and tell
		// the lead to pick another time.
		logger.Info("reschedule rejected", "event_id", state.EventID, "error", moved.Error)
		err = workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
			MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
			Body:          "That time is no longer available. Your current booking still stands. Reply with another time and we'll try again.",
		}).Get(ctx, nil)
		return false, err
	}

	newStart := req.NewSlot.Start
	if !moved.Start.IsZero() {
		newStart = moved.Start
	}
	err = workflow.ExecuteActivity(pctx, activities.ActivityRescheduleAppointment, activities.RescheduleAppointmentInput{
		AppointmentID: state.AppointmentID,
		ScheduledAt:   newStart,
	}).Get(ctx, nil)
	if err != nil {
		return false, err
	}

	// Stop the reminder sequence built around the old time.
	signalRemindersCancel(ctx, state, "rescheduled")

	state.ScheduledAt = newStart
	state.Reschedules++
	return true, nil
}

func cancelBooking(ctx workflow.Context, input DemoBookingInput, state *BookingState, reason string) (*DemoBookingResult, error) {
	cctx := opts.WithCalendarOptions(ctx)
	pctx := opts.WithPersistenceOptions(ctx)
	mctx := opts.WithMessagingOptions(ctx)

	err := workflow.ExecuteActivity(cctx, activities.ActivityCancelEvent, activities.EventMutationInput{
		EventID: state.EventID,
		Reason:  reason,
	}).Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	var closed activities.CloseAppointmentResult
	err = workflow.ExecuteActivity(pctx, activities.ActivityCloseAppointment, activities.CloseAppointmentInput{
		AppointmentID: state.AppointmentID,
		Status:        "cancelled",
	}).Get(ctx, &closed)
	if err != nil {
		return nil, err
	}

	var comp activities.CancelFollowUpsResult
	err = workflow.ExecuteActivity(pctx, activities.ActivityCancelAppointmentFollowUps, activities.CancelFollowUpsInput{
		AppointmentID: state.AppointmentID,
		Reason:        "booking cancelled",
	}).Get(ctx, &comp)
	if err != nil {
		return nil, err
	}
	signalRemindersCancel(ctx, state, "booking cancelled")

	err = workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
		MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
		Body:          "Your demo has been cancelled. Whenever you're ready, just reply here to pick a new time.",
	}).Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &DemoBookingResult{
		Status:        "cancelled",
		AppointmentID: state.AppointmentID,
		EventID:       state.EventID,
		Reschedules:   state.Reschedules,
	}, nil
}

// signalRemindersCancel tells the current reminder child to stop. A child
// that already finished is not an error.
func signalRemindersCancel(ctx workflow.Context, state *BookingState, reason string) {
	logger := workflow.GetLogger(ctx)
	id := remindersWorkflowID(state.AppointmentID, state.Reschedules)
	err := workflow.SignalExternalWorkflow(ctx, id, "", SignalCancelFollowUp, CancelRequest{Reason: reason}).
		Get(ctx, nil)
	if err != nil {
		logger.Info("reminder workflow not signalable", "workflow_id", id, "error", err)
	}
}

func bookingConfirmationBody(name string, at time.Time) string {
	greeting := "Hi"
	if name != "" {
		greeting = "Hi " + name
	}
	return fmt.Sprintf("%s! Your demo is confirmed for %s. We'll send you a reminder before it starts.",
		greeting, at.Format("Monday, Jan 2 at 15:04"))
}

// RescheduleWorkflow moves an appointment that no live booking instance is
// holding. It is the fallback path driven directly by the agent.
func RescheduleWorkflow(ctx workflow.Context, input RescheduleInput) (*RescheduleResult, error) {
	cctx := opts.WithCalendarOptions(ctx)
	pctx := opts.WithPersistenceOptions(ctx)

	var moved activities.BookingResult
	err := workflow.ExecuteActivity(cctx, activities.ActivityRescheduleEvent, activities.EventMutationInput{
		EventID: input.EventID,
		NewTime: input.NewSlot.Start,
	}).Get(ctx, &moved)
	if err != nil {
		return nil, err
	}
	if !moved.Success {
		return &RescheduleResult{Status: "slot_unavailable"}, nil
	}

	newStart := input.NewSlot.Start
	if !moved.Start.IsZero() {
		newStart = moved.Start
	}
	err = workflow.ExecuteActivity(pctx, activities.ActivityRescheduleAppointment, activities.RescheduleAppointmentInput{
		AppointmentID: input.AppointmentID,
		ScheduledAt:   newStart,
	}).Get(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &RescheduleResult{Status: "rescheduled", ScheduledAt: newStart}, nil
}

// CancelBookingWorkflow cancels an appointment that no live booking
// instance is holding, compensating its pending follow-ups.
func CancelBookingWorkflow(ctx workflow.Context, input CancelBookingInput) (*CancelBookingResult, error) {
	cctx := opts.WithCalendarOptions(ctx)
	pctx := opts.WithPersistenceOptions(ctx)

	err := workflow.ExecuteActivity(cctx, activities.ActivityCancelEvent, activities.EventMutationInput{
		EventID: input.EventID,
		Reason:  input.Reason,
	}).Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	var closed activities.CloseAppointmentResult
	err = workflow.ExecuteActivity(pctx, activities.ActivityCloseAppointment, activities.CloseAppointmentInput{
		AppointmentID: input.AppointmentID,
		Status:        "cancelled",
	}).Get(ctx, &closed)
	if err != nil {
		return nil, err
	}

	var comp activities.CancelFollowUpsResult
	err = workflow.ExecuteActivity(pctx, activities.ActivityCancelAppointmentFollowUps, activities.CancelFollowUpsInput{
		AppointmentID: input.AppointmentID,
		Reason:        input.Reason,
	}).Get(ctx, &comp)
	if err != nil {
		return nil, err
	}

	status := "cancelled"
	if !closed.Closed {
		status = "already_closed"
	}
	return &CancelBookingResult{Status: status, FollowUpsCancelled: comp.RecordsCancelled}, nil
}
