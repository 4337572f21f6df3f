package workflows

import (
	"fmt"
	"sort"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/velia-ai/velia/go/orchestrator/internal/activities"
	"github.com/velia-ai/velia/go/orchestrator/internal/workflows/opts"
)

// FollowUpWorkflow persists a follow-up record, sleeps until its due time,
// then sends the message. A cancel signal observed before the send wins; a
// cancel after the send only affects the record if the sent transition lost
// the race, which cannot happen because the transition is guarded on pending.
func FollowUpWorkflow(ctx workflow.Context, input FollowUpInput) (*FollowUpResult, error) {
	logger := workflow.GetLogger(ctx)
	info := workflow.GetInfo(ctx)

	st := &cancelState{}
	watchCancellation(ctx, SignalCancelFollowUp, st)
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (*cancelState, error) {
		return st, nil
	}); err != nil {
		return nil, err
	}

	pctx := opts.WithPersistenceOptions(ctx)

	var created activities.CreateFollowUpResult
	err := workflow.ExecuteActivity(pctx, activities.ActivityCreateFollowUpRecord, activities.CreateFollowUpInput{
		LeadID:        input.LeadID,
		AppointmentID: input.AppointmentID,
		TenantID:      input.TenantID,
		Type:          input.Type,
		ScheduledFor:  input.ScheduledFor,
		WorkflowID:    info.WorkflowExecution.ID,
	}).Get(ctx, &created)
	if err != nil {
		return nil, err
	}

	if !waitUntil(ctx, input.ScheduledFor, st) {
		return cancelFollowUpRecord(pctx, created.FollowUpID, logger)
	}
	drainCancel(ctx, SignalCancelFollowUp, st)
	if st.Cancelled {
		return cancelFollowUpRecord(pctx, created.FollowUpID, logger)
	}

	mctx := opts.WithMessagingOptions(ctx)
	var sent activities.SendResult
	err = workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
		MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
		Body:          input.Message,
	}).Get(ctx, &sent)
	if err != nil {
		return nil, err
	}
	if !sent.Success {
		logger.Warn("follow-up message rejected", "lead_id", input.LeadID, "error", sent.Error)
		_, _ = cancelFollowUpRecord(pctx, created.FollowUpID, logger)
		return &FollowUpResult{FollowUpID: created.FollowUpID, Status: "rejected"}, nil
	}

	var transition activities.TransitionFollowUpResult
	err = workflow.ExecuteActivity(pctx, activities.ActivityTransitionFollowUp, activities.TransitionFollowUpInput{
		FollowUpID: created.FollowUpID,
		Status:     "sent",
	}).Get(ctx, &transition)
	if err != nil {
		return nil, err
	}

	if input.ConversationID != "" {
		_ = workflow.ExecuteActivity(pctx, activities.ActivitySaveOutboundMessage, activities.SaveOutboundMessageInput{
			LeadID:         input.LeadID,
			TenantID:       input.TenantID,
			ConversationID: input.ConversationID,
			Body:           input.Message,
			WAMessageID:    sent.MessageID,
		}).Get(ctx, nil)
	}

	return &FollowUpResult{FollowUpID: created.FollowUpID, Status: "sent"}, nil
}

func cancelFollowUpRecord(pctx workflow.Context, followUpID string, logger interface{ Warn(string, ...interface{}) }) (*FollowUpResult, error) {
	var transition activities.TransitionFollowUpResult
	err := workflow.ExecuteActivity(pctx, activities.ActivityTransitionFollowUp, activities.TransitionFollowUpInput{
		FollowUpID: followUpID,
		Status:     "cancelled",
	}).Get(pctx, &transition)
	if err != nil {
		logger.Warn("failed to cancel follow-up record", "follow_up_id", followUpID, "error", err)
		return &FollowUpResult{FollowUpID: followUpID, Status: "cancelled"}, nil
	}
	return &FollowUpResult{FollowUpID: followUpID, Status: "cancelled"}, nil
}

// DemoRemindersWorkflow sends the reminder sequence for an appointment,
// then resolves its outcome once the slot plus grace has passed. Booking
// compensation cancels the whole sequence with one signal.
func DemoRemindersWorkflow(ctx workflow.Context, input DemoRemindersInput) (*DemoRemindersResult, error) {
	logger := workflow.GetLogger(ctx)

	offsets := input.Offsets
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour, time.Hour}
	}
	// Largest offset fires first.
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] > offsets[j] })
	grace := input.NoShowGrace
	if grace <= 0 {
		grace = 30 * time.Minute
	}

	st := &cancelState{}
	watchCancellation(ctx, SignalCancelFollowUp, st)
	result := &DemoRemindersResult{}
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (*DemoRemindersResult, error) {
		return result, nil
	}); err != nil {
		return nil, err
	}

	mctx := opts.WithMessagingOptions(ctx)
	pctx := opts.WithPersistenceOptions(ctx)

	for _, offset := range offsets {
		target := input.ScheduledAt.Add(-offset)
		if !workflow.Now(ctx).Before(target) {
			continue
		}
		if !waitUntil(ctx, target, st) {
			result.Outcome = "cancelled"
			return result, nil
		}
		var sent activities.SendResult
		err := workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
			MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
			Body:          reminderBody(input.LeadName, input.ScheduledAt, offset),
		}).Get(ctx, &sent)
		if err != nil {
			return nil, err
		}
		if sent.Success {
			result.RemindersSent++
		} else {
			logger.Warn("reminder rejected", "appointment_id", input.AppointmentID, "error", sent.Error)
		}
	}

	if !waitUntil(ctx, input.ScheduledAt.Add(grace), st) {
		result.Outcome = "cancelled"
		return result, nil
	}

	var lead activities.LeadSnapshot
	err := workflow.ExecuteActivity(pctx, activities.ActivityGetLead, activities.LeadRef{LeadID: input.LeadID}).
		Get(ctx, &lead)
	if err != nil {
		return nil, err
	}

	// No inbound activity since the slot started means the lead never
	// showed up.
	status := "completed"
	if lead.LastInteraction.Before(input.ScheduledAt) {
		status = "no_show"
	}

	var closed activities.CloseAppointmentResult
	err = workflow.ExecuteActivity(pctx, activities.ActivityCloseAppointment, activities.CloseAppointmentInput{
		AppointmentID: input.AppointmentID,
		Status:        status,
	}).Get(ctx, &closed)
	if err != nil {
		return nil, err
	}
	if !closed.Closed {
		// Another path (cancel, reschedule into a new instance) already
		// resolved the appointment.
		result.Outcome = "cancelled"
		return result, nil
	}

	if status == "no_show" {
		var sent activities.SendResult
		err = workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
			MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
			Body:          noShowBody(input.LeadName),
		}).Get(ctx, &sent)
		if err != nil {
			return nil, err
		}
	}

	result.Outcome = status
	return result, nil
}

func reminderBody(name string, at time.Time, offset time.Duration) string {
	greeting := "Hi"
	if name != "" {
		greeting = "Hi " + name
	}
	when := at.Format("Monday, Jan 2 at 15:04")
	if offset <= 2*time.Hour {
		return fmt.Sprintf("%s! Your demo starts soon, at %s. See you there!", greeting, at.Format("15:04"))
	}
	return fmt.Sprintf("%s! Just a reminder that your demo is scheduled for %s.", greeting, when)
}

func noShowBody(name string) string {
	greeting := "Hi"
	if name != "" {
		greeting = "Hi " + name
	}
	return greeting + "! Sorry we missed you at the demo. Want to pick a new time? Just reply here and we'll get you rescheduled."
}

// ReengagementWorkflow waits out the idle delay and nudges the lead, unless
// the lead came back on their own in the meantime.
func ReengagementWorkflow(ctx workflow.Context, input ReengagementInput) (*ReengagementResult, error) {
	logger := workflow.GetLogger(ctx)
	info := workflow.GetInfo(ctx)
	startedAt := workflow.Now(ctx)

	delay := input.Delay
	if delay <= 0 {
		delay = 72 * time.Hour
	}

	st := &cancelState{}
	watchCancellation(ctx, SignalCancelFollowUp, st)
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (*cancelState, error) {
		return st, nil
	}); err != nil {
		return nil, err
	}

	pctx := opts.WithPersistenceOptions(ctx)

	var created activities.CreateFollowUpResult
	err := workflow.ExecuteActivity(pctx, activities.ActivityCreateFollowUpRecord, activities.CreateFollowUpInput{
		LeadID:       input.LeadID,
		TenantID:     input.TenantID,
		Type:         "reengagement",
		ScheduledFor: startedAt.Add(delay),
		WorkflowID:   info.WorkflowExecution.ID,
	}).Get(ctx, &created)
	if err != nil {
		return nil, err
	}

	if !waitUntil(ctx, startedAt.Add(delay), st) {
		_, _ = cancelFollowUpRecord(pctx, created.FollowUpID, logger)
		return &ReengagementResult{Status: "cancelled"}, nil
	}

	var lead activities.LeadSnapshot
	err = workflow.ExecuteActivity(pctx, activities.ActivityGetLead, activities.LeadRef{LeadID: input.LeadID}).
		Get(ctx, &lead)
	if err != nil {
		return nil, err
	}
	if lead.LastInteraction.After(startedAt) || lead.Stage == "won" || lead.Stage == "lost" {
		// The lead is active again or out of the funnel. Nothing to nudge.
		_, _ = cancelFollowUpRecord(pctx, created.FollowUpID, logger)
		return &ReengagementResult{Status: "skipped"}, nil
	}

	mctx := opts.WithMessagingOptions(ctx)
	var sent activities.SendResult
	err = workflow.ExecuteActivity(mctx, activities.ActivitySendText, activities.SendTextInput{
		MessageTarget: activities.MessageTarget{TenantID: input.TenantID, To: input.Phone},
		Body:          input.Message,
	}).Get(ctx, &sent)
	if err != nil {
		return nil, err
	}
	if !sent.Success {
		logger.Warn("reengagement message rejected", "lead_id", input.LeadID, "error", sent.Error)
		_, _ = cancelFollowUpRecord(pctx, created.FollowUpID, logger)
		return &ReengagementResult{Status: "rejected"}, nil
	}

	var transition activities.TransitionFollowUpResult
	err = workflow.ExecuteActivity(pctx, activities.ActivityTransitionFollowUp, activities.TransitionFollowUpInput{
		FollowUpID: created.FollowUpID,
		Status:     "sent",
	}).Get(ctx, &transition)
	if err != nil {
		return nil, err
	}

	if input.ConversationID != "" {
		_ = workflow.ExecuteActivity(pctx, activities.ActivitySaveOutboundMessage, activities.SaveOutboundMessageInput{
			LeadID:         input.LeadID,
			TenantID:       input.TenantID,
			ConversationID: input.ConversationID,
			Body:           input.Message,
			WAMessageID:    sent.MessageID,
		}).Get(ctx, nil)
	}

	return &ReengagementResult{Status: "sent"}, nil
}
