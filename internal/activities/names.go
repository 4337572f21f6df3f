package activities

// Activity names as registered on the worker. Workflow code schedules
// activities by these names so it never has to hold an instance of the
// activity structs.
const (
	// Messaging
	ActivitySendText     = "SendText"
	ActivitySendList     = "SendList"
	ActivitySendButtons  = "SendButtons"
	ActivitySendDocument = "SendDocument"
	ActivitySendImage    = "SendImage"

	// Calendar
	ActivityCheckAvailability = "CheckAvailability"
	ActivityCreateEvent       = "CreateEvent"
	ActivityCancelEvent       = "CancelEvent"
	ActivityRescheduleEvent   = "RescheduleEvent"
	ActivityUpdateEventEmail  = "UpdateEventEmail"

	// Billing
	ActivityCreateOrGetCustomer   = "CreateOrGetCustomer"
	ActivityCreateCheckoutSession = "CreateCheckoutSession"
	ActivityExpireCheckoutSession = "ExpireCheckoutSession"
	ActivityCancelSubscription    = "CancelSubscription"
	ActivityCreatePortalSession   = "CreatePortalSession"

	// Persistence
	ActivityCreateFollowUpRecord  = "CreateFollowUpRecord"
	ActivityTransitionFollowUp    = "TransitionFollowUp"
	ActivityCreateAppointment     = "CreateAppointmentRecord"
	ActivityRescheduleAppointment = "RescheduleAppointmentRecord"
	ActivityCloseAppointment      = "CloseAppointmentRecord"
	ActivityUpdateLeadStage       = "UpdateLeadStage"
	ActivityTouchLead             = "TouchLead"
	ActivityRecordSubscription    = "RecordSubscription"
	ActivityGetLead               = "GetLead"
	ActivityListColdLeads         = "ListColdLeads"
	ActivityListPendingFollowUps  = "ListPendingFollowUps"
	ActivitySaveOutboundMessage   = "SaveOutboundMessage"
	ActivityGetConversation       = "GetConversation"
	ActivitySaveLeadMemory        = "SaveLeadMemory"

	// Compensation
	ActivityCancelAppointmentFollowUps = "CancelAppointmentFollowUps"

	// Third-party sync
	ActivityUpsertCRMContact  = "UpsertCRMContact"
	ActivityTrackAdConversion = "TrackAdConversion"
	ActivityGenerateSummary   = "GenerateSummary"
)
