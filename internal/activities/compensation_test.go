package activities

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/velia-ai/velia/go/orchestrator/internal/db"
)

var followUpCols = []string{"id", "lead_id", "appointment_id", "tenant_id", "type", "status", "scheduled_for", "attempt", "metadata", "created_at", "updated_at"}

func newCompensation(t *testing.T) (*CompensationActivities, sqlmock.Sqlmock, *mocks.Client) {
	t.Helper()
	rawDB, dbMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })
	store := db.NewClientFromDB(sqlx.NewDb(rawDB, "sqlmock"), zap.NewNop())
	tc := &mocks.Client{}
	return NewCompensationActivities(tc, store, zap.NewNop()), dbMock, tc
}

func TestCancelAppointmentFollowUps_SignalsRecordsAndReminderRevisions(t *testing.T) {
	acts, dbMock, tc := newCompensation(t)
	apptID := uuid.New()
	now := time.Now()

	dbMock.ExpectQuery(`UPDATE follow_ups SET status = 'cancelled'`).
		WithArgs(apptID).
		WillReturnRows(sqlmock.NewRows(followUpCols).
			AddRow(uuid.New(), uuid.New(), apptID, "acme", db.FollowUpPostDemo, db.FollowUpCancelled, now, 0, []byte(`{"workflow_id":"followup-post-demo-x-1"}`), now, now))

	// The follow-up instance and the live r1 reminder instance accept the
	// signal. The original reminders id and revisions past r1 are closed.
	tc.On("SignalWorkflow", mock.Anything, "followup-post-demo-x-1", "", "cancel-followup", mock.Anything).
		Return(nil).Once()
	tc.On("SignalWorkflow", mock.Anything, "demo-reminders-"+apptID.String(), "", "cancel-followup", mock.Anything).
		Return(serviceerror.NewNotFound("workflow not found")).Once()
	tc.On("SignalWorkflow", mock.Anything, "demo-reminders-"+apptID.String()+"-r1", "", "cancel-followup", mock.Anything).
		Return(nil).Once()
	tc.On("SignalWorkflow", mock.Anything, mock.Anything, "", "cancel-followup", mock.Anything).
		Return(serviceerror.NewNotFound("workflow not found"))

	result, err := acts.CancelAppointmentFollowUps(context.Background(), CancelFollowUpsInput{
		AppointmentID: apptID.String(),
		Reason:        "booking cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsCancelled)
	assert.Equal(t, 2, result.WorkflowsSignaled)
	assert.NoError(t, dbMock.ExpectationsWereMet())
	tc.AssertExpectations(t)
	// Revisions r0 through r10 are all swept.
	tc.AssertNumberOfCalls(t, "SignalWorkflow", 12)
}

func TestCancelAppointmentFollowUps_RecordWithoutWorkflowIDIsSkipped(t *testing.T) {
	acts, dbMock, tc := newCompensation(t)
	apptID := uuid.New()
	now := time.Now()

	dbMock.ExpectQuery(`UPDATE follow_ups SET status = 'cancelled'`).
		WithArgs(apptID).
		WillReturnRows(sqlmock.NewRows(followUpCols).
			AddRow(uuid.New(), uuid.New(), apptID, "acme", db.FollowUpPostDemo, db.FollowUpCancelled, now, 0, []byte(`{}`), now, now))

	tc.On("SignalWorkflow", mock.Anything, mock.Anything, "", "cancel-followup", mock.Anything).
		Return(serviceerror.NewNotFound("workflow not found"))

	result, err := acts.CancelAppointmentFollowUps(context.Background(), CancelFollowUpsInput{
		AppointmentID: apptID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsCancelled)
	assert.Equal(t, 0, result.WorkflowsSignaled)
	tc.AssertNumberOfCalls(t, "SignalWorkflow", 11)
}

func TestCancelAppointmentFollowUps_InvalidAppointmentID(t *testing.T) {
	acts, _, tc := newCompensation(t)

	_, err := acts.CancelAppointmentFollowUps(context.Background(), CancelFollowUpsInput{
		AppointmentID: "not-a-uuid",
	})
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeConfig, appErr.Type())
	tc.AssertNotCalled(t, "SignalWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
