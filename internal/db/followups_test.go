package db

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })
	return NewClientFromDB(sqlx.NewDb(rawDB, "sqlmock"), zap.NewNop()), mock
}

func TestCreateFollowUp_AssignsIDAndPendingStatus(t *testing.T) {
	c, mock := newTestClient(t)
	rec := &FollowUpRecord{
		LeadID:       uuid.New(),
		TenantID:     "acme",
		Type:         FollowUpNoResponse,
		ScheduledFor: time.Now().Add(4 * time.Hour),
		Metadata:     JSONB{"workflow_id": "followup-no-response-x-1"},
	}

	mock.ExpectExec(`INSERT INTO follow_ups`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, c.CreateFollowUp(context.Background(), rec))
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, FollowUpPending, rec.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionFollowUp_PendingGuard(t *testing.T) {
	c, mock := newTestClient(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE follow_ups SET status = \$2`).
		WithArgs(id, FollowUpSent).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := c.TransitionFollowUp(context.Background(), id, FollowUpSent)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second transition finds no pending row and reports false, not an error.
	mock.ExpectExec(`UPDATE follow_ups SET status = \$2`).
		WithArgs(id, FollowUpCancelled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = c.TransitionFollowUp(context.Background(), id, FollowUpCancelled)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionFollowUp_RejectsInvalidTarget(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.TransitionFollowUp(context.Background(), uuid.New(), FollowUpPending)
	assert.Error(t, err)
}

func TestGetPendingFollowUps_ClampsLimit(t *testing.T) {
	c, mock := newTestClient(t)
	from := time.Now()
	to := from.Add(time.Hour)

	cols := []string{"id", "lead_id", "appointment_id", "tenant_id", "type", "status", "scheduled_for", "attempt", "metadata", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT .+ FROM follow_ups`).
		WithArgs("acme", from, to, 100).
		WillReturnRows(sqlmock.NewRows(cols))

	_, err := c.GetPendingFollowUps(context.Background(), "acme", from, to, 10000)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPendingForAppointment_ReturnsAffectedRows(t *testing.T) {
	c, mock := newTestClient(t)
	apptID := uuid.New()
	leadID := uuid.New()
	now := time.Now()

	cols := []string{"id", "lead_id", "appointment_id", "tenant_id", "type", "status", "scheduled_for", "attempt", "metadata", "created_at", "updated_at"}
	mock.ExpectQuery(`UPDATE follow_ups SET status = 'cancelled'`).
		WithArgs(apptID).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(uuid.New(), leadID, apptID, "acme", FollowUpPostDemo, FollowUpCancelled, now.Add(24*time.Hour), 0, []byte(`{"workflow_id":"followup-post-demo-x-1"}`), now, now))

	recs, err := c.CancelPendingForAppointment(context.Background(), apptID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, FollowUpCancelled, recs[0].Status)
	assert.Equal(t, "followup-post-demo-x-1", recs[0].Metadata["workflow_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
