package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLead_NotFound(t *testing.T) {
	c, mock := newTestClient(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM leads WHERE id`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := c.GetLead(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertLead_DefaultsStageAndID(t *testing.T) {
	c, mock := newTestClient(t)
	lead := &Lead{TenantID: "acme", Phone: "+5511999990000"}

	mock.ExpectExec(`INSERT INTO leads`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, c.UpsertLead(context.Background(), lead))
	assert.NotEqual(t, uuid.Nil, lead.ID)
	assert.Equal(t, StageNew, lead.Stage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLeadStage_RejectsUnknownStage(t *testing.T) {
	c, _ := newTestClient(t)

	err := c.UpdateLeadStage(context.Background(), uuid.New(), LeadStage("vip"))
	assert.Error(t, err)
}

func TestUpdateLeadStage_NotFound(t *testing.T) {
	c, mock := newTestClient(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE leads SET stage = \$2`).
		WithArgs(id, StageWon).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := c.UpdateLeadStage(context.Background(), id, StageWon)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetColdLeads_ExcludesClosedStagesAndClampsLimit(t *testing.T) {
	c, mock := newTestClient(t)
	now := time.Now()
	idleSince := now.Add(-72 * time.Hour)
	notBefore := now.Add(-30 * 24 * time.Hour)

	cols := []string{"id", "tenant_id", "phone", "name", "email", "company", "industry", "stage",
		"subscription_id", "last_interaction", "created_at", "updated_at"}
	mock.ExpectQuery(`stage NOT IN \('won', 'lost'\)`).
		WithArgs("acme", idleSince, notBefore, 100).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(uuid.New(), "acme", "+5511999990000", nil, nil, nil, nil, StageQualified,
				nil, now.Add(-100*time.Hour), now, now))

	leads, err := c.GetColdLeads(context.Background(), "acme", idleSince, notBefore, 0)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, StageQualified, leads[0].Stage)
	assert.Nil(t, leads[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
