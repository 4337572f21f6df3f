package tenant

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestResolver(t *testing.T) (*Resolver, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	rawDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })
	db := sqlx.NewDb(rawDB, "sqlmock")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewResolver(db, rdb, time.Minute, zap.NewNop()), mock, mr
}

func credsRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"phone_number_id", "access_token", "api_version", "plan"}).
		AddRow("1555000111", "EAAG-token", "v21.0", "growth")
}

func TestResolve_LoadsFromPostgresAndCaches(t *testing.T) {
	r, mock, mr := newTestResolver(t)
	mock.ExpectQuery(`SELECT phone_number_id, access_token, api_version, plan`).
		WithArgs("acme").
		WillReturnRows(credsRows())

	creds, plan, err := r.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "1555000111", creds.PhoneNumberID)
	assert.Equal(t, "EAAG-token", creds.AccessToken)
	assert.Equal(t, PlanGrowth, plan)

	raw, err := mr.Get("tenant:creds:acme")
	require.NoError(t, err)
	var rec record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, "1555000111", rec.PhoneNumberID)
	assert.Equal(t, PlanGrowth, rec.Plan)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_CacheHitSkipsPostgres(t *testing.T) {
	r, mock, mr := newTestResolver(t)
	rec := record{
		Credentials: Credentials{PhoneNumberID: "1555000222", AccessToken: "cached-token", APIVersion: "v21.0"},
		Plan:        PlanEnterprise,
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, mr.Set("tenant:creds:acme", string(raw)))

	// No query expectation is set; a database hit would fail the test.
	creds, plan, err := r.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "cached-token", creds.AccessToken)
	assert.Equal(t, PlanEnterprise, plan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_CacheEntryExpires(t *testing.T) {
	r, mock, mr := newTestResolver(t)
	mock.ExpectQuery(`SELECT phone_number_id, access_token, api_version, plan`).
		WithArgs("acme").
		WillReturnRows(credsRows())
	mock.ExpectQuery(`SELECT phone_number_id, access_token, api_version, plan`).
		WithArgs("acme").
		WillReturnRows(credsRows())

	_, _, err := r.Resolve(context.Background(), "acme")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, _, err = r.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_UnknownTenant(t *testing.T) {
	r, mock, _ := newTestResolver(t)
	mock.ExpectQuery(`SELECT phone_number_id, access_token, api_version, plan`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"phone_number_id", "access_token", "api_version", "plan"}))

	_, _, err := r.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

func TestResolve_EmptyTenantID(t *testing.T) {
	r, _, _ := newTestResolver(t)
	_, _, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

func TestInvalidate_DropsCachedEntry(t *testing.T) {
	r, _, mr := newTestResolver(t)
	require.NoError(t, mr.Set("tenant:creds:acme", `{"phone_number_id":"x","access_token":"y","api_version":"v21.0","plan":"free"}`))

	r.Invalidate(context.Background(), "acme")

	assert.False(t, mr.Exists("tenant:creds:acme"))
}
