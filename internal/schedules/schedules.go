// Package schedules maintains the recurring Temporal schedules the
// orchestrator depends on: one nightly cold-lead sweep per tenant.
package schedules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	sdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/velia-ai/velia/go/orchestrator/internal/workflows"
)

// ErrInvalidCron reports an unparseable cron expression.
var ErrInvalidCron = errors.New("invalid cron expression")

// Manager reconciles per-tenant sweep schedules against the tenant table.
type Manager struct {
	temporal   sdkclient.Client
	db         *sqlx.DB
	cronParser cron.Parser
	logger     *zap.Logger
}

// NewManager creates the schedule manager.
func NewManager(temporalClient sdkclient.Client, db *sqlx.DB, logger *zap.Logger) *Manager {
	return &Manager{
		temporal:   temporalClient,
		db:         db,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:     logger,
	}
}

func sweepScheduleID(tenantID string) string {
	return "bulk-sync-sched-" + tenantID
}

// EnsureSweeps creates the nightly BulkSync schedule for every known tenant.
// Existing schedules are left untouched, so the call is safe on every boot.
func (m *Manager) EnsureSweeps(ctx context.Context, cronExpr, timezone, taskQueue string) error {
	if _, err := m.cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCron, cronExpr)
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}

	var tenantIDs []string
	if err := m.db.SelectContext(ctx, &tenantIDs, `SELECT tenant_id FROM tenant_credentials ORDER BY tenant_id`); err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	for _, tenantID := range tenantIDs {
		if err := m.ensureSweep(ctx, tenantID, cronExpr, timezone, taskQueue); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) ensureSweep(ctx context.Context, tenantID, cronExpr, timezone, taskQueue string) error {
	_, err := m.temporal.ScheduleClient().Create(ctx, sdkclient.ScheduleOptions{
		ID: sweepScheduleID(tenantID),
		Spec: sdkclient.ScheduleSpec{
			CronExpressions: []string{cronExpr},
			TimeZoneName:    timezone,
		},
		Action: &sdkclient.ScheduleWorkflowAction{
			// Temporal appends the run timestamp, giving one history per
			// sweep.
			ID:        "bulk-sync-" + tenantID,
			Workflow:  workflows.BulkSyncWorkflow,
			TaskQueue: taskQueue,
			Args: []interface{}{
				workflows.BulkSyncInput{TenantID: tenantID},
			},
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	})
	if err != nil {
		var already *serviceerror.AlreadyExists
		if errors.As(err, &already) || errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
			return nil
		}
		return fmt.Errorf("create sweep schedule for %s: %w", tenantID, err)
	}
	m.logger.Info("sweep schedule created", zap.String("tenant_id", tenantID), zap.String("cron", cronExpr))
	return nil
}
