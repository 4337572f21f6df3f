package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "default", cfg.Temporal.Namespace)
	assert.Equal(t, "https://graph.facebook.com", cfg.WhatsApp.BaseURL)
	assert.Equal(t, "v21.0", cfg.WhatsApp.APIVersion)
	assert.Equal(t, 24*time.Hour, cfg.Workflows.CheckoutExpiry)
	assert.Equal(t, []time.Duration{24 * time.Hour, time.Hour}, cfg.Workflows.ReminderOffsets)
	assert.Equal(t, 30*time.Minute, cfg.Workflows.NoShowGrace)
	assert.Equal(t, "0 3 * * *", cfg.Workflows.BulkSyncCron)
	assert.Equal(t, 50, cfg.Queues.SharedActivitySlots)
	assert.Equal(t, 8081, cfg.HTTP.Port)
	assert.Equal(t, 2112, cfg.MetricsPort)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VELIA_TEMPORAL_HOST_PORT", "temporal.internal:7233")
	t.Setenv("VELIA_DATABASE_PASSWORD", "hunter2")
	t.Setenv("VELIA_HTTP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "temporal.internal:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoad_SecretsWithoutDefaultsFromEnv(t *testing.T) {
	t.Setenv("VELIA_TEMPORAL_API_KEY", "tmprl-key")
	t.Setenv("VELIA_BILLING_API_KEY", "sk_test_123")
	t.Setenv("VELIA_CALENDAR_API_KEY", "cal_live_456")
	t.Setenv("VELIA_SYNC_CRM_API_KEY", "crm-789")
	t.Setenv("VELIA_HTTP_AUTH_TOKEN", "admin-token")
	t.Setenv("VELIA_REDIS_PASSWORD", "redis-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tmprl-key", cfg.Temporal.APIKey)
	assert.Equal(t, "sk_test_123", cfg.Billing.APIKey)
	assert.Equal(t, "cal_live_456", cfg.Calendar.APIKey)
	assert.Equal(t, "crm-789", cfg.Sync.CRMAPIKey)
	assert.Equal(t, "admin-token", cfg.HTTP.AuthToken)
	assert.Equal(t, "redis-secret", cfg.Redis.Password)
}

func TestLoad_EnterpriseTenantsFromEnv(t *testing.T) {
	t.Setenv("VELIA_ENTERPRISE_TENANTS", "megacorp, bigco ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"megacorp", "bigco"}, cfg.Queues.EnterpriseTenants)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
temporal:
  host_port: temporal.prod:7233
  namespace: velia
queues:
  enterprise_tenants:
    - megacorp
workflows:
  checkout_expiry: 12h
`), 0o644))
	t.Setenv("VELIA_CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "temporal.prod:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "velia", cfg.Temporal.Namespace)
	assert.Equal(t, []string{"megacorp"}, cfg.Queues.EnterpriseTenants)
	assert.Equal(t, 12*time.Hour, cfg.Workflows.CheckoutExpiry)
	// Untouched keys keep their defaults.
	assert.Equal(t, "America/Sao_Paulo", cfg.Calendar.BusinessTimezone)
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Temporal.HostPort = ""
	assert.Error(t, bad.Validate())

	tls := *cfg
	tls.Temporal.TLS.Enabled = true
	assert.Error(t, tls.Validate())

	tls.Temporal.APIKey = "key"
	assert.NoError(t, tls.Validate())
}
