// Package config loads orchestrator configuration from orchestrator.yaml
// with environment overrides (VELIA_ prefix).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TemporalConfig describes how to reach the orchestration runtime. Exactly
// one of the three connection shapes is used: plain address, TLS with API
// key, or TLS with a client certificate pair.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TLS       struct {
		Enabled    bool   `mapstructure:"enabled"`
		CertFile   string `mapstructure:"cert_file"`
		KeyFile    string `mapstructure:"key_file"`
		ServerName string `mapstructure:"server_name"`
	} `mapstructure:"tls"`
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	IdleConnections int           `mapstructure:"idle_connections"`
	MaxLifetime     time.Duration `mapstructure:"max_lifetime"`
}

// RedisConfig holds the tenant credential cache settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// WhatsAppConfig holds messaging transport settings. Tenant credentials are
// resolved per call, never configured globally.
type WhatsAppConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIVersion     string        `mapstructure:"api_version"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// CalendarConfig holds the scheduling API settings. All times are normalized
// to the business timezone.
type CalendarConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	EventTypeID      string        `mapstructure:"event_type_id"`
	BusinessTimezone string        `mapstructure:"business_timezone"`
	SlotDuration     time.Duration `mapstructure:"slot_duration"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// BillingConfig holds Stripe settings. PriceIDs maps a plan name to its
// Stripe price id.
type BillingConfig struct {
	APIKey     string            `mapstructure:"api_key"`
	PriceIDs   map[string]string `mapstructure:"price_ids"`
	SuccessURL string            `mapstructure:"success_url"`
	CancelURL  string            `mapstructure:"cancel_url"`
	PortalURL  string            `mapstructure:"portal_return_url"`
}

// SyncConfig holds third-party sync endpoints (CRM, ad conversions, summary
// generation service).
type SyncConfig struct {
	CRMBaseURL      string        `mapstructure:"crm_base_url"`
	CRMAPIKey       string        `mapstructure:"crm_api_key"`
	AdsPixelID      string        `mapstructure:"ads_pixel_id"`
	AdsAccessToken  string        `mapstructure:"ads_access_token"`
	AgentServiceURL string        `mapstructure:"agent_service_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// QueuesConfig sets per-lane worker concurrency ceilings and the enterprise
// tenant allow-list (also settable as a comma-separated env value).
type QueuesConfig struct {
	SharedActivitySlots     int      `mapstructure:"shared_activity_slots"`
	SharedWorkflowSlots     int      `mapstructure:"shared_workflow_slots"`
	PriorityActivitySlots   int      `mapstructure:"priority_activity_slots"`
	PriorityWorkflowSlots   int      `mapstructure:"priority_workflow_slots"`
	EnterpriseActivitySlots int      `mapstructure:"enterprise_activity_slots"`
	EnterpriseWorkflowSlots int      `mapstructure:"enterprise_workflow_slots"`
	EnterpriseTenants       []string `mapstructure:"enterprise_tenants"`
}

// WorkflowsConfig holds workflow timing tunables: checkout expiry, reminder
// offsets, the no-show grace window, and the cold-lead scan window.
type WorkflowsConfig struct {
	CheckoutExpiry    time.Duration   `mapstructure:"checkout_expiry"`
	ReminderOffsets   []time.Duration `mapstructure:"reminder_offsets"`
	NoShowGrace       time.Duration   `mapstructure:"no_show_grace"`
	ColdLeadIdle      time.Duration   `mapstructure:"cold_lead_idle"`
	ColdLeadHorizon   time.Duration   `mapstructure:"cold_lead_horizon"`
	BulkSyncBatchSize int             `mapstructure:"bulk_sync_batch_size"`
	BulkSyncCron      string          `mapstructure:"bulk_sync_cron"`
}

// HTTPConfig holds the admin API settings.
type HTTPConfig struct {
	Port      int    `mapstructure:"port"`
	AuthToken string `mapstructure:"auth_token"`
}

// TracingConfig holds OTLP tracing settings.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Config is the root configuration.
type Config struct {
	Temporal    TemporalConfig  `mapstructure:"temporal"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	WhatsApp    WhatsAppConfig  `mapstructure:"whatsapp"`
	Calendar    CalendarConfig  `mapstructure:"calendar"`
	Billing     BillingConfig   `mapstructure:"billing"`
	Sync        SyncConfig      `mapstructure:"sync"`
	Queues      QueuesConfig    `mapstructure:"queues"`
	Workflows   WorkflowsConfig `mapstructure:"workflows"`
	HTTP        HTTPConfig      `mapstructure:"http"`
	Tracing     TracingConfig   `mapstructure:"tracing"`
	MetricsPort int             `mapstructure:"metrics_port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "velia")
	v.SetDefault("database.database", "velia")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.cache_ttl", 5*time.Minute)

	v.SetDefault("whatsapp.base_url", "https://graph.facebook.com")
	v.SetDefault("whatsapp.api_version", "v21.0")
	v.SetDefault("whatsapp.request_timeout", 15*time.Second)
	v.SetDefault("whatsapp.rate_per_second", 20.0)
	v.SetDefault("whatsapp.rate_burst", 40)

	v.SetDefault("calendar.base_url", "https://api.cal.com/v2")
	v.SetDefault("calendar.business_timezone", "America/Sao_Paulo")
	v.SetDefault("calendar.slot_duration", 30*time.Minute)
	v.SetDefault("calendar.request_timeout", 15*time.Second)

	v.SetDefault("sync.request_timeout", 20*time.Second)

	v.SetDefault("queues.shared_activity_slots", 50)
	v.SetDefault("queues.shared_workflow_slots", 50)
	v.SetDefault("queues.priority_activity_slots", 200)
	v.SetDefault("queues.priority_workflow_slots", 100)
	v.SetDefault("queues.enterprise_activity_slots", 500)
	v.SetDefault("queues.enterprise_workflow_slots", 200)

	v.SetDefault("workflows.checkout_expiry", 24*time.Hour)
	v.SetDefault("workflows.reminder_offsets", []time.Duration{24 * time.Hour, time.Hour})
	v.SetDefault("workflows.no_show_grace", 30*time.Minute)
	v.SetDefault("workflows.cold_lead_idle", 72*time.Hour)
	v.SetDefault("workflows.cold_lead_horizon", 30*24*time.Hour)
	v.SetDefault("workflows.bulk_sync_batch_size", 10)
	v.SetDefault("workflows.bulk_sync_cron", "0 3 * * *")

	v.SetDefault("http.port", 8081)
	v.SetDefault("metrics_port", 2112)

	v.SetDefault("tracing.service_name", "velia-orchestrator")
}

// bindSecretKeys registers the keys that have no default. AutomaticEnv only
// surfaces env values for keys viper already knows, so secrets and optional
// endpoints must be bound explicitly or VELIA_* overrides for them are lost.
func bindSecretKeys(v *viper.Viper) {
	for _, key := range []string{
		"temporal.api_key",
		"temporal.tls.enabled",
		"temporal.tls.cert_file",
		"temporal.tls.key_file",
		"temporal.tls.server_name",
		"database.password",
		"database.max_connections",
		"database.idle_connections",
		"database.max_lifetime",
		"redis.password",
		"redis.db",
		"calendar.api_key",
		"calendar.event_type_id",
		"billing.api_key",
		"billing.success_url",
		"billing.cancel_url",
		"billing.portal_return_url",
		"sync.crm_base_url",
		"sync.crm_api_key",
		"sync.ads_pixel_id",
		"sync.ads_access_token",
		"sync.agent_service_url",
		"http.auth_token",
		"tracing.enabled",
		"tracing.otlp_endpoint",
	} {
		_ = v.BindEnv(key)
	}
}

// Load reads orchestrator.yaml from VELIA_CONFIG_PATH (or ./config) and
// applies env overrides. A missing file is fine; defaults plus env apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VELIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindSecretKeys(v)

	if path := os.Getenv("VELIA_CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("orchestrator")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma-separated env form of the allow-list wins when set.
	if raw := os.Getenv("VELIA_ENTERPRISE_TENANTS"); raw != "" {
		var tenants []string
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tenants = append(tenants, t)
			}
		}
		cfg.Queues.EnterpriseTenants = tenants
	}

	return &cfg, nil
}

// Validate checks the settings required at startup. Third-party API keys are
// validated lazily by the activities that need them so a worker can boot with
// a partial integration surface.
func (c *Config) Validate() error {
	if c.Temporal.HostPort == "" {
		return fmt.Errorf("temporal.host_port is required")
	}
	if c.Temporal.TLS.Enabled && c.Temporal.APIKey == "" {
		if c.Temporal.TLS.CertFile == "" || c.Temporal.TLS.KeyFile == "" {
			return fmt.Errorf("temporal TLS requires either api_key or a client certificate pair")
		}
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	return nil
}
