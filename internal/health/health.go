// Package health runs periodic dependency checks and serves readiness and
// liveness endpoints for the worker process.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	sdkclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// CheckResult is the outcome of one dependency probe.
type CheckResult struct {
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Critical() bool
	Check(ctx context.Context) CheckResult
}

// Manager runs registered checkers on an interval and caches their results.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	results  map[string]CheckResult
	interval time.Duration
	logger   *zap.Logger
}

// NewManager creates a manager with a 15s probe interval.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		results:  make(map[string]CheckResult),
		interval: 15 * time.Second,
		logger:   logger,
	}
}

// Register adds a checker. Call before Start.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Start probes immediately and then on every interval until ctx ends.
func (m *Manager) Start(ctx context.Context) {
	m.runChecks(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runChecks(ctx)
		}
	}
}

func (m *Manager) runChecks(ctx context.Context) {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	for _, c := range checkers {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		result := c.Check(probeCtx)
		cancel()
		result.CheckedAt = time.Now()
		if !result.Healthy {
			m.logger.Warn("health check failed",
				zap.String("check", c.Name()),
				zap.String("message", result.Message))
		}
		m.mu.Lock()
		m.results[c.Name()] = result
		m.mu.Unlock()
	}
}

// Ready reports whether every critical dependency passed its last probe.
func (m *Manager) Ready() (bool, map[string]CheckResult) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ready := true
	out := make(map[string]CheckResult, len(m.results))
	for _, c := range m.checkers {
		r, ok := m.results[c.Name()]
		out[c.Name()] = r
		if c.Critical() && (!ok || !r.Healthy) {
			ready = false
		}
	}
	return ready, out
}

// HTTPHandler serves health endpoints backed by a Manager.
type HTTPHandler struct {
	manager *Manager
}

// NewHTTPHandler creates the handler.
func NewHTTPHandler(manager *Manager) *HTTPHandler {
	return &HTTPHandler{manager: manager}
}

// RegisterRoutes registers /healthz and /readiness on the mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleLiveness)
	mux.HandleFunc("/readiness", h.handleReadiness)
}

func (h *HTTPHandler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *HTTPHandler) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	ready, results := h.manager.Ready()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":  ready,
		"checks": results,
	})
}

// DatabaseChecker probes Postgres.
type DatabaseChecker struct {
	db *sqlx.DB
}

// NewDatabaseChecker creates the Postgres probe.
func NewDatabaseChecker(db *sqlx.DB) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string   { return "postgres" }
func (c *DatabaseChecker) Critical() bool { return true }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	if err := c.db.PingContext(ctx); err != nil {
		return CheckResult{Healthy: false, Message: err.Error()}
	}
	return CheckResult{Healthy: true}
}

// RedisChecker probes the credentials cache. Not critical: resolution falls
// through to Postgres when the cache is down.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates the Redis probe.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string   { return "redis" }
func (c *RedisChecker) Critical() bool { return false }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return CheckResult{Healthy: false, Message: err.Error()}
	}
	return CheckResult{Healthy: true}
}

// TemporalChecker probes the Temporal frontend.
type TemporalChecker struct {
	client sdkclient.Client
}

// NewTemporalChecker creates the Temporal probe.
func NewTemporalChecker(client sdkclient.Client) *TemporalChecker {
	return &TemporalChecker{client: client}
}

func (c *TemporalChecker) Name() string   { return "temporal" }
func (c *TemporalChecker) Critical() bool { return true }

func (c *TemporalChecker) Check(ctx context.Context) CheckResult {
	if _, err := c.client.CheckHealth(ctx, &sdkclient.CheckHealthRequest{}); err != nil {
		return CheckResult{Healthy: false, Message: err.Error()}
	}
	return CheckResult{Healthy: true}
}
