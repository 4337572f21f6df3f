// Package tenant resolves per-tenant WhatsApp credentials and subscription
// plan. Credentials are never hard-coded or ambient: every messaging activity
// receives them as explicit parameters, resolved here.
package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrUnknownTenant is returned when no credentials row exists.
var ErrUnknownTenant = errors.New("unknown tenant")

// Credentials is the WhatsApp Cloud API pair threaded through every
// messaging activity call.
type Credentials struct {
	PhoneNumberID string `json:"phone_number_id" db:"phone_number_id"`
	AccessToken   string `json:"access_token" db:"access_token"`
	APIVersion    string `json:"api_version" db:"api_version"`
}

// Plan is the tenant's subscription tier, used for task-queue routing.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanGrowth     Plan = "growth"
	PlanBusiness   Plan = "business"
	PlanEnterprise Plan = "enterprise"
)

type record struct {
	Credentials
	Plan Plan `json:"plan" db:"plan"`
}

// Resolver looks up tenant credentials in Postgres with a Redis cache-aside.
type Resolver struct {
	db       *sqlx.DB
	redis    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewResolver creates a resolver. redisClient may be nil; lookups then always
// hit Postgres.
func NewResolver(db *sqlx.DB, redisClient *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Resolver{db: db, redis: redisClient, cacheTTL: cacheTTL, logger: logger}
}

func cacheKey(tenantID string) string {
	return "tenant:creds:" + tenantID
}

// Resolve returns the tenant's credentials and plan.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (*Credentials, Plan, error) {
	if tenantID == "" {
		return nil, "", ErrUnknownTenant
	}

	if r.redis != nil {
		raw, err := r.redis.Get(ctx, cacheKey(tenantID)).Bytes()
		if err == nil {
			var rec record
			if err := json.Unmarshal(raw, &rec); err == nil {
				return &rec.Credentials, rec.Plan, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Tenant cache read failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}

	var rec record
	err := r.db.GetContext(ctx, &rec, `
		SELECT phone_number_id, access_token, api_version, plan
		FROM tenant_credentials WHERE tenant_id = $1`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrUnknownTenant
	}
	if err != nil {
		return nil, "", fmt.Errorf("resolve tenant %s: %w", tenantID, err)
	}
	if rec.APIVersion == "" {
		rec.APIVersion = "v21.0"
	}

	if r.redis != nil {
		if raw, err := json.Marshal(rec); err == nil {
			if err := r.redis.Set(ctx, cacheKey(tenantID), raw, r.cacheTTL).Err(); err != nil {
				r.logger.Warn("Tenant cache write failed", zap.String("tenant_id", tenantID), zap.Error(err))
			}
		}
	}

	return &rec.Credentials, rec.Plan, nil
}

// Invalidate drops the cached entry, used when a tenant rotates its token.
func (r *Resolver) Invalidate(ctx context.Context, tenantID string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Del(ctx, cacheKey(tenantID)).Err(); err != nil {
		r.logger.Warn("Tenant cache invalidate failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}
