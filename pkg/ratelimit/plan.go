package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/veilhq/gatekeeper/pkg/observability"
)

// PlanSource resolves a user's billing plan.
type PlanSource interface {
	PlanFor(ctx context.Context, userID string) (string, error)
}

// DBPlanSource reads billing plans from the users table.
type DBPlanSource struct {
	db *sql.DB
}

func NewDBPlanSource(db *sql.DB) *DBPlanSource {
	return &DBPlanSource{db: db}
}

func (s *DBPlanSource) PlanFor(ctx context.Context, userID string) (string, error) {
	var plan string
	err := s.db.QueryRowContext(ctx,
		`SELECT billing_plan FROM users WHERE id = $1`,
		userID,
	).Scan(&plan)
	if err == sql.ErrNoRows {
		return "free", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up billing plan: %w", err)
	}
	return plan, nil
}

// CachedPlanSource fronts a PlanSource with an expiring LRU so the
// limiter stays off the database on the hot path. A stale plan only
// delays a limit change, never a revocation, so short TTLs are safe.
type CachedPlanSource struct {
	source  PlanSource
	cache   *expirable.LRU[string, string]
	metrics *observability.Metrics
}

func NewCachedPlanSource(source PlanSource, size int, ttl time.Duration, metrics *observability.Metrics) *CachedPlanSource {
	return &CachedPlanSource{
		source:  source,
		cache:   expirable.NewLRU[string, string](size, nil, ttl),
		metrics: metrics,
	}
}

func (s *CachedPlanSource) PlanFor(ctx context.Context, userID string) (string, error) {
	if plan, ok := s.cache.Get(userID); ok {
		if s.metrics != nil {
			s.metrics.PlanCacheHitsTotal.Inc()
		}
		return plan, nil
	}
	if s.metrics != nil {
		s.metrics.PlanCacheMissesTotal.Inc()
	}

	plan, err := s.source.PlanFor(ctx, userID)
	if err != nil {
		return "", err
	}
	s.cache.Add(userID, plan)
	return plan, nil
}
