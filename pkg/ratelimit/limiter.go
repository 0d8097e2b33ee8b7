package ratelimit

import (
	"context"
	"time"

	"github.com/veilhq/gatekeeper/pkg/observability"
)

// Result reports the outcome of a rate limit check. When disallowed,
// Window names the ceiling that was hit and ResetAt the boundary at
// which that window's counter starts over.
type Result struct {
	Allowed bool
	Window  Window
	Count   int64
	Limit   int64
	ResetAt time.Time
}

// Limiter enforces per-minute, per-hour, and per-day ceilings against
// the counter store. A store failure fails open: the request passes
// and the degraded counter is incremented so operators notice.
type Limiter struct {
	store   *RedisStore
	rules   *RuleTable
	metrics *observability.Metrics
	logger  *observability.Logger
	bypass  map[string]struct{}
	enabled bool
	now     func() time.Time
}

// DefaultBypassEndpoints lists the endpoint patterns never subject to
// per-subject limiting.
var DefaultBypassEndpoints = []string{
	"/health",
	"/auth/login",
	"/auth/register",
}

func NewLimiter(store *RedisStore, rules *RuleTable, metrics *observability.Metrics, logger *observability.Logger) *Limiter {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	bypass := make(map[string]struct{}, len(DefaultBypassEndpoints))
	for _, e := range DefaultBypassEndpoints {
		bypass[e] = struct{}{}
	}
	return &Limiter{
		store:   store,
		rules:   rules,
		metrics: metrics,
		logger:  logger,
		bypass:  bypass,
		enabled: true,
		now:     time.Now,
	}
}

// SetEnabled turns enforcement on or off. A disabled limiter allows
// everything without touching the store; call before serving traffic.
func (l *Limiter) SetEnabled(enabled bool) {
	l.enabled = enabled
}

// Enabled reports whether enforcement is on.
func (l *Limiter) Enabled() bool {
	return l.enabled
}

// Bypassed reports whether an endpoint skips rate limiting.
func (l *Limiter) Bypassed(endpoint string) bool {
	_, ok := l.bypass[endpoint]
	return ok
}

// CheckAndIncrement increments every window's counter for the subject
// and allows the request only if all post-increment counts are within
// their ceilings. The increment sticks even when the request is
// rejected, so immediate retries see the same or a higher count.
func (l *Limiter) CheckAndIncrement(ctx context.Context, subjectID, workspaceID, endpoint, plan, role string) (*Result, error) {
	if !l.enabled {
		return &Result{Allowed: true}, nil
	}

	subject := subjectKey(subjectID, workspaceID)
	now := l.now()
	counts, err := l.store.IncrementAll(ctx, subject, endpoint, now)
	if err != nil {
		l.countCheck("degraded", "")
		if l.metrics != nil {
			l.metrics.RateLimitDegradedTotal.Inc()
		}
		l.logger.WithError(err).WithFields(map[string]interface{}{
			"subject":  subject,
			"endpoint": endpoint,
		}).Warn("Rate limit store unreachable, failing open")
		return &Result{Allowed: true}, nil
	}

	rule := l.rules.Resolve(plan, role, endpoint)
	for _, w := range Windows {
		limit := rule.Limit(w)
		if counts[w] > limit {
			l.countCheck("denied", string(w))
			return &Result{
				Allowed: false,
				Window:  w,
				Count:   counts[w],
				Limit:   limit,
				ResetAt: w.NextReset(now),
			}, nil
		}
	}

	l.countCheck("allowed", "")
	return &Result{
		Allowed: true,
		Window:  WindowMinute,
		Count:   counts[WindowMinute],
		Limit:   rule.Limit(WindowMinute),
		ResetAt: WindowMinute.NextReset(now),
	}, nil
}

// WindowStatus is one window's counter state for a subject.
type WindowStatus struct {
	Count   int64     `json:"count"`
	Limit   int64     `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

// Status reports a subject's current counters against the resolved
// limits without incrementing anything.
type Status struct {
	Enabled bool                    `json:"enabled"`
	Windows map[Window]WindowStatus `json:"windows"`
}

// Status reads the subject's counters for an endpoint across all
// windows. When enforcement is disabled the counts are zero but the
// resolved limits are still reported.
func (l *Limiter) Status(ctx context.Context, subjectID, workspaceID, endpoint, plan, role string) (*Status, error) {
	rule := l.rules.Resolve(plan, role, endpoint)
	status := &Status{
		Enabled: l.enabled,
		Windows: make(map[Window]WindowStatus, len(Windows)),
	}

	subject := subjectKey(subjectID, workspaceID)
	now := l.now()
	for _, w := range Windows {
		var count int64
		if l.enabled {
			var err error
			count, err = l.store.Count(ctx, w, subject, endpoint, now)
			if err != nil {
				return nil, err
			}
		}
		status.Windows[w] = WindowStatus{
			Count:   count,
			Limit:   rule.Limit(w),
			ResetAt: w.NextReset(now),
		}
	}
	return status, nil
}

// ResetSubject clears every counter for a subject and returns the
// number of counters removed. Counters scoped to the subject's
// workspaces are cleared too.
func (l *Limiter) ResetSubject(ctx context.Context, subjectID, workspaceID string) (int64, error) {
	if !l.enabled {
		return 0, nil
	}
	deleted, err := l.store.DeleteSubject(ctx, subjectKey(subjectID, workspaceID))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		l.logger.WithFields(map[string]interface{}{
			"subject": subjectID,
			"deleted": deleted,
		}).Info("Rate limit counters reset")
	}
	return deleted, nil
}

func subjectKey(subjectID, workspaceID string) string {
	if workspaceID != "" {
		return subjectID + ":" + workspaceID
	}
	return subjectID
}

func (l *Limiter) countCheck(decision string, window string) {
	if l.metrics != nil {
		l.metrics.RateLimitChecksTotal.WithLabelValues(decision, window).Inc()
	}
}
