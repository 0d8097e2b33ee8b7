package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/veilhq/gatekeeper/pkg/observability"
)

// RedisStore keeps fixed-window counters in Redis. Each counter key
// embeds its window start, so a new window naturally begins at zero
// and stale counters expire on their own.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	metrics *observability.Metrics
}

func NewRedisStore(client *redis.Client, prefix string, metrics *observability.Metrics) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix, metrics: metrics}
}

func (s *RedisStore) key(w Window, windowStart time.Time, subject, endpoint string) string {
	return fmt.Sprintf("%s:%s:%d:%s:%s", s.prefix, w, windowStart.Unix(), subject, endpoint)
}

// IncrementAll atomically increments the counters of every window for
// the subject and endpoint via a single pipeline and returns the
// post-increment counts. Counters expire one window width past their
// reset so a late read still sees the final count.
func (s *RedisStore) IncrementAll(ctx context.Context, subject, endpoint string, now time.Time) (map[Window]int64, error) {
	start := time.Now()
	pipe := s.client.Pipeline()
	incrs := make(map[Window]*redis.IntCmd, len(Windows))
	for _, w := range Windows {
		key := s.key(w, w.Start(now), subject, endpoint)
		incrs[w] = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*w.Duration())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.observe("incr_pipeline", start, err)
		return nil, fmt.Errorf("failed to increment counters: %w", err)
	}
	s.observe("incr_pipeline", start, nil)

	counts := make(map[Window]int64, len(Windows))
	for w, cmd := range incrs {
		counts[w] = cmd.Val()
	}
	return counts, nil
}

// Count reads the current counter for one window without incrementing.
func (s *RedisStore) Count(ctx context.Context, w Window, subject, endpoint string, now time.Time) (int64, error) {
	start := time.Now()
	count, err := s.client.Get(ctx, s.key(w, w.Start(now), subject, endpoint)).Int64()
	if err == redis.Nil {
		s.observe("get", start, nil)
		return 0, nil
	}
	if err != nil {
		s.observe("get", start, err)
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	s.observe("get", start, nil)
	return count, nil
}

// DeleteSubject removes every counter for a subject across all
// windows and endpoints and returns the number of keys deleted.
func (s *RedisStore) DeleteSubject(ctx context.Context, subject string) (int64, error) {
	start := time.Now()
	pattern := fmt.Sprintf("%s:*:*:%s:*", s.prefix, subject)

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.observe("scan", start, err)
		return 0, fmt.Errorf("failed to scan counters: %w", err)
	}
	if len(keys) == 0 {
		s.observe("scan", start, nil)
		return 0, nil
	}

	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		s.observe("del", start, err)
		return 0, fmt.Errorf("failed to delete counters: %w", err)
	}
	s.observe("del", start, nil)
	return deleted, nil
}

// Ping reports store reachability.
func (s *RedisStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.client.Ping(ctx).Err()
	s.observe("ping", start, err)
	return err
}

func (s *RedisStore) observe(command string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RedisCommandsTotal.WithLabelValues(command, status).Inc()
	s.metrics.RedisCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}
