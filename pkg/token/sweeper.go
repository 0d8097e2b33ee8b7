package token

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/veilhq/gatekeeper/pkg/observability"
)

// Sweeper periodically deletes refresh token rows expired beyond a
// grace window and blacklist rows past expiry. Maintenance only; the
// stores are correct without it, the sweep just keeps them small.
type Sweeper struct {
	store    *Store
	schedule string
	grace    time.Duration
	metrics  *observability.Metrics
	logger   *observability.Logger
	cron     *cron.Cron
}

// NewSweeper creates a retention sweeper. Schedule is a cron
// expression ("@hourly" by default upstream); grace is how long
// expired refresh rows are kept for audit before deletion.
func NewSweeper(store *Store, schedule string, grace time.Duration, metrics *observability.Metrics, logger *observability.Logger) *Sweeper {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		grace:    grace,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start schedules the sweep. Returns an error only for an invalid
// cron expression.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("Token retention sweeper started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs a single sweep immediately
func (s *Sweeper) Sweep(ctx context.Context) error {
	refreshDeleted, blacklistDeleted, err := s.store.DeleteExpired(ctx, s.grace)
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.TokenSweepDeletedTotal.WithLabelValues("refresh_tokens").Add(float64(refreshDeleted))
		s.metrics.TokenSweepDeletedTotal.WithLabelValues("token_blacklist").Add(float64(blacklistDeleted))
	}

	if refreshDeleted > 0 || blacklistDeleted > 0 {
		s.logger.WithFields(map[string]interface{}{
			"refresh_tokens":  refreshDeleted,
			"token_blacklist": blacklistDeleted,
		}).Info("Token retention sweep completed")
	}
	return nil
}

func (s *Sweeper) runOnce() {
	defer observability.RecoverPanic(s.logger, "token retention sweep")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.Sweep(ctx); err != nil {
		s.logger.WithError(err).Error("Token retention sweep failed")
	}
}
