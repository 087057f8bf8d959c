// Package scheduler runs the background maintenance jobs: the stale-pending
// idempotency reaper and the daily analytics rollup.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/emberplay/economy-core/internal/config"
	"github.com/emberplay/economy-core/internal/metrics"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/internal/service/analytics"
	"github.com/emberplay/economy-core/pkg/logger"
)

// Service owns the cron scheduler and its registered jobs.
type Service struct {
	config    *config.Config
	records   *repository.IdempotencyRepository
	analytics *analytics.Service
	log       *logger.Logger
	cron      *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(
	cfg *config.Config,
	records *repository.IdempotencyRepository,
	analyticsService *analytics.Service,
	log *logger.Logger,
) *Service {
	return &Service{
		config:    cfg,
		records:   records,
		analytics: analyticsService,
		log:       log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.Scheduler.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	reaperInterval := s.config.Idempotency.ReaperInterval()
	reaperExpr := fmt.Sprintf("@every %s", reaperInterval)
	if _, err := s.cron.AddFunc(reaperExpr, func() {
		s.runReaper(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to register reaper job: %w", err)
	}

	if s.config.Scheduler.RollupTime != "" && s.analytics != nil {
		rollupExpr, err := buildDailyExpression(s.config.Scheduler.RollupTime)
		if err != nil {
			return fmt.Errorf("failed to build rollup schedule: %w", err)
		}
		if _, err := s.cron.AddFunc(rollupExpr, func() {
			s.runRollup(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to register rollup job: %w", err)
		}
		s.log.Info().
			Str("schedule", rollupExpr).
			Msg("Daily rollup job registered")
	}

	s.cron.Start()

	s.log.Info().
		Str("reaper_interval", reaperInterval.String()).
		Str("timezone", s.config.Scheduler.Timezone).
		Msg("Scheduler started successfully")
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// runReaper sweeps pending idempotency records whose TTL has expired, so
// crashed mutations stop blocking their keys.
func (s *Service) runReaper(ctx context.Context) {
	ttl := s.config.Idempotency.PendingTTL()
	reclaimed, err := s.records.ReapStalePending(ttl)
	if err != nil {
		metrics.RecordReaperRun("error")
		s.log.Error().Err(err).Msg("Stale-pending reap failed")
		return
	}
	metrics.RecordReaperRun("success")
	if reclaimed > 0 {
		metrics.AddReaperReclaimed(reclaimed)
		s.log.Info().
			Int64("reclaimed", reclaimed).
			Str("ttl", ttl.String()).
			Msg("Reclaimed stale pending records")
	}
}

// runRollup aggregates yesterday's audit events into the daily stats table.
func (s *Service) runRollup(ctx context.Context) {
	start := time.Now()
	date := time.Now().UTC().AddDate(0, 0, -1)

	if err := s.analytics.AggregateDaily(ctx, date); err != nil {
		metrics.RecordRollupRun("error")
		s.log.Error().Err(err).Msg("Daily rollup failed")
		return
	}
	metrics.RecordRollupRun("success")
	metrics.ObserveRollupDuration(time.Since(start).Seconds())
}

// buildDailyExpression converts a HH:MM time into a daily cron expression.
func buildDailyExpression(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", timeStr)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}

	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
