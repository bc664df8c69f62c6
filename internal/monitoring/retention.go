package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// EventPruner deletes events past the retention horizon.
type EventPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertPruner deletes alerts past the retention horizon.
type AlertPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationPruner deletes read ephemeral notifications past the horizon.
type NotificationPruner interface {
	DeleteReadEphemeralOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Redeliverer re-dispatches alerts that were recorded but never closed.
type Redeliverer interface {
	RedeliverOpen(ctx context.Context, limit int) (int, error)
}

// RetentionSweeper runs the daily housekeeping pass: redeliver open alerts,
// then prune events, alerts and read ephemeral notifications older than the
// retention horizon.
type RetentionSweeper struct {
	events        EventPruner
	alerts        AlertPruner
	notifications NotificationPruner
	redeliver     Redeliverer
	schedule      cron.Schedule
	retentionDays int
	nextRun       time.Time
	ticker        *time.Ticker
	done          chan bool
}

// NewRetentionSweeper creates a sweeper firing on the given cron expression
// (standard five-field syntax).
func NewRetentionSweeper(events EventPruner, alerts AlertPruner, notifications NotificationPruner, redeliver Redeliverer, cronExpr string, retentionDays int) (*RetentionSweeper, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid retention cron expression %q: %w", cronExpr, err)
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &RetentionSweeper{
		events:        events,
		alerts:        alerts,
		notifications: notifications,
		redeliver:     redeliver,
		schedule:      schedule,
		retentionDays: retentionDays,
		nextRun:       schedule.Next(time.Now()),
		done:          make(chan bool),
	}, nil
}

// Run starts the sweeper's ticking loop.
func (s *RetentionSweeper) Run() {
	log.Info().Time("next_run", s.nextRun).Int("retention_days", s.retentionDays).Msg("Starting retention sweeper...")
	s.ticker = time.NewTicker(1 * time.Minute)
	defer s.ticker.Stop()

	for {
		select {
		case <-s.done:
			log.Info().Msg("Stopping retention sweeper.")
			return
		case <-s.ticker.C:
			now := time.Now()
			if now.After(s.nextRun) {
				s.Sweep()
				s.nextRun = s.schedule.Next(now)
			}
		}
	}
}

// Stop halts the sweeper.
func (s *RetentionSweeper) Stop() {
	s.done <- true
}

// Sweep performs one housekeeping pass.
func (s *RetentionSweeper) Sweep() {
	ctx := context.Background()
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	if _, err := s.redeliver.RedeliverOpen(ctx, 500); err != nil {
		log.Error().Err(err).Msg("Sweeper: open alert redelivery failed")
	}

	if n, err := s.events.DeleteOlderThan(ctx, cutoff); err != nil {
		log.Error().Err(err).Msg("Sweeper: failed to prune events")
	} else if n > 0 {
		log.Info().Int64("deleted", n).Msg("Sweeper: pruned old events")
	}

	if n, err := s.alerts.DeleteOlderThan(ctx, cutoff); err != nil {
		log.Error().Err(err).Msg("Sweeper: failed to prune alerts")
	} else if n > 0 {
		log.Info().Int64("deleted", n).Msg("Sweeper: pruned old alerts")
	}

	if n, err := s.notifications.DeleteReadEphemeralOlderThan(ctx, cutoff); err != nil {
		log.Error().Err(err).Msg("Sweeper: failed to prune notifications")
	} else if n > 0 {
		log.Info().Int64("deleted", n).Msg("Sweeper: pruned read ephemeral notifications")
	}
}
