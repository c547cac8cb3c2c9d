// Package scheduler drives the periodic work of the system: executing due
// billing rules and delivering outbox events to webhook endpoints.
package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingruledomain "github.com/windparklabs/windbill/internal/billingrule/domain"
	"github.com/windparklabs/windbill/internal/clock"
	"github.com/windparklabs/windbill/internal/config"
	"github.com/windparklabs/windbill/internal/observability"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	cfg        config.SchedulerConfig
	ruleSvc    billingruledomain.Service
	dispatcher *Dispatcher
	metrics    *observability.Metrics
}

type Param struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Config  *config.Config
	RuleSvc billingruledomain.Service
	Metrics *observability.Metrics `optional:"true"`
}

func New(p Param) *Scheduler {
	log := p.Log.Named("scheduler")
	return &Scheduler{
		db:         p.DB,
		log:        log,
		clock:      p.Clock,
		cfg:        p.Config.Scheduler,
		ruleSvc:    p.RuleSvc,
		dispatcher: NewDispatcher(p.DB, log, p.Clock, p.Config.Scheduler),
		metrics:    p.Metrics,
	}
}

// Run ticks until the context is cancelled. The first tick fires
// immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunDueRules(ctx); err != nil {
		s.log.Error("due rule run failed", zap.Error(err))
	}
	if _, err := s.dispatcher.DispatchEvents(ctx); err != nil {
		s.log.Error("event dispatch failed", zap.Error(err))
	}
	if _, err := s.PurgeDeliveredEvents(ctx); err != nil {
		s.log.Error("event purge failed", zap.Error(err))
	}
}

type dueRule struct {
	ID             snowflake.ID
	TenantID       snowflake.ID
	IntervalMonths int
	NextRunAt      time.Time
}

// RunDueRules claims and executes every rule whose schedule has elapsed.
// Claiming advances next_run_at with a conditional update keyed on the
// observed value, so concurrent scheduler instances never run the same
// period twice.
func (s *Scheduler) RunDueRules(ctx context.Context) (int, error) {
	now := s.clock.Now()
	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	var candidates []dueRule
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, interval_months, next_run_at
		 FROM billing_rules
		 WHERE is_active AND next_run_at IS NOT NULL AND next_run_at <= ?
		 ORDER BY next_run_at ASC, id ASC
		 LIMIT ?`,
		now,
		batchSize,
	).Scan(&candidates).Error
	if err != nil {
		return 0, err
	}

	executed := 0
	for _, rule := range candidates {
		claimed, err := s.claim(ctx, rule, now)
		if err != nil {
			s.log.Error("rule claim failed", zap.String("rule_id", rule.ID.String()), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		result, err := s.ruleSvc.Execute(ctx, rule.TenantID, rule.ID.String(), billingruledomain.ExecuteOptions{
			ForceRun: true,
		})
		if err != nil {
			s.log.Error("scheduled rule execution failed",
				zap.String("rule_id", rule.ID.String()),
				zap.Error(err))
			continue
		}
		executed++
		s.log.Info("scheduled rule executed",
			zap.String("rule_id", rule.ID.String()),
			zap.String("execution_id", result.ExecutionID),
			zap.Int("invoices_created", result.InvoicesCreated))
	}
	return executed, nil
}

func (s *Scheduler) claim(ctx context.Context, rule dueRule, now time.Time) (bool, error) {
	interval := rule.IntervalMonths
	if interval <= 0 {
		interval = 1
	}
	// Skip forward past missed periods so a long outage does not replay
	// every elapsed interval at once.
	next := rule.NextRunAt.AddDate(0, interval, 0)
	for !next.After(now) {
		next = next.AddDate(0, interval, 0)
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE billing_rules
		 SET next_run_at = ?, updated_at = ?
		 WHERE id = ? AND next_run_at = ?`,
		next,
		now,
		rule.ID,
		rule.NextRunAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
