package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingruledomain "github.com/windparklabs/windbill/internal/billingrule/domain"
	"github.com/windparklabs/windbill/internal/config"
	"github.com/windparklabs/windbill/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type recordingRuleService struct {
	billingruledomain.Service
	executed []string
}

func (r *recordingRuleService) Execute(ctx context.Context, tenantID snowflake.ID, ruleID string, opts billingruledomain.ExecuteOptions) (*billingruledomain.ExecutionResult, error) {
	r.executed = append(r.executed, ruleID)
	return &billingruledomain.ExecutionResult{ExecutionID: "exec-" + ruleID, Status: billingruledomain.StatusSuccess}, nil
}

func newSchedulerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&billingruledomain.BillingRule{}))
	return db
}

func TestRunDueRulesExecutesElapsedSchedules(t *testing.T) {
	db := newSchedulerTestDB(t)
	now := time.Date(2025, time.July, 1, 6, 0, 0, 0, time.UTC)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	due := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	ruleDue := billingruledomain.BillingRule{
		ID: node.Generate(), TenantID: node.Generate(), Name: "due", Code: "due",
		RuleType: billingruledomain.RuleTypeLeaseBilling, IsActive: true,
		IntervalMonths: 1, NextRunAt: &due, CreatedAt: now, UpdatedAt: now,
	}
	ruleFuture := billingruledomain.BillingRule{
		ID: node.Generate(), TenantID: ruleDue.TenantID, Name: "future", Code: "future",
		RuleType: billingruledomain.RuleTypeLeaseBilling, IsActive: true,
		IntervalMonths: 1, NextRunAt: &future, CreatedAt: now, UpdatedAt: now,
	}
	ruleInactive := billingruledomain.BillingRule{
		ID: node.Generate(), TenantID: ruleDue.TenantID, Name: "inactive", Code: "inactive",
		RuleType: billingruledomain.RuleTypeLeaseBilling, IsActive: false,
		IntervalMonths: 1, NextRunAt: &due, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(&ruleDue).Error)
	require.NoError(t, db.Create(&ruleFuture).Error)
	require.NoError(t, db.Create(&ruleInactive).Error)

	ruleSvc := &recordingRuleService{}
	s := &Scheduler{
		db:      db,
		log:     zap.NewNop(),
		clock:   fixedClock{now: now},
		cfg:     config.SchedulerConfig{BatchSize: 10},
		ruleSvc: ruleSvc,
	}

	executed, err := s.RunDueRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, executed)
	assert.Equal(t, []string{ruleDue.ID.String()}, ruleSvc.executed)

	// The claim advanced the schedule past now, a second pass is a no-op.
	executed, err = s.RunDueRules(context.Background())
	require.NoError(t, err)
	assert.Zero(t, executed)
	assert.Len(t, ruleSvc.executed, 1)

	var stored billingruledomain.BillingRule
	require.NoError(t, db.First(&stored, "id = ?", ruleDue.ID).Error)
	require.NotNil(t, stored.NextRunAt)
	assert.True(t, stored.NextRunAt.After(now))
}

func TestClaimSkipsPastMissedPeriods(t *testing.T) {
	db := newSchedulerTestDB(t)
	now := time.Date(2025, time.July, 1, 6, 0, 0, 0, time.UTC)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	// Five months overdue on a monthly cadence.
	overdue := now.AddDate(0, -5, 0)
	rule := billingruledomain.BillingRule{
		ID: node.Generate(), TenantID: node.Generate(), Name: "stale", Code: "stale",
		RuleType: billingruledomain.RuleTypeLeaseBilling, IsActive: true,
		IntervalMonths: 1, NextRunAt: &overdue, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(&rule).Error)

	s := &Scheduler{db: db, log: zap.NewNop(), clock: fixedClock{now: now}}
	claimed, err := s.claim(context.Background(), dueRule{
		ID: rule.ID, TenantID: rule.TenantID, IntervalMonths: 1, NextRunAt: overdue,
	}, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	var stored billingruledomain.BillingRule
	require.NoError(t, db.First(&stored, "id = ?", rule.ID).Error)
	assert.Equal(t, overdue.AddDate(0, 6, 0).Unix(), stored.NextRunAt.Unix())

	// A concurrent claim on the already advanced row loses.
	claimed, err = s.claim(context.Background(), dueRule{
		ID: rule.ID, TenantID: rule.TenantID, IntervalMonths: 1, NextRunAt: overdue,
	}, now)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestPurgeDeliveredEventsHonorsRetention(t *testing.T) {
	db := newSchedulerTestDB(t)
	require.NoError(t, db.AutoMigrate(&events.BillingEvent{}))
	now := time.Date(2025, time.July, 1, 6, 0, 0, 0, time.UTC)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	tenantID := node.Generate()

	oldDelivered := events.BillingEvent{
		ID: node.Generate(), TenantID: tenantID, EventType: "rule.executed",
		Published: true, CreatedAt: now.AddDate(0, 0, -120),
	}
	oldPending := events.BillingEvent{
		ID: node.Generate(), TenantID: tenantID, EventType: "rule.executed",
		Published: false, CreatedAt: now.AddDate(0, 0, -120),
	}
	recent := events.BillingEvent{
		ID: node.Generate(), TenantID: tenantID, EventType: "rule.executed",
		Published: true, CreatedAt: now.AddDate(0, 0, -5),
	}
	require.NoError(t, db.Create(&oldDelivered).Error)
	require.NoError(t, db.Create(&oldPending).Error)
	require.NoError(t, db.Create(&recent).Error)

	s := &Scheduler{
		db:    db,
		log:   zap.NewNop(),
		clock: fixedClock{now: now},
		cfg:   config.SchedulerConfig{EventRetentionDays: 90},
	}

	deleted, err := s.PurgeDeliveredEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []events.BillingEvent
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 2)
	for _, event := range remaining {
		assert.NotEqual(t, oldDelivered.ID, event.ID)
	}

	// Retention disabled keeps everything.
	s.cfg.EventRetentionDays = 0
	deleted, err = s.PurgeDeliveredEvents(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
