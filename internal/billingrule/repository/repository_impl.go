package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingruledomain "github.com/windparklabs/windbill/internal/billingrule/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() billingruledomain.Repository {
	return &repository{}
}

func (r *repository) FindRule(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*billingruledomain.BillingRule, error) {
	var rule billingruledomain.BillingRule
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&rule).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *repository) ListRules(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, opts billingruledomain.ListOptions, limit, offset int) ([]billingruledomain.BillingRule, error) {
	query := db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if opts.RuleType != "" {
		query = query.Where("rule_type = ?", opts.RuleType)
	}

	var rules []billingruledomain.BillingRule
	err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&rules).Error
	return rules, err
}

func (r *repository) InsertRule(ctx context.Context, db *gorm.DB, rule *billingruledomain.BillingRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repository) AdvanceNextRunAt(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, next time.Time, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_rules SET next_run_at = ?, updated_at = ? WHERE id = ?`,
		next,
		now,
		ruleID,
	).Error
}

func (r *repository) InsertExecution(ctx context.Context, db *gorm.DB, execution *billingruledomain.RuleExecution) error {
	return db.WithContext(ctx).Create(execution).Error
}

func (r *repository) ListActiveLeases(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]billingruledomain.Lease, error) {
	var leases []billingruledomain.Lease
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, lessor_name, parcel_ref, annual_fee, active, created_at, updated_at
		 FROM leases
		 WHERE tenant_id = ? AND active
		 ORDER BY id`,
		tenantID,
	).Scan(&leases).Error
	return leases, err
}

func (r *repository) ListActiveShareholders(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]billingruledomain.Shareholder, error) {
	var shareholders []billingruledomain.Shareholder
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, shares, active, created_at, updated_at
		 FROM shareholders
		 WHERE tenant_id = ? AND active
		 ORDER BY id`,
		tenantID,
	).Scan(&shareholders).Error
	return shareholders, err
}

func (r *repository) ListActiveWindParks(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]billingruledomain.WindPark, error) {
	var parks []billingruledomain.WindPark
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, rated_power_kw, active, created_at, updated_at
		 FROM wind_parks
		 WHERE tenant_id = ? AND active
		 ORDER BY id`,
		tenantID,
	).Scan(&parks).Error
	return parks, err
}
