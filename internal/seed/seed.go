// Package seed installs a demo tenant with wind parks, leases, shareholders
// and billing rules. It is idempotent: re-running against a seeded database
// changes nothing.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	billingruledomain "github.com/windparklabs/windbill/internal/billingrule/domain"
	tenantdomain "github.com/windparklabs/windbill/internal/tenant/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	demoTenantName = "Windpark Nordsee GmbH & Co. KG"
	demoTenantIBAN = "DE89370400440532013000"
)

// EnsureDemoTenant seeds the demo tenant and its billing entities.
func EnsureDemoTenant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := ensureTenant(ctx, tx, node)
		if err != nil {
			return err
		}
		if err := ensureWindParks(ctx, tx, node, tenant.ID); err != nil {
			return err
		}
		if err := ensureLeases(ctx, tx, node, tenant.ID); err != nil {
			return err
		}
		if err := ensureShareholders(ctx, tx, node, tenant.ID); err != nil {
			return err
		}
		return ensureRules(ctx, tx, node, tenant.ID)
	})
}

func ensureTenant(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*tenantdomain.Tenant, error) {
	tenantSlug := slug.Make(demoTenantName)

	var existing tenantdomain.Tenant
	err := tx.WithContext(ctx).Where("slug = ?", tenantSlug).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	tenant := &tenantdomain.Tenant{
		ID:        node.Generate(),
		Name:      demoTenantName,
		Slug:      tenantSlug,
		Currency:  "EUR",
		IBAN:      demoTenantIBAN,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(tenant).Error; err != nil {
		return nil, err
	}
	return tenant, nil
}

func ensureWindParks(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID snowflake.ID) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&billingruledomain.WindPark{}).
		Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	parks := []billingruledomain.WindPark{
		{ID: node.Generate(), TenantID: tenantID, Name: "Windpark Norddeich", RatedPowerKW: 12000, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), TenantID: tenantID, Name: "Windpark Friedrichskoog", RatedPowerKW: 8400, Active: true, CreatedAt: now, UpdatedAt: now},
	}
	return tx.WithContext(ctx).Create(&parks).Error
}

func ensureLeases(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID snowflake.ID) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&billingruledomain.Lease{}).
		Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	leases := []billingruledomain.Lease{
		{ID: node.Generate(), TenantID: tenantID, LessorName: "Hof Petersen", ParcelRef: "Flur 3, Flurstueck 12", AnnualFee: decimal.NewFromInt(4800), Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), TenantID: tenantID, LessorName: "Hof Johannsen", ParcelRef: "Flur 7, Flurstueck 4", AnnualFee: decimal.NewFromInt(3600), Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), TenantID: tenantID, LessorName: "Gemeinde Norddeich", ParcelRef: "Flur 1, Flurstueck 9", AnnualFee: decimal.NewFromInt(7200), Active: true, CreatedAt: now, UpdatedAt: now},
	}
	return tx.WithContext(ctx).Create(&leases).Error
}

func ensureShareholders(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID snowflake.ID) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&billingruledomain.Shareholder{}).
		Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	shareholders := []billingruledomain.Shareholder{
		{ID: node.Generate(), TenantID: tenantID, Name: "Nordsee Beteiligungs GmbH", Shares: 600, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), TenantID: tenantID, Name: "Stadtwerke Husum", Shares: 300, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), TenantID: tenantID, Name: "Buergerenergie Dithmarschen eG", Shares: 100, Active: true, CreatedAt: now, UpdatedAt: now},
	}
	return tx.WithContext(ctx).Create(&shareholders).Error
}

func ensureRules(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID snowflake.ID) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&billingruledomain.BillingRule{}).
		Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	firstRun := time.Date(now.Year(), now.Month(), 1, 6, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	rules := []billingruledomain.BillingRule{
		{
			ID:             node.Generate(),
			TenantID:       tenantID,
			Name:           "Pachtabrechnung vierteljaehrlich",
			Code:           slug.Make("Pachtabrechnung vierteljaehrlich"),
			RuleType:       billingruledomain.RuleTypeLeaseBilling,
			IsActive:       true,
			IntervalMonths: 3,
			NextRunAt:      &firstRun,
			Parameters:     datatypes.JSONMap{"vat_rate": 19, "due_days": 14},
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:             node.Generate(),
			TenantID:       tenantID,
			Name:           "Betriebsfuehrung monatlich",
			Code:           slug.Make("Betriebsfuehrung monatlich"),
			RuleType:       billingruledomain.RuleTypeManagementFee,
			IsActive:       true,
			IntervalMonths: 1,
			NextRunAt:      &firstRun,
			Parameters:     datatypes.JSONMap{"base_amount": 500, "rate_per_kw": 2.5, "vat_rate": 19},
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	return tx.WithContext(ctx).Create(&rules).Error
}
