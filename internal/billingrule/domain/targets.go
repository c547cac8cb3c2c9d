package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Lease is a land-lease contract with a lessor. lease_billing rules invoice
// the periodic lease fee per active lease.
type Lease struct {
	ID         snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	LessorName string          `gorm:"type:text;not null" json:"lessor_name"`
	ParcelRef  string          `gorm:"type:text" json:"parcel_ref"`
	AnnualFee  decimal.Decimal `gorm:"type:numeric;not null" json:"annual_fee"`
	Active     bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"not null" json:"updated_at"`
}

func (Lease) TableName() string { return "leases" }

// Shareholder participates in shareholder_distribution runs pro rata by
// share count. Distributions are issued as credit notes.
type Shareholder struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Shares    int64        `gorm:"not null" json:"shares"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Shareholder) TableName() string { return "shareholders" }

// WindPark is the operated asset management_fee rules bill per park.
type WindPark struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	RatedPowerKW int64        `gorm:"not null" json:"rated_power_kw"`
	Active       bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (WindPark) TableName() string { return "wind_parks" }

type Repository interface {
	FindRule(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*BillingRule, error)
	ListRules(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, opts ListOptions, limit, offset int) ([]BillingRule, error)
	InsertRule(ctx context.Context, db *gorm.DB, rule *BillingRule) error
	AdvanceNextRunAt(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, next time.Time, now time.Time) error
	InsertExecution(ctx context.Context, db *gorm.DB, execution *RuleExecution) error

	ListActiveLeases(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]Lease, error)
	ListActiveShareholders(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]Shareholder, error)
	ListActiveWindParks(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]WindPark, error)
}
