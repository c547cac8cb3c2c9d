// Package domain holds the tenant registry model. Every other entity in the
// system is partitioned by tenant ID.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Currency  string       `gorm:"type:text;not null;default:EUR" json:"currency"`
	IBAN      string       `gorm:"type:text" json:"iban"`
	BIC       string       `gorm:"type:text" json:"bic"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

var (
	ErrTenantNotFound = errors.New("tenant_not_found")
	ErrTenantInactive = errors.New("tenant_inactive")
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
}

// MustBeActive loads a tenant and rejects missing or deactivated ones.
func MustBeActive(ctx context.Context, db *gorm.DB, repo Repository, id snowflake.ID) (*Tenant, error) {
	tenant, err := repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}
	if !tenant.Active {
		return nil, ErrTenantInactive
	}
	return tenant, nil
}
