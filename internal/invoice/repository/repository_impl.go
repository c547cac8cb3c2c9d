package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/windparklabs/windbill/internal/invoice/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() invoicedomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, opts invoicedomain.ListOptions, limit, offset int) ([]invoicedomain.Invoice, error) {
	query := db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}
	if opts.RuleID != 0 {
		query = query.Where("rule_id = ?", opts.RuleID)
	}

	var invoices []invoicedomain.Invoice
	err := query.Order("issued_at DESC, id DESC").Limit(limit).Offset(offset).Find(&invoices).Error
	return invoices, err
}

func (r *repository) UpdateStatus(
	ctx context.Context,
	db *gorm.DB,
	tenantID, id snowflake.ID,
	from []invoicedomain.InvoiceStatus,
	to invoicedomain.InvoiceStatus,
	now time.Time,
) (bool, error) {
	result := db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, id, from).
		Updates(map[string]any{"status": to, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
