package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	incomingdomain "github.com/windparklabs/windbill/internal/incominginvoice/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() incomingdomain.Repository {
	return &repository{}
}

func (r *repository) FindByIDs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]incomingdomain.IncomingInvoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var invoices []incomingdomain.IncomingInvoice
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id ASC").
		Find(&invoices).Error
	return invoices, err
}

func (r *repository) ListByStatus(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, status incomingdomain.Status) ([]incomingdomain.IncomingInvoice, error) {
	var invoices []incomingdomain.IncomingInvoice
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Order("id ASC").
		Find(&invoices).Error
	return invoices, err
}

func (r *repository) MarkExported(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID, batchID string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&incomingdomain.IncomingInvoice{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Updates(map[string]any{
			"status":          incomingdomain.StatusExported,
			"exported_at":     now,
			"export_batch_id": batchID,
			"updated_at":      now,
		}).Error
}

func (r *repository) UpdateStatus(
	ctx context.Context,
	db *gorm.DB,
	tenantID, id snowflake.ID,
	from []incomingdomain.Status,
	to incomingdomain.Status,
	now time.Time,
) (bool, error) {
	result := db.WithContext(ctx).Model(&incomingdomain.IncomingInvoice{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, id, from).
		Updates(map[string]any{"status": to, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
