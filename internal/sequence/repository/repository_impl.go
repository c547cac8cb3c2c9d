package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	sequencedomain "github.com/windparklabs/windbill/internal/sequence/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() sequencedomain.Repository {
	return &repository{}
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, docType sequencedomain.DocumentType) (*sequencedomain.NumberSequence, error) {
	var seq sequencedomain.NumberSequence
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND document_type = ?", tenantID, docType).
		First(&seq).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &seq, nil
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, seq *sequencedomain.NumberSequence) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO number_sequences (
			id, tenant_id, document_type, format, current_year, next_number, digit_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, document_type) DO NOTHING`,
		seq.ID,
		seq.TenantID,
		seq.DocumentType,
		seq.Format,
		seq.CurrentYear,
		seq.NextNumber,
		seq.DigitCount,
		seq.CreatedAt,
		seq.UpdatedAt,
	).Error
}

func (r *repository) CompareAndAdvance(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	observedYear int,
	observedNumber int64,
	newYear int,
	newNext int64,
	now time.Time,
) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE number_sequences
		 SET next_number = ?, current_year = ?, updated_at = ?
		 WHERE id = ? AND next_number = ? AND current_year = ?`,
		newNext,
		newYear,
		now,
		id,
		observedNumber,
		observedYear,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) UpdateSettings(ctx context.Context, db *gorm.DB, id snowflake.ID, format string, digitCount int, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE number_sequences SET format = ?, digit_count = ?, updated_at = ? WHERE id = ?`,
		format,
		digitCount,
		now,
		id,
	).Error
}
