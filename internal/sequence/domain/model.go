// Package domain contains the per-tenant invoice numbering model.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type DocumentType string

const (
	DocumentTypeInvoice    DocumentType = "INVOICE"
	DocumentTypeCreditNote DocumentType = "CREDIT_NOTE"
)

func (d DocumentType) Valid() bool {
	return d == DocumentTypeInvoice || d == DocumentTypeCreditNote
}

const (
	DefaultInvoiceFormat    = "RG-{YEAR}-{NUMBER}"
	DefaultCreditNoteFormat = "GS-{YEAR}-{NUMBER}"
	DefaultDigitCount       = 4
)

// NumberSequence is the monotonic counter behind human-readable invoice
// numbers. One row per (tenant, document type), created lazily, never deleted.
type NumberSequence struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID `gorm:"not null;uniqueIndex:idx_number_sequences_tenant_type" json:"tenant_id"`
	DocumentType DocumentType `gorm:"type:text;not null;uniqueIndex:idx_number_sequences_tenant_type" json:"document_type"`
	Format       string       `gorm:"type:text;not null" json:"format"`
	CurrentYear  int          `gorm:"not null" json:"current_year"`
	NextNumber   int64        `gorm:"not null" json:"next_number"`
	DigitCount   int          `gorm:"not null" json:"digit_count"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (NumberSequence) TableName() string { return "number_sequences" }

// Allocation is one committed draw from a sequence.
type Allocation struct {
	Number          int64
	FormattedNumber string
	Year            int
}

type UpdateRequest struct {
	Format     *string
	DigitCount *int
}

var (
	ErrInvalidTenant       = errors.New("invalid_tenant_id")
	ErrInvalidDocumentType = errors.New("invalid_document_type")
	ErrInvalidDigitCount   = errors.New("invalid_digit_count")
	ErrSequenceConflict    = errors.New("sequence_conflict")
)

type Service interface {
	Get(ctx context.Context, tenantID snowflake.ID, docType DocumentType) (*NumberSequence, error)
	Update(ctx context.Context, tenantID snowflake.ID, docType DocumentType, req UpdateRequest) (*NumberSequence, error)
	// Preview renders the number the next allocation would produce without
	// committing anything. It applies the same year-rollover computation a
	// real allocation performs, so preview and commit never diverge.
	Preview(ctx context.Context, tenantID snowflake.ID, docType DocumentType) (string, error)
	// Allocate draws the next number inside db (a transaction handle when the
	// caller needs the draw to roll back with its own writes). Conflicting
	// concurrent draws are retried internally.
	Allocate(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, docType DocumentType) (*Allocation, error)
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, docType DocumentType) (*NumberSequence, error)
	Insert(ctx context.Context, db *gorm.DB, seq *NumberSequence) error
	// CompareAndAdvance commits a draw only if the stored counter still
	// matches the observed (year, number) pair. Returns false on a lost race.
	CompareAndAdvance(ctx context.Context, db *gorm.DB, id snowflake.ID, observedYear int, observedNumber int64, newYear int, newNext int64, now time.Time) (bool, error)
	UpdateSettings(ctx context.Context, db *gorm.DB, id snowflake.ID, format string, digitCount int, now time.Time) error
}
