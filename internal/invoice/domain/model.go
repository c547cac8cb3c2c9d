// Package domain contains outgoing invoice and credit note models.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	sequencedomain "github.com/windparklabs/windbill/internal/sequence/domain"
	"github.com/windparklabs/windbill/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft    InvoiceStatus = "draft"
	InvoiceStatusOpen     InvoiceStatus = "open"
	InvoiceStatusSent     InvoiceStatus = "sent"
	InvoiceStatusPaid     InvoiceStatus = "paid"
	InvoiceStatusArchived InvoiceStatus = "archived"
)

type Invoice struct {
	ID            snowflake.ID                `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID                `gorm:"not null;uniqueIndex:idx_invoices_tenant_number" json:"tenant_id"`
	RuleID        *snowflake.ID               `gorm:"index" json:"rule_id,omitempty"`
	ExecutionID   string                      `gorm:"type:text;index" json:"execution_id,omitempty"`
	DocumentType  sequencedomain.DocumentType `gorm:"type:text;not null" json:"document_type"`
	InvoiceNumber string                      `gorm:"type:text;not null;uniqueIndex:idx_invoices_tenant_number" json:"invoice_number"`
	TargetType    string                      `gorm:"type:text;not null" json:"target_type"`
	TargetID      snowflake.ID                `gorm:"not null;index" json:"target_id"`
	RecipientName string                      `gorm:"type:text;not null" json:"recipient_name"`
	Description   string                      `gorm:"type:text" json:"description"`
	NetAmount     decimal.Decimal             `gorm:"type:numeric;not null" json:"net_amount"`
	VatRate       decimal.Decimal             `gorm:"type:numeric;not null" json:"vat_rate"`
	VatAmount     decimal.Decimal             `gorm:"type:numeric;not null" json:"vat_amount"`
	GrossAmount   decimal.Decimal             `gorm:"type:numeric;not null" json:"gross_amount"`
	Currency      string                      `gorm:"type:text;not null" json:"currency"`
	Status        InvoiceStatus               `gorm:"type:text;not null" json:"status"`
	IssuedAt      time.Time                   `gorm:"not null" json:"issued_at"`
	DueDate       time.Time                   `gorm:"not null" json:"due_date"`
	SkontoPercent *decimal.Decimal            `gorm:"type:numeric" json:"skonto_percent,omitempty"`
	SkontoUntil   *time.Time                  `json:"skonto_until,omitempty"`
	Metadata      datatypes.JSONMap           `json:"metadata,omitempty"`
	CreatedAt     time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time                   `gorm:"not null" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

var (
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrInvalidTransition   = errors.New("invalid_status_transition")
	ErrInvalidDocumentType = errors.New("invalid_document_type")
)

type CreateForRuleRequest struct {
	TenantID      snowflake.ID
	RuleID        snowflake.ID
	ExecutionID   string
	DocumentType  sequencedomain.DocumentType
	TargetType    string
	TargetID      snowflake.ID
	RecipientName string
	Description   string
	NetAmount     decimal.Decimal
	VatRate       decimal.Decimal
	Currency      string
	IssuedAt      time.Time
	DueInDays     int
	SkontoPercent *decimal.Decimal
	SkontoDays    int
}

type ListOptions struct {
	Status    InvoiceStatus
	RuleID    snowflake.ID
	PageToken string
	PageSize  int
}

type ListResult struct {
	Invoices []Invoice
	PageInfo pagination.PageInfo
}

type Service interface {
	// CreateForRule allocates an invoice number and inserts the row inside tx,
	// so a failed insert rolls the number draw back with it.
	CreateForRule(ctx context.Context, tx *gorm.DB, req CreateForRuleRequest) (*Invoice, error)
	GetByID(ctx context.Context, tenantID snowflake.ID, id string) (*Invoice, error)
	List(ctx context.Context, tenantID snowflake.ID, opts ListOptions) (*ListResult, error)
	// Send and Archive are the per-item operations behind the batch endpoints.
	Send(ctx context.Context, tenantID snowflake.ID, id snowflake.ID) error
	Archive(ctx context.Context, tenantID snowflake.ID, id snowflake.ID) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, opts ListOptions, limit, offset int) ([]Invoice, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, from []InvoiceStatus, to InvoiceStatus, now time.Time) (bool, error)
}
