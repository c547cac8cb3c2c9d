// Package domain contains supplier invoices received by a tenant. Approved
// incoming invoices feed the SEPA credit transfer export.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Status string

const (
	StatusReceived Status = "received"
	StatusApproved Status = "approved"
	StatusExported Status = "exported"
	StatusPaid     Status = "paid"
)

type IncomingInvoice struct {
	ID            snowflake.ID     `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID     `gorm:"not null;index" json:"tenant_id"`
	Number        string           `gorm:"type:text;not null" json:"number"`
	CreditorName  string           `gorm:"type:text;not null" json:"creditor_name"`
	CreditorIBAN  string           `gorm:"type:text" json:"creditor_iban"`
	CreditorBIC   string           `gorm:"type:text" json:"creditor_bic"`
	GrossAmount   decimal.Decimal  `gorm:"type:numeric;not null" json:"gross_amount"`
	Currency      string           `gorm:"type:text;not null" json:"currency"`
	Status        Status           `gorm:"type:text;not null" json:"status"`
	InvoiceDate   time.Time        `gorm:"not null" json:"invoice_date"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	SkontoPercent *decimal.Decimal `gorm:"type:numeric" json:"skonto_percent,omitempty"`
	SkontoUntil   *time.Time       `json:"skonto_until,omitempty"`
	ExportedAt    *time.Time       `json:"exported_at,omitempty"`
	ExportBatchID string           `gorm:"type:text" json:"export_batch_id,omitempty"`
	CreatedAt     time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"not null" json:"updated_at"`
}

func (IncomingInvoice) TableName() string { return "incoming_invoices" }

var (
	ErrInvalidInvoiceID  = errors.New("invalid_incoming_invoice_id")
	ErrInvoiceNotFound   = errors.New("incoming_invoice_not_found")
	ErrInvalidTransition = errors.New("invalid_status_transition")
)

type Repository interface {
	FindByIDs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]IncomingInvoice, error)
	ListByStatus(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, status Status) ([]IncomingInvoice, error)
	MarkExported(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID, batchID string, now time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, from []Status, to Status, now time.Time) (bool, error)
}
