// Package domain contains the SEPA credit transfer export contracts. An
// export turns approved incoming invoices into one ISO 20022 style payment
// initiation document.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrNoEligiblePayments = errors.New("no_eligible_payments")
	ErrMissingDebtorIBAN  = errors.New("missing_debtor_iban")
)

type ExportRequest struct {
	// InvoiceIDs narrows the export to specific approved invoices. Empty
	// exports every approved invoice of the tenant.
	InvoiceIDs []snowflake.ID
	// RequestedExecutionDate defaults to the next day when zero.
	RequestedExecutionDate time.Time
}

// SkippedInvoice names an invoice excluded from the document and why.
type SkippedInvoice struct {
	InvoiceID string `json:"invoice_id"`
	Reason    string `json:"reason"`
}

type ExportResult struct {
	MessageID    string           `json:"message_id"`
	BatchID      string           `json:"batch_id"`
	Document     []byte           `json:"-"`
	PaymentCount int              `json:"payment_count"`
	TotalAmount  decimal.Decimal  `json:"total_amount"`
	IncludedIDs  []string         `json:"included_ids"`
	Skipped      []SkippedInvoice `json:"skipped"`
}

type Service interface {
	// Export builds the payment document and marks the included invoices as
	// exported. Ineligible invoices are skipped, never fatal; an export with
	// zero eligible payments fails with ErrNoEligiblePayments and writes
	// nothing.
	Export(ctx context.Context, tenantID snowflake.ID, req ExportRequest) (*ExportResult, error)
}
