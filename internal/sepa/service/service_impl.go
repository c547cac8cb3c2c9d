package service

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/windparklabs/windbill/internal/clock"
	"github.com/windparklabs/windbill/internal/config"
	"github.com/windparklabs/windbill/internal/events"
	incomingdomain "github.com/windparklabs/windbill/internal/incominginvoice/domain"
	incomingrepository "github.com/windparklabs/windbill/internal/incominginvoice/repository"
	"github.com/windparklabs/windbill/internal/observability"
	sepadomain "github.com/windparklabs/windbill/internal/sepa/domain"
	tenantdomain "github.com/windparklabs/windbill/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultMessagePrefix = "WINDBILL"

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	tenantRepo   tenantdomain.Repository
	incomingRepo incomingdomain.Repository
	outbox       *events.Outbox
	metrics      *observability.Metrics
	prefix       string
	initiator    string
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Config     *config.Config
	TenantRepo tenantdomain.Repository
	Outbox     *events.Outbox         `optional:"true"`
	Metrics    *observability.Metrics `optional:"true"`
}

func NewService(p ServiceParam) sepadomain.Service {
	prefix := defaultMessagePrefix
	initiator := ""
	if p.Config != nil {
		if p.Config.Sepa.MessagePrefix != "" {
			prefix = p.Config.Sepa.MessagePrefix
		}
		initiator = p.Config.Sepa.InitiatorName
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("sepa.service"),
		clock:        p.Clock,
		tenantRepo:   p.TenantRepo,
		incomingRepo: incomingrepository.NewRepository(),
		outbox:       p.Outbox,
		metrics:      p.Metrics,
		prefix:       prefix,
		initiator:    initiator,
	}
}

func (s *Service) Export(ctx context.Context, tenantID snowflake.ID, req sepadomain.ExportRequest) (*sepadomain.ExportResult, error) {
	tenant, err := tenantdomain.MustBeActive(ctx, s.db, s.tenantRepo, tenantID)
	if err != nil {
		return nil, err
	}
	debtorIBAN := sepadomain.NormalizeIBAN(tenant.IBAN)
	if debtorIBAN == "" || !sepadomain.ValidIBAN(debtorIBAN) {
		return nil, sepadomain.ErrMissingDebtorIBAN
	}

	var candidates []incomingdomain.IncomingInvoice
	if len(req.InvoiceIDs) > 0 {
		candidates, err = s.incomingRepo.FindByIDs(ctx, s.db, tenantID, req.InvoiceIDs)
	} else {
		candidates, err = s.incomingRepo.ListByStatus(ctx, s.db, tenantID, incomingdomain.StatusApproved)
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	executionDate := req.RequestedExecutionDate
	if executionDate.IsZero() {
		executionDate = now.AddDate(0, 0, 1)
	}

	result := &sepadomain.ExportResult{
		MessageID:   s.messageID(now),
		TotalAmount: decimal.Zero,
	}
	result.BatchID = result.MessageID

	var payments []sepadomain.Payment
	var includedIDs []snowflake.ID
	for _, invoice := range candidates {
		if reason := eligibility(invoice); reason != "" {
			result.Skipped = append(result.Skipped, sepadomain.SkippedInvoice{
				InvoiceID: invoice.ID.String(),
				Reason:    reason,
			})
			continue
		}
		currency := invoice.Currency
		if currency == "" {
			currency = tenant.Currency
		}
		payments = append(payments, sepadomain.Payment{
			EndToEndID: sepadomain.SanitizeEndToEndID(endToEndSource(invoice)),
			Amount:     invoice.GrossAmount.StringFixed(2),
			Currency:   currency,
			Creditor: sepadomain.Party{
				Name: invoice.CreditorName,
				IBAN: sepadomain.NormalizeIBAN(invoice.CreditorIBAN),
				BIC:  invoice.CreditorBIC,
			},
			RemittanceText:         remittanceText(invoice),
			RequestedExecutionDate: executionDate.Format("2006-01-02"),
		})
		includedIDs = append(includedIDs, invoice.ID)
		result.IncludedIDs = append(result.IncludedIDs, invoice.ID.String())
		result.TotalAmount = result.TotalAmount.Add(invoice.GrossAmount)
	}
	if len(payments) == 0 {
		return nil, sepadomain.ErrNoEligiblePayments
	}
	result.PaymentCount = len(payments)

	document := sepadomain.Document{
		MessageID:            result.MessageID,
		CreationDateTime:     now.UTC().Format(time.RFC3339),
		NumberOfTransactions: len(payments),
		ControlSum:           result.TotalAmount.StringFixed(2),
		InitiatorName:        s.initiatorName(tenant),
		Debtor: sepadomain.Party{
			Name: tenant.Name,
			IBAN: debtorIBAN,
			BIC:  tenant.BIC,
		},
		Payments: payments,
	}
	body, err := xml.MarshalIndent(document, "", "  ")
	if err != nil {
		return nil, err
	}
	result.Document = append([]byte(xml.Header), body...)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.incomingRepo.MarkExported(ctx, tx, tenantID, includedIDs, result.BatchID, now); err != nil {
			return err
		}
		if s.outbox != nil {
			return s.outbox.PublishTx(ctx, tx, events.Event{
				TenantID: tenantID,
				Type:     events.EventSepaExported,
				Payload: map[string]any{
					"message_id":    result.MessageID,
					"payment_count": result.PaymentCount,
					"total_amount":  result.TotalAmount.String(),
				},
				DedupeKey: result.MessageID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SepaExports.Inc()
	}
	s.log.Info("sepa export generated",
		zap.String("message_id", result.MessageID),
		zap.Int("payments", result.PaymentCount),
		zap.Int("skipped", len(result.Skipped)))

	return result, nil
}

func (s *Service) messageID(now time.Time) string {
	return fmt.Sprintf("%s-%s-%d", s.prefix, now.UTC().Format("20060102"), now.UnixMilli())
}

func (s *Service) initiatorName(tenant *tenantdomain.Tenant) string {
	if s.initiator != "" {
		return s.initiator
	}
	return tenant.Name
}

// eligibility returns a skip reason, or empty when the invoice can be paid.
func eligibility(invoice incomingdomain.IncomingInvoice) string {
	if invoice.Status != incomingdomain.StatusApproved {
		return fmt.Sprintf("status is %s, expected %s", invoice.Status, incomingdomain.StatusApproved)
	}
	iban := sepadomain.NormalizeIBAN(invoice.CreditorIBAN)
	if iban == "" {
		return "missing creditor IBAN"
	}
	if !sepadomain.ValidIBAN(iban) {
		return "invalid creditor IBAN"
	}
	if !invoice.GrossAmount.IsPositive() {
		return "amount is not positive"
	}
	return ""
}

func endToEndSource(invoice incomingdomain.IncomingInvoice) string {
	if invoice.Number != "" {
		return invoice.Number
	}
	return invoice.ID.String()
}

func remittanceText(invoice incomingdomain.IncomingInvoice) string {
	if invoice.Number != "" {
		return fmt.Sprintf("Invoice %s", invoice.Number)
	}
	return fmt.Sprintf("Invoice %s", invoice.ID)
}
