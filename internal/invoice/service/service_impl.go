package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/windparklabs/windbill/internal/clock"
	invoicedomain "github.com/windparklabs/windbill/internal/invoice/domain"
	"github.com/windparklabs/windbill/internal/invoice/repository"
	"github.com/windparklabs/windbill/internal/observability"
	sequencedomain "github.com/windparklabs/windbill/internal/sequence/domain"
	"github.com/windparklabs/windbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	repo    invoicedomain.Repository
	seqSvc  sequencedomain.Service
	metrics *observability.Metrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	SeqSvc  sequencedomain.Service
	Metrics *observability.Metrics `optional:"true"`
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("invoice.service"),
		clock:   p.Clock,
		genID:   p.GenID,
		repo:    repository.NewRepository(),
		seqSvc:  p.SeqSvc,
		metrics: p.Metrics,
	}
}

func (s *Service) CreateForRule(ctx context.Context, tx *gorm.DB, req invoicedomain.CreateForRuleRequest) (*invoicedomain.Invoice, error) {
	if !req.DocumentType.Valid() {
		return nil, invoicedomain.ErrInvalidDocumentType
	}
	if tx == nil {
		tx = s.db
	}

	alloc, err := s.seqSvc.Allocate(ctx, tx, req.TenantID, req.DocumentType)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	issuedAt := req.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = now
	}
	dueInDays := req.DueInDays
	if dueInDays <= 0 {
		dueInDays = 14
	}

	vatAmount := req.NetAmount.Mul(req.VatRate).Div(decimal.NewFromInt(100)).Round(2)
	gross := req.NetAmount.Add(vatAmount)

	invoice := &invoicedomain.Invoice{
		ID:            s.genID.Generate(),
		TenantID:      req.TenantID,
		ExecutionID:   req.ExecutionID,
		DocumentType:  req.DocumentType,
		InvoiceNumber: alloc.FormattedNumber,
		TargetType:    req.TargetType,
		TargetID:      req.TargetID,
		RecipientName: strings.TrimSpace(req.RecipientName),
		Description:   strings.TrimSpace(req.Description),
		NetAmount:     req.NetAmount,
		VatRate:       req.VatRate,
		VatAmount:     vatAmount,
		GrossAmount:   gross,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:        invoicedomain.InvoiceStatusOpen,
		IssuedAt:      issuedAt,
		DueDate:       issuedAt.AddDate(0, 0, dueInDays),
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.RuleID != 0 {
		ruleID := req.RuleID
		invoice.RuleID = &ruleID
	}
	if req.SkontoPercent != nil && req.SkontoPercent.IsPositive() {
		skonto := *req.SkontoPercent
		invoice.SkontoPercent = &skonto
		skontoDays := req.SkontoDays
		if skontoDays <= 0 {
			skontoDays = 7
		}
		until := issuedAt.AddDate(0, 0, skontoDays)
		invoice.SkontoUntil = &until
	}

	if err := s.repo.Insert(ctx, tx, invoice); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.InvoicesCreated.Inc()
	}
	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID snowflake.ID, id string) (*invoicedomain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	invoice, err := s.repo.FindByID(ctx, s.db, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, opts invoicedomain.ListOptions) (*invoicedomain.ListResult, error) {
	page := pagination.Pagination{PageToken: opts.PageToken, PageSize: opts.PageSize}
	limit := page.Limit()
	offset := page.Offset()

	invoices, err := s.repo.List(ctx, s.db, tenantID, opts, limit, offset)
	if err != nil {
		return nil, err
	}
	return &invoicedomain.ListResult{
		Invoices: invoices,
		PageInfo: pagination.PageInfo{
			NextPageToken: pagination.NextToken(offset, limit, len(invoices)),
			PageSize:      limit,
		},
	}, nil
}

func (s *Service) Send(ctx context.Context, tenantID snowflake.ID, id snowflake.ID) error {
	return s.transition(ctx, tenantID, id,
		[]invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusOpen},
		invoicedomain.InvoiceStatusSent)
}

func (s *Service) Archive(ctx context.Context, tenantID snowflake.ID, id snowflake.ID) error {
	return s.transition(ctx, tenantID, id,
		[]invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusPaid},
		invoicedomain.InvoiceStatusArchived)
}

func (s *Service) transition(ctx context.Context, tenantID, id snowflake.ID, from []invoicedomain.InvoiceStatus, to invoicedomain.InvoiceStatus) error {
	ok, err := s.repo.UpdateStatus(ctx, s.db, tenantID, id, from, to, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		existing, err := s.repo.FindByID(ctx, s.db, tenantID, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		return invoicedomain.ErrInvalidTransition
	}
	return nil
}
