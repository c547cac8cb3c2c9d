package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	billingruledomain "github.com/windparklabs/windbill/internal/billingrule/domain"
	"github.com/windparklabs/windbill/internal/billingrule/repository"
	"github.com/windparklabs/windbill/internal/clock"
	"github.com/windparklabs/windbill/internal/events"
	invoicedomain "github.com/windparklabs/windbill/internal/invoice/domain"
	"github.com/windparklabs/windbill/internal/observability"
	tenantdomain "github.com/windparklabs/windbill/internal/tenant/domain"
	"github.com/windparklabs/windbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	repo       billingruledomain.Repository
	tenantRepo tenantdomain.Repository
	invoiceSvc invoicedomain.Service
	outbox     *events.Outbox
	metrics    *observability.Metrics
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	TenantRepo tenantdomain.Repository
	InvoiceSvc invoicedomain.Service
	Outbox     *events.Outbox         `optional:"true"`
	Metrics    *observability.Metrics `optional:"true"`
}

func NewService(p ServiceParam) billingruledomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billingrule.service"),
		clock:      p.Clock,
		genID:      p.GenID,
		repo:       repository.NewRepository(),
		tenantRepo: p.TenantRepo,
		invoiceSvc: p.InvoiceSvc,
		outbox:     p.Outbox,
		metrics:    p.Metrics,
	}
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID, ruleID string) (*billingruledomain.BillingRule, error) {
	id, err := parseID(ruleID)
	if err != nil {
		return nil, billingruledomain.ErrInvalidRuleID
	}
	rule, err := s.repo.FindRule(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, billingruledomain.ErrRuleNotFound
	}
	return rule, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, opts billingruledomain.ListOptions) ([]billingruledomain.BillingRule, error) {
	page := pagination.Pagination{PageToken: opts.PageToken, PageSize: opts.PageSize}
	return s.repo.ListRules(ctx, s.db, tenantID, opts, page.Limit(), page.Offset())
}

func (s *Service) Create(ctx context.Context, tenantID snowflake.ID, req billingruledomain.CreateRequest) (*billingruledomain.BillingRule, error) {
	if !req.RuleType.Valid() {
		return nil, billingruledomain.ErrUnsupportedRuleType
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, billingruledomain.ErrInvalidParameters
	}
	if _, err := decodeParameters(req.Parameters); err != nil {
		return nil, err
	}

	intervalMonths := req.IntervalMonths
	if intervalMonths <= 0 {
		intervalMonths = 1
	}

	now := s.clock.Now()
	rule := &billingruledomain.BillingRule{
		ID:             s.genID.Generate(),
		TenantID:       tenantID,
		Name:           name,
		Code:           slug.Make(name),
		RuleType:       req.RuleType,
		IsActive:       true,
		IntervalMonths: intervalMonths,
		NextRunAt:      req.NextRunAt,
		Parameters:     datatypes.JSONMap(req.Parameters),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if rule.Parameters == nil {
		rule.Parameters = datatypes.JSONMap{}
	}
	if err := s.repo.InsertRule(ctx, s.db, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) Execute(ctx context.Context, tenantID snowflake.ID, ruleID string, opts billingruledomain.ExecuteOptions) (*billingruledomain.ExecutionResult, error) {
	id, err := parseID(ruleID)
	if err != nil {
		return nil, billingruledomain.ErrInvalidRuleID
	}

	if _, err := tenantdomain.MustBeActive(ctx, s.db, s.tenantRepo, tenantID); err != nil {
		return nil, err
	}

	rule, err := s.repo.FindRule(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, billingruledomain.ErrRuleNotFound
	}
	if !rule.IsActive {
		return nil, billingruledomain.ErrRuleInactive
	}

	startedAt := s.clock.Now()
	if !opts.ForceRun && rule.NextRunAt != nil && startedAt.Before(*rule.NextRunAt) {
		return nil, billingruledomain.ErrRuleNotDue
	}

	rawParams := map[string]any(rule.Parameters)
	if opts.OverrideParameters != nil {
		rawParams = opts.OverrideParameters
	}
	params, err := decodeParameters(rawParams)
	if err != nil {
		return nil, err
	}

	targets, warnings, err := s.resolveTargets(ctx, rule, params)
	if err != nil {
		return nil, err
	}

	result := &billingruledomain.ExecutionResult{
		ExecutionID: uuid.NewString(),
		DryRun:      opts.DryRun,
		TotalAmount: decimal.Zero,
		Currency:    params.Currency,
		Outcomes:    make([]billingruledomain.TargetOutcome, 0, len(targets)),
		Warnings:    warnings,
		Metadata: map[string]any{
			"rule_id":   rule.ID.String(),
			"rule_type": string(rule.RuleType),
			"force_run": opts.ForceRun,
		},
	}
	result.Summary.Skipped = len(warnings)

	for _, target := range targets {
		outcome := s.processTarget(ctx, rule, params, target, result.ExecutionID, opts.DryRun)
		result.Outcomes = append(result.Outcomes, outcome)
		result.Summary.Processed++
		if outcome.Success {
			result.Summary.Successful++
			result.TotalAmount = result.TotalAmount.Add(outcome.Amount)
			if !opts.DryRun {
				result.InvoicesCreated++
			}
		} else {
			result.Summary.Failed++
		}
	}

	result.Status = aggregateStatus(result.Summary)
	if len(targets) == 0 {
		result.Warnings = append(result.Warnings, "no matching billing targets")
	}

	if !opts.DryRun {
		if err := s.finishCommittedRun(ctx, rule, result, opts, startedAt); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.RuleExecutions.WithLabelValues(result.Status).Inc()
	}
	s.log.Info("rule execution finished",
		zap.String("rule_id", rule.ID.String()),
		zap.String("execution_id", result.ExecutionID),
		zap.String("status", result.Status),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("successful", result.Summary.Successful),
		zap.Int("failed", result.Summary.Failed))

	return result, nil
}

func (s *Service) processTarget(
	ctx context.Context,
	rule *billingruledomain.BillingRule,
	params billingruledomain.Parameters,
	target billingTarget,
	executionID string,
	dryRun bool,
) billingruledomain.TargetOutcome {
	outcome := billingruledomain.TargetOutcome{
		TargetID:   target.ID.String(),
		TargetName: target.Name,
		Amount:     grossOf(target.Net, params.VatRate),
	}

	if dryRun {
		outcome.Success = true
		return outcome
	}

	var created *invoicedomain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoiceSvc.CreateForRule(ctx, tx, invoicedomain.CreateForRuleRequest{
			TenantID:      rule.TenantID,
			RuleID:        rule.ID,
			ExecutionID:   executionID,
			DocumentType:  target.DocumentType,
			TargetType:    target.Type,
			TargetID:      target.ID,
			RecipientName: target.Name,
			Description:   target.Description,
			NetAmount:     target.Net,
			VatRate:       params.VatRate,
			Currency:      params.Currency,
			DueInDays:     params.DueInDays,
			SkontoPercent: skontoOf(params),
			SkontoDays:    params.SkontoDays,
		})
		if err != nil {
			return err
		}
		created = invoice

		if s.outbox != nil {
			return s.outbox.PublishTx(ctx, tx, events.Event{
				TenantID: rule.TenantID,
				Type:     events.EventInvoiceCreated,
				Payload: events.InvoiceCreatedPayload{
					InvoiceID:     invoice.ID.String(),
					InvoiceNumber: invoice.InvoiceNumber,
					RuleID:        rule.ID.String(),
					ExecutionID:   executionID,
					GrossAmount:   invoice.GrossAmount.String(),
					Currency:      invoice.Currency,
				}.ToMap(),
				DedupeKey: executionID + ":" + target.ID.String(),
			})
		}
		return nil
	})
	if err != nil {
		s.log.Warn("invoice creation failed for billing target",
			zap.String("rule_id", rule.ID.String()),
			zap.String("target_id", target.ID.String()),
			zap.Error(err))
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Success = true
	outcome.InvoiceID = created.ID.String()
	outcome.InvoiceNumber = created.InvoiceNumber
	outcome.Amount = created.GrossAmount
	return outcome
}

func (s *Service) finishCommittedRun(
	ctx context.Context,
	rule *billingruledomain.BillingRule,
	result *billingruledomain.ExecutionResult,
	opts billingruledomain.ExecuteOptions,
	startedAt time.Time,
) error {
	now := s.clock.Now()

	// Scheduled (non-forced) runs advance the schedule; manual triggers leave
	// the cadence untouched.
	if !opts.ForceRun {
		anchor := now
		if rule.NextRunAt != nil {
			anchor = *rule.NextRunAt
		}
		next := anchor.AddDate(0, rule.IntervalMonths, 0)
		if err := s.repo.AdvanceNextRunAt(ctx, s.db, rule.ID, next, now); err != nil {
			return err
		}
	}

	execution := &billingruledomain.RuleExecution{
		ID:              s.genID.Generate(),
		TenantID:        rule.TenantID,
		RuleID:          rule.ID,
		ExecutionID:     result.ExecutionID,
		Status:          result.Status,
		DryRun:          false,
		InvoicesCreated: result.InvoicesCreated,
		TotalAmount:     result.TotalAmount,
		Summary: datatypes.JSONMap{
			"processed":  result.Summary.Processed,
			"successful": result.Summary.Successful,
			"failed":     result.Summary.Failed,
			"skipped":    result.Summary.Skipped,
		},
		StartedAt:  startedAt,
		FinishedAt: now,
	}
	if err := s.repo.InsertExecution(ctx, s.db, execution); err != nil {
		return err
	}

	if s.outbox != nil {
		if err := s.outbox.Publish(ctx, events.Event{
			TenantID: rule.TenantID,
			Type:     events.EventRuleExecuted,
			Payload: events.RuleExecutedPayload{
				RuleID:          rule.ID.String(),
				ExecutionID:     result.ExecutionID,
				Status:          result.Status,
				InvoicesCreated: result.InvoicesCreated,
				TotalAmount:     result.TotalAmount.String(),
			}.ToMap(),
			DedupeKey: result.ExecutionID,
		}); err != nil {
			s.log.Warn("failed to publish rule execution event", zap.Error(err))
		}
	}
	return nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}

func skontoOf(params billingruledomain.Parameters) *decimal.Decimal {
	if params.SkontoPercent.IsPositive() {
		skonto := params.SkontoPercent
		return &skonto
	}
	return nil
}
