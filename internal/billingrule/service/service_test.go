package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	billingruledomain "github.com/windparklabs/windbill/internal/billingrule/domain"
	"github.com/windparklabs/windbill/internal/billingrule/repository"
	invoicedomain "github.com/windparklabs/windbill/internal/invoice/domain"
	invoiceservice "github.com/windparklabs/windbill/internal/invoice/service"
	sequencedomain "github.com/windparklabs/windbill/internal/sequence/domain"
	sequenceservice "github.com/windparklabs/windbill/internal/sequence/service"
	tenantdomain "github.com/windparklabs/windbill/internal/tenant/domain"
	tenantrepository "github.com/windparklabs/windbill/internal/tenant/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&tenantdomain.Tenant{},
		&sequencedomain.NumberSequence{},
		&invoicedomain.Invoice{},
		&billingruledomain.BillingRule{},
		&billingruledomain.RuleExecution{},
		&billingruledomain.Lease{},
		&billingruledomain.Shareholder{},
		&billingruledomain.WindPark{},
	))
	return db
}

type harness struct {
	svc      *Service
	db       *gorm.DB
	node     *snowflake.Node
	tenantID snowflake.ID
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newTestDB(t)
	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := fixedClock{now: now}

	seqSvc := sequenceservice.NewService(sequenceservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
		GenID: node,
	})
	invSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clk,
		GenID:  node,
		SeqSvc: seqSvc,
	})

	tenantID := node.Generate()
	require.NoError(t, db.Create(&tenantdomain.Tenant{
		ID:        tenantID,
		Name:      "Windpark Nordsee GmbH",
		Slug:      "windpark-nordsee",
		Currency:  "EUR",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)

	svc := &Service{
		db:         db,
		log:        zap.NewNop(),
		clock:      clk,
		genID:      node,
		repo:       repository.NewRepository(),
		tenantRepo: tenantrepository.NewRepository(),
		invoiceSvc: invSvc,
	}
	return &harness{svc: svc, db: db, node: node, tenantID: tenantID, now: now}
}

func (h *harness) createRule(t *testing.T, ruleType billingruledomain.RuleType, params map[string]any, nextRunAt *time.Time) *billingruledomain.BillingRule {
	t.Helper()
	rule := &billingruledomain.BillingRule{
		ID:             h.node.Generate(),
		TenantID:       h.tenantID,
		Name:           "Test rule",
		Code:           "test-rule",
		RuleType:       ruleType,
		IsActive:       true,
		IntervalMonths: 1,
		NextRunAt:      nextRunAt,
		Parameters:     datatypes.JSONMap(params),
		CreatedAt:      h.now,
		UpdatedAt:      h.now,
	}
	require.NoError(t, h.db.Create(rule).Error)
	return rule
}

func (h *harness) createLease(t *testing.T, lessor string, annualFee string, active bool) *billingruledomain.Lease {
	t.Helper()
	fee, err := decimal.NewFromString(annualFee)
	require.NoError(t, err)
	lease := &billingruledomain.Lease{
		ID:         h.node.Generate(),
		TenantID:   h.tenantID,
		LessorName: lessor,
		ParcelRef:  "FLUR-1/2",
		AnnualFee:  fee,
		Active:     active,
		CreatedAt:  h.now,
		UpdatedAt:  h.now,
	}
	require.NoError(t, h.db.Create(lease).Error)
	return lease
}

func (h *harness) createShareholder(t *testing.T, name string, shares int64) *billingruledomain.Shareholder {
	t.Helper()
	sh := &billingruledomain.Shareholder{
		ID:        h.node.Generate(),
		TenantID:  h.tenantID,
		Name:      name,
		Shares:    shares,
		Active:    true,
		CreatedAt: h.now,
		UpdatedAt: h.now,
	}
	require.NoError(t, h.db.Create(sh).Error)
	return sh
}

func (h *harness) invoices(t *testing.T) []invoicedomain.Invoice {
	t.Helper()
	var rows []invoicedomain.Invoice
	require.NoError(t, h.db.Order("invoice_number").Find(&rows).Error)
	return rows
}

func TestExecuteLeaseBillingCreatesInvoices(t *testing.T) {
	h := newHarness(t)
	h.createLease(t, "Bauer Petersen", "1200.00", true)
	h.createLease(t, "Hofgemeinschaft Jensen", "2400.00", true)
	h.createLease(t, "Ehemaliger Verpaechter", "600.00", false)

	due := h.now.Add(-time.Hour)
	rule := h.createRule(t, billingruledomain.RuleTypeLeaseBilling, map[string]any{
		"currency": "EUR",
		"vat_rate": 19,
	}, &due)

	result, err := h.svc.Execute(context.Background(), h.tenantID, rule.ID.String(), billingruledomain.ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, billingruledomain.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.InvoicesCreated)
	assert.Equal(t, 2, result.Summary.Processed)
	assert.Equal(t, 2, result.Summary.Successful)
	assert.Equal(t, 0, result.Summary.Failed)

	// 1200/12 = 100 net, 19% VAT -> 119; 2400/12 = 200 net -> 238.
	assert.Equal(t, "357", result.TotalAmount.String())

	rows := h.invoices(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "RG-2025-0001", rows[0].InvoiceNumber)
	assert.Equal(t, "RG-2025-0002", rows[1].InvoiceNumber)
	assert.Equal(t, invoicedomain.InvoiceStatusOpen, rows[0].Status)
	assert.Equal(t, "119", rows[0].GrossAmount.String())

	// The schedule advanced by one interval from the previous due time.
	var stored billingruledomain.BillingRule
	require.NoError(t, h.db.First(&stored, "id = ?", rule.ID).Error)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, due.AddDate(0, 1, 0).Unix(), stored.NextRunAt.Unix())

	var executions []billingruledomain.RuleExecution
	require.NoError(t, h.db.Find(&executions).Error)
	require.Len(t, executions, 1)
	assert.Equal(t, result.ExecutionID, executions[0].ExecutionID)
	assert.Equal(t, billingruledomain.StatusSuccess, executions[0].Status)
	assert.Equal(t, 2, executions[0].InvoicesCreated)
}

func TestExecuteDryRunCreatesNothing(t *testing.T) {
	h := newHarness(t)
	h.createLease(t, "Bauer Petersen", "1200.00", true)

	due := h.now.Add(-time.Hour)
	rule := h.createRule(t, billingruledomain.RuleTypeLeaseBilling, map[string]any{
		"vat_rate": 19,
	}, &due)

	result, err := h.svc.Execute(context.Background(), h.tenantID, rule.ID.String(), billingruledomain.ExecuteOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 0, result.InvoicesCreated)
	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Success)
	assert.Equal(t, "119", result.Outcomes[0].Amount.String())
	assert.Empty(t, result.Outcomes[0].InvoiceNumber)

	assert.Empty(t, h.invoices(t))

	var seqCount int64
	require.NoError(t, h.db.Model(&sequencedomain.NumberSequence{}).Count(&seqCount).Error)
	assert.Zero(t, seqCount)

	var execCount int64
	require.NoError(t, h.db.Model(&billingruledomain.RuleExecution{}).Count(&execCount).Error)
	assert.Zero(t, execCount)

	// Dry runs never advance the schedule.
	var stored billingruledomain.BillingRule
	require.NoError(t, h.db.First(&stored, "id = ?", rule.ID).Error)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, due.Unix(), stored.NextRunAt.Unix())
}

// flakyInvoiceService fails invoice creation for one selected target.
type flakyInvoiceService struct {
	invoicedomain.Service
	failFor snowflake.ID
}

func (f *flakyInvoiceService) CreateForRule(ctx context.Context, tx *gorm.DB, req invoicedomain.CreateForRuleRequest) (*invoicedomain.Invoice, error) {
	if req.TargetID == f.failFor {
		return nil, errors.New("simulated insert failure")
	}
	return f.Service.CreateForRule(ctx, tx, req)
}

func TestExecutePartialFailureKeepsSuccessStatus(t *testing.T) {
	h := newHarness(t)
	var leases []*billingruledomain.Lease
	for _, lessor := range []string{"Petersen", "Jensen", "Clausen", "Matthiesen", "Lorenzen"} {
		leases = append(leases, h.createLease(t, lessor, "1200.00", true))
	}
	h.svc.invoiceSvc = &flakyInvoiceService{Service: h.svc.invoiceSvc, failFor: leases[1].ID}

	rule := h.createRule(t, billingruledomain.RuleTypeLeaseBilling, map[string]any{
		"vat_rate": 19,
	}, nil)

	result, err := h.svc.Execute(context.Background(), h.tenantID, rule.ID.String(), billingruledomain.ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, billingruledomain.StatusSuccess, result.Status)
	assert.Equal(t, 5, result.Summary.Processed)
	assert.Equal(t, 4, result.Summary.Successful)
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, 4, result.InvoicesCreated)

	require.Len(t, result.Outcomes, 5)
	failed := result.Outcomes[1]
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Error, "simulated insert failure")
	assert.Empty(t, failed.InvoiceNumber)

	// The failed target's allocation rolled back, numbers stay contiguous.
	rows := h.invoices(t)
	require.Len(t, rows, 4)
	assert.Equal(t, "RG-2025-0001", rows[0].InvoiceNumber)
	assert.Equal(t, "RG-2025-0004", rows[3].InvoiceNumber)
}

func TestExecuteShareholderDistributionProRata(t *testing.T) {
	h := newHarness(t)
	h.createShareholder(t, "Stadtwerke Flensburg", 600)
	h.createShareholder(t, "Buergerenergie eG", 300)
	h.createShareholder(t, "Privatanleger Petersen", 100)

	rule := h.createRule(t, billingruledomain.RuleTypeShareholderDistribution, map[string]any{
		"distribution_pool": "10000.00",
		"vat_rate":          0,
	}, nil)

	result, err := h.svc.Execute(context.Background(), h.tenantID, rule.ID.String(), billingruledomain.ExecuteOptions{})
	require.NoError(t, err)

	assert.Equal(t, billingruledomain.StatusSuccess, result.Status)
	assert.Equal(t, 3, result.InvoicesCreated)
	assert.Equal(t, "10000", result.TotalAmount.String())

	rows := h.invoices(t)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, sequencedomain.DocumentTypeCreditNote, row.DocumentType)
		assert.Contains(t, row.InvoiceNumber, "GS-2025-")
	}
	assert.Equal(t, "6000", rows[0].NetAmount.String())
	assert.Equal(t, "3000", rows[1].NetAmount.String())
	assert.Equal(t, "1000", rows[2].NetAmount.String())
}

func TestExecuteManagementFeePerPark(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.Create(&billingruledomain.WindPark{
		ID:           h.node.Generate(),
		TenantID:     h.tenantID,
		Name:         "Windpark Husum Nord",
		RatedPowerKW: 3000,
		Active:       true,
		CreatedAt:    h.now,
		UpdatedAt:    h.now,
	}).Error)

	rule := h.createRule(t, billingruledomain.RuleTypeManagementFee, map[string]any{
		"base_amount": "500.00",
		"rate_per_kw": "2.50",
		"vat_rate":    19,
	}, nil)

	result, err := h.svc.Execute(context.Background(), h.tenantID, rule.ID.String(), billingruledomain.ExecuteOptions{})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	rows := h.invoices(t)
	require.Len(t, rows, 1)
	// 500 + 2.50 * 3000 = 8000 net.
	assert.Equal(t, "8000", rows[0].NetAmount.String())
	assert.Equal(t, "9520", rows[0].GrossAmount.String())
}

func TestExecuteRespectsSchedule(t *testing.T) {
	h := newHarness(t)
	h.createLease(t, "Bauer Petersen", "1200.00", true)

	future := h.now.Add(48 * time.Hour)
	rule := h.createRule(t, billingruledomain.RuleTypeLeaseBilling, map[string]any{"vat_rate": 19}, &future)

	_, err := h.svc.Execute(context.Background(), h.tenantID, rule.ID.String(), billingruledomain.ExecuteOptions{})
	assert.ErrorIs(t, err, billingruledomain.ErrRuleNotDue)

	// ForceRun bypasses the schedule and leaves it untouched.
	result, err := h.svc.Execute(context.Background(), h.tenantID, rule.ID.String(), billingruledomain.ExecuteOptions{ForceRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.InvoicesCreated)

	var stored billingruledomain.BillingRule
	require.NoError(t, h.db.First(&stored, "id = ?", rule.ID).Error)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, future.Unix(), stored.NextRunAt.Unix())
}

func TestExecuteRejectsBadRules(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Execute(context.Background(), h.tenantID, "not-a-number", billingruledomain.ExecuteOptions{})
	assert.ErrorIs(t, err, billingruledomain.ErrInvalidRuleID)

	_, err = h.svc.Execute(context.Background(), h.tenantID, h.node.Generate().String(), billingruledomain.ExecuteOptions{})
	assert.ErrorIs(t, err, billingruledomain.ErrRuleNotFound)

	rule := h.createRule(t, billingruledomain.RuleTypeLeaseBilling, map[string]any{"vat_rate": 19}, nil)
	require.NoError(t, h.db.Model(&billingruledomain.BillingRule{}).Where("id = ?", rule.ID).Update("is_active", false).Error)
	_, err = h.svc.Execute(context.Background(), h.tenantID, rule.ID.String(), billingruledomain.ExecuteOptions{})
	assert.ErrorIs(t, err, billingruledomain.ErrRuleInactive)
}

func TestExecuteOverrideParameters(t *testing.T) {
	h := newHarness(t)
	h.createShareholder(t, "Stadtwerke Flensburg", 1)

	rule := h.createRule(t, billingruledomain.RuleTypeShareholderDistribution, map[string]any{
		"distribution_pool": "10000.00",
	}, nil)

	result, err := h.svc.Execute(context.Background(), h.tenantID, rule.ID.String(), billingruledomain.ExecuteOptions{
		DryRun:             true,
		OverrideParameters: map[string]any{"distribution_pool": "500.00"},
	})
	require.NoError(t, err)
	assert.Equal(t, "500", result.TotalAmount.String())

	// The override never touches the stored parameter set.
	var stored billingruledomain.BillingRule
	require.NoError(t, h.db.First(&stored, "id = ?", rule.ID).Error)
	assert.Equal(t, "10000.00", stored.Parameters["distribution_pool"])
}
