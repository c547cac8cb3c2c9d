// Package domain contains billing rules and their execution contracts. A rule
// resolves a set of billable targets (leases, shareholders, wind parks),
// computes per-target amounts and turns them into invoices or credit notes.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type RuleType string

const (
	RuleTypeLeaseBilling            RuleType = "lease_billing"
	RuleTypeShareholderDistribution RuleType = "shareholder_distribution"
	RuleTypeManagementFee           RuleType = "management_fee"
)

func (r RuleType) Valid() bool {
	switch r {
	case RuleTypeLeaseBilling, RuleTypeShareholderDistribution, RuleTypeManagementFee:
		return true
	}
	return false
}

type BillingRule struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID      `gorm:"not null;uniqueIndex:idx_billing_rules_tenant_code" json:"tenant_id"`
	Name           string            `gorm:"type:text;not null" json:"name"`
	Code           string            `gorm:"type:text;not null;uniqueIndex:idx_billing_rules_tenant_code" json:"code"`
	RuleType       RuleType          `gorm:"type:text;not null" json:"rule_type"`
	IsActive       bool              `gorm:"not null;default:true" json:"is_active"`
	IntervalMonths int               `gorm:"not null;default:1" json:"interval_months"`
	NextRunAt      *time.Time        `gorm:"index" json:"next_run_at,omitempty"`
	Parameters     datatypes.JSONMap `json:"parameters"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

func (BillingRule) TableName() string { return "billing_rules" }

// Parameters is the decoded rule parameter set. OverrideParameters on a
// single execution replaces the stored set entirely.
type Parameters struct {
	Currency         string          `json:"currency"`
	VatRate          decimal.Decimal `json:"vat_rate"`
	BaseAmount       decimal.Decimal `json:"base_amount"`
	RatePerKW        decimal.Decimal `json:"rate_per_kw"`
	DistributionPool decimal.Decimal `json:"distribution_pool"`
	Description      string          `json:"description"`
	DueInDays        int             `json:"due_in_days"`
	SkontoPercent    decimal.Decimal `json:"skonto_percent"`
	SkontoDays       int             `json:"skonto_days"`
}

// RuleExecution is the persisted audit record of a committed run.
type RuleExecution struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID        snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	RuleID          snowflake.ID      `gorm:"not null;index" json:"rule_id"`
	ExecutionID     string            `gorm:"type:text;not null;uniqueIndex" json:"execution_id"`
	Status          string            `gorm:"type:text;not null" json:"status"`
	DryRun          bool              `gorm:"not null" json:"dry_run"`
	InvoicesCreated int               `gorm:"not null" json:"invoices_created"`
	TotalAmount     decimal.Decimal   `gorm:"type:numeric;not null" json:"total_amount"`
	Summary         datatypes.JSONMap `json:"summary"`
	StartedAt       time.Time         `gorm:"not null" json:"started_at"`
	FinishedAt      time.Time         `gorm:"not null" json:"finished_at"`
}

func (RuleExecution) TableName() string { return "rule_executions" }

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var (
	ErrInvalidRuleID       = errors.New("invalid_rule_id")
	ErrRuleNotFound        = errors.New("rule_not_found")
	ErrRuleInactive        = errors.New("rule_inactive")
	ErrRuleNotDue          = errors.New("rule_not_due")
	ErrUnsupportedRuleType = errors.New("unsupported_rule_type")
	ErrInvalidParameters   = errors.New("invalid_rule_parameters")
)

type ExecuteOptions struct {
	DryRun   bool
	ForceRun bool
	// OverrideParameters replaces the rule's stored parameter set for this
	// execution only; the rule row is never mutated by an override.
	OverrideParameters map[string]any
}

type TargetOutcome struct {
	TargetID      string          `json:"target_id"`
	TargetName    string          `json:"target_name"`
	Success       bool            `json:"success"`
	InvoiceID     string          `json:"invoice_id,omitempty"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Error         string          `json:"error,omitempty"`
}

type Summary struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

type ExecutionResult struct {
	ExecutionID     string          `json:"execution_id"`
	Status          string          `json:"status"`
	DryRun          bool            `json:"dry_run"`
	InvoicesCreated int             `json:"invoices_created"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	Outcomes        []TargetOutcome `json:"invoices"`
	Summary         Summary         `json:"summary"`
	Warnings        []string        `json:"warnings"`
	Metadata        map[string]any  `json:"metadata"`
}

type ListOptions struct {
	RuleType  RuleType
	PageToken string
	PageSize  int
}

type Service interface {
	Get(ctx context.Context, tenantID snowflake.ID, ruleID string) (*BillingRule, error)
	List(ctx context.Context, tenantID snowflake.ID, opts ListOptions) ([]BillingRule, error)
	Create(ctx context.Context, tenantID snowflake.ID, req CreateRequest) (*BillingRule, error)
	// Execute evaluates a rule and creates invoices, or only previews them
	// when opts.DryRun is set. Per-target failures are recorded in the result
	// and never abort the run; fatal errors are returned as errors.
	Execute(ctx context.Context, tenantID snowflake.ID, ruleID string, opts ExecuteOptions) (*ExecutionResult, error)
}

type CreateRequest struct {
	Name           string
	RuleType       RuleType
	IntervalMonths int
	NextRunAt      *time.Time
	Parameters     map[string]any
}
