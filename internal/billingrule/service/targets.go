package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingruledomain "github.com/windparklabs/windbill/internal/billingrule/domain"
	sequencedomain "github.com/windparklabs/windbill/internal/sequence/domain"
)

// billingTarget is one resolved billable party with its computed net amount.
type billingTarget struct {
	ID           snowflake.ID
	Type         string
	Name         string
	DocumentType sequencedomain.DocumentType
	Net          decimal.Decimal
	Description  string
}

var twelve = decimal.NewFromInt(12)

func decodeParameters(raw map[string]any) (billingruledomain.Parameters, error) {
	var params billingruledomain.Parameters
	buf, err := json.Marshal(raw)
	if err != nil {
		return params, billingruledomain.ErrInvalidParameters
	}
	if err := json.Unmarshal(buf, &params); err != nil {
		return params, billingruledomain.ErrInvalidParameters
	}
	params.Currency = strings.ToUpper(strings.TrimSpace(params.Currency))
	if params.Currency == "" {
		params.Currency = "EUR"
	}
	if params.VatRate.IsNegative() {
		return params, billingruledomain.ErrInvalidParameters
	}
	return params, nil
}

func (s *Service) resolveTargets(
	ctx context.Context,
	rule *billingruledomain.BillingRule,
	params billingruledomain.Parameters,
) ([]billingTarget, []string, error) {
	switch rule.RuleType {
	case billingruledomain.RuleTypeLeaseBilling:
		return s.leaseTargets(ctx, rule, params)
	case billingruledomain.RuleTypeShareholderDistribution:
		return s.shareholderTargets(ctx, rule, params)
	case billingruledomain.RuleTypeManagementFee:
		return s.windParkTargets(ctx, rule, params)
	}
	return nil, nil, billingruledomain.ErrUnsupportedRuleType
}

// leaseTargets bills each active lessor their lease fee for the rule's
// interval, derived from the stored annual fee.
func (s *Service) leaseTargets(
	ctx context.Context,
	rule *billingruledomain.BillingRule,
	params billingruledomain.Parameters,
) ([]billingTarget, []string, error) {
	leases, err := s.repo.ListActiveLeases(ctx, s.db, rule.TenantID)
	if err != nil {
		return nil, nil, err
	}

	targets := make([]billingTarget, 0, len(leases))
	var warnings []string
	months := decimal.NewFromInt(int64(rule.IntervalMonths))
	for _, lease := range leases {
		net := lease.AnnualFee.Mul(months).Div(twelve).Round(2)
		if !net.IsPositive() {
			warnings = append(warnings, fmt.Sprintf("lease %s has no billable fee, skipped", lease.ID))
			continue
		}
		description := params.Description
		if description == "" {
			description = fmt.Sprintf("Lease fee %s (%d months)", lease.ParcelRef, rule.IntervalMonths)
		}
		targets = append(targets, billingTarget{
			ID:           lease.ID,
			Type:         "lease",
			Name:         lease.LessorName,
			DocumentType: sequencedomain.DocumentTypeInvoice,
			Net:          net,
			Description:  description,
		})
	}
	return targets, warnings, nil
}

// shareholderTargets splits the distribution pool pro rata by shares and
// issues credit notes.
func (s *Service) shareholderTargets(
	ctx context.Context,
	rule *billingruledomain.BillingRule,
	params billingruledomain.Parameters,
) ([]billingTarget, []string, error) {
	if !params.DistributionPool.IsPositive() {
		return nil, nil, billingruledomain.ErrInvalidParameters
	}
	shareholders, err := s.repo.ListActiveShareholders(ctx, s.db, rule.TenantID)
	if err != nil {
		return nil, nil, err
	}

	var totalShares int64
	for _, sh := range shareholders {
		if sh.Shares > 0 {
			totalShares += sh.Shares
		}
	}
	if totalShares == 0 {
		return nil, nil, nil
	}
	total := decimal.NewFromInt(totalShares)

	targets := make([]billingTarget, 0, len(shareholders))
	var warnings []string
	for _, sh := range shareholders {
		if sh.Shares <= 0 {
			warnings = append(warnings, fmt.Sprintf("shareholder %s holds no shares, skipped", sh.ID))
			continue
		}
		net := params.DistributionPool.
			Mul(decimal.NewFromInt(sh.Shares)).
			Div(total).
			Round(2)
		description := params.Description
		if description == "" {
			description = fmt.Sprintf("Distribution for %d of %d shares", sh.Shares, totalShares)
		}
		targets = append(targets, billingTarget{
			ID:           sh.ID,
			Type:         "shareholder",
			Name:         sh.Name,
			DocumentType: sequencedomain.DocumentTypeCreditNote,
			Net:          net,
			Description:  description,
		})
	}
	return targets, warnings, nil
}

// windParkTargets charges a management fee per active wind park: a base
// amount plus an optional rate per kW of rated power.
func (s *Service) windParkTargets(
	ctx context.Context,
	rule *billingruledomain.BillingRule,
	params billingruledomain.Parameters,
) ([]billingTarget, []string, error) {
	parks, err := s.repo.ListActiveWindParks(ctx, s.db, rule.TenantID)
	if err != nil {
		return nil, nil, err
	}

	targets := make([]billingTarget, 0, len(parks))
	var warnings []string
	for _, park := range parks {
		net := params.BaseAmount.
			Add(params.RatePerKW.Mul(decimal.NewFromInt(park.RatedPowerKW))).
			Round(2)
		if !net.IsPositive() {
			warnings = append(warnings, fmt.Sprintf("wind park %s has no billable fee, skipped", park.ID))
			continue
		}
		description := params.Description
		if description == "" {
			description = fmt.Sprintf("Management fee %s", park.Name)
		}
		targets = append(targets, billingTarget{
			ID:           park.ID,
			Type:         "wind_park",
			Name:         park.Name,
			DocumentType: sequencedomain.DocumentTypeInvoice,
			Net:          net,
			Description:  description,
		})
	}
	return targets, warnings, nil
}

func grossOf(net, vatRate decimal.Decimal) decimal.Decimal {
	vat := net.Mul(vatRate).Div(decimal.NewFromInt(100)).Round(2)
	return net.Add(vat)
}

func aggregateStatus(summary billingruledomain.Summary) string {
	if summary.Processed > 0 && summary.Successful == 0 {
		return billingruledomain.StatusFailed
	}
	return billingruledomain.StatusSuccess
}
