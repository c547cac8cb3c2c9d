package server

import (
	"time"

	"github.com/gin-gonic/gin"
	billingruledomain "github.com/windparklabs/windbill/internal/billingrule/domain"
)

func (s *Server) ListRules(c *gin.Context) {
	rules, err := s.ruleSvc.List(c.Request.Context(), tenantIDFromGin(c), billingruledomain.ListOptions{
		RuleType:  billingruledomain.RuleType(c.Query("rule_type")),
		PageToken: c.Query("page_token"),
		PageSize:  queryInt(c, "page_size"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, rules, nil)
}

func (s *Server) GetRule(c *gin.Context) {
	rule, err := s.ruleSvc.Get(c.Request.Context(), tenantIDFromGin(c), c.Param("ruleId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rule)
}

type createRuleRequest struct {
	Name           string                    `json:"name"`
	RuleType       billingruledomain.RuleType `json:"rule_type"`
	IntervalMonths int                       `json:"interval_months"`
	NextRunAt      *time.Time                `json:"next_run_at"`
	Parameters     map[string]any            `json:"parameters"`
}

func (s *Server) CreateRule(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.ruleSvc.Create(c.Request.Context(), tenantIDFromGin(c), billingruledomain.CreateRequest{
		Name:           req.Name,
		RuleType:       req.RuleType,
		IntervalMonths: req.IntervalMonths,
		NextRunAt:      req.NextRunAt,
		Parameters:     req.Parameters,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rule)
}

type executeRuleRequest struct {
	DryRun             bool           `json:"dry_run"`
	ForceRun           bool           `json:"force_run"`
	OverrideParameters map[string]any `json:"override_parameters"`
}

func (s *Server) ExecuteRule(c *gin.Context) {
	var req executeRuleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.ruleSvc.Execute(c.Request.Context(), tenantIDFromGin(c), c.Param("ruleId"), billingruledomain.ExecuteOptions{
		DryRun:             req.DryRun,
		ForceRun:           req.ForceRun,
		OverrideParameters: req.OverrideParameters,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, result)
}

// PreviewRule runs the rule without committing anything, regardless of the
// request body.
func (s *Server) PreviewRule(c *gin.Context) {
	var req executeRuleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.ruleSvc.Execute(c.Request.Context(), tenantIDFromGin(c), c.Param("ruleId"), billingruledomain.ExecuteOptions{
		DryRun:             true,
		ForceRun:           true,
		OverrideParameters: req.OverrideParameters,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, result)
}
