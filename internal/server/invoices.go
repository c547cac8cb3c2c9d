package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/windparklabs/windbill/internal/batch"
	invoicedomain "github.com/windparklabs/windbill/internal/invoice/domain"
)

const maxBatchIDs = 100

func (s *Server) ListInvoices(c *gin.Context) {
	opts := invoicedomain.ListOptions{
		Status:    invoicedomain.InvoiceStatus(c.Query("status")),
		PageToken: c.Query("page_token"),
		PageSize:  queryInt(c, "page_size"),
	}
	if raw := c.Query("rule_id"); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		opts.RuleID = id
	}

	result, err := s.invoiceSvc.List(c.Request.Context(), tenantIDFromGin(c), opts)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, result.Invoices, &result.PageInfo)
}

type batchInvoiceRequest struct {
	Action string   `json:"action" binding:"required,oneof=send archive"`
	IDs    []string `json:"ids" binding:"required,min=1"`
}

type batchInvoiceResponse struct {
	Action  string               `json:"action"`
	Success []string             `json:"success"`
	Failed  []batch.Failure[string] `json:"failed"`
	Total   int                  `json:"total_processed"`
	Summary string               `json:"summary"`
}

// BatchInvoiceAction applies send or archive over a bounded ID list. Items
// fail independently; the response always reports partial success.
func (s *Server) BatchInvoiceAction(c *gin.Context) {
	var req batchInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.IDs) > maxBatchIDs {
		AbortWithError(c, &APIError{
			Status:  http.StatusBadRequest,
			Code:    "too_many_ids",
			Message: fmt.Sprintf("at most %d ids per batch", maxBatchIDs),
		})
		return
	}

	tenantID := tenantIDFromGin(c)
	var op func(ctx context.Context, id snowflake.ID) error
	switch req.Action {
	case "send":
		op = func(ctx context.Context, id snowflake.ID) error {
			return s.invoiceSvc.Send(ctx, tenantID, id)
		}
	case "archive":
		op = func(ctx context.Context, id snowflake.ID) error {
			return s.invoiceSvc.Archive(ctx, tenantID, id)
		}
	}

	ids := lo.Uniq(req.IDs)
	result := batch.Process(c.Request.Context(), ids, func(ctx context.Context, raw string) error {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return invoicedomain.ErrInvalidInvoiceID
		}
		return op(ctx, id)
	}, batch.Options{})

	if s.metrics != nil {
		s.metrics.BatchItemsFailed.Add(float64(len(result.Failed)))
	}

	respondData(c, batchInvoiceResponse{
		Action:  req.Action,
		Success: result.Success,
		Failed:  result.Failed,
		Total:   result.TotalProcessed,
		Summary: fmt.Sprintf("%s: %d succeeded, %d failed", req.Action, len(result.Success), len(result.Failed)),
	})
}
