package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	sepadomain "github.com/windparklabs/windbill/internal/sepa/domain"
)

type sepaExportRequest struct {
	InvoiceIDs             []string   `json:"invoice_ids"`
	RequestedExecutionDate *time.Time `json:"requested_execution_date"`
}

// ExportSepa generates the credit transfer document and returns it as XML.
// The export metadata travels in response headers so the body stays a clean
// bank-ready document.
func (s *Server) ExportSepa(c *gin.Context) {
	var req sepaExportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	export := sepadomain.ExportRequest{}
	for _, raw := range req.InvoiceIDs {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		export.InvoiceIDs = append(export.InvoiceIDs, id)
	}
	if req.RequestedExecutionDate != nil {
		export.RequestedExecutionDate = *req.RequestedExecutionDate
	}

	result, err := s.sepaSvc.Export(c.Request.Context(), tenantIDFromGin(c), export)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	skippedIDs := make([]string, 0, len(result.Skipped))
	for _, skipped := range result.Skipped {
		skippedIDs = append(skippedIDs, skipped.InvoiceID)
	}

	c.Header("X-Windbill-Message-Id", result.MessageID)
	c.Header("X-Windbill-Payment-Count", strconv.Itoa(result.PaymentCount))
	c.Header("X-Windbill-Skipped", strings.Join(skippedIDs, ","))
	c.Data(http.StatusOK, "application/xml", result.Document)
}
