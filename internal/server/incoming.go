package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	incomingdomain "github.com/windparklabs/windbill/internal/incominginvoice/domain"
)

// ApproveIncomingInvoice moves a received supplier invoice into the approved
// state, making it a SEPA export candidate.
func (s *Server) ApproveIncomingInvoice(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("invoiceId"))
	if err != nil {
		AbortWithError(c, incomingdomain.ErrInvalidInvoiceID)
		return
	}

	tenantID := tenantIDFromGin(c)
	ok, err := s.incomingRepo.UpdateStatus(
		c.Request.Context(),
		s.db,
		tenantID,
		id,
		[]incomingdomain.Status{incomingdomain.StatusReceived},
		incomingdomain.StatusApproved,
		s.clock.Now(),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !ok {
		existing, err := s.incomingRepo.FindByIDs(c.Request.Context(), s.db, tenantID, []snowflake.ID{id})
		if err == nil && len(existing) == 0 {
			AbortWithError(c, incomingdomain.ErrInvoiceNotFound)
			return
		}
		AbortWithError(c, incomingdomain.ErrInvalidTransition)
		return
	}
	respondData(c, gin.H{"status": incomingdomain.StatusApproved})
}
