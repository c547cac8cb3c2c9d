package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	sequencedomain "github.com/windparklabs/windbill/internal/sequence/domain"
)

func documentTypeFromPath(c *gin.Context) sequencedomain.DocumentType {
	return sequencedomain.DocumentType(strings.ToUpper(strings.TrimSpace(c.Param("documentType"))))
}

func (s *Server) GetSequence(c *gin.Context) {
	seq, err := s.seqSvc.Get(c.Request.Context(), tenantIDFromGin(c), documentTypeFromPath(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, seq)
}

type updateSequenceRequest struct {
	Format     *string `json:"format"`
	DigitCount *int    `json:"digit_count"`
}

func (s *Server) UpdateSequence(c *gin.Context) {
	var req updateSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	seq, err := s.seqSvc.Update(c.Request.Context(), tenantIDFromGin(c), documentTypeFromPath(c), sequencedomain.UpdateRequest{
		Format:     req.Format,
		DigitCount: req.DigitCount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, seq)
}

func (s *Server) PreviewSequence(c *gin.Context) {
	preview, err := s.seqSvc.Preview(c.Request.Context(), tenantIDFromGin(c), documentTypeFromPath(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"next_number": preview})
}
