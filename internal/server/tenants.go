package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	sepadomain "github.com/windparklabs/windbill/internal/sepa/domain"
	tenantdomain "github.com/windparklabs/windbill/internal/tenant/domain"
)

type createTenantRequest struct {
	Name     string `json:"name" binding:"required"`
	Currency string `json:"currency"`
	IBAN     string `json:"iban" binding:"omitempty,iban"`
	BIC      string `json:"bic"`
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "EUR"
	}

	now := s.clock.Now()
	tenant := &tenantdomain.Tenant{
		ID:        s.genID.Generate(),
		Name:      strings.TrimSpace(req.Name),
		Slug:      slug.Make(req.Name),
		Currency:  currency,
		IBAN:      sepadomain.NormalizeIBAN(req.IBAN),
		BIC:       strings.TrimSpace(req.BIC),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tenantRepo.Insert(c.Request.Context(), s.db, tenant); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, tenant)
}

func (s *Server) GetTenant(c *gin.Context) {
	tenant, err := s.tenantRepo.FindByID(c.Request.Context(), s.db, tenantIDFromGin(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tenant == nil {
		AbortWithError(c, tenantdomain.ErrTenantNotFound)
		return
	}
	respondData(c, tenant)
}
