package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingruledomain "github.com/windparklabs/windbill/internal/billingrule/domain"
	incomingdomain "github.com/windparklabs/windbill/internal/incominginvoice/domain"
	invoicedomain "github.com/windparklabs/windbill/internal/invoice/domain"
	sepadomain "github.com/windparklabs/windbill/internal/sepa/domain"
	sequencedomain "github.com/windparklabs/windbill/internal/sequence/domain"
	tenantdomain "github.com/windparklabs/windbill/internal/tenant/domain"
)

// APIError carries an HTTP status alongside a stable machine-readable code.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string { return e.Code }

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request"}
}

var errorStatus = map[error]int{
	sequencedomain.ErrInvalidTenant:       http.StatusBadRequest,
	sequencedomain.ErrInvalidDocumentType: http.StatusBadRequest,
	sequencedomain.ErrInvalidDigitCount:   http.StatusBadRequest,
	sequencedomain.ErrSequenceConflict:    http.StatusConflict,

	billingruledomain.ErrInvalidRuleID:       http.StatusBadRequest,
	billingruledomain.ErrRuleNotFound:        http.StatusNotFound,
	billingruledomain.ErrRuleInactive:        http.StatusConflict,
	billingruledomain.ErrRuleNotDue:          http.StatusConflict,
	billingruledomain.ErrUnsupportedRuleType: http.StatusBadRequest,
	billingruledomain.ErrInvalidParameters:   http.StatusBadRequest,

	invoicedomain.ErrInvalidInvoiceID:    http.StatusBadRequest,
	invoicedomain.ErrInvoiceNotFound:     http.StatusNotFound,
	invoicedomain.ErrInvalidTransition:   http.StatusConflict,
	invoicedomain.ErrInvalidDocumentType: http.StatusBadRequest,

	incomingdomain.ErrInvalidInvoiceID:  http.StatusBadRequest,
	incomingdomain.ErrInvoiceNotFound:   http.StatusNotFound,
	incomingdomain.ErrInvalidTransition: http.StatusConflict,

	tenantdomain.ErrTenantNotFound: http.StatusNotFound,
	tenantdomain.ErrTenantInactive: http.StatusForbidden,

	sepadomain.ErrNoEligiblePayments: http.StatusUnprocessableEntity,
	sepadomain.ErrMissingDebtorIBAN:  http.StatusUnprocessableEntity,
}

// AbortWithError renders a domain error with its mapped HTTP status. Unknown
// errors become an opaque 500 so internals never leak to clients.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, apiErr)
		return
	}

	for sentinel, status := range errorStatus {
		if errors.Is(err, sentinel) {
			c.AbortWithStatusJSON(status, gin.H{"error": sentinel.Error()})
			return
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
