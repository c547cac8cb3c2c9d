package events

// Billing event types carried through the outbox.
const (
	EventInvoiceCreated = "invoice.created"
	EventRuleExecuted   = "rule.executed"
	EventSepaExported   = "sepa.exported"
)

// InvoiceCreatedPayload captures the minimal data webhook consumers need.
type InvoiceCreatedPayload struct {
	InvoiceID     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	RuleID        string `json:"rule_id,omitempty"`
	ExecutionID   string `json:"execution_id,omitempty"`
	GrossAmount   string `json:"gross_amount"`
	Currency      string `json:"currency"`
}

func (p InvoiceCreatedPayload) ToMap() map[string]any {
	payload := map[string]any{
		"invoice_id":     p.InvoiceID,
		"invoice_number": p.InvoiceNumber,
		"gross_amount":   p.GrossAmount,
		"currency":       p.Currency,
	}
	if p.RuleID != "" {
		payload["rule_id"] = p.RuleID
	}
	if p.ExecutionID != "" {
		payload["execution_id"] = p.ExecutionID
	}
	return payload
}

// RuleExecutedPayload summarizes a committed rule run.
type RuleExecutedPayload struct {
	RuleID          string `json:"rule_id"`
	ExecutionID     string `json:"execution_id"`
	Status          string `json:"status"`
	InvoicesCreated int    `json:"invoices_created"`
	TotalAmount     string `json:"total_amount"`
}

func (p RuleExecutedPayload) ToMap() map[string]any {
	return map[string]any{
		"rule_id":          p.RuleID,
		"execution_id":     p.ExecutionID,
		"status":           p.Status,
		"invoices_created": p.InvoicesCreated,
		"total_amount":     p.TotalAmount,
	}
}
