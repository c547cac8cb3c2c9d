package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the billing counters exposed on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	InvoicesCreated  prometheus.Counter
	RuleExecutions   *prometheus.CounterVec
	BatchItemsFailed prometheus.Counter
	SepaExports      prometheus.Counter
	SequenceRetries  prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: registry,
		InvoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "windbill_invoices_created_total",
			Help: "Number of invoices created by rule executions.",
		}),
		RuleExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "windbill_rule_executions_total",
			Help: "Number of billing rule executions by aggregate status.",
		}, []string{"status"}),
		BatchItemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "windbill_batch_items_failed_total",
			Help: "Number of failed items across batch operations.",
		}),
		SepaExports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "windbill_sepa_exports_total",
			Help: "Number of SEPA credit transfer documents generated.",
		}),
		SequenceRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "windbill_sequence_allocation_retries_total",
			Help: "Number of optimistic retries during invoice number allocation.",
		}),
	}

	registry.MustRegister(
		m.InvoicesCreated,
		m.RuleExecutions,
		m.BatchItemsFailed,
		m.SepaExports,
		m.SequenceRetries,
	)
	return m
}
