package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// InvoicesGeneratedTotal counts invoice generation attempts by outcome.
	InvoicesGeneratedTotal *prometheus.CounterVec
	// InvoiceLinesSkippedTotal counts cart lines the calculator could not price.
	InvoiceLinesSkippedTotal *prometheus.CounterVec
	// InvoiceGrandTotal records invoice grand totals in rupees.
	InvoiceGrandTotal prometheus.Histogram
	// ChatActionsTotal counts chat turns by resolved action.
	ChatActionsTotal *prometheus.CounterVec
	// InterpreterFallbacksTotal counts turns answered by the keyword interpreter.
	InterpreterFallbacksTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		InvoicesGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_generated_total",
			Help:      "Count of invoice generation attempts by outcome.",
		}, []string{"result"})
		InvoiceLinesSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_lines_skipped_total",
			Help:      "Count of cart lines skipped while pricing, by reason.",
		}, []string{"reason"})
		InvoiceGrandTotal = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_grand_total_rupees",
			Help:      "Grand total of generated invoices in rupees.",
			Buckets:   []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		})
		ChatActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_actions_total",
			Help:      "Count of chat turns by resolved action.",
		}, []string{"action", "interpreter"})
		InterpreterFallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpreter_fallbacks_total",
			Help:      "Count of chat turns that fell back to keyword interpretation.",
		}, []string{"reason"})

		InvoicesGeneratedTotal = registerOrReuse(reg, InvoicesGeneratedTotal)
		InvoiceLinesSkippedTotal = registerOrReuse(reg, InvoiceLinesSkippedTotal)
		InvoiceGrandTotal = registerOrReuse(reg, InvoiceGrandTotal)
		ChatActionsTotal = registerOrReuse(reg, ChatActionsTotal)
		InterpreterFallbacksTotal = registerOrReuse(reg, InterpreterFallbacksTotal)
	})
}

// RecordInvoice records a generation outcome. Collectors that were never
// registered are skipped.
func RecordInvoice(result string, grandTotal float64, skippedReasons []string) {
	if InvoicesGeneratedTotal != nil {
		InvoicesGeneratedTotal.WithLabelValues(result).Inc()
	}
	if InvoiceGrandTotal != nil && result == "ok" {
		InvoiceGrandTotal.Observe(grandTotal)
	}
	if InvoiceLinesSkippedTotal != nil {
		for _, reason := range skippedReasons {
			InvoiceLinesSkippedTotal.WithLabelValues(reason).Inc()
		}
	}
}

// RecordChatAction counts one chat turn.
func RecordChatAction(action, interpreter string) {
	if ChatActionsTotal != nil {
		ChatActionsTotal.WithLabelValues(action, interpreter).Inc()
	}
}

// RecordInterpreterFallback counts one fallback to keyword interpretation.
func RecordInterpreterFallback(reason string) {
	if InterpreterFallbacksTotal != nil {
		InterpreterFallbacksTotal.WithLabelValues(reason).Inc()
	}
}
