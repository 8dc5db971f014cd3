package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kiosk"

// Metrics holds the Prometheus collectors of a kiosk terminal.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	quoteRequests  *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	completed      *prometheus.CounterVec
	cancelled      *prometheus.CounterVec
	codeDispatches *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		quoteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quote_requests_total",
				Help:      "Total number of price quotes served, by asset and source (Live or Fallback).",
			},
			[]string{"asset", "source"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flow_transitions_total",
				Help:      "Total number of step transitions, by kind and entered step.",
			},
			[]string{"kind", "step"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flow_rejections_total",
				Help:      "Total number of rejected user actions, by kind and field.",
			},
			[]string{"kind", "field"},
		),
		completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_completed_total",
				Help:      "Total number of completed transactions, by kind and asset.",
			},
			[]string{"kind", "asset"},
		),
		cancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_cancelled_total",
				Help:      "Total number of cancelled sessions, by kind.",
			},
			[]string{"kind"},
		),
		codeDispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_dispatches_total",
				Help:      "Total number of verification code dispatches, by method and result.",
			},
			[]string{"method", "result"},
		),
	}

	reg.MustRegister(m.quoteRequests, m.transitions, m.rejections, m.completed, m.cancelled, m.codeDispatches)
	return m
}

// QuoteServed records a quote handed to a caller
func (m *Metrics) QuoteServed(asset, source string) {
	if m == nil {
		return
	}
	m.quoteRequests.WithLabelValues(asset, source).Inc()
}

// QuoteCollector exposes the quote counter for inspection
func (m *Metrics) QuoteCollector() prometheus.Collector {
	return m.quoteRequests
}

// StepEntered records a transition into step
func (m *Metrics) StepEntered(kind, step string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, step).Inc()
}

// ActionRejected records a validation rejection
func (m *Metrics) ActionRejected(kind, field string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(kind, field).Inc()
}

// TransactionCompleted records a session reaching Completed
func (m *Metrics) TransactionCompleted(kind, asset string) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(kind, asset).Inc()
}

// SessionCancelled records a session destroyed before completion
func (m *Metrics) SessionCancelled(kind string) {
	if m == nil {
		return
	}
	m.cancelled.WithLabelValues(kind).Inc()
}

// CodeDispatched records the outcome of a background code dispatch
func (m *Metrics) CodeDispatched(method string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.codeDispatches.WithLabelValues(method, result).Inc()
}
