package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "powerlink"

// Redirect outcomes.
const (
	OutcomeRedirected = "redirected"
	OutcomeNotFound   = "not_found"
	OutcomeExpired    = "expired"
	OutcomeError      = "error"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	redirects      *prometheus.CounterVec
	linksCreated   *prometheus.CounterVec
	codeCollisions prometheus.Counter
	clicksRecorded *prometheus.CounterVec
	reconciliation prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Redirect requests by outcome.",
		}, []string{"outcome"}),
		linksCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_created_total",
			Help:      "Short links created, by code kind.",
		}, []string{"kind"}),
		codeCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_collisions_total",
			Help:      "Generated short codes rejected because they were taken.",
		}),
		clicksRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_recorded_total",
			Help:      "Click events appended, by result.",
		}, []string{"result"}),
		reconciliation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "click_reconciliation_total",
			Help:      "Admitted clicks whose event could not be stored.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.redirects, m.linksCreated, m.codeCollisions, m.clicksRecorded, m.reconciliation)
	}
	return m
}

func (m *Metrics) Redirect(outcome string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LinkCreated(custom bool) {
	if m == nil {
		return
	}
	kind := "generated"
	if custom {
		kind = "custom"
	}
	m.linksCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) CodeCollision() {
	if m == nil {
		return
	}
	m.codeCollisions.Inc()
}

func (m *Metrics) ClickRecorded(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.clicksRecorded.WithLabelValues(result).Inc()
}

func (m *Metrics) ReconciliationDiscrepancy() {
	if m == nil {
		return
	}
	m.reconciliation.Inc()
}
