// Package obs provides Prometheus metrics for the session lifecycle.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	signIns        *prometheus.CounterVec
	signOuts       *prometheus.CounterVec
	guardOutcomes  *prometheus.CounterVec
	idleExpiries   prometheus.Counter
	activeSessions prometheus.Gauge
}

// New registers the portal metrics on a dedicated registry. It returns nil
// when enabled is false.
func New(enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		signIns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sss_portal_sign_ins_total",
			Help: "Sign-in attempts by result",
		}, []string{"result"}),
		signOuts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sss_portal_sign_outs_total",
			Help: "Sign-outs by reason",
		}, []string{"reason"}),
		guardOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sss_portal_route_guard_outcomes_total",
			Help: "Route guard decisions by outcome and reason",
		}, []string{"outcome", "reason"}),
		idleExpiries: factory.NewCounter(prometheus.CounterOpts{
			Name: "sss_portal_idle_expiries_total",
			Help: "Sessions ended by the idle timeout",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sss_portal_active_clients",
			Help: "Client runtimes currently held by the server",
		}),
	}
}

func (m *Metrics) SignIn(result string) {
	if m == nil {
		return
	}
	m.signIns.WithLabelValues(result).Inc()
}

func (m *Metrics) SignOut(reason string) {
	if m == nil {
		return
	}
	m.signOuts.WithLabelValues(reason).Inc()
}

func (m *Metrics) GuardOutcome(outcome, reason string) {
	if m == nil {
		return
	}
	m.guardOutcomes.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) IdleExpiry() {
	if m == nil {
		return
	}
	m.idleExpiries.Inc()
}

func (m *Metrics) ClientOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) ClientClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// Gatherer exposes the registry for tests and custom handlers.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{})
}
