// Package observability exposes the supervisor's operational counters as
// Prometheus metrics: respawns, termination escalations, poll sweeps, and
// the live worker gauge.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the supervisor's Prometheus collectors. A nil *Metrics is
// valid everywhere and records nothing.
type Metrics struct {
	Respawns      prometheus.Counter
	Escalations   prometheus.Counter
	Sweeps        prometheus.Counter
	ActiveWorkers prometheus.Gauge
}

// NewMetrics builds and registers the supervisor collectors. Pass
// prometheus.DefaultRegisterer for the usual global registry, or a private
// registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Respawns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_worker_respawns_total",
			Help: "Workers re-spawned after exiting without marking finished",
		}),
		Escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_worker_escalations_total",
			Help: "Two-phase terminations triggered by time-limit violations",
		}),
		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_poll_sweeps_total",
			Help: "Polling sweeps performed by the supervisor",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_workers_active",
			Help: "Workers counted active in the most recent sweep",
		}),
	}
	reg.MustRegister(m.Respawns, m.Escalations, m.Sweeps, m.ActiveWorkers)
	return m
}

// RecordRespawn increments the respawn counter.
func (m *Metrics) RecordRespawn() {
	if m != nil {
		m.Respawns.Inc()
	}
}

// RecordEscalation increments the escalation counter.
func (m *Metrics) RecordEscalation() {
	if m != nil {
		m.Escalations.Inc()
	}
}

// RecordSweep records one completed sweep and its active-worker count.
func (m *Metrics) RecordSweep(active int) {
	if m != nil {
		m.Sweeps.Inc()
		m.ActiveWorkers.Set(float64(active))
	}
}
