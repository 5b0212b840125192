// Package metrics exposes PUF-ACS engine activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "pufacs"
	subsystem = "engine"
)

// Label names for PUF-ACS metrics.
const (
	labelRole  = "role"
	labelPhase = "phase"
)

// -------------------------------------------------------------------------
// Collector — Prometheus PUF-ACS Metrics
// -------------------------------------------------------------------------

// Collector holds all PUF-ACS Prometheus metrics and satisfies
// engine.Metrics, so an engine.Supplicant or engine.Authenticator can
// report directly into it.
type Collector struct {
	// HandshakeAttempts counts every Connect/Accept attempt, labeled by
	// role ("supplicant" or "authenticator").
	HandshakeAttempts *prometheus.CounterVec

	// HandshakeResults counts handshake phase outcomes, labeled by role,
	// phase ("PUF_CON", "PUF_SYN", "PUF_ACK", "PUF_SYN_ACK"), and whether
	// it succeeded.
	HandshakeResults *prometheus.CounterVec

	// PerformanceFrames counts performance-frame validation outcomes.
	PerformanceFrames *prometheus.CounterVec

	// CredentialStoreSize tracks the live credential-store entry count.
	CredentialStoreSize prometheus.Gauge
}

// NewCollector creates a Collector with all PUF-ACS metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.HandshakeAttempts,
		c.HandshakeResults,
		c.PerformanceFrames,
		c.CredentialStoreSize,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		HandshakeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handshake_attempts_total",
			Help:      "Total handshake attempts started, by role.",
		}, []string{labelRole}),

		HandshakeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handshake_results_total",
			Help:      "Total handshake phase outcomes, by role, phase, and result.",
		}, []string{labelRole, labelPhase, "result"}),

		PerformanceFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "performance_frames_total",
			Help:      "Total PUF_Performance frames validated, by result.",
		}, []string{"result"}),

		CredentialStoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "credential_store_size",
			Help:      "Number of entries currently held in the credential store.",
		}),
	}
}

// -------------------------------------------------------------------------
// engine.Metrics implementation
// -------------------------------------------------------------------------

// HandshakeAttempt records a started handshake attempt for role.
func (c *Collector) HandshakeAttempt(role string) {
	c.HandshakeAttempts.WithLabelValues(role).Inc()
}

// HandshakeResult records a phase outcome for role/phase.
func (c *Collector) HandshakeResult(role, phase string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.HandshakeResults.WithLabelValues(role, phase, result).Inc()
}

// PerformanceFrameResult records a performance-frame validation outcome.
func (c *Collector) PerformanceFrameResult(valid bool) {
	result := "rejected"
	if valid {
		result = "accepted"
	}
	c.PerformanceFrames.WithLabelValues(result).Inc()
}

// SetCredentialStoreSize updates the credential-store size gauge. Callers
// typically invoke this after every StoreEntry/Query mutation.
func (c *Collector) SetCredentialStoreSize(n int) {
	c.CredentialStoreSize.Set(float64(n))
}
