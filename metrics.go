package lnurlbridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "lnurl"

// Flow label values.
const (
	flowChannel  = "channel"
	flowWithdraw = "withdraw"
	flowAuth     = "auth"
)

// Payment result label values.
const (
	paymentSucceeded = "succeeded"
	paymentFailed    = "failed"
	paymentRejected  = "rejected"
)

// Metrics bundles the collectors of one server instance.
type Metrics struct {
	registry *prometheus.Registry

	tokensIssued   *prometheus.CounterVec
	tokensRejected *prometheus.CounterVec
	payments       *prometheus.CounterVec
	queueDepth     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tokens_issued_total",
				Help:      "Challenge tokens issued per flow",
			},
			[]string{"flow"},
		),
		tokensRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tokens_rejected_total",
				Help:      "Callbacks presenting an unknown or used token",
			},
			[]string{"flow"},
		),
		payments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "withdraw_payments_total",
				Help:      "Withdrawal payments by final result",
			},
			[]string{"result"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "withdraw_queue_depth",
				Help:      "Withdrawal payments waiting for a worker",
			},
		),
	}

	m.registry.MustRegister(
		m.tokensIssued, m.tokensRejected, m.payments, m.queueDepth,
	)

	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
