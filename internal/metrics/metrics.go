// Package metrics records deployment and verification counters on a private
// Prometheus registry. A CLI process is too short-lived to be scraped, so the
// registry is flushed to a node-exporter textfile instead.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the apesctl collectors.
type Metrics struct {
	registry *prometheus.Registry

	deploymentsTotal   *prometheus.CounterVec
	deploymentDuration *prometheus.HistogramVec
	confirmationPolls  *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		deploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apesctl_deployments_total",
				Help: "Total number of deployments by target, contract and outcome",
			},
			[]string{"target", "contract", "outcome"},
		),

		deploymentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apesctl_deployment_duration_seconds",
				Help:    "Time from resolution to confirmation in seconds",
				Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"target"},
		),

		confirmationPolls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apesctl_confirmation_polls_total",
				Help: "Total number of receipt polls",
			},
			[]string{"target"},
		),

		verificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apesctl_verifications_total",
				Help: "Total number of source verifications by service and outcome",
			},
			[]string{"service", "outcome"},
		),
	}
}

// ObserveDeployment records one finished deployment.
func (m *Metrics) ObserveDeployment(target, contract, outcome string, seconds float64) {
	m.deploymentsTotal.WithLabelValues(target, contract, outcome).Inc()
	m.deploymentDuration.WithLabelValues(target).Observe(seconds)
}

// IncConfirmationPolls counts a receipt poll.
func (m *Metrics) IncConfirmationPolls(target string) {
	m.confirmationPolls.WithLabelValues(target).Inc()
}

// ObserveVerification records one verification attempt.
func (m *Metrics) ObserveVerification(service, outcome string) {
	m.verificationsTotal.WithLabelValues(service, outcome).Inc()
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics in the text exposition format. The file is
// replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
