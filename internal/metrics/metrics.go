// Package metrics counts deployment steps per network. A run is a short lived
// process, so the registry is written out in the node exporter textfile format
// instead of being served.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deployer"

const (
	OutcomeExecuted = "executed"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Recorder is safe for concurrent use by several network runs. A nil
// *Recorder records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	steps         *prometheus.CounterVec
	retries       *prometheus.CounterVec
	verifications *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.steps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "steps_total",
		Help:      "Plan steps by network, step kind and outcome",
	}, []string{"network", "kind", "outcome"})

	r.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retries_total",
		Help:      "Transient chain failures that were retried",
	}, []string{"network"})

	r.verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Source verification attempts by result",
	}, []string{"network", "result"})

	r.stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "step_duration_seconds",
		Help:      "Wall time of executed plan steps",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"network", "kind"})

	r.registry.MustRegister(r.steps, r.retries, r.verifications, r.stepDuration)
	return r
}

func (r *Recorder) Step(network, kind, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.steps.With(prometheus.Labels{"network": network, "kind": kind, "outcome": outcome}).Inc()
	if outcome == OutcomeExecuted {
		r.stepDuration.With(prometheus.Labels{"network": network, "kind": kind}).Observe(elapsed.Seconds())
	}
}

func (r *Recorder) Retry(network string) {
	if r == nil {
		return
	}
	r.retries.With(prometheus.Labels{"network": network}).Inc()
}

func (r *Recorder) Verification(network string, ok bool) {
	if r == nil {
		return
	}
	result := "verified"
	if !ok {
		result = "failed"
	}
	r.verifications.With(prometheus.Labels{"network": network, "result": result}).Inc()
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
