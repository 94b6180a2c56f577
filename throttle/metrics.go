/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MohamedNasirS/go-throttlekit/internal/libinfo"
)

// MetricsCollector is an interface for collecting metrics about throttling decisions.
type MetricsCollector interface {
	// IncAdmitted increments the counter of admitted checks.
	IncAdmitted()

	// IncRejected increments the counter of rejected checks.
	IncRejected()

	// IncResets increments the counter of performed resets.
	IncResets()

	// AddSweptEntries increments the counter of window entries removed by sweeps.
	AddSweptEntries(n int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// See PrometheusMetrics.MustCurryWith method for more details.
	// Keep in mind that if this list is not empty,
	// PrometheusMetrics.MustCurryWith method must be called further with the same labels.
	// Otherwise, the collector will panic.
	CurriedLabelNames []string
}

// PrometheusMetrics represents a Prometheus metrics collector for throttling decisions.
type PrometheusMetrics struct {
	AdmittedTotal     *prometheus.CounterVec
	RejectedTotal     *prometheus.CounterVec
	ResetsTotal       *prometheus.CounterVec
	SweptEntriesTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new Prometheus metrics collector for throttling decisions.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new Prometheus metrics collector for throttling decisions with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	constLabels := libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels)
	makeCounterVec := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, opts.CurriedLabelNames)
	}
	return &PrometheusMetrics{
		AdmittedTotal:     makeCounterVec("throttle_admitted_total", "Number of admitted throttling checks."),
		RejectedTotal:     makeCounterVec("throttle_rejected_total", "Number of rejected throttling checks."),
		ResetsTotal:       makeCounterVec("throttle_resets_total", "Number of performed window resets."),
		SweptEntriesTotal: makeCounterVec("throttle_swept_entries_total", "Number of expired window entries removed by sweeps."),
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		AdmittedTotal:     pm.AdmittedTotal.MustCurryWith(labels),
		RejectedTotal:     pm.RejectedTotal.MustCurryWith(labels),
		ResetsTotal:       pm.ResetsTotal.MustCurryWith(labels),
		SweptEntriesTotal: pm.SweptEntriesTotal.MustCurryWith(labels),
	}
}

// MustRegister registers metrics in Prometheus client's default registry and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.AdmittedTotal,
		pm.RejectedTotal,
		pm.ResetsTotal,
		pm.SweptEntriesTotal,
	)
}

// Unregister unregisters metrics in Prometheus client's default registry.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.AdmittedTotal)
	prometheus.Unregister(pm.RejectedTotal)
	prometheus.Unregister(pm.ResetsTotal)
	prometheus.Unregister(pm.SweptEntriesTotal)
}

// IncAdmitted increments the counter of admitted checks.
func (pm *PrometheusMetrics) IncAdmitted() {
	pm.AdmittedTotal.With(nil).Inc()
}

// IncRejected increments the counter of rejected checks.
func (pm *PrometheusMetrics) IncRejected() {
	pm.RejectedTotal.With(nil).Inc()
}

// IncResets increments the counter of performed resets.
func (pm *PrometheusMetrics) IncResets() {
	pm.ResetsTotal.With(nil).Inc()
}

// AddSweptEntries increments the counter of window entries removed by sweeps.
func (pm *PrometheusMetrics) AddSweptEntries(n int) {
	pm.SweptEntriesTotal.With(nil).Add(float64(n))
}

type disabledMetrics struct{}

func (disabledMetrics) IncAdmitted()        {}
func (disabledMetrics) IncRejected()        {}
func (disabledMetrics) IncResets()          {}
func (disabledMetrics) AddSweptEntries(int) {}
