/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MohamedNasirS/go-throttlekit/internal/libinfo"
)

const (
	metricsLabelDryRun = "dry_run"
	metricsLabelRule   = "rule"
)

const (
	metricsValYes = "yes"
	metricsValNo  = "no"
)

// MetricsCollector is an interface for collecting metrics about rule-based throttling.
type MetricsCollector interface {
	// IncRejects increments the counter of HTTP requests rejected by the named throttling rule.
	IncRejects(ruleName string, dryRun bool)
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

// PrometheusMetrics represents a Prometheus metrics collector for rule-based throttling.
type PrometheusMetrics struct {
	Rejects *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new Prometheus metrics collector for rule-based throttling.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new Prometheus metrics collector for rule-based throttling
// with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	labelNames := []string{metricsLabelDryRun, metricsLabelRule}
	labelNames = append(labelNames, opts.CurriedLabelNames...)
	rejects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   opts.Namespace,
		Name:        "request_throttle_rejects_total",
		Help:        "Number of HTTP requests rejected by throttling rules.",
		ConstLabels: libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels),
	}, labelNames)
	return &PrometheusMetrics{Rejects: rejects}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{Rejects: pm.Rejects.MustCurryWith(labels)}
}

// MustRegister registers the metrics collector in Prometheus client's default registry
// and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Rejects)
}

// Unregister cancels registration of the metrics collector in Prometheus client's default registry.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Rejects)
}

// IncRejects increments the counter of HTTP requests rejected by the named throttling rule.
func (pm *PrometheusMetrics) IncRejects(ruleName string, dryRun bool) {
	pm.Rejects.With(makeCommonPromLabels(dryRun, ruleName)).Inc()
}

func makeCommonPromLabels(dryRun bool, rule string) prometheus.Labels {
	dryRunVal := metricsValNo
	if dryRun {
		dryRunVal = metricsValYes
	}
	return prometheus.Labels{metricsLabelDryRun: dryRunVal, metricsLabelRule: rule}
}

type disabledMetrics struct{}

func (disabledMetrics) IncRejects(ruleName string, dryRun bool) {}
