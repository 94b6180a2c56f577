/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector is an interface for collecting metrics for outgoing HTTP requests.
type MetricsCollector interface {
	// RequestDuration observes the duration of the request and the status code.
	RequestDuration(clientType, requestType, remoteAddress, summary, status string, startTime time.Time)
}

// PrometheusMetricsCollector is a Prometheus metrics collector for outgoing HTTP requests.
type PrometheusMetricsCollector struct {
	// Durations is a histogram of the durations of outgoing HTTP requests.
	Durations *prometheus.HistogramVec
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_client_request_duration_seconds",
			Help:      "A histogram of the durations of outgoing HTTP requests.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 150, 300, 600},
		}, []string{"client_type", "request_type", "remote_address", "summary", "status"}),
	}
}

// MustRegister registers metrics in the default Prometheus registry and panics on error.
func (p *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(p.Durations)
}

// Unregister removes metrics from the default Prometheus registry.
func (p *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(p.Durations)
}

// RequestDuration observes the duration of the request and the status code.
func (p *PrometheusMetricsCollector) RequestDuration(
	clientType, requestType, remoteAddress, summary, status string, startTime time.Time,
) {
	p.Durations.WithLabelValues(clientType, requestType, remoteAddress, summary, status).
		Observe(time.Since(startTime).Seconds())
}

// MetricsRoundTripper implements http.RoundTripper and measures outgoing requests.
type MetricsRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// ClientType is a label for all requests done by the round tripper,
	// usually the name of the upstream service the client talks to.
	ClientType string

	// Collector is a metrics collector.
	Collector MetricsCollector

	// ClassifyRequest produces a non-parameterized summary for the given request.
	ClassifyRequest func(r *http.Request, clientType string) string
}

// MetricsRoundTripperOpts represents options for MetricsRoundTripper.
type MetricsRoundTripperOpts struct {
	// ClientType is a label for all requests done by the round tripper.
	ClientType string

	// Collector is a metrics collector.
	Collector MetricsCollector

	// ClassifyRequest produces a non-parameterized summary for the given request.
	// By default, the summary is "<method> <client type>".
	ClassifyRequest func(r *http.Request, clientType string) string
}

// NewMetricsRoundTripper creates an HTTP transport that measures outgoing requests.
func NewMetricsRoundTripper(delegate http.RoundTripper, collector MetricsCollector) http.RoundTripper {
	return NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{Collector: collector})
}

// NewMetricsRoundTripperWithOpts creates an HTTP transport that measures outgoing requests with options.
func NewMetricsRoundTripperWithOpts(delegate http.RoundTripper, opts MetricsRoundTripperOpts) http.RoundTripper {
	return &MetricsRoundTripper{
		Delegate:        delegate,
		ClientType:      opts.ClientType,
		Collector:       opts.Collector,
		ClassifyRequest: opts.ClassifyRequest,
	}
}

// RoundTrip performs the request and measures how long it took.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Collector == nil {
		return rt.Delegate.RoundTrip(r)
	}

	status := "0"
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	requestType := GetRequestTypeFromContext(r.Context())
	rt.Collector.RequestDuration(rt.ClientType, requestType, r.Host, rt.requestSummary(r), status, start)
	return resp, err
}

func (rt *MetricsRoundTripper) requestSummary(r *http.Request) string {
	if rt.ClassifyRequest != nil {
		return rt.ClassifyRequest(r, rt.ClientType)
	}
	return fmt.Sprintf("%s %s", r.Method, rt.ClientType)
}
