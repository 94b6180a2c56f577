/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides a configurable builder for HTTP clients that behave well
// against throttling servers: retries that respect the Retry-After response header,
// client-side rate limiting that can adapt to the limit advertised by the server,
// request logging, Prometheus metrics, User-Agent and X-Request-ID propagation.
// All capabilities are implemented as chainable http.RoundTripper wrappers
// and may be used separately from the builder.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MohamedNasirS/go-throttlekit/log"
)

// CloneHTTPRequest creates a shallow copy of the request along with a deep copy of its headers.
func CloneHTTPRequest(req *http.Request) *http.Request {
	r := new(http.Request)
	*r = *req
	r.Header = CloneHTTPHeader(req.Header)
	return r
}

// CloneHTTPHeader creates a deep copy of an http.Header.
func CloneHTTPHeader(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for key, values := range in {
		newValues := make([]string, len(values))
		copy(newValues, values)
		out[key] = newValues
	}
	return out
}

// Opts provides options for NewWithOpts and MustNewWithOpts functions.
type Opts struct {
	// UserAgent is a value for the User-Agent header of all outgoing requests.
	UserAgent string

	// ClientType is a label for all requests done by the client, usually the name of the upstream
	// service the client talks to. It's reported as the "client_type" metrics label and logged
	// on every request.
	ClientType string

	// Delegate is the transport that actually performs requests.
	// http.DefaultTransport clone is used if not specified.
	Delegate http.RoundTripper

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID for the X-Request-ID header.
	RequestIDProvider func(ctx context.Context) string

	// MetricsCollector is a collector of metrics for outgoing requests.
	MetricsCollector MetricsCollector

	// ClassifyRequest produces a non-parameterized summary for the given request.
	// The summary is reported as the "summary" metrics label.
	ClassifyRequest func(r *http.Request, clientType string) string
}

// New constructs an HTTP client with retries, rate limiting, logging, metrics
// and request id propagation according to the passed configuration.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// MustNew is a version of New that panics on error.
func MustNew(cfg *Config) *http.Client {
	client, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// NewWithOpts constructs an HTTP client according to the passed configuration and options.
// The transport chain is built so that every retry attempt is logged, measured and rate-limited
// on its own.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	var err error

	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Log.Enabled {
		logOpts := cfg.Log.TransportOpts()
		logOpts.LoggerProvider = opts.LoggerProvider
		delegate = NewLoggingRoundTripperWithOpts(delegate, opts.ClientType, logOpts)
	}

	if cfg.Metrics.Enabled {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			ClientType:      opts.ClientType,
			Collector:       opts.MetricsCollector,
			ClassifyRequest: opts.ClassifyRequest,
		})
	}

	if cfg.RateLimits.Enabled {
		delegate, err = NewRateLimitingRoundTripperWithOpts(delegate, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts())
		if err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)
	}

	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	if cfg.Retries.Enabled {
		retryOpts := cfg.Retries.TransportOpts()
		retryOpts.LoggerProvider = opts.LoggerProvider
		retryOpts.BackoffPolicy = cfg.Retries.GetPolicy()
		delegate, err = NewRetryableRoundTripperWithOpts(delegate, retryOpts)
		if err != nil {
			return nil, fmt.Errorf("create retryable round tripper: %w", err)
		}
	}

	return &http.Client{Transport: delegate, Timeout: time.Duration(cfg.Timeout)}, nil
}

// MustNewWithOpts is a version of NewWithOpts that panics on error.
func MustNewWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
