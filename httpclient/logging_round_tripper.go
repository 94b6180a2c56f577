/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MohamedNasirS/go-throttlekit/httpserver/middleware"
	"github.com/MohamedNasirS/go-throttlekit/log"
)

// LoggingMode represents a mode of logging of outgoing requests.
type LoggingMode string

// Supported logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logging mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper implements http.RoundTripper and logs outgoing requests.
type LoggingRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// ClientType is a label for all requests done by the round tripper,
	// usually the name of the upstream service the client talks to.
	ClientType string

	// Opts are the options for the logging round tripper.
	Opts LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider is a function that provides a context-specific logger.
	// middleware.GetLoggerFromContext is used by default.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode of logging: none, all, failed. Empty value works as "all".
	Mode LoggingMode

	// SlowRequestThreshold is a threshold for logging slow requests.
	// Requests that finish faster are not logged. Zero value logs all requests.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that logs outgoing requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, clientType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, clientType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that logs outgoing requests with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, clientType string, opts LoggingRoundTripperOpts,
) http.RoundTripper {
	return &LoggingRoundTripper{
		Delegate:   delegate,
		ClientType: clientType,
		Opts:       opts,
	}
}

func (rt *LoggingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		return rt.Opts.LoggerProvider(ctx)
	}
	return middleware.GetLoggerFromContext(ctx)
}

// RoundTrip performs the request and logs how it went.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	logger := rt.getLogger(ctx)
	if logger == nil || elapsed < rt.Opts.SlowRequestThreshold {
		return resp, err
	}
	if resp != nil && rt.Opts.Mode == LoggingModeFailed && resp.StatusCode < http.StatusBadRequest && err == nil {
		return resp, err
	}

	loggerAtLevel := logger.Infof
	if err != nil {
		loggerAtLevel = logger.Errorf
	}
	if resp != nil {
		loggerAtLevel("client http request %s %s status code %d, time taken %.3f, client type %s, err %+v",
			r.Method, r.URL.String(), resp.StatusCode, elapsed.Seconds(), rt.ClientType, err)
	} else {
		loggerAtLevel("client http request %s %s failed, time taken %.3f, client type %s, err %+v",
			r.Method, r.URL.String(), elapsed.Seconds(), rt.ClientType, err)
	}

	if loggingParams := middleware.GetLoggingParamsFromContext(ctx); loggingParams != nil {
		loggingParams.AddTimeSlotDurationInMs(fmt.Sprintf("external_request_%s_ms", rt.ClientType), elapsed)
		if requestID := middleware.GetRequestIDFromContext(ctx); requestID != "" {
			loggingParams.ExtendFields(log.String("request_id", requestID))
		}
	}

	return resp, err
}
