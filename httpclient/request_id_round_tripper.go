/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"

	"github.com/MohamedNasirS/go-throttlekit/httpserver/middleware"
)

// RequestIDRoundTripper adds the X-Request-ID header to outgoing requests
// so that a throttled request can be correlated with the server-side logs.
type RequestIDRoundTripper struct {
	Delegate http.RoundTripper

	// RequestIDProvider extracts the request ID that will be put into the X-Request-ID header.
	// By default, the ID of the server request being handled is used (if there is one in the context).
	RequestIDProvider func(ctx context.Context) string
}

// RequestIDRoundTripperOpts represents an options for RequestIDRoundTripper.
type RequestIDRoundTripperOpts struct {
	RequestIDProvider func(ctx context.Context) string
}

// NewRequestIDRoundTripper creates a new RequestIDRoundTripper
// that propagates the request ID found in the request's context.
func NewRequestIDRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{})
}

// NewRequestIDRoundTripperWithOpts creates a new RequestIDRoundTripper with options.
func NewRequestIDRoundTripperWithOpts(delegate http.RoundTripper, opts RequestIDRoundTripperOpts) http.RoundTripper {
	requestIDProvider := opts.RequestIDProvider
	if requestIDProvider == nil {
		requestIDProvider = middleware.GetRequestIDFromContext
	}
	return &RequestIDRoundTripper{
		Delegate:          delegate,
		RequestIDProvider: requestIDProvider,
	}
}

// RoundTrip sets the X-Request-ID header unless it's already present or no request ID is available.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	requestID := rt.RequestIDProvider(r.Context())
	if r.Header.Get("X-Request-ID") != "" || requestID == "" {
		return rt.Delegate.RoundTrip(r)
	}

	r = CloneHTTPRequest(r)
	r.Header.Set("X-Request-ID", requestID)
	return rt.Delegate.RoundTrip(r)
}
