/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const (
	ctxKeyRequestType ctxKey = iota
	ctxKeyIdempotentHint
)

// NewContextWithRequestType creates a new context with the passed request type.
// Request type is a free-form label for a particular kind of outgoing call
// (e.g. "login", "reset-password") and is reported as the "request_type" label
// by MetricsRoundTripper.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext extracts the request type from the context.
// Returns an empty string if the request type was not set.
func GetRequestTypeFromContext(ctx context.Context) string {
	value := ctx.Value(ctxKeyRequestType)
	if value == nil {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return s
}

// NewContextWithIdempotentHint returns a derived context that carries an "idempotent request" hint.
// When set to true, the request is considered idempotent even if it's not done with an idempotent
// HTTP method. The hint is used by RetryableRoundTripper in the DefaultCheckRetry function to decide
// whether it's safe to retry methods like POST and PATCH on retriable server errors.
func NewContextWithIdempotentHint(ctx context.Context, isIdempotent bool) context.Context {
	return context.WithValue(ctx, ctxKeyIdempotentHint, isIdempotent)
}

// GetIdempotentHintFromContext extracts the "idempotent request" hint from the context.
// Returns false when the hint is not present. See NewContextWithIdempotentHint for details.
func GetIdempotentHintFromContext(ctx context.Context) bool {
	value := ctx.Value(ctxKeyIdempotentHint)
	if value == nil {
		return false
	}
	b, ok := value.(bool)
	return ok && b
}
