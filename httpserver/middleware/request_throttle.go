/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/MohamedNasirS/go-throttlekit/log"
	"github.com/MohamedNasirS/go-throttlekit/restapi"
	"github.com/MohamedNasirS/go-throttlekit/throttle"
)

// RequestThrottleLogFieldKey it is the name of the logged field that contains a key for the request throttle.
const RequestThrottleLogFieldKey = "throttle_key"

// Headers set on every response that passes the RequestThrottle middleware.
const (
	headerRateLimitLimit     = "RateLimit-Limit"
	headerRateLimitRemaining = "RateLimit-Remaining"
	headerRateLimitReset     = "RateLimit-Reset"
)

// RequestThrottleParams contains data that relates to the throttling procedure
// and could be used for rejecting or handling an occurred error.
type RequestThrottleParams struct {
	Key              string
	Decision         throttle.Decision
	RejectionMessage string
}

// RequestThrottleGetKeyFunc is a function that is called for getting key for throttling.
type RequestThrottleGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// RequestThrottleOnRejectFunc is a function that is called for rejecting HTTP request
// when the attempts limit for the key is exhausted.
type RequestThrottleOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params RequestThrottleParams, next http.Handler, logger log.FieldLogger)

// RequestThrottleOnErrorFunc is a function that is called when the throttling store fails.
type RequestThrottleOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params RequestThrottleParams, err error, next http.Handler, logger log.FieldLogger)

// RequestThrottleOpts represents an options for the RequestThrottle middleware.
type RequestThrottleOpts struct {
	// GetKey overrides the key derivation configured in the Throttle.
	// The same sentinel rule applies: an error or an empty non-bypassed key
	// is replaced with throttle.UnknownKey instead of failing the request.
	GetKey RequestThrottleGetKeyFunc

	// DryRun enables the mode in which rejected requests are served anyway
	// and only logged. Attempts are still counted.
	DryRun bool

	OnReject         RequestThrottleOnRejectFunc
	OnRejectInDryRun RequestThrottleOnRejectFunc
	OnError          RequestThrottleOnErrorFunc
}

type requestThrottleHandler struct {
	next     http.Handler
	throttle *throttle.Throttle
	getKey   RequestThrottleGetKeyFunc
	onReject RequestThrottleOnRejectFunc
	onError  RequestThrottleOnErrorFunc
}

// RequestThrottle is a middleware that throttles HTTP requests using the passed Throttle.
// Every non-bypassed request counts as one attempt for its key, rejected requests included.
// The RateLimit-Limit, RateLimit-Remaining and RateLimit-Reset headers are set on every
// response; rejected requests get 429 with the Retry-After header and the failure envelope.
func RequestThrottle(t *throttle.Throttle) func(next http.Handler) http.Handler {
	return RequestThrottleWithOpts(t, RequestThrottleOpts{})
}

// RequestThrottleWithOpts is a more configurable version of RequestThrottle middleware.
func RequestThrottleWithOpts(t *throttle.Throttle, opts RequestThrottleOpts) func(next http.Handler) http.Handler {
	if t == nil {
		panic("throttle cannot be nil")
	}
	return func(next http.Handler) http.Handler {
		return &requestThrottleHandler{
			next:     next,
			throttle: t,
			getKey:   opts.GetKey,
			onReject: makeRequestThrottleOnRejectFunc(opts),
			onError:  makeRequestThrottleOnErrorFunc(opts),
		}
	}
}

func (h *requestThrottleHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	key, bypass := h.keyForRequest(r)
	if bypass {
		h.next.ServeHTTP(rw, r)
		return
	}

	logger := GetLoggerFromContext(r.Context())

	decision, err := h.throttle.Check(r.Context(), key, time.Now())
	params := RequestThrottleParams{
		Key:              key,
		Decision:         decision,
		RejectionMessage: h.throttle.RejectionMessage(),
	}
	if err != nil {
		h.onError(rw, r, params, err, h.next, logger)
		return
	}

	rw.Header().Set(headerRateLimitLimit, strconv.Itoa(decision.Limit))
	rw.Header().Set(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))
	rw.Header().Set(headerRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))

	if decision.Admitted {
		h.next.ServeHTTP(rw, r)
		return
	}
	h.onReject(rw, r, params, h.next, logger)
}

func (h *requestThrottleHandler) keyForRequest(r *http.Request) (key string, bypass bool) {
	if h.getKey == nil {
		return h.throttle.KeyForRequest(r)
	}
	key, bypass, err := h.getKey(r)
	if err != nil {
		return throttle.UnknownKey, false
	}
	if bypass {
		return key, true
	}
	if key == "" {
		return throttle.UnknownKey, false
	}
	return key, false
}

// DefaultRequestThrottleOnReject sends the 429 response with the Retry-After header
// and the failure envelope extended with the retryAfter field.
func DefaultRequestThrottleOnReject(
	rw http.ResponseWriter, r *http.Request, params RequestThrottleParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(RequestThrottleLogFieldKey, params.Key),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	restapi.RespondThrottled(rw, params.RejectionMessage, params.Decision.RetryAfterSeconds, logger)
}

// DefaultRequestThrottleOnRejectInDryRun logs the would-be rejection and serves the request.
func DefaultRequestThrottleOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params RequestThrottleParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("too many requests, serving will be continued because of dry run mode",
			log.String(RequestThrottleLogFieldKey, params.Key),
			log.String(userAgentLogFieldKey, r.UserAgent()),
			log.Int("retry_after", params.Decision.RetryAfterSeconds),
		)
	}
	next.ServeHTTP(rw, r)
}

// DefaultRequestThrottleOnError logs the store error and sends the 503 response.
// Throttling fails closed: a request whose attempt cannot be counted is not served.
func DefaultRequestThrottleOnError(
	rw http.ResponseWriter, r *http.Request, params RequestThrottleParams, err error, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error(err.Error(), log.String(RequestThrottleLogFieldKey, params.Key))
	}
	restapi.RespondError(rw, http.StatusServiceUnavailable, restapi.ErrMessageUnavailable, logger)
}

func makeRequestThrottleOnRejectFunc(opts RequestThrottleOpts) RequestThrottleOnRejectFunc {
	if opts.DryRun {
		if opts.OnRejectInDryRun != nil {
			return opts.OnRejectInDryRun
		}
		return DefaultRequestThrottleOnRejectInDryRun
	}
	if opts.OnReject != nil {
		return opts.OnReject
	}
	return DefaultRequestThrottleOnReject
}

func makeRequestThrottleOnErrorFunc(opts RequestThrottleOpts) RequestThrottleOnErrorFunc {
	if opts.OnError != nil {
		return opts.OnError
	}
	return DefaultRequestThrottleOnError
}
