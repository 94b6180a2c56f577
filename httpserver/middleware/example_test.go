/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MohamedNasirS/go-throttlekit/log"
	"github.com/MohamedNasirS/go-throttlekit/throttle"
)

func Example() {
	logger, closeFn := log.NewLogger(&log.Config{Output: log.OutputStdout, Format: log.FormatJSON})
	defer closeFn()

	router := chi.NewRouter()

	router.Use(
		RequestID(),
		LoggingWithOpts(logger, LoggingOpts{RequestStart: true}),
		Recovery(),
		RequestBodyLimit(1024*1024),
	)

	metricsCollector := NewHTTPRequestPrometheusMetrics()
	router.Use(HTTPRequestMetricsWithOpts(metricsCollector, getChiRoutePattern, HTTPRequestMetricsOpts{
		ExcludedEndpoints: []string{"/metrics", "/healthz"}, // Metrics will not be collected for "/metrics" and "/healthz" endpoints.
	}))

	// Every client address gets 100 attempts per minute for the whole API.
	apiThrottle := throttle.MustNew(throttle.Config{
		WindowDuration: time.Minute,
		MaxAttempts:    100,
	}, nil)
	defer func() { _ = apiThrottle.Close() }()
	router.Use(RequestThrottle(apiThrottle))

	// Login attempts are counted per client address and login identifier.
	loginThrottle := throttle.MustNew(throttle.Config{
		WindowDuration: 15 * time.Minute,
		MaxAttempts:    5,
		KeyFunc: throttle.ByClientAddressAndIdentity("login", func(r *http.Request) string {
			return r.PostFormValue("email")
		}, throttle.UnknownKey),
	}, nil)
	defer func() { _ = loginThrottle.Close() }()

	// Writes are counted per client address and authenticated user.
	writeThrottle := throttle.MustNew(throttle.Config{
		WindowDuration: time.Minute,
		MaxAttempts:    30,
		KeyFunc: throttle.ByClientAddressAndIdentity("write", func(r *http.Request) string {
			return r.Header.Get("X-User-ID")
		}, "anon"),
	}, nil)
	defer func() { _ = writeThrottle.Close() }()

	router.With(RequestThrottle(loginThrottle)).Post("/login", func(rw http.ResponseWriter, req *http.Request) {
		// Authenticate and, on success, forgive the counted attempts
		// so that a following legitimate login is not rejected.
		_ = loginThrottle.ResetForRequest(req)
	})

	router.Route("/users", func(r chi.Router) {
		r.Get("/", func(rw http.ResponseWriter, req *http.Request) {
			// Returns list of users.
		})
		r.With(RequestThrottle(writeThrottle)).Post("/", func(rw http.ResponseWriter, req *http.Request) {
			// Create new user.
		})
	})
}

// Example of how this function may look for gorilla/mux router is given in the RoutePatternGetterFunc documentation.
// GetChiRoutePattern extracts chi route pattern from request.
func getChiRoutePattern(r *http.Request) string {
	// modified code from https://github.com/go-chi/chi/issues/270#issuecomment-479184559
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		// Pattern is already available
		return pattern
	}

	routePath := r.URL.RawPath
	if routePath == "" {
		routePath = r.URL.Path
	}

	tctx := chi.NewRouteContext()
	if !rctx.Routes.Match(tctx, r.Method, routePath) {
		return ""
	}
	return tctx.RoutePattern()
}
