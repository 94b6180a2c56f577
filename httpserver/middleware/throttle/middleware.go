/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/MohamedNasirS/go-throttlekit/httpserver/middleware"
	"github.com/MohamedNasirS/go-throttlekit/log"
	"github.com/MohamedNasirS/go-throttlekit/netutil"
	"github.com/MohamedNasirS/go-throttlekit/restapi"
	"github.com/MohamedNasirS/go-throttlekit/throttle"
)

// RuleLogFieldName is a logged field that contains the name of the throttling rule.
const RuleLogFieldName = "throttle_rule"

// ThrottlerOpts represents options for NewThrottlerWithOpts.
type ThrottlerOpts struct {
	// GetKeyIdentity is a function that returns identity string representation.
	// The returned identity becomes a part of the throttling key for zones where key.type is "identity".
	GetKeyIdentity func(r *http.Request) (identity string, bypass bool, err error)

	// ZoneMetrics provides a metrics collector for the throttle of the named zone.
	// It is called once for every defined zone during construction
	// and may return nil to disable collection for the zone.
	ZoneMetrics func(zoneName string) throttle.MetricsCollector
}

// MiddlewareOpts represents options for Throttler.MiddlewareWithOpts.
type MiddlewareOpts struct {
	// OnReject is a callback called for rejecting HTTP request when the attempts limit is exceeded.
	OnReject middleware.RequestThrottleOnRejectFunc

	// OnRejectInDryRun is a callback called for rejecting HTTP request in the dry-run mode
	// when the attempts limit is exceeded.
	OnRejectInDryRun middleware.RequestThrottleOnRejectFunc

	// OnError is a callback called in case of any error that may occur during the throttling.
	OnError middleware.RequestThrottleOnErrorFunc

	// Tags is a list of tags for filtering throttling rules from the config. If it's empty, all rules can be applied.
	Tags []string

	// BuildHandlerAtInit determines where the final handler will be constructed.
	// If true, it will be done at the initialization step (i.e., in the constructor),
	// false (default) - right in the ServeHTTP() method (gorilla/mux case).
	BuildHandlerAtInit bool
}

// Throttler throttles HTTP requests based on the passed configuration.
// It builds a single throttle per defined zone,
// and all rules referencing the same zone count attempts in the same space.
type Throttler struct {
	cfg           *Config
	mc            MetricsCollector
	zoneThrottles map[string]*throttle.Throttle
}

// NewThrottler creates a new Throttler with throttles for all zones defined in the passed configuration.
func NewThrottler(cfg *Config, mc MetricsCollector) (*Throttler, error) {
	return NewThrottlerWithOpts(cfg, mc, ThrottlerOpts{})
}

// NewThrottlerWithOpts is a more configurable version of NewThrottler.
func NewThrottlerWithOpts(cfg *Config, mc MetricsCollector, opts ThrottlerOpts) (*Throttler, error) {
	if mc == nil {
		mc = disabledMetrics{}
	}
	zoneThrottles := make(map[string]*throttle.Throttle, len(cfg.Zones))
	for zoneName := range cfg.Zones {
		zoneCfg := cfg.Zones[zoneName]
		var zoneMetrics throttle.MetricsCollector
		if opts.ZoneMetrics != nil {
			zoneMetrics = opts.ZoneMetrics(zoneName)
		}
		zoneThrottle, err := makeZoneThrottle(&zoneCfg, opts.GetKeyIdentity, zoneMetrics)
		if err != nil {
			closeZoneThrottles(zoneThrottles)
			return nil, fmt.Errorf("make throttle for zone %q: %w", zoneName, err)
		}
		zoneThrottles[zoneName] = zoneThrottle
	}
	return &Throttler{cfg: cfg, mc: mc, zoneThrottles: zoneThrottles}, nil
}

// Zone returns the throttle serving the named zone or nil if the zone is not defined.
// All rules referencing the zone share the returned throttle,
// so resetting a key through it forgives attempts counted by any of them.
func (t *Throttler) Zone(name string) *throttle.Throttle {
	return t.zoneThrottles[name]
}

// Throttles returns throttles of all defined zones, e.g. to run periodic sweeping for them.
func (t *Throttler) Throttles() []*throttle.Throttle {
	throttles := make([]*throttle.Throttle, 0, len(t.zoneThrottles))
	for _, zoneThrottle := range t.zoneThrottles {
		throttles = append(throttles, zoneThrottle)
	}
	return throttles
}

// Close closes throttles of all defined zones along with their stores.
func (t *Throttler) Close() error {
	var firstErr error
	for zoneName, zoneThrottle := range t.zoneThrottles {
		if err := zoneThrottle.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close throttle for zone %q: %w", zoneName, err)
		}
	}
	return firstErr
}

// Middleware creates a middleware that throttles incoming HTTP requests matched by the configured rules.
func (t *Throttler) Middleware() (func(next http.Handler) http.Handler, error) {
	return t.MiddlewareWithOpts(MiddlewareOpts{})
}

// MiddlewareWithOpts is a more configurable version of Middleware.
func (t *Throttler) MiddlewareWithOpts(opts MiddlewareOpts) (func(next http.Handler) http.Handler, error) {
	routes, err := t.makeRoutes(opts)
	if err != nil {
		return nil, err
	}

	if opts.BuildHandlerAtInit {
		return func(next http.Handler) http.Handler {
			for i := range routes {
				route := &routes[i]
				route.Handler = next
				for j := len(route.Middlewares) - 1; j >= 0; j-- {
					route.Handler = route.Middlewares[j](route.Handler)
				}
			}
			return &handler{next: next, routesManager: restapi.NewRoutesManager(routes)}
		}, nil
	}

	return func(next http.Handler) http.Handler {
		return &handler{next: next, routesManager: restapi.NewRoutesManager(routes)}
	}, nil
}

type handler struct {
	next          http.Handler
	routesManager *restapi.RoutesManager
}

func (h *handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	matchedRoute, ok := h.routesManager.SearchMatchedRouteForRequest(r)
	if !ok {
		h.next.ServeHTTP(rw, r)
		return
	}

	if matchedRoute.Handler != nil {
		matchedRoute.Handler.ServeHTTP(rw, r)
		return
	}

	// We build a final handler here and not in the constructor because it is how the gorilla/mux works:
	// all middlewares apply only after the matched route is found
	// (https://github.com/gorilla/mux/blob/d07530f46e1eec4e40346e24af34dcc6750ad39f/mux.go#L138-L146).
	nextHandler := h.next
	for i := len(matchedRoute.Middlewares) - 1; i >= 0; i-- {
		nextHandler = matchedRoute.Middlewares[i](nextHandler)
	}
	nextHandler.ServeHTTP(rw, r)
}

func (t *Throttler) makeRoutes(opts MiddlewareOpts) (routes []restapi.Route, err error) {
	for _, rule := range t.cfg.Rules {
		if len(rule.Zones) == 0 {
			continue
		}

		var middlewares []func(http.Handler) http.Handler
		for i := range rule.Zones {
			ruleZone := rule.Zones[i]
			if len(opts.Tags) != 0 &&
				!checkStringSlicesIntersect(opts.Tags, rule.Tags) &&
				!checkStringSlicesIntersect(opts.Tags, ruleZone.Tags) {
				continue
			}
			zoneThrottle := t.zoneThrottles[ruleZone.Zone]
			if zoneThrottle == nil {
				return nil, fmt.Errorf("zone %q is not defined", ruleZone.Zone)
			}
			zoneCfg := t.cfg.Zones[ruleZone.Zone]
			middlewares = append(middlewares, t.makeZoneMiddleware(zoneThrottle, &zoneCfg, rule.Name(), opts))
		}
		if len(middlewares) == 0 {
			continue
		}

		for _, cfgRoute := range rule.Routes {
			routes = append(routes, restapi.NewRoute(cfgRoute, nil, middlewares))
		}
		for _, exclCfgRoute := range rule.ExcludedRoutes {
			routes = append(routes, restapi.NewExcludedRoute(exclCfgRoute))
		}
	}

	return routes, nil
}

func (t *Throttler) makeZoneMiddleware(
	zoneThrottle *throttle.Throttle, zoneCfg *ZoneConfig, ruleName string, opts MiddlewareOpts,
) func(next http.Handler) http.Handler {
	onReject := opts.OnReject
	if onReject == nil {
		onReject = middleware.DefaultRequestThrottleOnReject
	}
	onRejectWithMetrics := func(
		rw http.ResponseWriter, r *http.Request, params middleware.RequestThrottleParams,
		next http.Handler, logger log.FieldLogger,
	) {
		t.mc.IncRejects(ruleName, false)
		if logger != nil {
			logger = logger.With(log.String(RuleLogFieldName, ruleName))
		}
		onReject(rw, r, params, next, logger)
	}

	onRejectInDryRun := opts.OnRejectInDryRun
	if onRejectInDryRun == nil {
		onRejectInDryRun = middleware.DefaultRequestThrottleOnRejectInDryRun
	}
	onRejectInDryRunWithMetrics := func(
		rw http.ResponseWriter, r *http.Request, params middleware.RequestThrottleParams,
		next http.Handler, logger log.FieldLogger,
	) {
		t.mc.IncRejects(ruleName, true)
		if logger != nil {
			logger = logger.With(log.String(RuleLogFieldName, ruleName))
		}
		onRejectInDryRun(rw, r, params, next, logger)
	}

	return middleware.RequestThrottleWithOpts(zoneThrottle, middleware.RequestThrottleOpts{
		DryRun:           zoneCfg.DryRun,
		OnReject:         onRejectWithMetrics,
		OnRejectInDryRun: onRejectInDryRunWithMetrics,
		OnError:          opts.OnError,
	})
}

func makeZoneThrottle(
	cfg *ZoneConfig,
	getKeyIdentity func(r *http.Request) (string, bool, error),
	zoneMetrics throttle.MetricsCollector,
) (*throttle.Throttle, error) {
	keyFunc, err := makeZoneKeyFunc(cfg.Key, getKeyIdentity, cfg.ExcludedKeys, cfg.IncludedKeys)
	if err != nil {
		return nil, err
	}
	throttleCfg := throttle.Config{
		WindowDuration:   time.Duration(cfg.WindowDuration),
		MaxAttempts:      cfg.MaxAttempts,
		KeyFunc:          keyFunc,
		RejectionMessage: cfg.RejectionMessage,
		MaxKeys:          cfg.MaxKeys,
	}

	switch cfg.Store.Type {
	case "", StoreTypeInMemory:
		return throttle.New(throttleCfg, zoneMetrics)
	case StoreTypeRedis:
		redisStore, err := throttle.NewRedisStoreWithOpts(cfg.Store.Redis.Addr, throttle.RedisStoreOpts{
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("new redis store: %w", err)
		}
		return throttle.NewWithStore(throttleCfg, redisStore, zoneMetrics)
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
}

func makeZoneKeyFunc(
	cfg ZoneKeyConfig,
	getKeyIdentity func(r *http.Request) (string, bool, error),
	excludedKeys []string,
	includedKeys []string,
) (throttle.KeyFunc, error) {
	makeByType := func() (throttle.KeyFunc, error) {
		switch cfg.Type {
		case "", ZoneKeyTypeClientAddr:
			return func(r *http.Request) (string, bool, error) {
				return prefixedKey(cfg.Prefix, clientAddress(r, cfg.TrustProxyHeaders)), false, nil
			}, nil
		case ZoneKeyTypeHTTPHeader:
			return func(r *http.Request) (string, bool, error) {
				headerVal := strings.TrimSpace(r.Header.Get(cfg.HeaderName))
				if headerVal == "" {
					return "", !cfg.NoBypassEmpty, nil
				}
				return prefixedKey(cfg.Prefix, headerVal), false, nil
			}, nil
		case ZoneKeyTypeIdentity:
			if getKeyIdentity == nil {
				return nil, fmt.Errorf("GetKeyIdentity is required for %q key zone type", ZoneKeyTypeIdentity)
			}
			return func(r *http.Request) (string, bool, error) {
				identity, bypass, err := getKeyIdentity(r)
				if err != nil || bypass {
					return "", bypass, err
				}
				return prefixedKey(cfg.Prefix, clientAddress(r, cfg.TrustProxyHeaders)+":"+identity), false, nil
			}, nil
		}
		return nil, fmt.Errorf("unknown key zone type %q", cfg.Type)
	}

	getKey, err := makeByType()
	if err != nil {
		return nil, err
	}
	if len(excludedKeys) == 0 && len(includedKeys) == 0 {
		return getKey, nil
	}

	if len(excludedKeys) != 0 && len(includedKeys) != 0 {
		return nil, fmt.Errorf("excluded and included keys cannot be used together")
	}

	makeWithPredefinedKeys := func(keys []string, exclude bool) throttle.KeyFunc {
		compiledKeys := make([]func(s string) bool, 0, len(keys))
		for _, key := range keys {
			compiledKeys = append(compiledKeys, glob.Compile(key))
		}
		return func(r *http.Request) (string, bool, error) {
			key, bypass, getKeyErr := getKey(r)
			if getKeyErr != nil {
				return key, bypass, getKeyErr
			}
			if bypass {
				return key, bypass, nil
			}
			keyFound := false
			for i := range compiledKeys {
				if compiledKeys[i](key) {
					keyFound = true
					break
				}
			}
			return key, keyFound == exclude, nil
		}
	}

	if len(excludedKeys) != 0 {
		return makeWithPredefinedKeys(excludedKeys, true), nil
	}
	return makeWithPredefinedKeys(includedKeys, false), nil
}

// clientAddress returns the client address for throttling key derivation.
// Proxy headers are consulted only when the zone is explicitly configured to trust them.
func clientAddress(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		return netutil.GetClientAddress(r)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func prefixedKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

func closeZoneThrottles(zoneThrottles map[string]*throttle.Throttle) {
	for _, zoneThrottle := range zoneThrottles {
		_ = zoneThrottle.Close()
	}
}

func checkStringSlicesIntersect(slice1, slice2 []string) bool {
	for i := range slice1 {
		for j := range slice2 {
			if slice1[i] == slice2[j] {
				return true
			}
		}
	}
	return false
}
