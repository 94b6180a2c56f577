/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoutePath represents route's path.
type RoutePath struct {
	Raw            string
	NormalizedPath string
	RegExpPath     *regexp.Regexp
	ExactMatch     bool
	ForwardMatch   bool
}

// ParseRoutePath parses string representation of route's path.
// Syntax: [ = | ~ | ^~ ] urlPath
// Semantic for modifier is used the same as in Nginx (https://nginx.org/en/docs/http/ngx_http_core_module.html#location).
func ParseRoutePath(rp string) (RoutePath, error) {
	rp = strings.TrimSpace(rp)
	if rp == "" {
		return RoutePath{}, fmt.Errorf("path is missing")
	}

	requireAbsolute := func(p, matching string) error {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("path should be started with \"/\" in case of %s matching", matching)
		}
		return nil
	}

	switch {
	case strings.HasPrefix(rp, "="):
		p := strings.TrimSpace(rp[1:])
		if err := requireAbsolute(p, "exact"); err != nil {
			return RoutePath{}, err
		}
		return RoutePath{Raw: rp, NormalizedPath: NormalizeURLPath(p), ExactMatch: true}, nil

	case strings.HasPrefix(rp, "^~"):
		p := strings.TrimSpace(rp[2:])
		if err := requireAbsolute(p, "forward"); err != nil {
			return RoutePath{}, err
		}
		return RoutePath{Raw: rp, NormalizedPath: NormalizeURLPath(p), ForwardMatch: true}, nil

	case strings.HasPrefix(rp, "~"):
		p := strings.TrimSpace(rp[1:])
		if p == "" {
			return RoutePath{}, fmt.Errorf("regular expression is missing")
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return RoutePath{}, err
		}
		return RoutePath{Raw: rp, RegExpPath: re}, nil
	}

	if err := requireAbsolute(rp, "prefixed"); err != nil {
		return RoutePath{}, err
	}
	return RoutePath{Raw: rp, NormalizedPath: NormalizeURLPath(rp)}, nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (rp *RoutePath) UnmarshalText(text []byte) (err error) {
	*rp, err = ParseRoutePath(string(text))
	return
}

// MarshalText implements the encoding.TextMarshaler interface.
func (rp RoutePath) MarshalText() ([]byte, error) {
	return []byte(rp.Raw), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (rp *RoutePath) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return rp.UnmarshalText([]byte(s))
}

// MarshalJSON implements the json.Marshaler interface.
func (rp RoutePath) MarshalJSON() ([]byte, error) {
	return json.Marshal(rp.Raw)
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (rp *RoutePath) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return rp.UnmarshalText([]byte(s))
}

// MarshalYAML implements the yaml.Marshaler interface.
func (rp RoutePath) MarshalYAML() (interface{}, error) {
	return rp.Raw, nil
}

// Route represents route for handling.
type Route struct {
	Path        RoutePath
	Methods     []string
	Handler     http.Handler
	Middlewares []func(http.Handler) http.Handler
	Excluded    bool // Set to true for routes that are matched to be excluded.
}

// NewRoute returns a new route.
func NewRoute(cfg RouteConfig, handler http.Handler, middlewares []func(http.Handler) http.Handler) Route {
	return Route{
		Path:        cfg.Path,
		Methods:     cfg.MethodsInUpperCase(),
		Handler:     handler,
		Middlewares: middlewares,
	}
}

// NewExcludedRoute returns a new route that will be used as exclusion in matching.
func NewExcludedRoute(cfg RouteConfig) Route {
	return Route{
		Path:     cfg.Path,
		Methods:  cfg.MethodsInUpperCase(),
		Excluded: true,
	}
}

// matchesMethod reports whether the route handles the passed HTTP method.
// Route with the empty methods list handles all of them.
func (r *Route) matchesMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for i := range r.Methods {
		if r.Methods[i] == method {
			return true
		}
	}
	return false
}

// RoutesManager contains routes for handling and allows to search among them.
type RoutesManager struct {
	exactRoutes              map[string][]Route
	descSortedPrefixedRoutes []Route
	regExpRoutes             []Route
}

// NewRoutesManager create new RoutesManager.
func NewRoutesManager(routes []Route) *RoutesManager {
	exactRoutes := make(map[string][]Route)
	var prefixedRoutes []Route
	var regExpRoutes []Route
	for _, route := range routes {
		switch {
		case route.Path.ExactMatch:
			exactRoutes[route.Path.NormalizedPath] = append(exactRoutes[route.Path.NormalizedPath], route)
		case route.Path.RegExpPath != nil:
			regExpRoutes = append(regExpRoutes, route)
		default:
			prefixedRoutes = append(prefixedRoutes, route)
		}
	}

	// In each slice routes with the specified methods must go first, searching relies on that.
	methodSpecifiedFirst := func(routes []Route) func(i, j int) bool {
		return func(i, j int) bool {
			return len(routes[i].Methods) != 0 && len(routes[j].Methods) == 0
		}
	}

	for p := range exactRoutes {
		sort.SliceStable(exactRoutes[p], methodSpecifiedFirst(exactRoutes[p]))
	}

	// Prefixed routes are sorted in desc order, so the longest matched prefix will be found first.
	sort.SliceStable(prefixedRoutes, func(i, j int) bool {
		if prefixedRoutes[i].Path.NormalizedPath == prefixedRoutes[j].Path.NormalizedPath {
			return len(prefixedRoutes[i].Methods) != 0 && len(prefixedRoutes[j].Methods) == 0
		}
		return prefixedRoutes[i].Path.NormalizedPath > prefixedRoutes[j].Path.NormalizedPath
	})

	sort.SliceStable(regExpRoutes, methodSpecifiedFirst(regExpRoutes))

	return &RoutesManager{exactRoutes, prefixedRoutes, regExpRoutes}
}

// SearchMatchedRouteForRequest searches Route that matches the passing http.Request.
// Algorithm is the same as used in Nginx for locations matching (https://nginx.org/en/docs/http/ngx_http_core_module.html#location).
// Excluded routes has priority.
func (r *RoutesManager) SearchMatchedRouteForRequest(req *http.Request) (Route, bool) {
	normalizedReqURLPath := NormalizeURLPath(req.URL.Path)
	if r, ok := r.SearchRoute(normalizedReqURLPath, req.Method, true); ok {
		return r, false
	}
	return r.SearchRoute(normalizedReqURLPath, req.Method, false)
}

// SearchRoute searches Route by passed path and method.
// Path should be normalized (see NormalizeURLPath for this).
// If the excluded arg is true, search will be done only among excluded routes. If false - only among included routes.
func (r *RoutesManager) SearchRoute(normalizedPath string, method string, excluded bool) (Route, bool) {
	for _, route := range r.exactRoutes[normalizedPath] {
		if route.Excluded == excluded && route.matchesMethod(method) {
			return route, true
		}
	}

	var prefixedRoute *Route
	for i := range r.descSortedPrefixedRoutes {
		route := &r.descSortedPrefixedRoutes[i]
		if route.Excluded == excluded && route.matchesMethod(method) &&
			strings.HasPrefix(normalizedPath, route.Path.NormalizedPath) {
			prefixedRoute = route
			break
		}
	}

	// The "^~" modifier disables checking of regular expressions (as in Nginx).
	if prefixedRoute != nil && prefixedRoute.Path.ForwardMatch {
		return *prefixedRoute, true
	}

	for i := range r.regExpRoutes {
		route := &r.regExpRoutes[i]
		if route.Excluded == excluded && route.matchesMethod(method) &&
			route.Path.RegExpPath.MatchString(normalizedPath) {
			return *route, true
		}
	}

	if prefixedRoute != nil {
		return *prefixedRoute, true
	}

	return Route{}, false
}

// MethodsList represents a list of HTTP methods.
// It can be unmarshaled from a comma-separated string ("GET,POST") or from a list.
type MethodsList []string

// String returns a comma-separated string representation of the methods list.
func (ml MethodsList) String() string {
	return strings.Join(ml, ",")
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (ml *MethodsList) UnmarshalText(text []byte) error {
	*ml = splitMethods(string(text))
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (ml MethodsList) MarshalText() ([]byte, error) {
	return []byte(ml.String()), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (ml *MethodsList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*ml = splitMethods(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*ml = list
	return nil
}

// MarshalJSON implements the json.Marshaler interface.
func (ml MethodsList) MarshalJSON() ([]byte, error) {
	return json.Marshal(ml.String())
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (ml *MethodsList) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		*ml = splitMethods(s)
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*ml = list
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface.
func (ml MethodsList) MarshalYAML() (interface{}, error) {
	return ml.String(), nil
}

func splitMethods(s string) MethodsList {
	if s == "" {
		return MethodsList{}
	}
	parts := strings.Split(s, ",")
	res := make(MethodsList, 0, len(parts))
	for _, p := range parts {
		res = append(res, strings.TrimSpace(p))
	}
	return res
}

// RouteConfig represents route's configuration.
type RouteConfig struct {
	// Path is a struct that contains info about route path.
	// ParseRoutePath function should be used for constructing it from the string representation.
	Path RoutePath `mapstructure:"path" yaml:"path" json:"path"`

	// Methods is a list of case-insensitive HTTP verbs/methods.
	Methods MethodsList `mapstructure:"methods" yaml:"methods" json:"methods"`
}

// MethodsInUpperCase returns list of route's methods in upper-case.
func (r *RouteConfig) MethodsInUpperCase() []string {
	upperMethods := make([]string, 0, len(r.Methods))
	for _, m := range r.Methods {
		upperMethods = append(upperMethods, strings.ToUpper(m))
	}
	return upperMethods
}

var availableHTTPMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodConnect: {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// Validate validates RouteConfig
func (r *RouteConfig) Validate() error {
	if r.Path.Raw == "" {
		return fmt.Errorf("path is missing")
	}
	for _, method := range r.MethodsInUpperCase() {
		if _, ok := availableHTTPMethods[method]; !ok {
			return fmt.Errorf("unknown method %q", method)
		}
	}
	return nil
}

// NormalizeURLPath normalizes URL path (i.e. for example, it convert /foo///bar/.. to /foo).
func NormalizeURLPath(urlPath string) string {
	res := path.Clean("/" + urlPath)
	if strings.HasSuffix(urlPath, "/") && res != "/" {
		res += "/"
	}
	return res
}
