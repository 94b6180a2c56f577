/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/MohamedNasirS/go-throttlekit/config"
	"github.com/MohamedNasirS/go-throttlekit/restapi"
)

// Config represents a configuration for throttling of HTTP requests on the server side.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Zones contains throttling zones.
	// Key is a zone's name, and value is a zone's configuration.
	// Each zone is a separate counting space with its own window, attempts limit, key derivation and store.
	Zones map[string]ZoneConfig `mapstructure:"zones" yaml:"zones" json:"zones"`

	// Rules contains list of so-called throttling rules.
	// Basically, throttling rule represents a route (or multiple routes)
	// and zones based on which all matched HTTP requests will be throttled.
	Rules []RuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	var opts configOptions
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewConfigWithKeyPrefix creates a new instance of the Config with a key prefix.
// This prefix will be used by config.Loader.
// Deprecated: use NewConfig with WithKeyPrefix instead.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for throttling in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(_ config.DataProvider) {
}

// Set sets throttling configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	if err := dp.Unmarshal(c, func(decoderConfig *mapstructure.DecoderConfig) {
		decoderConfig.DecodeHook = MapstructureDecodeHook()
	}); err != nil {
		return err
	}
	return c.Validate()
}

// Validate validates configuration.
func (c *Config) Validate() error {
	for zoneName, zone := range c.Zones {
		if err := zone.Validate(); err != nil {
			return fmt.Errorf("validate zone %q: %w", zoneName, err)
		}
	}
	for _, rule := range c.Rules {
		if err := rule.Validate(c.Zones); err != nil {
			return fmt.Errorf("validate rule %q: %w", rule.Name(), err)
		}
	}
	return nil
}

// ZoneConfig represents a configuration of a single throttling zone.
type ZoneConfig struct {
	// Key determines how the throttling key is derived from the HTTP request.
	Key ZoneKeyConfig `mapstructure:"key" yaml:"key" json:"key"`

	// WindowDuration is the length of the fixed counting window. Zero value means 15 minutes.
	WindowDuration config.TimeDuration `mapstructure:"windowDuration" yaml:"windowDuration" json:"windowDuration"`

	// MaxAttempts is the maximum number of attempts that are admitted within one window. Zero value means 5.
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`

	// RejectionMessage overrides the message that is sent to clients of rejected requests.
	RejectionMessage string `mapstructure:"rejectionMessage" yaml:"rejectionMessage" json:"rejectionMessage"`

	// MaxKeys bounds the number of keys tracked by the in-memory store. Zero value means 10000.
	MaxKeys int `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`

	// Store determines where the per-key attempt counters are kept.
	Store StoreConfig `mapstructure:"store" yaml:"store" json:"store"`

	// DryRun enables the mode in which requests over the limit are counted and logged but still served.
	DryRun bool `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`

	// IncludedKeys is a list of keys (globs are supported) to throttle; all other keys are bypassed.
	IncludedKeys []string `mapstructure:"includedKeys" yaml:"includedKeys" json:"includedKeys"`

	// ExcludedKeys is a list of keys (globs are supported) to bypass.
	ExcludedKeys []string `mapstructure:"excludedKeys" yaml:"excludedKeys" json:"excludedKeys"`
}

// Validate validates zone configuration.
func (c *ZoneConfig) Validate() error {
	if err := c.Key.Validate(); err != nil {
		return err
	}
	if time.Duration(c.WindowDuration) < 0 {
		return fmt.Errorf("window duration should be >= 0, got %s", time.Duration(c.WindowDuration))
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts should be >= 0, got %d", c.MaxAttempts)
	}
	if c.MaxKeys < 0 {
		return fmt.Errorf("maximum keys should be >= 0, got %d", c.MaxKeys)
	}
	if len(c.IncludedKeys) != 0 && len(c.ExcludedKeys) != 0 {
		return fmt.Errorf("included and excluded lists cannot be specified at the same time")
	}
	return c.Store.Validate()
}

// ZoneKeyType is a type of keys zone.
type ZoneKeyType string

// Zone key types.
const (
	ZoneKeyTypeClientAddr ZoneKeyType = "client_addr"
	ZoneKeyTypeHTTPHeader ZoneKeyType = "header"
	ZoneKeyTypeIdentity   ZoneKeyType = "identity"
)

// ZoneKeyConfig represents a configuration of zone's key.
type ZoneKeyConfig struct {
	// Type determines type of key that will be used for throttling.
	// Empty value means "client_addr".
	Type ZoneKeyType `mapstructure:"type" yaml:"type" json:"type"`

	// HeaderName is a name of the HTTP request header which value will be used as a key.
	// Matters only when Type is a "header".
	HeaderName string `mapstructure:"headerName" yaml:"headerName" json:"headerName"`

	// Prefix is prepended (followed by ":") to every derived key.
	// It keeps keys of different zones apart when they share a store.
	Prefix string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`

	// TrustProxyHeaders specifies whether the client address may be taken
	// from the X-Forwarded-For/X-Real-IP headers instead of the remote address of the connection.
	// Matters only when Type is a "client_addr" or "identity".
	TrustProxyHeaders bool `mapstructure:"trustProxyHeaders" yaml:"trustProxyHeaders" json:"trustProxyHeaders"`

	// NoBypassEmpty specifies whether throttling will be used if the value obtained by the key is empty.
	NoBypassEmpty bool `mapstructure:"noBypassEmpty" yaml:"noBypassEmpty" json:"noBypassEmpty"`
}

// Validate validates keys zone configuration.
func (c *ZoneKeyConfig) Validate() error {
	switch c.Type {
	case "", ZoneKeyTypeClientAddr, ZoneKeyTypeIdentity:
	case ZoneKeyTypeHTTPHeader:
		if c.HeaderName == "" {
			return fmt.Errorf("header name should be specified for %q key zone type", ZoneKeyTypeHTTPHeader)
		}
	default:
		return fmt.Errorf("unknown key zone type %q", c.Type)
	}
	return nil
}

// StoreType is a type of the store keeping per-key attempt counters.
type StoreType string

// Store types.
const (
	StoreTypeInMemory StoreType = "in_memory"
	StoreTypeRedis    StoreType = "redis"
)

// StoreConfig represents a configuration of zone's store.
type StoreConfig struct {
	// Type determines where the per-key attempt counters are kept.
	// Empty value means "in_memory".
	Type StoreType `mapstructure:"type" yaml:"type" json:"type"`

	// Redis is a configuration of the Redis server. Matters only when Type is a "redis".
	Redis RedisStoreConfig `mapstructure:"redis" yaml:"redis" json:"redis"`
}

// RedisStoreConfig represents a configuration of the Redis server keeping per-key attempt counters.
type RedisStoreConfig struct {
	// Addr is an address of the Redis server in the "host:port" format.
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`

	// Password is a password of the Redis server.
	Password string `mapstructure:"password" yaml:"password" json:"password"`

	// DB is an index of the Redis database.
	DB int `mapstructure:"db" yaml:"db" json:"db"`

	// KeyPrefix is prepended to all keys in the Redis database. Empty value means "throttle:".
	KeyPrefix string `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
}

// Validate validates store configuration.
func (c *StoreConfig) Validate() error {
	switch c.Type {
	case "", StoreTypeInMemory:
	case StoreTypeRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("address should be specified for %q store type", StoreTypeRedis)
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("database index should be >= 0, got %d", c.Redis.DB)
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Type)
	}
	return nil
}

// RuleConfig represents configuration for throttling rule.
type RuleConfig struct {
	// Alias is an alternative name for the rule. It will be used as a label in metrics.
	Alias string `mapstructure:"alias" yaml:"alias" json:"alias"`

	// Routes contains a list of routes (HTTP verb + URL path) for which the rule will be applied.
	Routes []restapi.RouteConfig `mapstructure:"routes" yaml:"routes" json:"routes"`

	// ExcludedRoutes contains list of routes (HTTP verb + URL path) to be excluded from throttling limitations.
	// The following service endpoints fit should typically be added to this list:
	// - healthcheck endpoint serving as readiness probe
	// - status endpoint serving as liveness probe
	ExcludedRoutes []restapi.RouteConfig `mapstructure:"excludedRoutes" yaml:"excludedRoutes" json:"excludedRoutes"`

	// Tags is useful when the different rules of the same config should be used by different middlewares.
	// As example let's suppose we would like to have 2 different throttling rules:
	// 1) for absolutely all requests;
	// 2) for all identity-aware (authorized) requests.
	// In the code, we will have 2 middlewares that will be executed on the different steps of the HTTP request serving,
	// and each one should do only its own throttling.
	// We can achieve this using different tags for rules and passing needed tag in the MiddlewareOpts.
	Tags TagsList `mapstructure:"tags" yaml:"tags" json:"tags"`

	// Zones contains a list of the throttling zones that are used in the rule.
	Zones []RuleZone `mapstructure:"zones" yaml:"zones" json:"zones"`
}

// Name returns throttling rule name.
func (c *RuleConfig) Name() string {
	if c.Alias != "" {
		return c.Alias
	}
	parts := make([]string, 0, len(c.Routes))
	for _, r := range c.Routes {
		parts = append(parts, strings.TrimSpace(strings.Join(r.Methods, "|")+" "+r.Path.Raw))
	}
	return strings.Join(parts, "; ")
}

// Validate validates throttling rule configuration.
func (c *RuleConfig) Validate(zones map[string]ZoneConfig) error {
	for _, zone := range c.Zones {
		if _, ok := zones[zone.Zone]; !ok {
			return fmt.Errorf("zone %q is undefined", zone.Zone)
		}
	}

	if len(c.Routes) == 0 {
		return fmt.Errorf("routes is missing")
	}

	for i := range c.Routes {
		err := c.Routes[i].Validate()
		if err != nil {
			return fmt.Errorf("validate route #%d: %w", i+1, err)
		}
	}
	for i := range c.ExcludedRoutes {
		err := c.ExcludedRoutes[i].Validate()
		if err != nil {
			return fmt.Errorf("validate excluded route #%d: %w", i+1, err)
		}
	}

	return nil
}

// RuleZone represents a reference to the throttling zone that is used in the rule.
type RuleZone struct {
	// Zone is a name of the referenced zone.
	Zone string `mapstructure:"zone" yaml:"zone" json:"zone"`

	// Tags allows filtering single zone references of the rule by middlewares
	// in addition to the rule-level Tags.
	Tags TagsList `mapstructure:"tags" yaml:"tags" json:"tags"`
}

// TagsList represents a list of tags.
type TagsList []string

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (tl *TagsList) UnmarshalText(text []byte) error {
	tl.unmarshal(string(text))
	return nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (tl *TagsList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		tl.unmarshal(s)
		return nil
	}
	var l []string
	if err := json.Unmarshal(data, &l); err == nil {
		*tl = l
		return nil
	}
	return fmt.Errorf("invalid tags list: %s", data)
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (tl *TagsList) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		tl.unmarshal(s)
		return nil
	}
	var l []string
	if err := value.Decode(&l); err == nil {
		*tl = l
		return nil
	}
	return fmt.Errorf("invalid tags list: %v", value)
}

func (tl *TagsList) unmarshal(data string) {
	data = strings.TrimSpace(data)
	if data == "" {
		*tl = TagsList{}
		return
	}
	tags := strings.Split(data, ",")
	for _, tag := range tags {
		*tl = append(*tl, strings.TrimSpace(tag))
	}
}

func (tl TagsList) String() string {
	return strings.Join(tl, ",")
}

// MarshalText implements the encoding.TextMarshaler interface.
func (tl TagsList) MarshalText() ([]byte, error) {
	return []byte(tl.String()), nil
}

// MarshalJSON implements the json.Marshaler interface.
func (tl TagsList) MarshalJSON() ([]byte, error) {
	return json.Marshal(tl.String())
}

// MarshalYAML implements the yaml.Marshaler interface.
func (tl TagsList) MarshalYAML() (interface{}, error) {
	return tl.String(), nil
}

func mapstructureTrimSpaceStringsHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Kind,
		t reflect.Kind,
		data interface{}) (interface{}, error) {
		if f != reflect.Slice || t != reflect.Slice {
			return data, nil
		}
		switch dt := data.(type) {
		case []string:
			res := make([]string, 0, len(dt))
			for _, s := range dt {
				res = append(res, strings.TrimSpace(s))
			}
			return res, nil
		default:
			return data, nil
		}
	}
}

// MapstructureDecodeHook returns a DecodeHookFunc for mapstructure to handle custom types.
func MapstructureDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructureTrimSpaceStringsHookFunc(),
	)
}
