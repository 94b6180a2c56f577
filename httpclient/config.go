/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MohamedNasirS/go-throttlekit/config"
	"github.com/MohamedNasirS/go-throttlekit/retry"
)

const cfgDefaultKeyPrefix = "httpClient"

const (
	cfgKeyTimeout                                  = "timeout"
	cfgKeyRetriesEnabled                           = "retries.enabled"
	cfgKeyRetriesMaxAttempts                       = "retries.maxAttempts"
	cfgKeyRetriesPolicy                            = "retries.policy"
	cfgKeyRetriesExponentialBackoffInitialInterval = "retries.exponentialBackoff.initialInterval"
	cfgKeyRetriesExponentialBackoffMultiplier      = "retries.exponentialBackoff.multiplier"
	cfgKeyRetriesConstantBackoffInterval           = "retries.constantBackoff.interval"
	cfgKeyRateLimitsEnabled                        = "rateLimits.enabled"
	cfgKeyRateLimitsLimit                          = "rateLimits.limit"
	cfgKeyRateLimitsBurst                          = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout                    = "rateLimits.waitTimeout"
	cfgKeyRateLimitsAdaptationResponseHeaderName   = "rateLimits.adaptation.responseHeaderName"
	cfgKeyRateLimitsAdaptationSlackPercent         = "rateLimits.adaptation.slackPercent"
	cfgKeyLogEnabled                               = "log.enabled"
	cfgKeyLogMode                                  = "log.mode"
	cfgKeyLogSlowRequestThreshold                  = "log.slowRequestThreshold"
	cfgKeyMetricsEnabled                           = "metrics.enabled"
)

// DefaultTimeout is a default timeout for the whole HTTP request including all retry attempts.
const DefaultTimeout = 10 * time.Second

// RetryPolicy is a retry backoff policy name used in the configuration.
type RetryPolicy string

// Supported retry backoff policies.
const (
	RetryPolicyExponential RetryPolicy = "exponential"
	RetryPolicyConstant    RetryPolicy = "constant"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// Config represents a set of configuration parameters for constructing an HTTP client
// (see New and NewWithOpts). Configuration can be loaded in different formats (YAML, JSON)
// using config.Loader, viper, or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Retries configures retrying of failed requests (respecting the Retry-After response header).
	Retries RetriesConfig `mapstructure:"retries" yaml:"retries" json:"retries"`

	// RateLimits configures client-side rate limiting of outgoing requests.
	RateLimits RateLimitsConfig `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`

	// Log configures logging of outgoing requests.
	Log LogConfig `mapstructure:"log" yaml:"log" json:"log"`

	// Metrics configures collecting of Prometheus metrics for outgoing requests.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Timeout is the timeout for the whole request including all retry attempts.
	// Zero value means no timeout. When the configuration is loaded with config.Loader,
	// DefaultTimeout is used as the default value.
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	keyPrefix string
}

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
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix: opts.keyPrefix,
		Timeout:   config.TimeDuration(DefaultTimeout),
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the HTTP client in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout)
	dp.SetDefault(cfgKeyLogMode, string(LoggingModeAll))
}

// Set sets the HTTP client configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("timeout cannot be negative, got %s", timeout))
	}
	c.Timeout = config.TimeDuration(timeout)

	if err = c.Retries.Set(dp); err != nil {
		return err
	}
	if err = c.RateLimits.Set(dp); err != nil {
		return err
	}
	if err = c.Log.Set(dp); err != nil {
		return err
	}
	return c.Metrics.Set(dp)
}

// ExponentialBackoffConfig represents configuration options for the exponential retry backoff.
type ExponentialBackoffConfig struct {
	// InitialInterval is the interval before the first retry attempt.
	// Zero value means DefaultExponentialBackoffInitialInterval.
	InitialInterval config.TimeDuration `mapstructure:"initialInterval" yaml:"initialInterval" json:"initialInterval"`

	// Multiplier is a factor by which the interval grows with each retry attempt.
	// Zero value means DefaultExponentialBackoffMultiplier.
	Multiplier float64 `mapstructure:"multiplier" yaml:"multiplier" json:"multiplier"`
}

// ConstantBackoffConfig represents configuration options for the constant retry backoff.
type ConstantBackoffConfig struct {
	// Interval is the fixed interval between retry attempts.
	// Zero value means DefaultConstantBackoffInterval.
	Interval config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

// DefaultConstantBackoffInterval is a default interval between retry attempts for the constant backoff policy.
const DefaultConstantBackoffInterval = time.Second

// RetriesConfig represents configuration options for retrying of failed HTTP requests.
type RetriesConfig struct {
	// Enabled is a flag that enables retries.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// MaxAttempts is the maximum number of retry attempts.
	// Zero value means DefaultMaxRetryAttempts.
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`

	// Policy is a retry backoff policy: "exponential" or "constant".
	// Empty value means that RetryableRoundTripper will use its default policy (DefaultBackoffPolicy).
	Policy RetryPolicy `mapstructure:"policy" yaml:"policy" json:"policy"`

	// ExponentialBackoff is used when Policy is "exponential".
	ExponentialBackoff ExponentialBackoffConfig `mapstructure:"exponentialBackoff" yaml:"exponentialBackoff" json:"exponentialBackoff"`

	// ConstantBackoff is used when Policy is "constant".
	ConstantBackoff ConstantBackoffConfig `mapstructure:"constantBackoff" yaml:"constantBackoff" json:"constantBackoff"`
}

// Set sets retries configuration values from config.DataProvider.
func (c *RetriesConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyRetriesEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if !c.Enabled {
		return nil
	}

	maxAttempts, err := dp.GetInt(cfgKeyRetriesMaxAttempts)
	if err != nil {
		return err
	}
	if maxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, fmt.Errorf("max attempts cannot be negative, got %d", maxAttempts))
	}
	c.MaxAttempts = maxAttempts

	policy, err := dp.GetString(cfgKeyRetriesPolicy)
	if err != nil {
		return err
	}
	c.Policy = RetryPolicy(policy)
	if c.Policy != "" && c.Policy != RetryPolicyExponential && c.Policy != RetryPolicyConstant {
		return dp.WrapKeyErr(cfgKeyRetriesPolicy, fmt.Errorf(
			"unknown policy %q, should be one of [%s, %s]", policy, RetryPolicyExponential, RetryPolicyConstant))
	}

	switch c.Policy {
	case RetryPolicyExponential:
		var initialInterval time.Duration
		if initialInterval, err = dp.GetDuration(cfgKeyRetriesExponentialBackoffInitialInterval); err != nil {
			return err
		}
		if initialInterval < 0 {
			return dp.WrapKeyErr(cfgKeyRetriesExponentialBackoffInitialInterval,
				fmt.Errorf("initial interval cannot be negative, got %s", initialInterval))
		}
		c.ExponentialBackoff.InitialInterval = config.TimeDuration(initialInterval)

		var multiplier float64
		if multiplier, err = dp.GetFloat64(cfgKeyRetriesExponentialBackoffMultiplier); err != nil {
			return err
		}
		if multiplier != 0 && multiplier <= 1 {
			return dp.WrapKeyErr(cfgKeyRetriesExponentialBackoffMultiplier,
				fmt.Errorf("multiplier should be greater than 1, got %v", multiplier))
		}
		c.ExponentialBackoff.Multiplier = multiplier

	case RetryPolicyConstant:
		var interval time.Duration
		if interval, err = dp.GetDuration(cfgKeyRetriesConstantBackoffInterval); err != nil {
			return err
		}
		if interval < 0 {
			return dp.WrapKeyErr(cfgKeyRetriesConstantBackoffInterval,
				fmt.Errorf("interval cannot be negative, got %s", interval))
		}
		c.ConstantBackoff.Interval = config.TimeDuration(interval)
	}

	return nil
}

// GetPolicy returns a retry.Policy built from the configured backoff parameters
// or nil if no policy is configured.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	switch c.Policy {
	case RetryPolicyExponential:
		initialInterval := time.Duration(c.ExponentialBackoff.InitialInterval)
		if initialInterval == 0 {
			initialInterval = DefaultExponentialBackoffInitialInterval
		}
		multiplier := c.ExponentialBackoff.Multiplier
		if multiplier == 0 {
			multiplier = DefaultExponentialBackoffMultiplier
		}
		return retry.PolicyFunc(func() backoff.BackOff {
			bf := backoff.NewExponentialBackOff()
			bf.InitialInterval = initialInterval
			bf.Multiplier = multiplier
			bf.Reset()
			return bf
		})
	case RetryPolicyConstant:
		interval := time.Duration(c.ConstantBackoff.Interval)
		if interval == 0 {
			interval = DefaultConstantBackoffInterval
		}
		return retry.NewConstantBackoffPolicy(interval, 0)
	}
	return nil
}

// TransportOpts returns options for RetryableRoundTripper based on the configuration.
func (c *RetriesConfig) TransportOpts() RetryableRoundTripperOpts {
	return RetryableRoundTripperOpts{MaxRetryAttempts: c.MaxAttempts}
}

// RateLimitAdaptationConfig represents configuration options for adapting the client-side rate limit
// to the limit advertised by the server in a response header.
type RateLimitAdaptationConfig struct {
	// ResponseHeaderName is the name of the response header carrying the advertised limit
	// (for example "RateLimit-Limit" for servers that emit the draft RateLimit header fields).
	// Empty value disables the adaptation.
	ResponseHeaderName string `mapstructure:"responseHeaderName" yaml:"responseHeaderName" json:"responseHeaderName"`

	// SlackPercent is the percentage subtracted from the advertised limit to stay below it.
	SlackPercent int `mapstructure:"slackPercent" yaml:"slackPercent" json:"slackPercent"`
}

// RateLimitsConfig represents configuration options for client-side rate limiting of outgoing requests.
type RateLimitsConfig struct {
	// Enabled is a flag that enables rate limiting.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Limit is the maximum number of requests per second.
	Limit int `mapstructure:"limit" yaml:"limit" json:"limit"`

	// Burst allows temporary spikes in the request rate.
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`

	// WaitTimeout is the maximum time to wait for a free slot.
	WaitTimeout config.TimeDuration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`

	// Adaptation configures adapting the limit to the one advertised by the server.
	Adaptation RateLimitAdaptationConfig `mapstructure:"adaptation" yaml:"adaptation" json:"adaptation"`
}

// Set sets rate limits configuration values from config.DataProvider.
func (c *RateLimitsConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyRateLimitsEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if !c.Enabled {
		return nil
	}

	limit, err := dp.GetInt(cfgKeyRateLimitsLimit)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, fmt.Errorf("limit should be positive, got %d", limit))
	}
	c.Limit = limit

	burst, err := dp.GetInt(cfgKeyRateLimitsBurst)
	if err != nil {
		return err
	}
	if burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("burst cannot be negative, got %d", burst))
	}
	c.Burst = burst

	waitTimeout, err := dp.GetDuration(cfgKeyRateLimitsWaitTimeout)
	if err != nil {
		return err
	}
	if waitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("wait timeout cannot be negative, got %s", waitTimeout))
	}
	c.WaitTimeout = config.TimeDuration(waitTimeout)

	if c.Adaptation.ResponseHeaderName, err = dp.GetString(cfgKeyRateLimitsAdaptationResponseHeaderName); err != nil {
		return err
	}
	slackPercent, err := dp.GetInt(cfgKeyRateLimitsAdaptationSlackPercent)
	if err != nil {
		return err
	}
	if slackPercent < 0 || slackPercent > 100 {
		return dp.WrapKeyErr(cfgKeyRateLimitsAdaptationSlackPercent,
			fmt.Errorf("slack percent should be in range [0..100], got %d", slackPercent))
	}
	c.Adaptation.SlackPercent = slackPercent

	return nil
}

// TransportOpts returns options for RateLimitingRoundTripper based on the configuration.
func (c *RateLimitsConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{
		Burst:       c.Burst,
		WaitTimeout: time.Duration(c.WaitTimeout),
		Adaptation: RateLimitingRoundTripperAdaptation{
			ResponseHeaderName: c.Adaptation.ResponseHeaderName,
			SlackPercent:       c.Adaptation.SlackPercent,
		},
	}
}

// LogConfig represents configuration options for logging of outgoing HTTP requests.
type LogConfig struct {
	// Enabled is a flag that enables logging.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// SlowRequestThreshold is a threshold for logging slow requests.
	// Requests that finish faster are not logged. Zero value logs all requests.
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`

	// Mode of logging: "none", "all" or "failed". Empty value means "all".
	Mode LoggingMode `mapstructure:"mode" yaml:"mode" json:"mode"`
}

// Set sets log configuration values from config.DataProvider.
func (c *LogConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyLogEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if !c.Enabled {
		return nil
	}

	slowRequestThreshold, err := dp.GetDuration(cfgKeyLogSlowRequestThreshold)
	if err != nil {
		return err
	}
	if slowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLogSlowRequestThreshold,
			fmt.Errorf("slow request threshold cannot be negative, got %s", slowRequestThreshold))
	}
	c.SlowRequestThreshold = config.TimeDuration(slowRequestThreshold)

	mode, err := dp.GetString(cfgKeyLogMode)
	if err != nil {
		return err
	}
	if mode == "" {
		mode = string(LoggingModeAll)
	}
	c.Mode = LoggingMode(mode)
	if !c.Mode.IsValid() {
		return dp.WrapKeyErr(cfgKeyLogMode, fmt.Errorf("unknown mode %q, should be one of [%s, %s, %s]",
			mode, LoggingModeNone, LoggingModeAll, LoggingModeFailed))
	}

	return nil
}

// TransportOpts returns options for LoggingRoundTripper based on the configuration.
func (c *LogConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{
		Mode:                 c.Mode,
		SlowRequestThreshold: time.Duration(c.SlowRequestThreshold),
	}
}

// MetricsConfig represents configuration options for collecting metrics for outgoing HTTP requests.
type MetricsConfig struct {
	// Enabled is a flag that enables metrics.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// Set sets metrics configuration values from config.DataProvider.
func (c *MetricsConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyMetricsEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	return nil
}
