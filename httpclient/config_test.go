/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MohamedNasirS/go-throttlekit/config"
)

type AppConfig struct {
	HTTPClient *Config `mapstructure:"httpClient" json:"httpClient" yaml:"httpClient"`
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
		expectedCfg func() *Config
	}{
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData: `
httpClient:
  timeout: 30s
  retries:
    enabled: true
    maxAttempts: 5
    policy: exponential
    exponentialBackoff:
      initialInterval: 2s
      multiplier: 3
  rateLimits:
    enabled: true
    limit: 300
    burst: 3000
    waitTimeout: 3s
    adaptation:
      responseHeaderName: "RateLimit-Limit"
      slackPercent: 10
  log:
    enabled: true
    mode: failed
    slowRequestThreshold: 5s
  metrics:
    enabled: true
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Timeout = config.TimeDuration(30 * time.Second)
				cfg.Retries.Enabled = true
				cfg.Retries.MaxAttempts = 5
				cfg.Retries.Policy = RetryPolicyExponential
				cfg.Retries.ExponentialBackoff.InitialInterval = config.TimeDuration(2 * time.Second)
				cfg.Retries.ExponentialBackoff.Multiplier = 3
				cfg.RateLimits.Enabled = true
				cfg.RateLimits.Limit = 300
				cfg.RateLimits.Burst = 3000
				cfg.RateLimits.WaitTimeout = config.TimeDuration(3 * time.Second)
				cfg.RateLimits.Adaptation.ResponseHeaderName = "RateLimit-Limit"
				cfg.RateLimits.Adaptation.SlackPercent = 10
				cfg.Log.Enabled = true
				cfg.Log.Mode = LoggingModeFailed
				cfg.Log.SlowRequestThreshold = config.TimeDuration(5 * time.Second)
				cfg.Metrics.Enabled = true
				return cfg
			},
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData: `
{
	"httpClient": {
		"timeout": "1m",
		"retries": {
			"enabled": true,
			"maxAttempts": 7,
			"policy": "constant",
			"constantBackoff": {
				"interval": "500ms"
			}
		},
		"rateLimits": {
			"enabled": true,
			"limit": 100,
			"burst": 10,
			"waitTimeout": "10s"
		},
		"log": {
			"enabled": true,
			"mode": "all"
		},
		"metrics": {
			"enabled": true
		}
	}
}`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Timeout = config.TimeDuration(time.Minute)
				cfg.Retries.Enabled = true
				cfg.Retries.MaxAttempts = 7
				cfg.Retries.Policy = RetryPolicyConstant
				cfg.Retries.ConstantBackoff.Interval = config.TimeDuration(500 * time.Millisecond)
				cfg.RateLimits.Enabled = true
				cfg.RateLimits.Limit = 100
				cfg.RateLimits.Burst = 10
				cfg.RateLimits.WaitTimeout = config.TimeDuration(10 * time.Second)
				cfg.Log.Enabled = true
				cfg.Log.Mode = LoggingModeAll
				cfg.Metrics.Enabled = true
				return cfg
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Load config using config.Loader.
			appCfg := AppConfig{HTTPClient: NewDefaultConfig()}
			expectedAppCfg := AppConfig{HTTPClient: tt.expectedCfg()}
			cfgLoader := config.NewLoader(config.NewViperAdapter())
			err := cfgLoader.LoadFromReader(bytes.NewBuffer([]byte(tt.cfgData)), tt.cfgDataType, appCfg.HTTPClient)
			require.NoError(t, err)
			require.Equal(t, expectedAppCfg, appCfg)

			// Load config using viper unmarshal.
			appCfg = AppConfig{HTTPClient: NewDefaultConfig()}
			expectedAppCfg = AppConfig{HTTPClient: tt.expectedCfg()}
			vpr := viper.New()
			vpr.SetConfigType(string(tt.cfgDataType))
			require.NoError(t, vpr.ReadConfig(bytes.NewBuffer([]byte(tt.cfgData))))
			require.NoError(t, vpr.Unmarshal(&appCfg, func(c *mapstructure.DecoderConfig) {
				c.DecodeHook = mapstructure.TextUnmarshallerHookFunc()
			}))
			require.Equal(t, expectedAppCfg, appCfg)

			// Load config using yaml/json unmarshal.
			appCfg = AppConfig{HTTPClient: NewDefaultConfig()}
			expectedAppCfg = AppConfig{HTTPClient: tt.expectedCfg()}
			switch tt.cfgDataType {
			case config.DataTypeYAML:
				require.NoError(t, yaml.Unmarshal([]byte(tt.cfgData), &appCfg))
				require.Equal(t, expectedAppCfg, appCfg)
			case config.DataTypeJSON:
				require.NoError(t, json.Unmarshal([]byte(tt.cfgData), &appCfg))
				require.Equal(t, expectedAppCfg, appCfg)
			default:
				t.Fatalf("unsupported config data type: %s", tt.cfgDataType)
			}
		})
	}
}

func TestNewDefaultConfig(t *testing.T) {
	var cfg *Config

	// Empty config, all defaults for the data provider should be used
	cfg = NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	// viper.Unmarshal
	cfg = NewDefaultConfig()
	vpr := viper.New()
	vpr.SetConfigType("yaml")
	require.NoError(t, vpr.Unmarshal(&cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	// yaml.Unmarshal
	cfg = NewDefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(""), &cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	// json.Unmarshal
	cfg = NewDefaultConfig()
	require.NoError(t, json.Unmarshal([]byte("{}"), &cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
}

func TestConfigWithKeyPrefix(t *testing.T) {
	t.Run("custom key prefix", func(t *testing.T) {
		cfgData := `
customClient:
  timeout: 42s
`
		expectedCfg := NewDefaultConfig(WithKeyPrefix("customClient"))
		expectedCfg.Timeout = config.TimeDuration(42 * time.Second)

		cfg := NewConfig(WithKeyPrefix("customClient"))
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBuffer([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, expectedCfg, cfg)
	})

	t.Run("default key prefix, empty struct initialization", func(t *testing.T) {
		cfgData := `
httpClient:
  timeout: 42s
`
		cfg := &Config{}
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBuffer([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, config.TimeDuration(42*time.Second), cfg.Timeout)
	})
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		yamlData       string
		expectedErrMsg string
	}{
		{
			name: "error, invalid timeout",
			yamlData: `
httpClient:
  timeout: []
`,
			expectedErrMsg: `httpClient.timeout: unable to cast`,
		},
		{
			name: "error, negative timeout",
			yamlData: `
httpClient:
  timeout: -1s
`,
			expectedErrMsg: `httpClient.timeout: timeout cannot be negative`,
		},
		{
			name: "error, negative max attempts",
			yamlData: `
httpClient:
  retries:
    enabled: true
    maxAttempts: -3
`,
			expectedErrMsg: `httpClient.retries.maxAttempts: max attempts cannot be negative, got -3`,
		},
		{
			name: "error, unknown retry policy",
			yamlData: `
httpClient:
  retries:
    enabled: true
    policy: fibonacci
`,
			expectedErrMsg: `httpClient.retries.policy: unknown policy "fibonacci", should be one of [exponential, constant]`,
		},
		{
			name: "error, too small backoff multiplier",
			yamlData: `
httpClient:
  retries:
    enabled: true
    policy: exponential
    exponentialBackoff:
      multiplier: 0.5
`,
			expectedErrMsg: `httpClient.retries.exponentialBackoff.multiplier: multiplier should be greater than 1, got 0.5`,
		},
		{
			name: "error, missing rate limit",
			yamlData: `
httpClient:
  rateLimits:
    enabled: true
`,
			expectedErrMsg: `httpClient.rateLimits.limit: limit should be positive, got 0`,
		},
		{
			name: "error, negative burst",
			yamlData: `
httpClient:
  rateLimits:
    enabled: true
    limit: 10
    burst: -1
`,
			expectedErrMsg: `httpClient.rateLimits.burst: burst cannot be negative, got -1`,
		},
		{
			name: "error, slack percent out of range",
			yamlData: `
httpClient:
  rateLimits:
    enabled: true
    limit: 10
    adaptation:
      responseHeaderName: "RateLimit-Limit"
      slackPercent: 146
`,
			expectedErrMsg: `httpClient.rateLimits.adaptation.slackPercent: slack percent should be in range [0..100], got 146`,
		},
		{
			name: "error, unknown log mode",
			yamlData: `
httpClient:
  log:
    enabled: true
    mode: verbose
`,
			expectedErrMsg: `httpClient.log.mode: unknown mode "verbose", should be one of [none, all, failed]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBuffer([]byte(tt.yamlData)), config.DataTypeYAML, cfg)
			require.ErrorContains(t, err, tt.expectedErrMsg)
		})
	}
}

func TestRetriesConfigGetPolicy(t *testing.T) {
	t.Run("no policy configured", func(t *testing.T) {
		cfg := RetriesConfig{}
		require.Nil(t, cfg.GetPolicy())
	})

	t.Run("exponential policy", func(t *testing.T) {
		cfg := RetriesConfig{
			Policy: RetryPolicyExponential,
			ExponentialBackoff: ExponentialBackoffConfig{
				InitialInterval: config.TimeDuration(100 * time.Millisecond),
				Multiplier:      2,
			},
		}
		policy := cfg.GetPolicy()
		require.NotNil(t, policy)
		// The exponential backoff is randomized, only the bounds may be checked.
		next := policy.NewBackOff().NextBackOff()
		require.GreaterOrEqual(t, next, 50*time.Millisecond)
		require.LessOrEqual(t, next, 150*time.Millisecond)
	})

	t.Run("constant policy", func(t *testing.T) {
		cfg := RetriesConfig{
			Policy:          RetryPolicyConstant,
			ConstantBackoff: ConstantBackoffConfig{Interval: config.TimeDuration(700 * time.Millisecond)},
		}
		policy := cfg.GetPolicy()
		require.NotNil(t, policy)
		bf := policy.NewBackOff()
		require.Equal(t, 700*time.Millisecond, bf.NextBackOff())
		require.Equal(t, 700*time.Millisecond, bf.NextBackOff())
	})
}
