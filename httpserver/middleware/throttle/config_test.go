/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MohamedNasirS/go-throttlekit/config"
	"github.com/MohamedNasirS/go-throttlekit/restapi"
)

const yamlTestConfig = `
zones:
  login_total:
    windowDuration: 15m
    maxAttempts: 100
    rejectionMessage: "Too many login attempts, please try again later."
    excludedKeys: []
    includedKeys: []
    dryRun: false

  login_by_client:
    key:
      type: identity
      prefix: login
    windowDuration: 10m
    maxAttempts: 5
    maxKeys: 10000
    excludedKeys: ["2801c8de-7b41-4950-94e8-ad8fe8bd6d60", "7ab74f7c-846e-435f-96d4-5a0ce7068ddf"]
    includedKeys: []
    dryRun: true

  otp_by_tenant:
    key:
      type: header
      headerName: X-Tenant-ID
      noBypassEmpty: true
    windowDuration: 1h
    maxAttempts: 10
    maxKeys: 5000
    store:
      type: redis
      redis:
        addr: "127.0.0.1:6379"
        password: "s3cr3t"
        db: 1
        keyPrefix: "otp:"
    dryRun: true

  api_by_addr:
    key:
      type: client_addr
      trustProxyHeaders: true
    windowDuration: 1m
    maxAttempts: 1000
    maxKeys: 5000

rules:
  - routes:
      - path: /api/2/users
      - path: /api/2/tenants
    excludedRoutes:
      - path: /api/2/users/42
      - path: /api/2/tenants/42
    zones:
      - zone: login_by_client
      - zone: api_by_addr
    tags: ["tag1", "tag2"]

  - alias: "limit_batches"
    routes:
      - path: "= /api/2/tenants"
        methods: POST, DELETE
      - path: "= /api/2/users"
        methods: ["POST", "DELETE", "PUT"]
    zones:
      - zone: login_total
        tags: tag_x
    tags: tag_a, tag_b
`

const jsonTestConfig = `
{
  "zones": {
    "login_total": {
      "windowDuration": "15m",
      "maxAttempts": 100,
      "rejectionMessage": "Too many login attempts, please try again later.",
      "excludedKeys": [],
      "includedKeys": [],
      "dryRun": false
    },
    "login_by_client": {
      "key": {
        "type": "identity",
        "prefix": "login"
      },
      "windowDuration": "10m",
      "maxAttempts": 5,
      "maxKeys": 10000,
      "excludedKeys": [
        "2801c8de-7b41-4950-94e8-ad8fe8bd6d60",
        "7ab74f7c-846e-435f-96d4-5a0ce7068ddf"
      ],
      "includedKeys": [],
      "dryRun": true
    },
    "otp_by_tenant": {
      "key": {
        "type": "header",
        "headerName": "X-Tenant-ID",
        "noBypassEmpty": true
      },
      "windowDuration": "1h",
      "maxAttempts": 10,
      "maxKeys": 5000,
      "store": {
        "type": "redis",
        "redis": {
          "addr": "127.0.0.1:6379",
          "password": "s3cr3t",
          "db": 1,
          "keyPrefix": "otp:"
        }
      },
      "dryRun": true
    },
    "api_by_addr": {
      "key": {
        "type": "client_addr",
        "trustProxyHeaders": true
      },
      "windowDuration": "1m",
      "maxAttempts": 1000,
      "maxKeys": 5000
    }
  },
  "rules": [
    {
      "routes": [
        { "path": "/api/2/users" },
        { "path": "/api/2/tenants" }
      ],
      "excludedRoutes": [
        { "path": "/api/2/users/42" },
        { "path": "/api/2/tenants/42" }
      ],
      "zones": [
        { "zone": "login_by_client" },
        { "zone": "api_by_addr" }
      ],
      "tags": ["tag1", "tag2"]
    },
    {
      "alias": "limit_batches",
      "routes": [
        { "path": "= /api/2/tenants", "methods": "POST, DELETE" },
        { "path": "= /api/2/users", "methods": ["POST", "DELETE", "PUT"] }
      ],
      "zones": [
        { "zone": "login_total", "tags": "tag_x" }
      ],
      "tags": "tag_a, tag_b"
    }
  ]
}
`

func requireTestConfig(t *testing.T, cfg *Config) {
	t.Helper()

	// Check zones.
	require.Len(t, cfg.Zones, 4)
	require.Equal(t, ZoneConfig{
		WindowDuration:   config.TimeDuration(time.Minute * 15),
		MaxAttempts:      100,
		RejectionMessage: "Too many login attempts, please try again later.",
		ExcludedKeys:     []string{},
		IncludedKeys:     []string{},
	}, cfg.Zones["login_total"])
	require.Equal(t, ZoneConfig{
		Key:            ZoneKeyConfig{Type: ZoneKeyTypeIdentity, Prefix: "login"},
		WindowDuration: config.TimeDuration(time.Minute * 10),
		MaxAttempts:    5,
		MaxKeys:        10000,
		DryRun:         true,
		ExcludedKeys:   []string{"2801c8de-7b41-4950-94e8-ad8fe8bd6d60", "7ab74f7c-846e-435f-96d4-5a0ce7068ddf"},
		IncludedKeys:   []string{},
	}, cfg.Zones["login_by_client"])
	require.Equal(t, ZoneConfig{
		Key:            ZoneKeyConfig{Type: ZoneKeyTypeHTTPHeader, HeaderName: "X-Tenant-ID", NoBypassEmpty: true},
		WindowDuration: config.TimeDuration(time.Hour),
		MaxAttempts:    10,
		MaxKeys:        5000,
		Store: StoreConfig{
			Type:  StoreTypeRedis,
			Redis: RedisStoreConfig{Addr: "127.0.0.1:6379", Password: "s3cr3t", DB: 1, KeyPrefix: "otp:"},
		},
		DryRun: true,
	}, cfg.Zones["otp_by_tenant"])
	require.Equal(t, ZoneConfig{
		Key:            ZoneKeyConfig{Type: ZoneKeyTypeClientAddr, TrustProxyHeaders: true},
		WindowDuration: config.TimeDuration(time.Minute),
		MaxAttempts:    1000,
		MaxKeys:        5000,
	}, cfg.Zones["api_by_addr"])

	// Check rules.
	require.Len(t, cfg.Rules, 2)
	require.Equal(t, []RuleConfig{
		{
			Routes: []restapi.RouteConfig{
				{Path: mustParseRoutePath("/api/2/users")},
				{Path: mustParseRoutePath("/api/2/tenants")},
			},
			ExcludedRoutes: []restapi.RouteConfig{
				{Path: mustParseRoutePath("/api/2/users/42")},
				{Path: mustParseRoutePath("/api/2/tenants/42")},
			},
			Zones: []RuleZone{{Zone: "login_by_client"}, {Zone: "api_by_addr"}},
			Tags:  TagsList{"tag1", "tag2"},
		},
		{
			Alias: "limit_batches",
			Routes: []restapi.RouteConfig{
				{Path: mustParseRoutePath("= /api/2/tenants"), Methods: restapi.MethodsList{"POST", "DELETE"}},
				{Path: mustParseRoutePath("= /api/2/users"), Methods: restapi.MethodsList{"POST", "DELETE", "PUT"}},
			},
			Zones: []RuleZone{{Zone: "login_total", Tags: TagsList{"tag_x"}}},
			Tags:  TagsList{"tag_a", "tag_b"},
		},
	}, cfg.Rules)
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
	}{
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData:     yamlTestConfig,
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData:     jsonTestConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg *Config

			// Load config using config.Loader.
			cfg = NewConfig()
			cfgLoader := config.NewLoader(config.NewViperAdapter())
			err := cfgLoader.LoadFromReader(bytes.NewBuffer([]byte(tt.cfgData)), tt.cfgDataType, cfg)
			require.NoError(t, err)
			requireTestConfig(t, cfg)

			// Load config using viper unmarshal.
			cfg = NewConfig()
			vpr := viper.New()
			vpr.SetConfigType(string(tt.cfgDataType))
			require.NoError(t, vpr.ReadConfig(bytes.NewBuffer([]byte(tt.cfgData))))
			require.NoError(t, vpr.Unmarshal(&cfg, func(decoderConfig *mapstructure.DecoderConfig) {
				decoderConfig.DecodeHook = MapstructureDecodeHook()
			}))
			requireTestConfig(t, cfg)

			// Load config using yaml/json unmarshal.
			cfg = NewConfig()
			switch tt.cfgDataType {
			case config.DataTypeYAML:
				require.NoError(t, yaml.Unmarshal([]byte(tt.cfgData), &cfg))
				requireTestConfig(t, cfg)
			case config.DataTypeJSON:
				require.NoError(t, json.Unmarshal([]byte(tt.cfgData), &cfg))
				requireTestConfig(t, cfg)
			default:
				t.Fatalf("unsupported config data type: %s", tt.cfgDataType)
			}
		})
	}
}

func TestConfig_Set_WithErrors(t *testing.T) {
	tests := []struct {
		Name             string
		CfgData          string
		WantErrStr       string
		WantErrStrSuffix string
	}{
		{
			Name: "negative window duration",
			CfgData: `
zones:
  login_zone:
    windowDuration: -1s
rules:
  - routes:
    - path: "/aaa"
    zones:
      - zone: login_zone
`,
			WantErrStr: `validate zone "login_zone": window duration should be >= 0, got -1s`,
		},
		{
			Name: "invalid window duration format",
			CfgData: `
zones:
  login_zone:
    windowDuration: 1x
rules:
  - routes:
    - path: "/aaa"
    zones:
      - zone: login_zone
`,
			WantErrStrSuffix: `invalid time duration format (1x): time: unknown unit "x" in duration "1x"`,
		},
		{
			Name: "negative max attempts",
			CfgData: `
zones:
  login_zone:
    maxAttempts: -5
rules:
  - routes:
    - path: "/aaa"
    zones:
      - zone: login_zone
`,
			WantErrStr: `validate zone "login_zone": max attempts should be >= 0, got -5`,
		},
		{
			Name: "unknown key zone type",
			CfgData: `
zones:
  login_zone:
    key:
      type: foobar
rules:
  - routes:
    - path: "/aaa"
    zones:
      - zone: login_zone
`,
			WantErrStr: `validate zone "login_zone": unknown key zone type "foobar"`,
		},
		{
			Name: "empty key zone header name",
			CfgData: `
zones:
  login_zone:
    key:
      type: header
rules:
  - routes:
    - path: "/aaa"
    zones:
      - zone: login_zone
`,
			WantErrStr: `validate zone "login_zone": header name should be specified for "header" key zone type`,
		},
		{
			Name: "negative max keys",
			CfgData: `
zones:
  login_zone:
    key:
      type: identity
    maxKeys: -1
rules:
  - routes:
    - path: "/aaa"
    zones:
      - zone: login_zone
`,
			WantErrStr: `validate zone "login_zone": maximum keys should be >= 0, got -1`,
		},
		{
			Name: "included and excluded keys cannot be specified at the same time",
			CfgData: `
zones:
  login_zone:
    key:
      type: identity
    includedKeys: ["foo"]
    excludedKeys: ["bar"]
rules:
  - routes:
    - path: "/aaa"
    zones:
      - zone: login_zone
`,
			WantErrStr: `validate zone "login_zone": included and excluded lists cannot be specified at the same time`,
		},
		{
			Name: "unknown store type",
			CfgData: `
zones:
  login_zone:
    store:
      type: etcd
rules:
  - routes:
    - path: "/aaa"
    zones:
      - zone: login_zone
`,
			WantErrStr: `validate zone "login_zone": unknown store type "etcd"`,
		},
		{
			Name: "redis store without address",
			CfgData: `
zones:
  login_zone:
    store:
      type: redis
rules:
  - routes:
    - path: "/aaa"
    zones:
      - zone: login_zone
`,
			WantErrStr: `validate zone "login_zone": address should be specified for "redis" store type`,
		},
		{
			Name: "negative redis database index",
			CfgData: `
zones:
  login_zone:
    store:
      type: redis
      redis:
        addr: "127.0.0.1:6379"
        db: -1
rules:
  - routes:
    - path: "/aaa"
    zones:
      - zone: login_zone
`,
			WantErrStr: `validate zone "login_zone": database index should be >= 0, got -1`,
		},
		{
			Name: "undefined zone",
			CfgData: `
zones:
  login_zone:
    maxAttempts: 10
rules:
  - alias: aaa-throttling
    routes:
    - path: "/aaa"
    zones:
      - zone: mega_zone
`,
			WantErrStr: `validate rule "aaa-throttling": zone "mega_zone" is undefined`,
		},
		{
			Name: "routes is missing",
			CfgData: `
zones:
  login_zone:
    maxAttempts: 10
rules:
  - alias: aaa-throttling
    zones:
      - zone: login_zone
`,
			WantErrStr: `validate rule "aaa-throttling": routes is missing`,
		},
		{
			Name: "path is missing",
			CfgData: `
zones:
  login_zone:
    maxAttempts: 10
rules:
  - alias: aaa-throttling
    routes:
    - methods: POST,PUT,DELETE
    zones:
      - zone: login_zone
`,
			WantErrStr: `validate rule "aaa-throttling": validate route #1: path is missing`,
		},
	}
	configLoader := config.NewLoader(config.NewViperAdapter())
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			cfg := &Config{}
			err := configLoader.LoadFromReader(bytes.NewReader([]byte(tt.CfgData)), config.DataTypeYAML, cfg)
			if tt.WantErrStr != "" {
				require.EqualError(t, err, tt.WantErrStr)
			} else {
				require.Error(t, err)
				require.True(t, strings.HasSuffix(err.Error(), tt.WantErrStrSuffix),
					"want error %q, got %q", err.Error(), tt.WantErrStrSuffix)
			}
		})
	}
}

func TestRuleConfig_Name(t *testing.T) {
	tests := []struct {
		Name         string
		Rule         RuleConfig
		WantRuleName string
	}{
		{
			Name: "alias",
			Rule: RuleConfig{Alias: "my-rule", Routes: []restapi.RouteConfig{
				{Path: mustParseRoutePath("= /bbb"), Methods: restapi.MethodsList{"GET", "POST"}},
			}},
			WantRuleName: "my-rule",
		},
		{
			Name: "no alias, single route",
			Rule: RuleConfig{Routes: []restapi.RouteConfig{
				{Path: mustParseRoutePath("= /bbb"), Methods: restapi.MethodsList{"GET", "POST"}},
			}},
			WantRuleName: "GET|POST = /bbb",
		},
		{
			Name: "no alias, multiple routes",
			Rule: RuleConfig{Routes: []restapi.RouteConfig{
				{Path: mustParseRoutePath("/aaa")},
				{Path: mustParseRoutePath("= /bbb"), Methods: restapi.MethodsList{"GET", "POST"}},
				{Path: mustParseRoutePath("/ccc"), Methods: restapi.MethodsList{"POST", "PUT"}},
			}},
			WantRuleName: "/aaa; GET|POST = /bbb; POST|PUT /ccc",
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.Name, func(t *testing.T) {
			require.Equal(t, tt.WantRuleName, tt.Rule.Name())
		})
	}
}

func mustParseRoutePath(s string) restapi.RoutePath {
	rp, err := restapi.ParseRoutePath(s)
	if err != nil {
		panic(err)
	}
	return rp
}
