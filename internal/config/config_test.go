package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() Config {
	return Config{
		Environment: EnvironmentConfig{LogLevel: "info"},
		Provider:    ProviderConfig{APIKey: "key", RequestTimeout: "6s"},
		Poller:      PollerConfig{Stagger: "50ms", BatchPause: "500ms", RefreshInterval: "5m"},
		Feed:        FeedConfig{Path: "trades.csv", Format: "csv"},
		Server:      ServerConfig{Port: 8080},
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("MARKET_DATA_API_KEY", "test-key-from-env")

	cfg, err := Load("../../config.yaml.example")
	require.NoError(t, err)

	assert.Equal(t, "test-key-from-env", cfg.Provider.APIKey, "env var should be expanded")
	assert.True(t, cfg.Provider.Sandbox)
	assert.NotZero(t, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Feed.Path)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		path := writeConfig(t, `
provider:
  api_key: key
  tipo: unknown
feed:
  path: trades.csv
server:
  port: 8080
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "provider: [unterminated")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
provider:
  api_key: key
feed:
  path: trades.json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Environment.LogLevel)
	assert.Equal(t, 6*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Feed.Format, "format inferred from .json path")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad log level", func(c *Config) { c.Environment.LogLevel = "verbose" }, "log_level"},
		{"missing api key", func(c *Config) { c.Provider.APIKey = "" }, "api_key"},
		{"timeout too short", func(c *Config) { c.Provider.RequestTimeout = "500ms" }, "request_timeout"},
		{"timeout too long", func(c *Config) { c.Provider.RequestTimeout = "30s" }, "request_timeout"},
		{"timeout unparsable", func(c *Config) { c.Provider.RequestTimeout = "soon" }, "request_timeout"},
		{"negative batch size", func(c *Config) { c.Poller.PriceBatchSize = -1 }, "batch sizes"},
		{"bad stagger", func(c *Config) { c.Poller.Stagger = "fast" }, "stagger"},
		{"negative rate", func(c *Config) { c.Poller.RequestsPerSecond = -1 }, "requests_per_second"},
		{"missing feed path", func(c *Config) { c.Feed.Path = "" }, "feed.path"},
		{"bad feed format", func(c *Config) { c.Feed.Format = "xml" }, "feed.format"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}

	t.Run("valid passes", func(t *testing.T) {
		cfg := validConfig()
		assert.NoError(t, cfg.Validate())
	})
}

func TestPollerSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Poller.PriceBatchSize = 7
	cfg.Poller.RequestsPerSecond = 4
	cfg.Poller.Burst = 8

	s := cfg.PollerSettings()
	assert.Equal(t, 7, s.PriceBatchSize)
	assert.Equal(t, 50*time.Millisecond, s.Stagger)
	assert.Equal(t, 500*time.Millisecond, s.BatchPause)
	assert.Equal(t, 5*time.Minute, s.RefreshInterval)
	assert.Equal(t, 4.0, s.RequestsPerSecond)
	assert.Equal(t, 8, s.Burst)
}
