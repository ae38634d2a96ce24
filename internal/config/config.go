// Package config provides configuration management for the flow grading
// service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/flowgrade/flowgrade/internal/feed"
)

// Defaults applied when the corresponding setting is unset.
const (
	defaultLogLevel        = "info"
	defaultPort            = 8080
	defaultRequestTimeout  = "6s"
	defaultRefreshInterval = "5m"
	defaultStagger         = "50ms"
	defaultBatchPause      = "500ms"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Provider    ProviderConfig    `yaml:"provider"`
	Poller      PollerConfig      `yaml:"poller"`
	Feed        FeedConfig        `yaml:"feed"`
	Server      ServerConfig      `yaml:"server"`
}

// EnvironmentConfig defines runtime environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ProviderConfig defines market-data provider settings.
type ProviderConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Sandbox        bool   `yaml:"sandbox"`
	RequestTimeout string `yaml:"request_timeout"` // 5s-8s
}

// PollerConfig defines batching and pacing for market-state refresh.
type PollerConfig struct {
	PriceBatchSize    int     `yaml:"price_batch_size"`
	OptionBatchSize   int     `yaml:"option_batch_size"`
	HistoryBatchSize  int     `yaml:"history_batch_size"`
	Stagger           string  `yaml:"stagger"`
	BatchPause        string  `yaml:"batch_pause"`
	RefreshInterval   string  `yaml:"refresh_interval"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// FeedConfig defines where trade prints come from.
type FeedConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // csv | json
}

// ServerConfig defines the consumer API server settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Validate config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	c.normalize()

	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be debug, info, warn, or error")
	}

	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required")
	}
	timeout, err := time.ParseDuration(c.Provider.RequestTimeout)
	if err != nil {
		return fmt.Errorf("provider.request_timeout invalid: %w", err)
	}
	if timeout < time.Second || timeout > 10*time.Second {
		return fmt.Errorf("provider.request_timeout must be between 1s and 10s")
	}

	if c.Poller.PriceBatchSize < 0 || c.Poller.OptionBatchSize < 0 || c.Poller.HistoryBatchSize < 0 {
		return fmt.Errorf("poller batch sizes must be >= 0")
	}
	for name, raw := range map[string]string{
		"poller.stagger":          c.Poller.Stagger,
		"poller.batch_pause":      c.Poller.BatchPause,
		"poller.refresh_interval": c.Poller.RefreshInterval,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s invalid: %w", name, err)
		}
	}
	if c.Poller.RequestsPerSecond < 0 {
		return fmt.Errorf("poller.requests_per_second must be >= 0")
	}

	if c.Feed.Path == "" {
		return fmt.Errorf("feed.path is required")
	}
	if !feed.Format(c.Feed.Format).Valid() {
		return fmt.Errorf("feed.format must be 'csv' or 'json'")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	return nil
}

// normalize fills defaults for unset values.
func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = defaultLogLevel
	}
	if c.Provider.RequestTimeout == "" {
		c.Provider.RequestTimeout = defaultRequestTimeout
	}
	if c.Poller.Stagger == "" {
		c.Poller.Stagger = defaultStagger
	}
	if c.Poller.BatchPause == "" {
		c.Poller.BatchPause = defaultBatchPause
	}
	if c.Poller.RefreshInterval == "" {
		c.Poller.RefreshInterval = defaultRefreshInterval
	}
	if c.Feed.Format == "" && c.Feed.Path != "" {
		c.Feed.Format = string(feed.FormatCSV)
		if strings.HasSuffix(c.Feed.Path, ".json") {
			c.Feed.Format = string(feed.FormatJSON)
		}
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
}

// RequestTimeout returns the parsed provider request timeout.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Provider.RequestTimeout)
	if err != nil {
		return 6 * time.Second // default
	}
	return d
}

// duration parses a duration string, returning 0 (use poller defaults) on
// failure.
func duration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

// PollerSettings converts the YAML poller section into the poller's config
// struct.
func (c *Config) PollerSettings() PollerSettings {
	return PollerSettings{
		PriceBatchSize:    c.Poller.PriceBatchSize,
		OptionBatchSize:   c.Poller.OptionBatchSize,
		HistoryBatchSize:  c.Poller.HistoryBatchSize,
		Stagger:           duration(c.Poller.Stagger),
		BatchPause:        duration(c.Poller.BatchPause),
		RefreshInterval:   duration(c.Poller.RefreshInterval),
		RequestsPerSecond: c.Poller.RequestsPerSecond,
		Burst:             c.Poller.Burst,
	}
}

// PollerSettings mirrors poller.Config without importing it, keeping the
// config package dependency-light.
type PollerSettings struct {
	PriceBatchSize    int
	OptionBatchSize   int
	HistoryBatchSize  int
	Stagger           time.Duration
	BatchPause        time.Duration
	RefreshInterval   time.Duration
	RequestsPerSecond float64
	Burst             int
}
