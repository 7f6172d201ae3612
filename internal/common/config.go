// Package common provides shared utilities for limitwatch
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/jmaxwell/limitwatch/internal/models"
)

// Config holds all configuration for limitwatch
type Config struct {
	Environment string                     `toml:"environment"`
	Server      ServerConfig               `toml:"server"`
	Storage     StorageConfig              `toml:"storage"`
	Providers   ProvidersConfig            `toml:"providers"`
	Scan        ScanConfig                 `toml:"scan"`
	Weights     models.ScanPriorityWeights `toml:"weights"`
	Logging     LoggingConfig              `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the BadgerHold data directory.
type StorageConfig struct {
	Path string `toml:"path"`
}

// ProviderConfig holds one upstream data provider's settings.
type ProviderConfig struct {
	Enabled   bool   `toml:"enabled"`
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	PerMinute int    `toml:"per_minute"`
	PerDay    int    `toml:"per_day"`
	MinDelay  string `toml:"min_delay"`
	Timeout   string `toml:"timeout"`
}

// GetMinDelay parses the minimum inter-call delay for this provider.
func (c *ProviderConfig) GetMinDelay() time.Duration {
	d, err := time.ParseDuration(c.MinDelay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetTimeout parses the per-attempt request timeout.
func (c *ProviderConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// Quota returns the quota view used by the rate-limit tracker.
func (c *ProviderConfig) Quota() models.ProviderQuota {
	return models.ProviderQuota{
		PerMinute: c.PerMinute,
		PerDay:    c.PerDay,
		MinDelay:  c.GetMinDelay(),
	}
}

// ProvidersConfig holds all provider configurations plus the fallback order.
type ProvidersConfig struct {
	// Priority is the fallback chain: providers are tried in this order.
	Priority     []string       `toml:"priority"`
	EODHD        ProviderConfig `toml:"eodhd"`
	AlphaVantage ProviderConfig `toml:"alphavantage"`
	Finnhub      ProviderConfig `toml:"finnhub"`
}

// ByName returns the configuration for a named provider, or nil.
func (c *ProvidersConfig) ByName(name string) *ProviderConfig {
	switch name {
	case "eodhd":
		return &c.EODHD
	case "alphavantage":
		return &c.AlphaVantage
	case "finnhub":
		return &c.Finnhub
	default:
		return nil
	}
}

// ScanConfig holds refresh scheduler configuration.
type ScanConfig struct {
	// Secret is the shared secret required by the POST /scan trigger endpoint.
	Secret string `toml:"secret"`

	AutoInterval   string `toml:"auto_interval"`  // conservative single-item loop
	BatchInterval  string `toml:"batch_interval"` // full batch loop
	QuoteTTLOpen   string `toml:"quote_ttl_open"` // quote freshness while market open
	QuoteTTLClosed string `toml:"quote_ttl_closed"`
	HistoricalTTL  string `toml:"historical_ttl"`
	UnavailableTTL string `toml:"unavailable_ttl"` // cool-down before re-probing all-provider failures

	// DailyDropPct is the day-change magnitude that triggers a daily-drop
	// notification. Zero disables the rule.
	DailyDropPct float64 `toml:"daily_drop_pct"`
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func (c *ScanConfig) GetAutoInterval() time.Duration {
	return parseDurationOr(c.AutoInterval, 5*time.Minute)
}

func (c *ScanConfig) GetBatchInterval() time.Duration {
	return parseDurationOr(c.BatchInterval, time.Hour)
}

func (c *ScanConfig) GetQuoteTTLOpen() time.Duration {
	return parseDurationOr(c.QuoteTTLOpen, 15*time.Minute)
}

func (c *ScanConfig) GetQuoteTTLClosed() time.Duration {
	return parseDurationOr(c.QuoteTTLClosed, 8*time.Hour)
}

func (c *ScanConfig) GetHistoricalTTL() time.Duration {
	return parseDurationOr(c.HistoricalTTL, 24*time.Hour)
}

func (c *ScanConfig) GetUnavailableTTL() time.Duration {
	return parseDurationOr(c.UnavailableTTL, 6*time.Hour)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level"`
	Format   string   `toml:"format"`
	Outputs  []string `toml:"outputs"`
	FilePath string   `toml:"file_path"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Path: "data/limitwatch",
		},
		Providers: ProvidersConfig{
			Priority: []string{"eodhd", "finnhub", "alphavantage"},
			EODHD: ProviderConfig{
				Enabled:   true,
				BaseURL:   "https://eodhd.com/api",
				PerMinute: 60,
				PerDay:    1000,
				MinDelay:  "1s",
				Timeout:   "10s",
			},
			AlphaVantage: ProviderConfig{
				Enabled:   true,
				BaseURL:   "https://www.alphavantage.co",
				PerMinute: 5,
				PerDay:    300,
				MinDelay:  "12s",
				Timeout:   "10s",
			},
			Finnhub: ProviderConfig{
				Enabled:   true,
				BaseURL:   "https://finnhub.io/api/v1",
				PerMinute: 30,
				PerDay:    2000,
				MinDelay:  "2s",
				Timeout:   "10s",
			},
		},
		Scan: ScanConfig{
			AutoInterval:   "5m",
			BatchInterval:  "1h",
			QuoteTTLOpen:   "15m",
			QuoteTTLClosed: "8h",
			HistoricalTTL:  "24h",
			UnavailableTTL: "6h",
			DailyDropPct:   5,
		},
		Weights: models.DefaultPriorityWeights(),
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "console",
			Outputs:  []string{"console"},
			FilePath: "./logs/limitwatch.log",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later files override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LIMITWATCH_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("LIMITWATCH_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("LIMITWATCH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("LIMITWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("LIMITWATCH_DATA_PATH"); path != "" {
		config.Storage.Path = path
	}

	if secret := os.Getenv("LIMITWATCH_SCAN_SECRET"); secret != "" {
		config.Scan.Secret = secret
	}

	if key := os.Getenv("EODHD_API_KEY"); key != "" {
		config.Providers.EODHD.APIKey = key
	}
	if key := os.Getenv("ALPHAVANTAGE_API_KEY"); key != "" {
		config.Providers.AlphaVantage.APIKey = key
	}
	if key := os.Getenv("FINNHUB_API_KEY"); key != "" {
		config.Providers.Finnhub.APIKey = key
	}

	if priority := os.Getenv("LIMITWATCH_PROVIDER_PRIORITY"); priority != "" {
		parts := strings.Split(priority, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			config.Providers.Priority = cleaned
		}
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// EnabledProviders returns the fallback chain restricted to providers that
// are enabled and have an API key configured.
func (c *Config) EnabledProviders() []string {
	enabled := make([]string, 0, len(c.Providers.Priority))
	for _, name := range c.Providers.Priority {
		pc := c.Providers.ByName(name)
		if pc == nil || !pc.Enabled || pc.APIKey == "" {
			continue
		}
		enabled = append(enabled, name)
	}
	return enabled
}
