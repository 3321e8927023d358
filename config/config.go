package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv overrides polygon.api_key when set.
const APIKeyEnv = "POLYGON_API_KEY"

// DefaultEnvFile is loaded before the config file when present.
const DefaultEnvFile = "config.env"

// Config represents the complete toolkit configuration
type Config struct {
	Polygon     PolygonConfig     `json:"polygon" yaml:"polygon"`
	Aggregation AggregationConfig `json:"aggregation" yaml:"aggregation"`
	Store       StoreConfig       `json:"store" yaml:"store"`
	Log         LogConfig         `json:"log" yaml:"log"`
}

// PolygonConfig contains REST client parameters
type PolygonConfig struct {
	APIKey            string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL           string `json:"base_url" yaml:"base_url"`
	Timeout           string `json:"timeout" yaml:"timeout"` // e.g. "30s"
	RequestsPerMinute int    `json:"requests_per_minute" yaml:"requests_per_minute"`
}

// TimeoutDuration converts the timeout string to time.Duration
func (p PolygonConfig) TimeoutDuration() (time.Duration, error) {
	if p.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(p.Timeout)
}

// AggregationConfig contains candle building parameters
type AggregationConfig struct {
	Ticker      string `json:"ticker" yaml:"ticker"`
	Window      string `json:"window" yaml:"window"` // e.g. "1m", "30s"
	Finalize    bool   `json:"finalize" yaml:"finalize"`
	Limit       int    `json:"limit" yaml:"limit"`         // trades per page
	MaxPages    int    `json:"max_pages" yaml:"max_pages"` // 0 = follow every cursor
	SkipInvalid bool   `json:"skip_invalid" yaml:"skip_invalid"`
}

// WindowDuration converts the window string to time.Duration
func (a AggregationConfig) WindowDuration() (time.Duration, error) {
	return time.ParseDuration(a.Window)
}

// StoreConfig selects the trade store used for offline replay
type StoreConfig struct {
	Type string `json:"type" yaml:"type"` // "csv", "sqlite" or "postgres"
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN  string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// LogConfig contains logger parameters
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON),
// applies environment overrides and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Unset fields keep their defaults
	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Load returns Default() with environment overrides when path is empty,
// otherwise LoadFromFile(path).
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	cfg := Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is only
// an error when required is true.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

// ApplyEnv copies environment overrides into c.
func (c *Config) ApplyEnv() {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		c.Polygon.APIKey = key
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension).
// The API key is never written.
func (c *Config) SaveToFile(path string) error {
	out := *c
	out.Polygon.APIKey = ""

	var data []byte
	var err error

	// Determine format by extension
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(&out)
	} else {
		data, err = json.MarshalIndent(&out, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Polygon.BaseURL == "" {
		return fmt.Errorf("polygon.base_url is required")
	}
	if d, err := c.Polygon.TimeoutDuration(); err != nil {
		return fmt.Errorf("polygon.timeout: %w", err)
	} else if d < 0 {
		return fmt.Errorf("polygon.timeout must not be negative")
	}
	if c.Polygon.RequestsPerMinute < 0 {
		return fmt.Errorf("polygon.requests_per_minute must not be negative")
	}

	if c.Aggregation.Window == "" {
		return fmt.Errorf("aggregation.window is required")
	}
	if d, err := c.Aggregation.WindowDuration(); err != nil {
		return fmt.Errorf("aggregation.window: %w", err)
	} else if d < 0 {
		return fmt.Errorf("aggregation.window must not be negative")
	}
	if c.Aggregation.Limit < 0 || c.Aggregation.Limit > 50000 {
		return fmt.Errorf("aggregation.limit must be between 0 and 50000")
	}
	if c.Aggregation.MaxPages < 0 {
		return fmt.Errorf("aggregation.max_pages must not be negative")
	}

	switch c.Store.Type {
	case "csv", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path required for %s type", c.Store.Type)
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn required for postgres type")
		}
	default:
		return fmt.Errorf("store.type must be 'csv', 'sqlite' or 'postgres'")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Polygon: PolygonConfig{
			BaseURL:           "https://api.polygon.io",
			Timeout:           "30s",
			RequestsPerMinute: 5, // free tier
		},
		Aggregation: AggregationConfig{
			Ticker: "X:BTC-USD",
			Window: "1m",
			Limit:  1000,
		},
		Store: StoreConfig{
			Type: "sqlite",
			Path: "./trades.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
