// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level busbridge configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig holds settings for the transit data provider.
type UpstreamConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`      // static credential, injected into every request
	ResponseKey string        `yaml:"response_key"` // top-level JSON key wrapping every response
	Feed        string        `yaml:"feed"`         // optional rtpidatafeed identifier
	Format      string        `yaml:"format"`       // output format flag, always sent
	Timeout     time.Duration `yaml:"timeout"`      // per-attempt timeout
	MaxRetries  int           `yaml:"max_retries"`  // retries after the first attempt
}

// CacheConfig holds response cache settings. TTLs maps endpoint names to
// per-endpoint TTL overrides; endpoints absent from the map use DefaultTTL.
type CacheConfig struct {
	Enabled    bool                     `yaml:"enabled"`
	MaxSize    int                      `yaml:"max_size"`
	DefaultTTL time.Duration            `yaml:"default_ttl"`
	TTLs       map[string]time.Duration `yaml:"ttls"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// TTLFor returns the cache TTL for an endpoint, falling back to DefaultTTL.
// Returns 0 (never cache) when the cache is disabled.
func (c CacheConfig) TTLFor(endpoint string) time.Duration {
	if !c.Enabled {
		return 0
	}
	if ttl, ok := c.TTLs[endpoint]; ok {
		return ttl
	}
	return c.DefaultTTL
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the built-in configuration, used as the base for Load.
// Per-endpoint TTLs track data volatility: reference data (routes, stops,
// patterns) changes rarely, vehicle positions every few seconds.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			ResponseKey: "bustime-response",
			Format:      "json",
			Timeout:     5 * time.Second,
			MaxRetries:  2,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSize:    10_000,
			DefaultTTL: 30 * time.Second,
			TTLs: map[string]time.Duration{
				"gettime":        30 * time.Second,
				"getroutes":      time.Hour,
				"getdirections":  time.Hour,
				"getstops":       time.Hour,
				"getpatterns":    time.Hour,
				"getpredictions": 10 * time.Second,
				"getvehicles":    5 * time.Second,
			},
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")
	return cfg, nil
}
