// Package config centralises runtime configuration for softpool instances.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TelemetryConfig configures the optional OTLP metric exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Settings contains the tunables governing a single pool instance.
type Settings struct {
	// Name identifies the pool in logs, metrics, and error envelopes.
	Name string `yaml:"name"`

	// ValidateOnBorrow runs the factory's Validate hook before handing an
	// object to a caller. Objects failing validation are destroyed and
	// transparently replaced.
	ValidateOnBorrow bool `yaml:"validateOnBorrow"`

	// MaxBorrowAttempts bounds the activate/validate retry loop inside
	// Borrow. Zero retries until the caller's context expires.
	MaxBorrowAttempts int `yaml:"maxBorrowAttempts"`

	// RetryInitialInterval and RetryMaxInterval shape the exponential
	// backoff between borrow attempts.
	RetryInitialInterval time.Duration `yaml:"retryInitialInterval"`
	RetryMaxInterval     time.Duration `yaml:"retryMaxInterval"`

	// CreateRate caps factory Create calls per second. Zero disables the
	// limiter. CreateBurst is the limiter burst size.
	CreateRate  float64 `yaml:"createRate"`
	CreateBurst int     `yaml:"createBurst"`

	// DestroyConcurrency bounds the goroutines destroying drained idle
	// objects during Clear and Close.
	DestroyConcurrency int `yaml:"destroyConcurrency"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns the default pool configuration.
func Default() Settings {
	return Settings{
		Name:                 "softpool",
		ValidateOnBorrow:     false,
		MaxBorrowAttempts:    0,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     50 * time.Millisecond,
		CreateRate:           0,
		CreateBurst:          1,
		DestroyConcurrency:   4,
		Telemetry:            TelemetryConfig{OTLPEndpoint: "", ServiceName: "softpool"},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	cfg := Default()

	if v := strings.TrimSpace(os.Getenv("SOFTPOOL_NAME")); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(os.Getenv("SOFTPOOL_VALIDATE_ON_BORROW")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ValidateOnBorrow = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("SOFTPOOL_MAX_BORROW_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxBorrowAttempts = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SOFTPOOL_RETRY_INITIAL_INTERVAL")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.RetryInitialInterval = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("SOFTPOOL_RETRY_MAX_INTERVAL")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.RetryMaxInterval = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("SOFTPOOL_CREATE_RATE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CreateRate = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("SOFTPOOL_CREATE_BURST")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CreateBurst = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SOFTPOOL_DESTROY_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DestroyConcurrency = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SOFTPOOL_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("SOFTPOOL_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}

	return cfg
}

// Load reads a yaml settings file, applying defaults for omitted fields.
func Load(ctx context.Context, path string) (Settings, error) {
	if err := ctx.Err(); err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return Settings{}, fmt.Errorf("parse settings file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pool cannot operate with.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("settings: name must be non-empty")
	}
	if s.MaxBorrowAttempts < 0 {
		return fmt.Errorf("settings: maxBorrowAttempts must be >= 0")
	}
	if s.RetryInitialInterval < 0 || s.RetryMaxInterval < 0 {
		return fmt.Errorf("settings: retry intervals must be >= 0")
	}
	if s.RetryMaxInterval > 0 && s.RetryInitialInterval > s.RetryMaxInterval {
		return fmt.Errorf("settings: retryInitialInterval exceeds retryMaxInterval")
	}
	if s.CreateRate < 0 {
		return fmt.Errorf("settings: createRate must be >= 0")
	}
	if s.CreateRate > 0 && s.CreateBurst <= 0 {
		return fmt.Errorf("settings: createBurst must be positive when createRate is set")
	}
	if s.DestroyConcurrency <= 0 {
		return fmt.Errorf("settings: destroyConcurrency must be positive")
	}
	return nil
}
