// Package config centralises runtime configuration for the cadenza core.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cadenza-io/cadenza/errs"
)

// TelemetrySettings configures metric export for the demo runtime.
type TelemetrySettings struct {
	Enabled        bool          `yaml:"enabled"`
	OTLPEndpoint   string        `yaml:"otlpEndpoint"`
	OTLPInsecure   bool          `yaml:"otlpInsecure"`
	MetricInterval time.Duration `yaml:"metricInterval"`
}

// Settings contains the cadenza configuration tree loaded from defaults,
// an optional YAML file, and environment overrides.
type Settings struct {
	// QueueWarnDepth is the per-sequencer queue depth beyond which enqueues
	// log a diagnostic warning. It is not an enforced cap.
	QueueWarnDepth int `yaml:"queueWarnDepth"`
	// HeartbeatInterval is the minimum spacing between heartbeat broadcasts.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	// EventPoolCapacity bounds the number of in-flight event nodes per
	// context; zero disables the bound.
	EventPoolCapacity int `yaml:"eventPoolCapacity"`
	// TickInterval paces the demo run loop.
	TickInterval time.Duration     `yaml:"tickInterval"`
	LogLevel     string            `yaml:"logLevel"`
	Telemetry    TelemetrySettings `yaml:"telemetry"`
}

// Default returns the default cadenza configuration.
func Default() Settings {
	return Settings{
		QueueWarnDepth:    10,
		HeartbeatInterval: time.Second,
		EventPoolCapacity: 0,
		TickInterval:      10 * time.Millisecond,
		LogLevel:          "info",
		Telemetry: TelemetrySettings{
			Enabled:        false,
			OTLPEndpoint:   "localhost:4318",
			OTLPInsecure:   true,
			MetricInterval: 30 * time.Second,
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	cfg := Default()
	if v := strings.TrimSpace(os.Getenv("CADENZA_QUEUE_WARN_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueueWarnDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CADENZA_HEARTBEAT_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.HeartbeatInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("CADENZA_EVENT_POOL_CAPACITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.EventPoolCapacity = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CADENZA_TICK_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TickInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("CADENZA_LOG_LEVEL")); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("CADENZA_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.OTLPEndpoint = v
	}
	return cfg
}

// LoadOrDefault reads the YAML file at path on top of FromEnv defaults. A
// missing file is not an error; the second return reports whether the file
// was used.
func LoadOrDefault(path string) (Settings, bool, error) {
	cfg := FromEnv()
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, false, nil
		}
		return cfg, false, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, false, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, false, err
	}
	return cfg, true, nil
}

// Validate rejects settings the core cannot run with.
func (s Settings) Validate() error {
	if s.QueueWarnDepth <= 0 {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("queueWarnDepth must be positive"))
	}
	if s.HeartbeatInterval <= 0 {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("heartbeatInterval must be positive"))
	}
	if s.EventPoolCapacity < 0 {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("eventPoolCapacity must not be negative"))
	}
	if s.TickInterval <= 0 {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("tickInterval must be positive"))
	}
	return nil
}
