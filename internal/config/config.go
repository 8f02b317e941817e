// Package config handles loading and validating Kinga configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Defaults applied by Normalize when a field is unset.
const (
	DefaultMaxConcurrent  = 10
	DefaultTimeoutSeconds = 30
	DefaultMaxOutputBytes = 100_000
)

// Config is the root configuration for Kinga.
type Config struct {
	Sandbox       SandboxConfig        `json:"sandbox" yaml:"sandbox"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// SandboxConfig bounds what the execution engine may do.
// All fields have working defaults; see Normalize.
type SandboxConfig struct {
	MaxConcurrent  int    `json:"max_concurrent" yaml:"max_concurrent"`     // Active-process cap. Default: 10.
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`   // Default per-execution timeout. Default: 30.
	MaxOutputBytes int    `json:"max_output_bytes" yaml:"max_output_bytes"` // Per-stream output cap. Default: 100000.
	LogsDir        string `json:"logs_dir" yaml:"logs_dir"`                 // Execution log directory. Default: ~/.kinga/logs. Override: KINGA_LOGS_DIR.
	WorkDir        string `json:"work_dir" yaml:"work_dir"`                 // Default working directory for spawned commands. Default: <tmp>/kinga-sandbox. Override: KINGA_WORKDIR.
}

// Timeout returns the default execution timeout as a duration.
func (s SandboxConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ObservabilityConfig toggles metrics and tracing.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig enables the Prometheus registry.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "kinga".
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP collector endpoint.
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" (default) or "http".
	Insecure    bool    `json:"insecure" yaml:"insecure"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"` // 0 < rate <= 1. Default: 1.0.
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with all defaults applied and environment
// overrides honored. Used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnvOverrides()
	// Normalize only fails when home cannot be resolved for the logs dir;
	// fall back to a temp-dir logs location in that case.
	if err := cfg.Normalize(); err != nil {
		cfg.Sandbox.LogsDir = filepath.Join(os.TempDir(), "kinga", "logs")
		_ = cfg.Normalize()
	}
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KINGA_LOGS_DIR"); v != "" {
		c.Sandbox.LogsDir = v
	}
	if v := os.Getenv("KINGA_WORKDIR"); v != "" {
		c.Sandbox.WorkDir = v
	}
	if v := os.Getenv("KINGA_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sandbox.MaxConcurrent = n
		}
	}
	if v := os.Getenv("KINGA_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sandbox.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		if c.Observability == nil {
			c.Observability = &ObservabilityConfig{}
		}
		if c.Observability.Tracing == nil {
			c.Observability.Tracing = &TracingConfig{Enabled: true}
		}
		c.Observability.Tracing.Endpoint = v
	}
}

// Normalize fills unset fields with defaults and rejects invalid values.
func (c *Config) Normalize() error {
	s := &c.Sandbox
	if s.MaxConcurrent < 0 {
		return fmt.Errorf("sandbox.max_concurrent must not be negative, got %d", s.MaxConcurrent)
	}
	if s.TimeoutSeconds < 0 {
		return fmt.Errorf("sandbox.timeout_seconds must not be negative, got %d", s.TimeoutSeconds)
	}
	if s.MaxOutputBytes < 0 {
		return fmt.Errorf("sandbox.max_output_bytes must not be negative, got %d", s.MaxOutputBytes)
	}
	if s.MaxConcurrent == 0 {
		s.MaxConcurrent = DefaultMaxConcurrent
	}
	if s.TimeoutSeconds == 0 {
		s.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if s.MaxOutputBytes == 0 {
		s.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if s.LogsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory for logs dir: %w", err)
		}
		s.LogsDir = filepath.Join(home, ".kinga", "logs")
	}
	if s.WorkDir == "" {
		s.WorkDir = filepath.Join(os.TempDir(), "kinga-sandbox")
	}
	return nil
}

// resolvePath expands a leading ~ to the user's home directory.
func resolvePath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
