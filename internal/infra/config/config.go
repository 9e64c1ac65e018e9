package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when the config file omits them.
const (
	DefaultTimeout        = 120 * time.Second
	DefaultMaxOutputBytes = 50 * 1024 * 1024
	DefaultGatewayAddr    = "127.0.0.1:8080"
)

// DefaultAllowedEnvKeys is the set of environment variable keys safe to pass
// through to subprocesses when the config does not narrow it further.
func DefaultAllowedEnvKeys() []string {
	return []string{"HOME", "PATH", "TERM", "USER", "LANG"}
}

// RunnerConfig configures one CLI runner instance.
type RunnerConfig struct {
	// Type selects the runner implementation: claude-code, copilot,
	// cursor-agent, opencode.
	Type string `yaml:"type"`
	// BinaryPath overrides binary discovery. Empty means discover via the
	// runner's env override variable, then PATH.
	BinaryPath string `yaml:"binary_path,omitempty"`
	// Model overrides the runner's default model.
	Model string `yaml:"model,omitempty"`
	// Timeout is the wall-clock budget per subprocess invocation.
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// MaxOutputBytes caps captured stdout/stderr per invocation.
	MaxOutputBytes int `yaml:"max_output_bytes,omitempty"`
	// AllowedEnvKeys is the closed set of env vars passed to the child.
	AllowedEnvKeys []string `yaml:"allowed_env_keys,omitempty"`
	// WorkingDirectory for the subprocess; must exist if set.
	WorkingDirectory string `yaml:"working_directory,omitempty"`
	// ExtraArgs are appended to every invocation.
	ExtraArgs []string `yaml:"extra_args,omitempty"`
}

// GatewayConfig configures the REST front end.
type GatewayConfig struct {
	Addr           string `yaml:"addr"`
	RequestsPerMin int    `yaml:"requests_per_min,omitempty"` // 0 disables rate limiting
	BurstSize      int    `yaml:"burst_size,omitempty"`
}

// LoggerConfig configures slog output.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig configures OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// Config is the top-level application configuration.
type Config struct {
	Runners []RunnerConfig `yaml:"runners"`
	Gateway GatewayConfig  `yaml:"gateway"`
	Logger  LoggerConfig   `yaml:"logger"`
	Tracer  TracerConfig   `yaml:"tracer"`
}

// Load reads and validates a YAML config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with all four runners enabled and defaults applied.
func Default() *Config {
	cfg := &Config{
		Runners: []RunnerConfig{
			{Type: "claude-code"},
			{Type: "copilot"},
			{Type: "cursor-agent"},
			{Type: "opencode"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	for i := range c.Runners {
		r := &c.Runners[i]
		if r.Timeout <= 0 {
			r.Timeout = DefaultTimeout
		}
		if r.MaxOutputBytes <= 0 {
			r.MaxOutputBytes = DefaultMaxOutputBytes
		}
		if len(r.AllowedEnvKeys) == 0 {
			r.AllowedEnvKeys = DefaultAllowedEnvKeys()
		}
	}
	if c.Gateway.Addr == "" {
		c.Gateway.Addr = DefaultGatewayAddr
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Runners))
	for i, r := range c.Runners {
		if r.Type == "" {
			return fmt.Errorf("runner %d: type is required", i)
		}
		if seen[r.Type] {
			return fmt.Errorf("runner %d: duplicate type %q", i, r.Type)
		}
		seen[r.Type] = true
		if r.Timeout <= 0 {
			return fmt.Errorf("runner %q: timeout must be positive", r.Type)
		}
		if r.WorkingDirectory != "" {
			info, err := os.Stat(r.WorkingDirectory)
			if err != nil || !info.IsDir() {
				return fmt.Errorf("runner %q: working directory %q does not exist", r.Type, r.WorkingDirectory)
			}
		}
	}
	return nil
}

// ParseEnvKeys parses a comma-separated list of environment variable keys.
func ParseEnvKeys(input string) []string {
	parts := strings.Split(input, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}
