// ABOUTME: Configuration loading and parsing for the loom client
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete loom client configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Stream  StreamConfig  `yaml:"stream"`
	Archive ArchiveConfig `yaml:"archive"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds backend endpoint configuration
type ServerConfig struct {
	// BaseURL is the REST collaborator base, e.g. "https://api.example.com"
	BaseURL string `yaml:"base_url"`
	// StreamURL is the per-work streaming endpoint template; {work_id}
	// is substituted at connect time, e.g. "wss://api.example.com/ws/works/{work_id}/stream"
	StreamURL string `yaml:"stream_url"`
}

// AuthConfig holds the externally issued credential token
type AuthConfig struct {
	Token string `yaml:"token"`
}

// StreamConfig holds connection lifecycle tuning
type StreamConfig struct {
	ConnectTimeout       time.Duration `yaml:"-"`
	HeartbeatInterval    time.Duration `yaml:"-"`
	BackoffBase          time.Duration `yaml:"-"`
	BackoffMax           time.Duration `yaml:"-"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`

	// Raw string values for YAML unmarshaling
	ConnectTimeoutRaw    string `yaml:"connect_timeout"`
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	BackoffBaseRaw       string `yaml:"backoff_base"`
	BackoffMaxRaw        string `yaml:"backoff_max"`
}

// ArchiveConfig holds the optional local transcript archive settings
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Server.StreamURL == "" {
		return fmt.Errorf("server.stream_url is required")
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return fmt.Errorf("stream.max_reconnect_attempts must not be negative")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when archive is enabled")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Stream.ConnectTimeoutRaw, "connect_timeout", &cfg.Stream.ConnectTimeout},
		{cfg.Stream.HeartbeatIntervalRaw, "heartbeat_interval", &cfg.Stream.HeartbeatInterval},
		{cfg.Stream.BackoffBaseRaw, "backoff_base", &cfg.Stream.BackoffBase},
		{cfg.Stream.BackoffMaxRaw, "backoff_max", &cfg.Stream.BackoffMax},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
