// Package config provides YAML configuration parsing for PulseDeck.
//
// This package lets the pulsedeck binary run from a configuration file, as
// an alternative to the programmatic SDK approach. Every field is optional;
// [Default] returns the configuration used when no file is given.
//
// Example configuration:
//
//	api_base: ${PULSEDECK_API_BASE:-http://localhost:8000}
//	ws_base: ${PULSEDECK_WS_BASE:-ws://localhost:8000}
//	listen_port: 8080
//
//	channels: ["/ws/services/", "/ws/events/"]
//	reconnect:
//	  max_attempts: 5
//
//	refresh:
//	  services: 1m
//	  live: 5s
//
//	storage:
//	  driver: badger
//	  path: ${HOME}/.local/share/pulsedeck
//
//	log:
//	  level: debug
//	  format: pretty
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Parse] and returned by [Default].
const (
	DefaultAPIBase        = "http://localhost:8000"
	DefaultWSBase         = "ws://localhost:8000"
	DefaultMaxAttempts    = 5
	DefaultMetricsHours   = 1
	DefaultRequestTimeout = 30 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "auto"
)

// minRefresh and maxRefresh bound per-query refetch intervals.
const (
	minRefresh = time.Second
	maxRefresh = time.Hour
)

// Known values, kept in sync with the SDK.
var (
	knownChannels   = []string{"/ws/services/", "/ws/events/", "/ws/monitoring/", "/ws/alerts/"}
	defaultChannels = []string{"/ws/services/", "/ws/events/", "/ws/monitoring/"}
	knownQueries    = []string{"services", "stats", "events", "server_metrics", "docker_metrics", "summary", "live"}
	knownDrivers    = []string{"file", "badger", "memory"}
	knownLogLevels  = []string{"debug", "info", "warn", "error"}
	knownLogFormats = []string{"auto", "json", "text", "pretty"}
)

// Config is the root configuration structure for PulseDeck.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the mirror page title. Defaults to "PulseDeck" if not set.
	Title string `yaml:"title"`

	// APIBase is the backend origin for REST calls (http or https).
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	APIBase string `yaml:"api_base"`

	// WSBase is the backend origin for WebSocket channels (ws or wss).
	// Supports environment variable substitution.
	WSBase string `yaml:"ws_base"`

	// ListenPort enables the local mirror server. 0 disables it.
	ListenPort int `yaml:"listen_port"`

	// Channels lists the WebSocket channels opened by watch. Empty means
	// every known channel.
	Channels []string `yaml:"channels"`

	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Refresh maps query names to refetch intervals. Queries not listed keep
	// their SDK default. Each interval must be between 1s and 1h.
	Refresh map[string]Duration `yaml:"refresh"`

	// MetricsHours is the history window requested for metrics. Defaults to 1.
	MetricsHours int `yaml:"metrics_hours"`

	// RequestTimeout bounds each REST call. Defaults to 30s.
	RequestTimeout Duration `yaml:"request_timeout"`

	Storage StorageConfig `yaml:"storage"`

	Log LogConfig `yaml:"log"`
}

// ReconnectConfig controls WebSocket reconnects.
type ReconnectConfig struct {
	// MaxAttempts is how many reconnects a channel tries before it is
	// abandoned. Defaults to 5.
	MaxAttempts *int `yaml:"max_attempts"`
}

// StorageConfig selects where the session survives restarts.
type StorageConfig struct {
	// Driver is "file" (default), "badger" or "memory".
	Driver string `yaml:"driver"`

	// Path is the session file (file driver) or database directory (badger
	// driver). Defaults to a location under the user config directory.
	// Supports environment variable substitution.
	Path string `yaml:"path"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Defaults to info.
	Level string `yaml:"level"`

	// Format is auto, json, text or pretty. auto picks pretty on a terminal
	// and json otherwise.
	Format string `yaml:"format"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Attempts returns the configured reconnect budget.
func (r ReconnectConfig) Attempts() int {
	if r.MaxAttempts == nil {
		return DefaultMaxAttempts
	}
	return *r.MaxAttempts
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Default returns the configuration used when no file is given. API and
// WebSocket bases honour PULSEDECK_API_BASE and PULSEDECK_WS_BASE.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		// only reachable through a malformed PULSEDECK_*_BASE variable
		cfg = &Config{}
		cfg.applyDefaults()
		cfg.APIBase = DefaultAPIBase
		cfg.WSBase = DefaultWSBase
	}
	return cfg
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in api_base, ws_base and storage.path.
// An unset api_base or ws_base falls back to PULSEDECK_API_BASE or
// PULSEDECK_WS_BASE, then to the local defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.APIBase == "" {
		c.APIBase = "${PULSEDECK_API_BASE:-" + DefaultAPIBase + "}"
	}
	if c.WSBase == "" {
		c.WSBase = "${PULSEDECK_WS_BASE:-" + DefaultWSBase + "}"
	}
	if len(c.Channels) == 0 {
		c.Channels = append([]string(nil), defaultChannels...)
	}
	if c.MetricsHours == 0 {
		c.MetricsHours = DefaultMetricsHours
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var err error

	if c.APIBase, err = expandEnvVars(c.APIBase); err != nil {
		return fmt.Errorf("api_base: %w", err)
	}
	if err := validateBase("api_base", c.APIBase, "http", "https"); err != nil {
		return err
	}

	if c.WSBase, err = expandEnvVars(c.WSBase); err != nil {
		return fmt.Errorf("ws_base: %w", err)
	}
	if err := validateBase("ws_base", c.WSBase, "ws", "wss"); err != nil {
		return err
	}

	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be between 0 and 65535, got %d", c.ListenPort)
	}

	seen := make(map[string]struct{}, len(c.Channels))
	for i, ch := range c.Channels {
		if !slices.Contains(knownChannels, ch) {
			return fmt.Errorf("channels[%d]: unknown channel %q (expected one of %v)", i, ch, knownChannels)
		}
		if _, dup := seen[ch]; dup {
			return fmt.Errorf("channels[%d]: duplicate channel %q", i, ch)
		}
		seen[ch] = struct{}{}
	}

	if c.Reconnect.Attempts() < 0 {
		return fmt.Errorf("reconnect.max_attempts cannot be negative, got %d", c.Reconnect.Attempts())
	}

	// sorted so the first error is stable
	names := make([]string, 0, len(c.Refresh))
	for name := range c.Refresh {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !slices.Contains(knownQueries, name) {
			return fmt.Errorf("refresh[%s]: unknown query (expected one of %v)", name, knownQueries)
		}
		d := c.Refresh[name].Duration()
		if d < minRefresh {
			return fmt.Errorf("refresh[%s]: interval must be at least %s, got %s", name, minRefresh, d)
		}
		if d > maxRefresh {
			return fmt.Errorf("refresh[%s]: interval must not exceed %s, got %s", name, maxRefresh, d)
		}
	}

	if c.MetricsHours < 1 {
		return fmt.Errorf("metrics_hours must be at least 1, got %d", c.MetricsHours)
	}

	if c.RequestTimeout.Duration() < time.Second {
		return fmt.Errorf("request_timeout must be at least 1s, got %s", c.RequestTimeout.Duration())
	}

	if !slices.Contains(knownDrivers, c.Storage.Driver) {
		return fmt.Errorf("storage.driver must be one of %v, got %q", knownDrivers, c.Storage.Driver)
	}
	if c.Storage.Path, err = expandEnvVars(c.Storage.Path); err != nil {
		return fmt.Errorf("storage.path: %w", err)
	}

	if !slices.Contains(knownLogLevels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of %v, got %q", knownLogLevels, c.Log.Level)
	}
	if !slices.Contains(knownLogFormats, c.Log.Format) {
		return fmt.Errorf("log.format must be one of %v, got %q", knownLogFormats, c.Log.Format)
	}

	return nil
}

func validateBase(field, base string, schemes ...string) error {
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", field, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%s: url must have a scheme (%s://)", field, schemes[0])
	}
	if !slices.Contains(schemes, u.Scheme) {
		return fmt.Errorf("%s: url scheme must be %v, got %q", field, schemes, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: url must have a host", field)
	}
	return nil
}

// StoragePath returns the configured storage path, or the default location
// for the driver under the user config directory.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" || c.Storage.Driver == "memory" {
		return c.Storage.Path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	if c.Storage.Driver == "badger" {
		return filepath.Join(dir, "pulsedeck", "badger"), nil
	}
	return filepath.Join(dir, "pulsedeck", "session.json"), nil
}
