// Package config provides YAML configuration parsing for inboxd.
//
// This package enables running inboxd as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	poll_interval: 15m
//	tick_interval: 1m
//	default_phone: "+15557654321"
//	ingest_secret: ${INGEST_SECRET:-}
//
//	canvas:
//	  base_url: https://canvas.example.edu
//	  token: ${CANVAS_TOKEN}
//	  course_ids: [101, 202]
//
//	sms:
//	  url: https://sms.example.com
//	  token: ${SMS_TOKEN}
//	  from: "+15550001111"
//
//	escalation:
//	  offsets: [72h, 24h, 6h, 1h]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// minPollInterval is the minimum allowed Canvas polling interval.
// This prevents accidental exhaustion of Canvas API rate limits.
const minPollInterval = 30 * time.Second

// minTickInterval is the minimum allowed scheduler tick interval.
const minTickInterval = time.Second

// Config is the root configuration structure for inboxd.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollInterval is the time between Canvas polling cycles.
	// Accepts duration strings like "10m", "1h". Defaults to 15m.
	PollInterval Duration `yaml:"poll_interval"`

	// TickInterval is the time between scheduler passes. Defaults to 1m.
	TickInterval Duration `yaml:"tick_interval"`

	// MaxConcurrency bounds concurrent course fetches and SMS deliveries.
	// Defaults to 5.
	MaxConcurrency int `yaml:"max_concurrency"`

	// DefaultPhone is the destination number for reminders derived from
	// Canvas assignments. Required when Canvas is configured.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	DefaultPhone string `yaml:"default_phone"`

	// IngestSecret protects mutating API routes via the X-Ingest-Secret
	// header. Empty leaves them open.
	// Supports environment variable substitution.
	IngestSecret string `yaml:"ingest_secret"`

	// Canvas configures assignment polling. Omit to disable polling and
	// serve one-off reminders only.
	Canvas CanvasConfig `yaml:"canvas"`

	// SMS configures the outbound SMS provider. Required.
	SMS SMSConfig `yaml:"sms"`

	// Escalation configures the reminder ladder.
	Escalation EscalationConfig `yaml:"escalation"`

	// Database configures the PostgreSQL store. Omit to use the
	// in-memory store (state is lost on restart).
	Database *DatabaseConfig `yaml:"database"`
}

// CanvasConfig configures the Canvas API client.
type CanvasConfig struct {
	// BaseURL is the Canvas API root, e.g. https://canvas.example.edu.
	// Supports environment variable substitution.
	BaseURL string `yaml:"base_url"`

	// Token is a Canvas API access token.
	// Supports environment variable substitution.
	Token string `yaml:"token"`

	// CourseIDs restricts polling to the given courses. When empty, the
	// poller discovers the user's active courses on every cycle.
	CourseIDs []int64 `yaml:"course_ids"`
}

// Enabled reports whether Canvas polling is configured.
func (c CanvasConfig) Enabled() bool {
	return c.BaseURL != ""
}

// SMSConfig configures the outbound SMS provider.
type SMSConfig struct {
	// URL is the provider API root.
	// Supports environment variable substitution.
	URL string `yaml:"url"`

	// Token authenticates provider requests.
	// Supports environment variable substitution.
	Token string `yaml:"token"`

	// From is the sender number.
	From string `yaml:"from"`

	// MaxAttempts is how many delivery tries before a reminder is marked
	// failed. Defaults to 3.
	MaxAttempts int `yaml:"max_attempts"`
}

// EscalationConfig configures the reminder ladder derived per assignment.
type EscalationConfig struct {
	// Offsets schedule one reminder per entry, at deadline minus offset.
	// Must be strictly decreasing. Defaults to [72h, 24h, 6h, 1h].
	Offsets []Duration `yaml:"offsets"`
}

// DatabaseConfig configures the PostgreSQL store.
type DatabaseConfig struct {
	// Host is the database server hostname.
	Host string `yaml:"host"`

	// Port is the database server port. Defaults to 5432.
	Port int `yaml:"port"`

	// User is the database role.
	User string `yaml:"user"`

	// Password authenticates the role.
	// Supports environment variable substitution.
	Password string `yaml:"password"`

	// DBName is the database name.
	DBName string `yaml:"dbname"`

	// SSLMode is the libpq sslmode value. Defaults to "disable".
	SSLMode string `yaml:"sslmode"`
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
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
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
// Environment variables are expanded in URL, token, phone, and password
// values. Defaults are applied for Port (8080), PollInterval (15m),
// TickInterval (1m), MaxConcurrency (5), and SMS MaxAttempts (3).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(15 * time.Minute)
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = Duration(time.Minute)
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.SMS.MaxAttempts == 0 {
		cfg.SMS.MaxAttempts = 3
	}
	if cfg.Database != nil {
		if cfg.Database.Port == 0 {
			cfg.Database.Port = 5432
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.TickInterval.Duration() < minTickInterval {
		return fmt.Errorf("tick_interval must be at least %s, got %s", minTickInterval, c.TickInterval.Duration())
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}

	var err error
	if c.DefaultPhone, err = expandEnvVars(c.DefaultPhone); err != nil {
		return fmt.Errorf("default_phone: %w", err)
	}
	if c.IngestSecret, err = expandEnvVars(c.IngestSecret); err != nil {
		return fmt.Errorf("ingest_secret: %w", err)
	}

	if err := c.validateSMS(); err != nil {
		return err
	}
	if err := c.validateCanvas(); err != nil {
		return err
	}
	if err := c.validateEscalation(); err != nil {
		return err
	}
	return c.validateDatabase()
}

func (c *Config) validateSMS() error {
	if c.SMS.URL == "" {
		return errors.New("sms: url is required")
	}
	var err error
	if c.SMS.URL, err = expandEnvVars(c.SMS.URL); err != nil {
		return fmt.Errorf("sms: url: %w", err)
	}
	if err := validateHTTPURL(c.SMS.URL); err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	if c.SMS.Token, err = expandEnvVars(c.SMS.Token); err != nil {
		return fmt.Errorf("sms: token: %w", err)
	}
	if c.SMS.From == "" {
		return errors.New("sms: from is required")
	}
	if c.SMS.MaxAttempts < 1 {
		return fmt.Errorf("sms: max_attempts must be positive, got %d", c.SMS.MaxAttempts)
	}
	return nil
}

func (c *Config) validateCanvas() error {
	var err error
	if c.Canvas.BaseURL, err = expandEnvVars(c.Canvas.BaseURL); err != nil {
		return fmt.Errorf("canvas: base_url: %w", err)
	}
	if c.Canvas.Token, err = expandEnvVars(c.Canvas.Token); err != nil {
		return fmt.Errorf("canvas: token: %w", err)
	}

	if !c.Canvas.Enabled() {
		if c.Canvas.Token != "" {
			return errors.New("canvas: token is set but base_url is missing")
		}
		return nil
	}

	if err := validateHTTPURL(c.Canvas.BaseURL); err != nil {
		return fmt.Errorf("canvas: %w", err)
	}
	if c.Canvas.Token == "" {
		return errors.New("canvas: token is required when base_url is set")
	}
	if c.DefaultPhone == "" {
		return errors.New("default_phone is required when canvas is configured")
	}
	for i, id := range c.Canvas.CourseIDs {
		if id <= 0 {
			return fmt.Errorf("canvas: course_ids[%d] must be positive, got %d", i, id)
		}
	}
	return nil
}

func (c *Config) validateEscalation() error {
	for i, off := range c.Escalation.Offsets {
		if off.Duration() <= 0 {
			return fmt.Errorf("escalation: offsets[%d] must be positive, got %s", i, off.Duration())
		}
		if i > 0 && off.Duration() >= c.Escalation.Offsets[i-1].Duration() {
			return errors.New("escalation: offsets must be strictly decreasing")
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database == nil {
		return nil
	}
	if c.Database.Host == "" {
		return errors.New("database: host is required")
	}
	if c.Database.User == "" {
		return errors.New("database: user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database: dbname is required")
	}
	var err error
	if c.Database.Password, err = expandEnvVars(c.Database.Password); err != nil {
		return fmt.Errorf("database: password: %w", err)
	}
	return nil
}

// validateHTTPURL checks that the value parses as an http(s) URL.
func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}
	return nil
}
