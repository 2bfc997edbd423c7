package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/pterokeys/internal/errors"
	"github.com/systmms/pterokeys/internal/logging"
)

// DefaultPath is the configuration file used when --config is not given.
const DefaultPath = "pterokeys.yaml"

// Audit sinks.
const (
	AuditSinkDatabase = "database"
	AuditSinkFile     = "file"
)

const (
	defaultPanelTimeoutMs = 30000
	defaultListen         = "127.0.0.1:8080"
	defaultMetricsPath    = "/metrics"
)

//go:embed schema.json
var schemaJSON string

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the pterokeys.yaml structure
type Definition struct {
	Version       int                `yaml:"version"`
	Panel         PanelConfig        `yaml:"panel"`
	Database      *DatabaseConfig    `yaml:"database,omitempty"`
	Audit         AuditConfig        `yaml:"audit,omitempty"`
	Notifications NotificationConfig `yaml:"notifications,omitempty"`
	Server        ServerConfig       `yaml:"server,omitempty"`
}

// PanelConfig holds the Pterodactyl application API settings
type PanelConfig struct {
	URL string `yaml:"url"`

	// ApplicationKey is a secret reference: env:NAME, keyring:service/user or a literal.
	ApplicationKey string `yaml:"application_key"`

	TimeoutMs      int      `yaml:"timeout_ms,omitempty"`
	Retries        int      `yaml:"retries,omitempty"`
	RateLimit      float64  `yaml:"rate_limit,omitempty"`
	KeyDescription string   `yaml:"key_description,omitempty"`
	AllowedIPs     []string `yaml:"allowed_ips,omitempty"`
}

// Timeout returns the per-request timeout.
func (p PanelConfig) Timeout() time.Duration {
	if p.TimeoutMs <= 0 {
		return defaultPanelTimeoutMs * time.Millisecond
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// DatabaseConfig holds the account database connection
type DatabaseConfig struct {
	Driver string `yaml:"driver"`

	// DSN is a secret reference.
	DSN string `yaml:"dsn"`
}

// AuditConfig selects where audit entries are written
type AuditConfig struct {
	Sink string `yaml:"sink,omitempty"`
	Dir  string `yaml:"dir,omitempty"`
}

// NotificationConfig holds audit event notification settings
type NotificationConfig struct {
	QueueSize int             `yaml:"queue_size,omitempty"`
	Webhooks  []WebhookConfig `yaml:"webhooks,omitempty"`
	Slack     *SlackConfig    `yaml:"slack,omitempty"`
}

// SlackConfig configures Slack incoming webhook notifications
type SlackConfig struct {
	// WebhookURL is a secret reference.
	WebhookURL string   `yaml:"webhook_url"`
	Channel    string   `yaml:"channel,omitempty"`
	Actions    []string `yaml:"actions,omitempty"`
	Mentions   []string `yaml:"mentions,omitempty"`
}

// WebhookConfig configures a single webhook destination
type WebhookConfig struct {
	Name        string            `yaml:"name,omitempty"`
	URL         string            `yaml:"url"`
	Method      string            `yaml:"method,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	Actions     []string          `yaml:"actions,omitempty"`
	MaxAttempts int               `yaml:"max_attempts,omitempty"`
	Backoff     string            `yaml:"backoff,omitempty"`
	TimeoutMs   int               `yaml:"timeout_ms,omitempty"`
}

// ServerConfig configures the HTTP service
type ServerConfig struct {
	Listen string `yaml:"listen,omitempty"`

	// Token is a secret reference for the bearer token callers must present.
	Token       string `yaml:"token,omitempty"`
	MetricsPath string `yaml:"metrics_path,omitempty"`
}

// Load reads, validates and parses the configuration file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create pterokeys.yaml or pass --config with the path to your configuration",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}

	c.Definition = def
	return nil
}

// Parse validates raw YAML against the schema and returns the definition
// with defaults applied.
func Parse(data []byte) (*Definition, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if raw == nil {
		return nil, dserrors.ConfigError{
			Message:    "configuration file is empty",
			Suggestion: "Add at least 'version: 1' and a 'panel:' section",
		}
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "configuration does not match the expected structure",
			Suggestion: err.Error(),
		}
	}

	def.applyDefaults()

	if def.Audit.Sink == AuditSinkDatabase && def.Database == nil {
		return nil, dserrors.ConfigError{
			Field:      "audit.sink",
			Value:      AuditSinkDatabase,
			Message:    "database audit sink requires a database",
			Suggestion: "Add a 'database:' section or set audit.sink to 'file'",
		}
	}

	return &def, nil
}

func validateSchema(raw interface{}) error {
	doc, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return dserrors.ConfigError{
			Field:      result.Errors()[0].Field(),
			Message:    "configuration failed validation",
			Suggestion: strings.Join(msgs, "; "),
		}
	}

	return nil
}

func (d *Definition) applyDefaults() {
	if d.Panel.TimeoutMs <= 0 {
		d.Panel.TimeoutMs = defaultPanelTimeoutMs
	}

	if d.Audit.Sink == "" {
		if d.Database != nil {
			d.Audit.Sink = AuditSinkDatabase
		} else {
			d.Audit.Sink = AuditSinkFile
		}
	}

	if d.Server.Listen == "" {
		d.Server.Listen = defaultListen
	}
	if d.Server.MetricsPath == "" {
		d.Server.MetricsPath = defaultMetricsPath
	}
}

// RequireDatabase returns the database section or a ConfigError.
func (c *Config) RequireDatabase() (*DatabaseConfig, error) {
	if c.Definition == nil {
		return nil, dserrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}
	if c.Definition.Database == nil {
		return nil, dserrors.ConfigError{
			Field:      "database",
			Message:    "no database configured",
			Suggestion: "Add a 'database:' section with driver (postgres, mysql, sqlite3) and dsn",
		}
	}
	return c.Definition.Database, nil
}
