// Package config loads the changewatch configuration.
//
// A configuration file is YAML. It is checked against an embedded, closed
// CUE schema (unknown keys and wrong types are rejected), decoded into a
// Config, overlaid with secrets from the environment, and filled with
// defaults. The resulting value is passed explicitly to every component.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/changewatch/internal/apperr"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables that override file values.
const (
	EnvDatabase     = "CHANGEWATCH_DB"
	EnvSMTPPassword = "CHANGEWATCH_SMTP_PASSWORD"
	EnvResendAPIKey = "CHANGEWATCH_RESEND_API_KEY"
	EnvTelegramBot  = "CHANGEWATCH_TELEGRAM_TOKEN"
)

// Defaults.
const (
	DefaultDatabase      = "changewatch.db"
	DefaultRetention     = 10
	DefaultConcurrency   = 4
	DefaultFetchTimeout  = 30 * time.Second
	DefaultNotifyTimeout = 15 * time.Second
	DefaultSMTPPort      = 587
)

// Source types.
const (
	SourceJSON   = "json"
	SourceStatic = "static"
)

// Config is the complete runtime configuration.
type Config struct {
	Database      string        `yaml:"database"`
	Retention     int           `yaml:"retention"`
	Concurrency   int           `yaml:"concurrency"`
	FetchTimeout  Duration      `yaml:"fetch_timeout"`
	NotifyTimeout Duration      `yaml:"notify_timeout"`
	MetricsFile   string        `yaml:"metrics_file"`
	Logging       Logging       `yaml:"logging"`
	Notifications Notifications `yaml:"notifications"`
	Sources       []Source      `yaml:"sources"`
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Notifications configures the outbound channels.
type Notifications struct {
	Console  ConsoleConfig  `yaml:"console"`
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// ConsoleConfig configures the console channel. It is on unless disabled.
type ConsoleConfig struct {
	Enabled *bool `yaml:"enabled"`
	Color   bool  `yaml:"color"`
	Verbose bool  `yaml:"verbose"`
}

// IsEnabled reports whether the console channel is on.
func (c ConsoleConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// EmailConfig configures the email channel.
type EmailConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Provider     string   `yaml:"provider"`
	From         string   `yaml:"from"`
	To           []string `yaml:"to"`
	SMTPHost     string   `yaml:"smtp_host"`
	SMTPPort     int      `yaml:"smtp_port"`
	SMTPUser     string   `yaml:"smtp_user"`
	SMTPPassword string   `yaml:"smtp_password"`
	ResendAPIKey string   `yaml:"resend_api_key"`
}

// TelegramConfig configures the chat channel.
type TelegramConfig struct {
	Enabled   bool    `yaml:"enabled"`
	BotToken  string  `yaml:"bot_token"`
	ChatID    string  `yaml:"chat_id"`
	RateLimit float64 `yaml:"rate_limit"`
}

// Source is one monitored data source.
type Source struct {
	Name          string    `yaml:"name"`
	Enabled       *bool     `yaml:"enabled"`
	Type          string    `yaml:"type"`
	URL           string    `yaml:"url"`
	KeyFields     []string  `yaml:"key_fields"`
	CompareFields []string  `yaml:"compare_fields"`
	PriceField    string    `yaml:"price_field"`
	Retention     int       `yaml:"retention"`
	Notifications *bool     `yaml:"notifications"`
	Selectors     Selectors `yaml:"selectors"`

	// Cleaning applied to fetched records before detection.
	RequiredFields  []string `yaml:"required_fields"`
	NormalizeFields []string `yaml:"normalize_fields"`
	DedupeByKey     bool     `yaml:"dedupe_by_key"`

	// SkipEmpty keeps the baseline when a fetch yields no records.
	SkipEmpty bool `yaml:"skip_empty"`
}

// Selectors locate records in a static HTML page.
type Selectors struct {
	Container string            `yaml:"container"`
	Fields    map[string]string `yaml:"fields"`
}

// IsEnabled reports whether the source takes part in runs. Default true.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// NotificationsEnabled reports whether events of this source are dispatched.
// Default true.
func (s Source) NotificationsEnabled() bool {
	return s.Notifications == nil || *s.Notifications
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a configuration with every default applied and no sources.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	return cfg
}

// Load reads, validates and completes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes a YAML configuration, then applies the
// environment and defaults.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, apperr.Validation("config.parse", "", "invalid YAML: %v", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, apperr.Validation("config.parse", "", "%v", err)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateSchema checks raw against the #Config definition.
func validateSchema(raw any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return apperr.Validation("config.schema", "", "%v", err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return apperr.Validation("config.schema", "", "%v", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		c.Database = v
	}
	if v, ok := lookup(EnvSMTPPassword); ok && v != "" {
		c.Notifications.Email.SMTPPassword = v
	}
	if v, ok := lookup(EnvResendAPIKey); ok && v != "" {
		c.Notifications.Email.ResendAPIKey = v
	}
	if v, ok := lookup(EnvTelegramBot); ok && v != "" {
		c.Notifications.Telegram.BotToken = v
	}
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Retention == 0 {
		c.Retention = DefaultRetention
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = Duration(DefaultFetchTimeout)
	}
	if c.NotifyTimeout == 0 {
		c.NotifyTimeout = Duration(DefaultNotifyTimeout)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	email := &c.Notifications.Email
	if email.Provider == "" {
		email.Provider = "smtp"
	}
	if email.SMTPPort == 0 {
		email.SMTPPort = DefaultSMTPPort
	}
	if email.From == "" {
		email.From = email.SMTPUser
	}

	for i := range c.Sources {
		if c.Sources[i].Retention == 0 {
			c.Sources[i].Retention = c.Retention
		}
	}
}

// Validate checks the constraints the schema cannot express.
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if seen[s.Name] {
			errs = append(errs, apperr.Validation("config.validate", s.Name, "duplicate source name"))
		}
		seen[s.Name] = true

		if s.Type == SourceStatic && (s.Selectors.Container == "" || len(s.Selectors.Fields) == 0) {
			errs = append(errs, apperr.Validation("config.validate", s.Name, "static sources need selectors.container and selectors.fields"))
		}
	}

	email := c.Notifications.Email
	if email.Enabled {
		if email.From == "" || len(email.To) == 0 {
			errs = append(errs, apperr.Validation("config.validate", "", "email: from and to are required"))
		}
		switch email.Provider {
		case "smtp":
			if email.SMTPHost == "" {
				errs = append(errs, apperr.Validation("config.validate", "", "email: smtp_host is required"))
			}
		case "resend":
			if email.ResendAPIKey == "" {
				errs = append(errs, apperr.Validation("config.validate", "", "email: resend API key is required (set %s)", EnvResendAPIKey))
			}
		}
	}

	tg := c.Notifications.Telegram
	if tg.Enabled && (tg.BotToken == "" || tg.ChatID == "") {
		errs = append(errs, apperr.Validation("config.validate", "", "telegram: bot token and chat_id are required (set %s)", EnvTelegramBot))
	}

	return errors.Join(errs...)
}

// EnabledSources returns the sources that take part in runs, optionally
// restricted to the given names. Unknown names are a validation error.
func (c *Config) EnabledSources(names ...string) ([]Source, error) {
	if len(names) == 0 {
		var out []Source
		for _, s := range c.Sources {
			if s.IsEnabled() {
				out = append(out, s)
			}
		}
		return out, nil
	}

	byName := make(map[string]Source, len(c.Sources))
	for _, s := range c.Sources {
		byName[s.Name] = s
	}
	out := make([]Source, 0, len(names))
	var unknown []string
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, s)
	}
	if len(unknown) > 0 {
		return nil, apperr.Validation("config.sources", "", "unknown source(s): %s", strings.Join(unknown, ", "))
	}
	return out, nil
}
