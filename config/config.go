// Package config holds the server configuration. Values come from
// DefaultConfig, then an optional YAML file, then OVERTIME_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "OVERTIME_"

// ErrNilConfig is returned when a nil config is used.
var ErrNilConfig = errors.New("nil config")

// HTTPConfig is the configuration of the API server.
type HTTPConfig struct {
	// ListenAddr is the address the API listens on.
	ListenAddr string `env:"LISTEN_ADDR" yaml:"listen_addr"`

	// AllowedOrigins are the CORS origins of the web client.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," yaml:"allowed_origins"`

	ReadTimeout  time.Duration `env:"READ_TIMEOUT" yaml:"read_timeout"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" yaml:"write_timeout"`

	// EnableScenarios exposes the demo data loader.
	EnableScenarios bool `env:"ENABLE_SCENARIOS" yaml:"enable_scenarios"`
}

// DBConfig is the database configuration.
type DBConfig struct {
	// Path is the SQLite database file, or ":memory:".
	Path string `env:"PATH" yaml:"path"`
}

// LogConfig is the logger configuration.
type LogConfig struct {
	// Format is one of "text", "json" and "logfmt".
	Format string `env:"FORMAT" yaml:"format"`

	// Level is one of "debug", "info", "warn" and "error".
	Level string `env:"LEVEL" yaml:"level"`

	// TimeFormat is the layout of the timestamp field.
	TimeFormat string `env:"TIME_FORMAT" yaml:"time_format"`

	// Path to a file to write logs to. Logs go to stderr when empty.
	Path string `env:"PATH" yaml:"path"`
}

// AuthConfig is the bearer token configuration.
type AuthConfig struct {
	// Secret signs and verifies HS256 bearer tokens.
	Secret string `env:"SECRET" yaml:"secret"`

	// Issuer is the expected iss claim.
	Issuer string `env:"ISSUER" yaml:"issuer"`

	// TokenTTL is the lifetime of tokens minted by the CLI.
	TokenTTL time.Duration `env:"TOKEN_TTL" yaml:"token_ttl"`
}

// SheetsConfig is the service account used to reach Google Sheets.
type SheetsConfig struct {
	// CredentialsFile is a service account JSON key. It takes precedence
	// over Email and PrivateKey.
	CredentialsFile string `env:"CREDENTIALS_FILE" yaml:"credentials_file"`

	Email      string `env:"SERVICE_EMAIL" yaml:"service_email"`
	PrivateKey string `env:"PRIVATE_KEY" yaml:"private_key"`
}

// Configured reports whether any credentials are set.
func (c SheetsConfig) Configured() bool {
	return c.CredentialsFile != "" || (c.Email != "" && c.PrivateKey != "")
}

// QueueConfig controls report task delivery.
type QueueConfig struct {
	Delay         time.Duration `env:"DELAY" yaml:"delay"`
	Deadline      time.Duration `env:"DEADLINE" yaml:"deadline"`
	MaxAttempts   int           `env:"MAX_ATTEMPTS" yaml:"max_attempts"`
	MinBackoff    time.Duration `env:"MIN_BACKOFF" yaml:"min_backoff"`
	MaxBackoff    time.Duration `env:"MAX_BACKOFF" yaml:"max_backoff"`
	MaxConcurrent int           `env:"MAX_CONCURRENT" yaml:"max_concurrent"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" yaml:"poll_interval"`
}

// JobsConfig is the configuration of cron jobs.
type JobsConfig struct {
	// MonthlyReport enqueues the previous month's report of every
	// organization with a spreadsheet. Empty disables the job.
	MonthlyReport string `env:"MONTHLY_REPORT" yaml:"monthly_report"`

	// Timezone of the schedule, and of the "previous month" it reports.
	// Empty means the local zone.
	Timezone string `env:"TIMEZONE" yaml:"timezone"`
}

// Location resolves Timezone. Validate has already checked it.
func (j JobsConfig) Location() *time.Location {
	if j.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(j.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// MailConfig is the invitation mail configuration.
type MailConfig struct {
	// SendGridKey enables invitation mails when set.
	SendGridKey string `env:"SENDGRID_KEY" yaml:"sendgrid_key"`
	FromName    string `env:"FROM_NAME" yaml:"from_name"`
	FromAddress string `env:"FROM_ADDRESS" yaml:"from_address"`
	AppURL      string `env:"APP_URL" yaml:"app_url"`
}

// Config is the configuration of the overtime server.
type Config struct {
	HTTP   HTTPConfig   `envPrefix:"HTTP_" yaml:"http"`
	DB     DBConfig     `envPrefix:"DB_" yaml:"db"`
	Log    LogConfig    `envPrefix:"LOG_" yaml:"log"`
	Auth   AuthConfig   `envPrefix:"AUTH_" yaml:"auth"`
	Sheets SheetsConfig `envPrefix:"SHEETS_" yaml:"sheets"`
	Queue  QueueConfig  `envPrefix:"QUEUE_" yaml:"queue"`
	Jobs   JobsConfig   `envPrefix:"JOBS_" yaml:"jobs"`
	Mail   MailConfig   `envPrefix:"MAIL_" yaml:"mail"`
}

// DefaultConfig returns the default Config.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"http://localhost:4200"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   60 * time.Second,
		},
		DB: DBConfig{
			Path: "overtime.db",
		},
		Log: LogConfig{
			Format:     "text",
			Level:      "info",
			TimeFormat: time.DateTime,
		},
		Auth: AuthConfig{
			Issuer:   "overtime",
			TokenTTL: 24 * time.Hour,
		},
		Queue: QueueConfig{
			Delay:         60 * time.Second,
			Deadline:      5 * time.Minute,
			MaxAttempts:   5,
			MinBackoff:    60 * time.Second,
			MaxBackoff:    time.Hour,
			MaxConcurrent: 6,
			PollInterval:  5 * time.Second,
		},
		Jobs: JobsConfig{
			MonthlyReport: "0 6 1 * *",
		},
		Mail: MailConfig{
			FromName:    "Overtime",
			FromAddress: "no-reply@localhost",
			AppURL:      "http://localhost:4200",
		},
	}
}

// ParseFile reads a YAML file over c. This also calls Validate().
func (c *Config) ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() // nolint: errcheck

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return c.Validate()
}

// ParseEnv overrides c with OVERTIME_* environment variables. This also
// calls Validate().
func (c *Config) ParseEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment variables: %w", err)
	}
	return c.Validate()
}

// Parse reads path when it is not empty, then the environment.
func (c *Config) Parse(path string) error {
	if path != "" {
		if err := c.ParseFile(path); err != nil {
			return err
		}
	}
	return c.ParseEnv()
}

// Validate checks the configuration and normalizes it.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.DB.Path == "" {
		return errors.New("db path is required")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue max attempts must be positive, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.MaxConcurrent < 1 {
		return fmt.Errorf("queue max concurrent must be positive, got %d", c.Queue.MaxConcurrent)
	}
	if c.Queue.MaxBackoff > 0 && c.Queue.MaxBackoff < c.Queue.MinBackoff {
		return errors.New("queue max backoff is shorter than min backoff")
	}
	if c.Jobs.Timezone != "" {
		if _, err := time.LoadLocation(c.Jobs.Timezone); err != nil {
			return fmt.Errorf("invalid jobs timezone %q: %w", c.Jobs.Timezone, err)
		}
	}
	c.Mail.AppURL = strings.TrimSuffix(c.Mail.AppURL, "/")
	return nil
}

// Environ returns the config as a list of environment variables.
func (c *Config) Environ() []string {
	if c == nil {
		return nil
	}
	return []string{
		EnvPrefix + "HTTP_LISTEN_ADDR=" + c.HTTP.ListenAddr,
		EnvPrefix + "HTTP_ALLOWED_ORIGINS=" + strings.Join(c.HTTP.AllowedOrigins, ","),
		EnvPrefix + "HTTP_READ_TIMEOUT=" + c.HTTP.ReadTimeout.String(),
		EnvPrefix + "HTTP_WRITE_TIMEOUT=" + c.HTTP.WriteTimeout.String(),
		EnvPrefix + "HTTP_ENABLE_SCENARIOS=" + strconv.FormatBool(c.HTTP.EnableScenarios),
		EnvPrefix + "DB_PATH=" + c.DB.Path,
		EnvPrefix + "LOG_FORMAT=" + c.Log.Format,
		EnvPrefix + "LOG_LEVEL=" + c.Log.Level,
		EnvPrefix + "LOG_TIME_FORMAT=" + c.Log.TimeFormat,
		EnvPrefix + "LOG_PATH=" + c.Log.Path,
		EnvPrefix + "AUTH_ISSUER=" + c.Auth.Issuer,
		EnvPrefix + "AUTH_TOKEN_TTL=" + c.Auth.TokenTTL.String(),
		EnvPrefix + "SHEETS_CREDENTIALS_FILE=" + c.Sheets.CredentialsFile,
		EnvPrefix + "SHEETS_SERVICE_EMAIL=" + c.Sheets.Email,
		EnvPrefix + "QUEUE_DELAY=" + c.Queue.Delay.String(),
		EnvPrefix + "QUEUE_DEADLINE=" + c.Queue.Deadline.String(),
		EnvPrefix + "QUEUE_MAX_ATTEMPTS=" + strconv.Itoa(c.Queue.MaxAttempts),
		EnvPrefix + "QUEUE_MIN_BACKOFF=" + c.Queue.MinBackoff.String(),
		EnvPrefix + "QUEUE_MAX_BACKOFF=" + c.Queue.MaxBackoff.String(),
		EnvPrefix + "QUEUE_MAX_CONCURRENT=" + strconv.Itoa(c.Queue.MaxConcurrent),
		EnvPrefix + "QUEUE_POLL_INTERVAL=" + c.Queue.PollInterval.String(),
		EnvPrefix + "JOBS_MONTHLY_REPORT=" + c.Jobs.MonthlyReport,
		EnvPrefix + "JOBS_TIMEZONE=" + c.Jobs.Timezone,
		EnvPrefix + "MAIL_FROM_NAME=" + c.Mail.FromName,
		EnvPrefix + "MAIL_FROM_ADDRESS=" + c.Mail.FromAddress,
		EnvPrefix + "MAIL_APP_URL=" + c.Mail.AppURL,
	}
}

// IsDebug reports whether OVERTIME_DEBUG is set.
func IsDebug() bool {
	debug, _ := strconv.ParseBool(os.Getenv(EnvPrefix + "DEBUG"))
	return debug
}
