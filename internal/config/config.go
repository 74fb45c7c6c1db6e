// Package config loads, validates and saves the openvas-reporter configuration
// file and translates it into the settings of each component.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/openvas-reporter/internal/api"
	"github.com/anstrom/openvas-reporter/internal/delivery"
	"github.com/anstrom/openvas-reporter/internal/errors"
	"github.com/anstrom/openvas-reporter/internal/gmp"
	"github.com/anstrom/openvas-reporter/internal/logging"
	"github.com/anstrom/openvas-reporter/internal/orchestrator"
)

const (
	configDirPerm  = 0o750
	configFilePerm = 0o600
)

// Config represents the complete configuration
type Config struct {
	// Scan engine connection
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Report mail delivery
	Mail MailConfig `yaml:"mail" json:"mail"`

	// Run settings
	Scan ScanConfig `yaml:"scan" json:"scan"`

	// Recurring runs in daemon mode
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`

	// Status server in daemon mode
	Server ServerConfig `yaml:"server" json:"server"`

	// Daemon process settings
	Daemon DaemonConfig `yaml:"daemon" json:"daemon"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// EngineConfig holds the gvmd endpoint, credentials and object IDs.
type EngineConfig struct {
	Socket         string        `yaml:"socket" json:"socket" validate:"required"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
	Username       string        `yaml:"username" json:"username"`
	Password       string        `yaml:"password" json:"-"`
	ScanConfigID   string        `yaml:"scan_config_id" json:"scan_config_id" validate:"required"`
	ScannerID      string        `yaml:"scanner_id" json:"scanner_id" validate:"required"`
	PortListID     string        `yaml:"port_list_id" json:"port_list_id" validate:"required"`
	ReportFormatID string        `yaml:"report_format_id" json:"report_format_id" validate:"required"`
}

// MailConfig holds SMTP settings and the report message.
type MailConfig struct {
	Host       string        `yaml:"host" json:"host" validate:"required,hostname_rfc1123|ip"`
	Port       int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	Auth       string        `yaml:"auth" json:"auth" validate:"oneof=login plain cram-md5"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
	Username   string        `yaml:"username" json:"username"`
	Sender     string        `yaml:"sender" json:"sender" validate:"omitempty,email"`
	Password   string        `yaml:"password" json:"-"`
	Recipients []string      `yaml:"recipients" json:"recipients" validate:"dive,email"`
	Subject    string        `yaml:"subject" json:"subject" validate:"required"`
	Body       string        `yaml:"body" json:"body"`
}

// ScanConfig holds the per-run settings.
type ScanConfig struct {
	TargetPrefix  string        `yaml:"target_prefix" json:"target_prefix" validate:"required"`
	TaskPrefix    string        `yaml:"task_prefix" json:"task_prefix" validate:"required"`
	MaxPrefixBits int           `yaml:"max_prefix_bits" json:"max_prefix_bits" validate:"min=0,max=32"`
	PollInterval  time.Duration `yaml:"poll_interval" json:"poll_interval" validate:"gte=1s"`
	MaxWait       time.Duration `yaml:"max_wait" json:"max_wait" validate:"gte=0"`
	Output        string        `yaml:"output" json:"output" validate:"required"`
}

// ScheduleConfig holds the daemon's recurring run schedule.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Cron    string `yaml:"cron" json:"cron" validate:"required_if=Enabled true,cron"`
	// RunOnStart triggers one run as soon as the daemon starts.
	RunOnStart bool `yaml:"run_on_start" json:"run_on_start"`
}

// ServerConfig holds the daemon status server settings.
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	Host            string        `yaml:"host" json:"host" validate:"required_if=Enabled true"`
	Port            int           `yaml:"port" json:"port" validate:"min=0,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gte=0"`
}

// DaemonConfig holds daemon process settings.
type DaemonConfig struct {
	// PIDFile is written on start and removed on exit. Empty disables it.
	PIDFile string `yaml:"pid_file" json:"pid_file"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output" validate:"required"`

	// Log file rotation
	Rotation RotationConfig `yaml:"rotation" json:"rotation"`
}

// RotationConfig holds log rotation settings
type RotationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb" json:"max_size_mb" validate:"min=0"`
	MaxBackups int  `yaml:"max_backups" json:"max_backups" validate:"min=0"`
	MaxAgeDays int  `yaml:"max_age_days" json:"max_age_days" validate:"min=0"`
	Compress   bool `yaml:"compress" json:"compress"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	engine := gmp.DefaultConfig()
	run := orchestrator.DefaultConfig()

	return &Config{
		Engine: EngineConfig{
			Socket:         engine.SocketPath,
			Timeout:        engine.Timeout,
			ScanConfigID:   engine.ScanConfigID,
			ScannerID:      engine.ScannerID,
			PortListID:     engine.PortListID,
			ReportFormatID: engine.ReportFormatID,
		},
		Mail: MailConfig{
			Host:    delivery.DefaultHost,
			Port:    delivery.DefaultPort,
			Auth:    delivery.DefaultAuth,
			Timeout: delivery.DefaultTimeout,
			Subject: delivery.DefaultSubject,
			Body:    delivery.DefaultBodyText,
		},
		Scan: ScanConfig{
			TargetPrefix:  run.TargetPrefix,
			TaskPrefix:    run.TaskPrefix,
			MaxPrefixBits: run.MaxPrefixBits,
			PollInterval:  run.PollInterval,
			Output:        run.OutputPath,
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Cron:    "0 2 * * 0",
		},
		Server: ServerConfig{
			Enabled:         false,
			Host:            "127.0.0.1",
			Port:            9470,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			Rotation: RotationConfig{
				Enabled:    false,
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
				Compress:   true,
			},
		},
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	// JSON is a subset of YAML, so one decoder serves both extensions.
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("failed to parse config %s", filepath.Base(path)), err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPerm); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to create config directory", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to marshal config", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to write config file", err)
	}

	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		expr := fl.Field().String()
		if expr == "" {
			return true
		}
		_, err := cron.ParseStandard(expr)
		return err == nil
	})
	return v
}

// Validate checks field formats and ranges. Credentials and recipients may
// arrive from flags or the environment later; ValidateRun checks those.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.NewConfigFieldError(errors.CodeValidation,
				fmt.Sprintf("invalid configuration value (%s)", fe.Tag()), fieldPath(fe), fe.Value())
		}
		return errors.WrapConfigError(errors.CodeValidation, "invalid configuration", err)
	}
	return nil
}

// ValidateRun checks that everything a report run needs is present.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}

	required := []struct {
		field string
		value string
	}{
		{"engine.username", c.Engine.Username},
		{"engine.password", c.Engine.Password},
		{"mail.sender", c.Mail.Sender},
		{"mail.password", c.Mail.Password},
	}
	for _, r := range required {
		if r.value == "" {
			return errors.ErrConfigMissing(r.field)
		}
	}
	if len(c.Mail.Recipients) == 0 {
		return errors.ErrConfigMissing("mail.recipients")
	}
	return nil
}

// fieldPath turns Config.mail.sender into mail.sender.
func fieldPath(fe validator.FieldError) string {
	_, path, found := strings.Cut(fe.Namespace(), ".")
	if !found {
		return fe.Field()
	}
	return path
}

// GMPConfig returns the scan engine client settings.
func (c *Config) GMPConfig() gmp.Config {
	return gmp.Config{
		SocketPath:     c.Engine.Socket,
		Timeout:        c.Engine.Timeout,
		ScanConfigID:   c.Engine.ScanConfigID,
		ScannerID:      c.Engine.ScannerID,
		PortListID:     c.Engine.PortListID,
		ReportFormatID: c.Engine.ReportFormatID,
	}
}

// DeliveryConfig returns the SMTP transport settings.
func (c *Config) DeliveryConfig() delivery.Config {
	return delivery.Config{
		Host:     c.Mail.Host,
		Port:     c.Mail.Port,
		Auth:     c.Mail.Auth,
		Timeout:  c.Mail.Timeout,
		Username: c.Mail.Username,
		Password: c.Mail.Password,
	}
}

// RunConfig returns the orchestrator settings.
func (c *Config) RunConfig() orchestrator.Config {
	return orchestrator.Config{
		Username:      c.Engine.Username,
		Password:      c.Engine.Password,
		Sender:        c.Mail.Sender,
		Recipients:    c.Mail.Recipients,
		Subject:       c.Mail.Subject,
		Body:          c.Mail.Body,
		TargetPrefix:  c.Scan.TargetPrefix,
		TaskPrefix:    c.Scan.TaskPrefix,
		MaxPrefixBits: c.Scan.MaxPrefixBits,
		PollInterval:  c.Scan.PollInterval,
		MaxWait:       c.Scan.MaxWait,
		OutputPath:    c.Scan.Output,
	}
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.Logging.Level),
		Format: logging.LogFormat(c.Logging.Format),
		Output: c.Logging.Output,
		Rotation: logging.RotationConfig{
			Enabled:    c.Logging.Rotation.Enabled,
			MaxSizeMB:  c.Logging.Rotation.MaxSizeMB,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			MaxAgeDays: c.Logging.Rotation.MaxAgeDays,
			Compress:   c.Logging.Rotation.Compress,
		},
	}
}

// APIConfig returns the status server settings.
func (c *Config) APIConfig() api.Config {
	cfg := api.DefaultConfig()
	cfg.Host = c.Server.Host
	cfg.Port = c.Server.Port
	cfg.ReadTimeout = c.Server.ReadTimeout
	cfg.WriteTimeout = c.Server.WriteTimeout
	cfg.ShutdownTimeout = c.Server.ShutdownTimeout
	return cfg
}

// GetServerAddress returns the status server listen address.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
