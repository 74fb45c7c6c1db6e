package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/openvas-reporter/internal/errors"
	"github.com/anstrom/openvas-reporter/internal/gmp"
	"github.com/anstrom/openvas-reporter/internal/logging"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, gmp.DefaultSocketPath, cfg.Engine.Socket)
	assert.Equal(t, gmp.DefaultReportFormatID, cfg.Engine.ReportFormatID)
	assert.Equal(t, "smtp.office365.com", cfg.Mail.Host)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.Equal(t, "report.pdf", cfg.Scan.Output)
	assert.Equal(t, 30*time.Second, cfg.Scan.PollInterval)
	assert.Zero(t, cfg.Scan.MaxWait)
	assert.Equal(t, 16, cfg.Scan.MaxPrefixBits)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantErr  bool
		wantCode errors.ErrorCode
		check    func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid yaml config",
			file: "config.yaml",
			content: `
engine:
  socket: /var/run/gvmd.sock
  username: admin
  password: secret
mail:
  host: mail.example.com
  port: 2525
  sender: scanner@example.com
  recipients:
    - ops@example.com
    - sec@example.com
scan:
  poll_interval: 1m
  max_wait: 6h
  output: /var/lib/openvas-reporter/report.pdf
schedule:
  enabled: true
  cron: "30 1 * * *"
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/var/run/gvmd.sock", cfg.Engine.Socket)
				assert.Equal(t, gmp.DefaultScannerID, cfg.Engine.ScannerID)
				assert.Equal(t, 2525, cfg.Mail.Port)
				assert.Equal(t, []string{"ops@example.com", "sec@example.com"}, cfg.Mail.Recipients)
				assert.Equal(t, time.Minute, cfg.Scan.PollInterval)
				assert.Equal(t, 6*time.Hour, cfg.Scan.MaxWait)
				assert.True(t, cfg.Schedule.Enabled)
				assert.Equal(t, "Local Subnet ", cfg.Scan.TargetPrefix)
			},
		},
		{
			name: "valid json config",
			file: "config.json",
			content: `{
				"engine": {"socket": "/tmp/gvmd.sock"},
				"scan": {"poll_interval": "45s"}
			}`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/gvmd.sock", cfg.Engine.Socket)
				assert.Equal(t, 45*time.Second, cfg.Scan.PollInterval)
			},
		},
		{
			name:     "invalid yaml syntax",
			file:     "broken.yaml",
			content:  "engine: [socket",
			wantErr:  true,
			wantCode: errors.CodeConfiguration,
		},
		{
			name:     "invalid recipient",
			file:     "config.yaml",
			content:  "mail:\n  recipients: [not-an-address]\n",
			wantErr:  true,
			wantCode: errors.CodeValidation,
		},
		{
			name:     "invalid cron expression",
			file:     "config.yaml",
			content:  "schedule:\n  enabled: true\n  cron: \"every night\"\n",
			wantErr:  true,
			wantCode: errors.CodeValidation,
		},
		{
			name:     "poll interval too short",
			file:     "config.yaml",
			content:  "scan:\n  poll_interval: 10ms\n",
			wantErr:  true,
			wantCode: errors.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.file, tt.content))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Mail.Recipients = []string{"ops@example.com"}
	cfg.Scan.MaxWait = 4 * time.Hour

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidateFieldPath(t *testing.T) {
	cfg := Default()
	cfg.Mail.Sender = "nobody"

	err := cfg.Validate()
	require.Error(t, err)

	var configErr *errors.ConfigError
	require.True(t, stderrors.As(err, &configErr))
	assert.Equal(t, "mail.sender", configErr.Field)
	assert.Equal(t, errors.CodeValidation, configErr.Code)
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"mail port", func(c *Config) { c.Mail.Port = 70000 }, "mail.port"},
		{"mail auth", func(c *Config) { c.Mail.Auth = "gssapi" }, "mail.auth"},
		{"mail host", func(c *Config) { c.Mail.Host = "" }, "mail.host"},
		{"prefix bits", func(c *Config) { c.Scan.MaxPrefixBits = 33 }, "scan.max_prefix_bits"},
		{"negative max wait", func(c *Config) { c.Scan.MaxWait = -time.Second }, "scan.max_wait"},
		{"empty socket", func(c *Config) { c.Engine.Socket = "" }, "engine.socket"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"schedule without cron", func(c *Config) {
			c.Schedule.Enabled = true
			c.Schedule.Cron = ""
		}, "schedule.cron"},
		{"server without host", func(c *Config) {
			c.Server.Enabled = true
			c.Server.Host = ""
		}, "server.host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var configErr *errors.ConfigError
			require.True(t, stderrors.As(err, &configErr))
			assert.Equal(t, tt.field, configErr.Field)
		})
	}
}

func TestValidateRun(t *testing.T) {
	complete := func() *Config {
		cfg := Default()
		cfg.Engine.Username = "admin"
		cfg.Engine.Password = "secret"
		cfg.Mail.Sender = "scanner@example.com"
		cfg.Mail.Password = "hunter2"
		cfg.Mail.Recipients = []string{"ops@example.com"}
		return cfg
	}
	require.NoError(t, complete().ValidateRun())

	tests := []struct {
		field  string
		mutate func(c *Config)
	}{
		{"engine.username", func(c *Config) { c.Engine.Username = "" }},
		{"engine.password", func(c *Config) { c.Engine.Password = "" }},
		{"mail.sender", func(c *Config) { c.Mail.Sender = "" }},
		{"mail.password", func(c *Config) { c.Mail.Password = "" }},
		{"mail.recipients", func(c *Config) { c.Mail.Recipients = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := complete()
			tt.mutate(cfg)

			err := cfg.ValidateRun()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
			var configErr *errors.ConfigError
			require.True(t, stderrors.As(err, &configErr))
			assert.Equal(t, tt.field, configErr.Field)
		})
	}
}

func TestComponentConfigs(t *testing.T) {
	cfg := Default()
	cfg.Engine.Username = "admin"
	cfg.Engine.Password = "secret"
	cfg.Mail.Sender = "scanner@example.com"
	cfg.Mail.Password = "hunter2"
	cfg.Mail.Recipients = []string{"ops@example.com"}
	cfg.Scan.MaxWait = time.Hour
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"

	assert.Equal(t, gmp.DefaultConfig(), cfg.GMPConfig())

	mail := cfg.DeliveryConfig()
	assert.Equal(t, "smtp.office365.com", mail.Host)
	assert.Equal(t, "hunter2", mail.Password)

	run := cfg.RunConfig()
	assert.Equal(t, "admin", run.Username)
	assert.Equal(t, []string{"ops@example.com"}, run.Recipients)
	assert.Equal(t, time.Hour, run.MaxWait)
	assert.Equal(t, "report.pdf", run.OutputPath)
	assert.Equal(t, "OpenVAS Scan Report", run.Subject)

	logCfg := cfg.LoggerConfig()
	assert.Equal(t, logging.LevelDebug, logCfg.Level)
	assert.Equal(t, logging.FormatJSON, logCfg.Format)

	apiCfg := cfg.APIConfig()
	assert.Equal(t, 9470, apiCfg.Port)
	assert.Equal(t, 30*time.Second, apiCfg.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, apiCfg.IdleTimeout)

	assert.Equal(t, "127.0.0.1:9470", cfg.GetServerAddress())
}
