// Package cli provides the openvas-reporter command-line interface.
// It implements the Cobra-based command tree for one-shot report runs, the
// scheduling daemon and the diagnostic commands.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/openvas-reporter/internal/config"
	"github.com/anstrom/openvas-reporter/internal/logging"
)

const (
	envPrefix         = "OPENVAS_REPORTER"
	defaultConfigName = "config"
	defaultEnvFile    = ".env"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "openvas-reporter",
	Short: "Scan the local subnet with OpenVAS and mail the report",
	Long: `openvas-reporter drives a local gvmd instance over its unix socket: it
discovers the subnet of the primary interface, creates (or reuses) a scan target
and task for it, waits for the scan to finish, exports the report as PDF and
mails it to a list of recipients.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default is ./.env if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig loads the dotenv file, then points viper at the config file and
// the OPENVAS_REPORTER_* environment.
func initConfig() {
	if err := loadEnvFile(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(defaultConfigName)
	}

	configureEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	initLogging()
}

// configureEnv maps nested keys such as mail.sender to OPENVAS_REPORTER_MAIL_SENDER.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. An empty path loads ./.env when it exists.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); err != nil {
			return nil
		}
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// getConfigFilePath returns the config file in use, falling back to the default name.
func getConfigFilePath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	if cfgFile != "" {
		return cfgFile
	}
	return defaultConfigName + ".yaml"
}

// loadConfig reads the config file and layers environment and flag values on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies every key viper has a flag or environment value for
// into cfg.
func applyOverrides(cfg *config.Config, v *viper.Viper) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	setString("engine.socket", &cfg.Engine.Socket)
	setString("engine.username", &cfg.Engine.Username)
	setString("engine.password", &cfg.Engine.Password)
	setString("mail.host", &cfg.Mail.Host)
	setString("mail.sender", &cfg.Mail.Sender)
	setString("mail.password", &cfg.Mail.Password)
	setString("mail.subject", &cfg.Mail.Subject)
	setString("scan.output", &cfg.Scan.Output)
	setString("logging.level", &cfg.Logging.Level)
	setString("logging.format", &cfg.Logging.Format)

	if v.IsSet("mail.port") {
		cfg.Mail.Port = v.GetInt("mail.port")
	}
	if v.IsSet("mail.recipients") {
		cfg.Mail.Recipients = v.GetStringSlice("mail.recipients")
	}
	if v.IsSet("scan.poll_interval") {
		cfg.Scan.PollInterval = v.GetDuration("scan.poll_interval")
	}
	if v.IsSet("scan.max_wait") {
		cfg.Scan.MaxWait = v.GetDuration("scan.max_wait")
	}
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging initializes structured logging based on configuration.
func initLogging() {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}
	applyOverrides(cfg, viper.GetViper())

	logConfig := cfg.LoggerConfig()
	logConfig.AddSource = logConfig.Level == logging.LevelDebug
	if verbose {
		logConfig.Level = logging.LevelDebug
	}

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Info("Structured logging initialized", "level", logConfig.Level, "format", logConfig.Format)
	}
}
