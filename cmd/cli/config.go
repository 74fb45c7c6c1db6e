package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/anstrom/openvas-reporter/internal/config"
	"github.com/anstrom/openvas-reporter/internal/errors"
)

var configForce bool

// configCmd groups config file commands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

// configInitCmd represents the config init command.
var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Long: `Write the default configuration as YAML. The path defaults to the --config
value or ./config.yaml. An existing file is only replaced with --force.`,
	Example: `  openvas-reporter config init
  openvas-reporter config init /etc/openvas-reporter/config.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := getConfigFilePath()
		if len(args) == 1 {
			path = args[0]
		}
		return initConfigFile(cmd.OutOrStdout(), path, configForce)
	},
}

// configValidateCmd represents the config validate command.
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for a report run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateRun(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s is valid\n", getConfigFilePath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
}

func initConfigFile(w io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.NewConfigFieldError(errors.CodeConfiguration,
			"config file already exists, use --force to overwrite", "path", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote default configuration to %s\n", path)
	return nil
}
