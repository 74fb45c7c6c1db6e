package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/anstrom/openvas-reporter/internal/errors"
	"github.com/anstrom/openvas-reporter/internal/gmp"
	"github.com/anstrom/openvas-reporter/internal/logging"
)

// engineCmd groups commands that talk to gvmd directly.
var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Inspect the gvmd scan engine",
}

// engineVersionCmd represents the engine version command.
var engineVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Authenticate with gvmd and print its protocol version",
	Long: `Connect to the gvmd unix socket, authenticate with the configured engine
credentials and print the GMP version. Use it to check the socket path and
credentials before scheduling runs.`,
	Example: `  openvas-reporter engine version --gvm-username admin --gvm-password secret`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlagsPreRun(engineFlagKeys),
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Engine.Username == "" {
			return errors.ErrConfigMissing("engine.username")
		}
		if cfg.Engine.Password == "" {
			return errors.ErrConfigMissing("engine.password")
		}

		client := gmp.New(cfg.GMPConfig(), gmp.WithLogger(logging.Default()))
		return printEngineVersion(cmd.Context(), cmd.OutOrStdout(), client,
			cfg.Engine.Socket, cfg.Engine.Username, cfg.Engine.Password)
	},
}

// versionEngine is the part of the gmp client the version command needs.
type versionEngine interface {
	Authenticate(ctx context.Context, username, password string) error
	Version(ctx context.Context) (string, error)
}

func init() {
	rootCmd.AddCommand(engineCmd)
	engineCmd.AddCommand(engineVersionCmd)

	flags := engineVersionCmd.Flags()
	flags.String("gvm-username", "", "gvmd username")
	flags.String("gvm-password", "", "gvmd password")
	flags.String("socket", "", fmt.Sprintf("gvmd unix socket (default %s)", gmp.DefaultSocketPath))
}

// engineFlagKeys maps engine flags to config keys.
var engineFlagKeys = map[string]string{
	"gvm-username": "engine.username",
	"gvm-password": "engine.password",
	"socket":       "engine.socket",
}

func printEngineVersion(ctx context.Context, w io.Writer, engine versionEngine, socket, username, password string) error {
	if err := engine.Authenticate(ctx, username, password); err != nil {
		return err
	}
	v, err := engine.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "gvmd at %s speaks GMP %s\n", socket, v)
	return nil
}
