package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anstrom/openvas-reporter/internal/config"
	"github.com/anstrom/openvas-reporter/internal/daemon"
	"github.com/anstrom/openvas-reporter/internal/errors"
	"github.com/anstrom/openvas-reporter/internal/logging"
	"github.com/anstrom/openvas-reporter/internal/orchestrator"
	"github.com/anstrom/openvas-reporter/internal/scheduler"
)

var (
	daemonSchedule string
	daemonRunNow   bool
	daemonNoServer bool
	daemonPIDFile  string
)

// daemonCmd represents the daemon command.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run report runs on a schedule and serve their status",
	Long: `Run in the foreground, starting a report run on every tick of the configured
cron schedule. Runs never overlap: a tick that fires while a run is still in
progress is skipped. When the status server is enabled it serves liveness,
scheduler status, recent run results and Prometheus metrics over HTTP.

The daemon stops on SIGINT or SIGTERM, cancelling any run in progress.
SIGUSR1 logs a status dump.`,
	Example: `  openvas-reporter daemon
  openvas-reporter daemon --schedule "0 3 * * 1" --run-now
  openvas-reporter daemon --no-server`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonSchedule, "schedule", "", "cron expression overriding schedule.cron")
	daemonCmd.Flags().BoolVar(&daemonRunNow, "run-now", false, "start one run immediately")
	daemonCmd.Flags().BoolVar(&daemonNoServer, "no-server", false, "do not start the status server")
	daemonCmd.Flags().StringVar(&daemonPIDFile, "pid-file", "", "write the process ID to this file")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyDaemonFlags(cfg); err != nil {
		return err
	}
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serveDaemon(ctx, cfg, logging.Default())
}

// applyDaemonFlags layers the daemon flags over the schedule and server settings.
func applyDaemonFlags(cfg *config.Config) error {
	if daemonSchedule != "" {
		if err := scheduler.ValidateSchedule(daemonSchedule); err != nil {
			return err
		}
		cfg.Schedule.Cron = daemonSchedule
		cfg.Schedule.Enabled = true
	}
	if daemonRunNow {
		cfg.Schedule.RunOnStart = true
	}
	if daemonNoServer {
		cfg.Server.Enabled = false
	}
	if daemonPIDFile != "" {
		cfg.Daemon.PIDFile = daemonPIDFile
	}
	if !cfg.Schedule.Enabled && !cfg.Schedule.RunOnStart && !cfg.Server.Enabled {
		return errors.NewConfigError(errors.CodeConfiguration,
			"daemon has nothing to do: enable schedule, server or run_on_start")
	}
	return nil
}

// serveDaemon runs the daemon until ctx ends or its status server fails.
func serveDaemon(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	factory := func(rec orchestrator.Recorder) scheduler.Runner {
		return scheduler.RunnerFunc(reportRunFunc(cfg, logger, rec))
	}

	d, err := daemon.New(cfg, factory, daemon.WithLogger(logger), daemon.WithVersion(version))
	if err != nil {
		return err
	}
	return d.Run(ctx)
}
