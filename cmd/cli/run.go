package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/openvas-reporter/internal/config"
	"github.com/anstrom/openvas-reporter/internal/delivery"
	"github.com/anstrom/openvas-reporter/internal/gmp"
	"github.com/anstrom/openvas-reporter/internal/logging"
	"github.com/anstrom/openvas-reporter/internal/metrics"
	"github.com/anstrom/openvas-reporter/internal/orchestrator"
	"github.com/anstrom/openvas-reporter/internal/subnet"
)

var metricsTextfile string

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan the local subnet once and mail the report",
	Long: `Authenticate with gvmd, discover the local subnet, find or create its scan
target, create and start a scan task, wait for the report, export it as PDF to
the output path and mail it to every recipient.

Every setting can also come from the config file or an OPENVAS_REPORTER_*
environment variable (for example OPENVAS_REPORTER_MAIL_PASSWORD).`,
	Example: `  openvas-reporter run --gvm-username admin --gvm-password secret \
    --sender scanner@example.com --sender-password hunter2 \
    --recipient ops@example.com --recipient sec@example.com
  openvas-reporter run --config /etc/openvas-reporter/config.yaml --max-wait 6h`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlagsPreRun(runFlagKeys),
	RunE:    runReport,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addRunFlags(runCmd.Flags())
	runCmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "",
		"write run metrics in Prometheus text format to this file")
}

// addRunFlags registers the flags listed in runFlagKeys.
func addRunFlags(flags *pflag.FlagSet) {
	flags.String("sender", "", "sender mail address, also the SMTP login")
	flags.String("sender-password", "", "SMTP password of the sender")
	flags.StringArray("recipient", nil, "recipient mail address (repeatable)")
	flags.String("gvm-username", "", "gvmd username")
	flags.String("gvm-password", "", "gvmd password")
	flags.String("socket", "", fmt.Sprintf("gvmd unix socket (default %s)", gmp.DefaultSocketPath))
	flags.String("smtp-host", "", fmt.Sprintf("SMTP server (default %s)", delivery.DefaultHost))
	flags.Int("smtp-port", 0, fmt.Sprintf("SMTP port (default %d)", delivery.DefaultPort))
	flags.String("output", "", fmt.Sprintf("report output path (default %s)", orchestrator.DefaultOutputPath))
	flags.Duration("poll-interval", 0, fmt.Sprintf("report status poll interval (default %s)", orchestrator.DefaultPollInterval))
	flags.Duration("max-wait", 0, "maximum time to wait for the report, 0 waits forever")
}

// runFlagKeys maps run flags to config keys.
var runFlagKeys = map[string]string{
	"sender":          "mail.sender",
	"sender-password": "mail.password",
	"recipient":       "mail.recipients",
	"gvm-username":    "engine.username",
	"gvm-password":    "engine.password",
	"socket":          "engine.socket",
	"smtp-host":       "mail.host",
	"smtp-port":       "mail.port",
	"output":          "scan.output",
	"poll-interval":   "scan.poll_interval",
	"max-wait":        "scan.max_wait",
}

// bindFlags binds each flag to its config key. Several commands share keys,
// so binding happens when the command runs, not at init.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	return nil
}

// bindFlagsPreRun returns a PreRunE that binds keys for the running command.
func bindFlagsPreRun(keys map[string]string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return bindFlags(viper.GetViper(), cmd.Flags(), keys)
	}
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pm := metrics.NewPrometheusMetrics()
	result, runErr := newReportRunner(cfg, logging.Default(), pm).Run(ctx)

	if err := printRunSummary(cmd.OutOrStdout(), result); err != nil {
		logging.Warn("Failed to print run summary", "error", err)
	}
	if metricsTextfile != "" {
		if err := prometheus.WriteToTextfile(metricsTextfile, pm.GetRegistry()); err != nil {
			logging.Warn("Failed to write metrics textfile", "path", metricsTextfile, "error", err)
		}
	}
	return runErr
}

// newReportRunner wires a fresh engine client, mailer and runner for one run.
// A failed authentication disables the engine client, so every run gets its own.
func newReportRunner(cfg *config.Config, logger *logging.Logger, rec orchestrator.Recorder) *orchestrator.Runner {
	engine := gmp.New(cfg.GMPConfig(), gmp.WithLogger(logger))
	mailer := delivery.NewMailer(cfg.DeliveryConfig(), delivery.WithLogger(logger))

	return orchestrator.New(cfg.RunConfig(), engine, subnet.SystemLister{}, mailer,
		orchestrator.WithRecorder(rec),
		orchestrator.WithLogger(logger),
	)
}

// reportRunFunc returns a run function that builds a new runner each time.
func reportRunFunc(cfg *config.Config, logger *logging.Logger, rec orchestrator.Recorder) func(context.Context) (*orchestrator.Result, error) {
	return func(ctx context.Context) (*orchestrator.Result, error) {
		return newReportRunner(cfg, logger, rec).Run(ctx)
	}
}

// printRunSummary renders the run result and its step timings.
func printRunSummary(w io.Writer, result *orchestrator.Result) error {
	if result == nil {
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")

	target := result.TargetID
	if target != "" {
		if result.TargetCreated {
			target += " (created)"
		} else {
			target += " (reused)"
		}
	}

	rows := [][]string{
		{"Run", result.ID},
		{"Status", string(result.Status)},
		{"Network", result.Network},
		{"Hosts", countOrEmpty(result.HostCount)},
		{"Target", target},
		{"Task", result.TaskID},
		{"Report", result.ReportID},
		{"Polls", countOrEmpty(result.Polls)},
		{"Output", result.OutputPath},
		{"Duration", result.Duration().Round(time.Millisecond).String()},
	}
	if result.Error != "" {
		rows = append(rows, []string{"Failed step", result.FailedStep}, []string{"Error", result.Error})
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if len(result.Steps) == 0 {
		return nil
	}

	steps := tablewriter.NewWriter(w)
	steps.Header("Step", "Duration")
	for _, s := range result.Steps {
		if err := steps.Append([]string{s.Name, s.Duration.Round(time.Millisecond).String()}); err != nil {
			return err
		}
	}
	return steps.Render()
}

func countOrEmpty(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}
