// Package daemon runs openvas-reporter as a long-lived service. It owns the
// cron scheduler, the status server and the process PID file.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/anstrom/openvas-reporter/internal/api"
	"github.com/anstrom/openvas-reporter/internal/config"
	"github.com/anstrom/openvas-reporter/internal/logging"
	"github.com/anstrom/openvas-reporter/internal/metrics"
	"github.com/anstrom/openvas-reporter/internal/orchestrator"
	"github.com/anstrom/openvas-reporter/internal/scheduler"
)

const systemMetricsInterval = 15 * time.Second

// File permission constants.
const (
	DefaultDirPermissions  = 0o750
	DefaultFilePermissions = 0o600
)

// RunnerFactory builds the runner the scheduler executes, recording run
// metrics into rec.
type RunnerFactory func(rec orchestrator.Recorder) scheduler.Runner

// Daemon represents the main daemon process.
type Daemon struct {
	config    *config.Config
	scheduler *scheduler.Scheduler
	apiServer *api.Server
	metrics   *metrics.PrometheusMetrics
	pidFile   string
	logger    *logging.Logger
	version   string
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the logger used by the daemon and its components.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Daemon) {
		d.logger = logger
	}
}

// WithVersion sets the version the status server reports.
func WithVersion(version string) Option {
	return func(d *Daemon) {
		d.version = version
	}
}

// New creates a daemon. The schedule is registered here so an invalid cron
// expression is reported before anything starts.
func New(cfg *config.Config, factory RunnerFactory, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		config:  cfg,
		metrics: metrics.NewPrometheusMetrics(),
		pidFile: cfg.Daemon.PIDFile,
		logger:  logging.Default(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithComponent("daemon")

	d.scheduler = scheduler.NewScheduler(factory(d.metrics), scheduler.WithLogger(d.logger))
	if cfg.Schedule.Enabled {
		if err := d.scheduler.Schedule(cfg.Schedule.Cron); err != nil {
			return nil, err
		}
	}

	if cfg.Server.Enabled {
		d.apiServer = api.New(cfg.APIConfig(), d.scheduler,
			api.WithLogger(d.logger),
			api.WithMetrics(d.metrics),
			api.WithVersion(d.version),
		)
	}

	return d, nil
}

// Scheduler returns the daemon's scheduler.
func (d *Daemon) Scheduler() *scheduler.Scheduler {
	return d.scheduler
}

// Metrics returns the daemon's metrics registry.
func (d *Daemon) Metrics() *metrics.PrometheusMetrics {
	return d.metrics
}

// Run starts the scheduler and status server and blocks until ctx is
// canceled or the server fails. SIGUSR1 logs a status dump.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.createPIDFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer d.removePIDFile()

	if err := d.scheduler.Start(); err != nil {
		return err
	}
	defer d.scheduler.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go d.metrics.StartPeriodicUpdates(ctx, systemMetricsInterval)
	d.handleStatusSignal(ctx)

	serverErr := make(chan error, 1)
	if d.apiServer != nil {
		go func() {
			serverErr <- d.apiServer.Start(ctx)
		}()
	}

	if d.config.Schedule.RunOnStart {
		if err := d.scheduler.Trigger(); err != nil {
			d.logger.Warn("Failed to start initial run", "error", err)
		}
	}

	d.logger.InfoDaemon("Daemon started",
		"pid", os.Getpid(),
		"schedule", d.scheduler.Status().Schedule,
		"server", d.apiServer != nil)

	select {
	case <-ctx.Done():
		d.logger.InfoDaemon("Shutdown signal received")
		if d.apiServer != nil {
			return <-serverErr
		}
		return nil
	case err := <-serverErr:
		if err != nil {
			d.logger.ErrorDaemon("Status server failed", err)
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	}
}

func (d *Daemon) handleStatusSignal(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigChan:
				d.dumpStatus()
			}
		}
	}()
}

// dumpStatus logs the scheduler state and process resource usage.
func (d *Daemon) dumpStatus() {
	status := d.scheduler.Status()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	fields := []any{
		"pid", os.Getpid(),
		"busy", status.Busy,
		"schedule", status.Schedule,
		"runs", status.Runs,
		"alloc_kb", m.Alloc / 1024,
		"sys_kb", m.Sys / 1024,
		"goroutines", runtime.NumGoroutine(),
		"uptime", d.metrics.GetUptime().Round(time.Second),
	}
	if status.NextRun != nil {
		fields = append(fields, "next_run", status.NextRun.Format(time.RFC3339))
	}
	if status.LastRun != nil {
		fields = append(fields, "last_run", status.LastRun.ID, "last_status", status.LastRun.Status)
	}
	d.logger.InfoDaemon("Status dump", fields...)
}

// createPIDFile creates the PID file.
func (d *Daemon) createPIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	dir := filepath.Dir(d.pidFile)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	if err := d.checkExistingPID(); err != nil {
		return err
	}

	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)), DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.logger.Debug("Created PID file", "path", d.pidFile, "pid", pid)
	return nil
}

// checkExistingPID refuses to start while the PID file names a live process
// and removes stale or unreadable PID files.
func (d *Daemon) checkExistingPID() error {
	data, err := os.ReadFile(d.pidFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read existing PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		_ = os.Remove(d.pidFile)
		return nil
	}

	if pid != os.Getpid() && isProcessRunning(pid) {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}

	_ = os.Remove(d.pidFile)
	return nil
}

func (d *Daemon) removePIDFile() {
	if d.pidFile == "" {
		return
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("Failed to remove PID file", "path", d.pidFile, "error", err)
	}
}

// isProcessRunning checks if a process with the given PID is running.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
