// Package orchestrator drives one report run end to end: authenticate against
// the scan engine, discover the local subnet, ensure a target exists, create
// and start a task, wait for its report, export it to disk and mail it.
package orchestrator

//go:generate mockgen -source=runner.go -destination=mocks/mock_runner.go -package=mocks

import (
	"context"
	stderrors "errors"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/openvas-reporter/internal/errors"
	"github.com/anstrom/openvas-reporter/internal/gmp"
	"github.com/anstrom/openvas-reporter/internal/logging"
	"github.com/anstrom/openvas-reporter/internal/subnet"
)

// Default run settings.
const (
	DefaultTargetPrefix  = "Local Subnet "
	DefaultTaskPrefix    = "Local Subnet Scan "
	DefaultPollInterval  = 30 * time.Second
	DefaultOutputPath    = "report.pdf"
	DefaultMaxPrefixBits = 16

	taskTimeLayout = "2006-01-02 15:04:05"
	reportFileMode = 0o644
)

// Step names, used for timings, logs and metrics labels.
const (
	StepAuthenticate = "authenticate"
	StepDiscover     = "discover"
	StepTarget       = "target"
	StepTask         = "task"
	StepStart        = "start"
	StepWait         = "wait"
	StepExport       = "export"
	StepDeliver      = "deliver"
)

// Engine is the subset of the GMP client a run needs.
type Engine interface {
	Authenticate(ctx context.Context, username, password string) error
	Version(ctx context.Context) (string, error)
	FindTargetIDByName(ctx context.Context, name string) (string, error)
	CreateTarget(ctx context.Context, name string, hosts []string) (string, error)
	CreateTask(ctx context.Context, name, targetID string) (string, error)
	StartTask(ctx context.Context, taskID string) (*gmp.StartResult, error)
	ReportStatus(ctx context.Context, reportID string) (string, error)
	ExportReport(ctx context.Context, reportID string) ([]byte, error)
}

// Deliverer hands an exported report file to its recipients.
type Deliverer interface {
	SendReport(ctx context.Context, path, subject, body, sender string, recipients []string) error
}

// Recorder receives run measurements.
type Recorder interface {
	RecordStep(step string, duration time.Duration)
	RecordPoll()
	RecordTargetHosts(count int)
	RecordDeliveryFailure()
	RecordRun(status string, finishedAt time.Time)
}

// Config holds the per-run settings.
type Config struct {
	Username string
	Password string

	Sender     string
	Recipients []string
	Subject    string
	Body       string

	TargetPrefix  string
	TaskPrefix    string
	MaxPrefixBits int
	PollInterval  time.Duration
	// MaxWait bounds the report wait; zero waits until the context ends.
	MaxWait    time.Duration
	OutputPath string
}

// DefaultConfig returns run settings without credentials or recipients.
func DefaultConfig() Config {
	return Config{
		Subject:       "OpenVAS Scan Report",
		Body:          "Here is your OpenVAS Scan Report!",
		TargetPrefix:  DefaultTargetPrefix,
		TaskPrefix:    DefaultTaskPrefix,
		MaxPrefixBits: DefaultMaxPrefixBits,
		PollInterval:  DefaultPollInterval,
		OutputPath:    DefaultOutputPath,
	}
}

// Status is the outcome of a run.
type Status string

const (
	StatusRunning        Status = "running"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusDeliveryFailed Status = "delivery_failed"
)

// StepTiming is the wall time one step took.
type StepTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Result describes a finished run.
type Result struct {
	ID            string       `json:"id"`
	Status        Status       `json:"status"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
	Network       string       `json:"network,omitempty"`
	HostCount     int          `json:"host_count,omitempty"`
	TargetName    string       `json:"target_name,omitempty"`
	TargetID      string       `json:"target_id,omitempty"`
	TargetCreated bool         `json:"target_created"`
	TaskName      string       `json:"task_name,omitempty"`
	TaskID        string       `json:"task_id,omitempty"`
	ReportID      string       `json:"report_id,omitempty"`
	Polls         int          `json:"polls"`
	OutputPath    string       `json:"output_path,omitempty"`
	ReportSize    int          `json:"report_size,omitempty"`
	Steps         []StepTiming `json:"steps"`
	Error         string       `json:"error,omitempty"`
	FailedStep    string       `json:"failed_step,omitempty"`

	// Err is the error that ended the run, nil on success.
	Err error `json:"-"`
	// DeliveryErr is set when the report was written but could not be mailed.
	DeliveryErr error `json:"-"`
}

// Duration returns the total wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Runner executes report runs. It is not safe for concurrent use; callers
// serialize runs.
type Runner struct {
	cfg       Config
	engine    Engine
	lister    subnet.Lister
	deliverer Deliverer
	recorder  Recorder
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(r *Runner) {
		if recorder != nil {
			r.recorder = recorder
		}
	}
}

// WithLogger sets the logger used by the runner.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithClock replaces the time source used for task names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// New creates a Runner. Zero-valued settings in cfg fall back to DefaultConfig.
func New(cfg Config, engine Engine, lister subnet.Lister, deliverer Deliverer, opts ...Option) *Runner {
	defaults := DefaultConfig()
	if cfg.TargetPrefix == "" {
		cfg.TargetPrefix = defaults.TargetPrefix
	}
	if cfg.TaskPrefix == "" {
		cfg.TaskPrefix = defaults.TaskPrefix
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = defaults.OutputPath
	}

	r := &Runner{
		cfg:       cfg,
		engine:    engine,
		lister:    lister,
		deliverer: deliverer,
		recorder:  nopRecorder{},
		logger:    logging.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("orchestrator")
	return r
}

// Run executes one run. The returned Result is never nil; on failure it names
// the step that ended the run. A delivery failure still leaves the exported
// report on disk and is returned as a DELIVERY_FAILED error.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		ID:         uuid.NewString(),
		Status:     StatusRunning,
		StartedAt:  r.now(),
		OutputPath: r.cfg.OutputPath,
	}
	logger := r.logger.WithRunID(result.ID)
	logger.Info("Starting report run")

	err := r.run(ctx, logger, result)

	result.FinishedAt = r.now()
	switch {
	case err == nil:
		result.Status = StatusSucceeded
		logger.Info("Report run completed", "duration", result.Duration(), "report", result.OutputPath)
	case errors.IsCode(err, errors.CodeDeliveryFailed):
		result.Status = StatusDeliveryFailed
		result.DeliveryErr = err
		r.recorder.RecordDeliveryFailure()
		logger.Warn("Report written but not delivered", "report", result.OutputPath, "error", err)
	default:
		result.Status = StatusFailed
		logger.Error("Report run aborted", "step", result.FailedStep, "error", err)
	}
	if err != nil {
		result.Err = err
		result.Error = err.Error()
	}
	r.recorder.RecordRun(string(result.Status), result.FinishedAt)

	return result, err
}

func (r *Runner) run(ctx context.Context, logger *logging.Logger, result *Result) error {
	err := r.step(logger, result, StepAuthenticate, func() error {
		return r.engine.Authenticate(ctx, r.cfg.Username, r.cfg.Password)
	})
	if err != nil {
		return err
	}
	r.logVersion(ctx, logger)

	var hosts []string
	err = r.step(logger, result, StepDiscover, func() error {
		network, err := subnet.Discover(ctx, r.lister)
		if err != nil {
			return err
		}
		if err := subnet.CheckSize(network.Prefix, r.cfg.MaxPrefixBits); err != nil {
			return err
		}
		hosts = subnet.Hosts(network.Prefix)
		result.Network = network.CIDR()
		result.HostCount = len(hosts)
		r.recorder.RecordTargetHosts(len(hosts))
		logger.Info("Discovered local network", "interface", network.Interface,
			"network", result.Network, "hosts", len(hosts))
		return nil
	})
	if err != nil {
		return err
	}

	result.TargetName = r.cfg.TargetPrefix + result.Network
	err = r.step(logger, result, StepTarget, func() error {
		return r.ensureTarget(ctx, logger, result, hosts)
	})
	if err != nil {
		return err
	}

	result.TaskName = r.cfg.TaskPrefix + r.now().Format(taskTimeLayout)
	err = r.step(logger, result, StepTask, func() error {
		id, err := r.engine.CreateTask(ctx, result.TaskName, result.TargetID)
		if err != nil {
			return err
		}
		result.TaskID = id
		return nil
	})
	if err != nil {
		return err
	}

	err = r.step(logger, result, StepStart, func() error {
		started, err := r.engine.StartTask(ctx, result.TaskID)
		if err != nil {
			return err
		}
		id, err := gmp.ExtractReportID(started)
		if err != nil {
			return err
		}
		result.ReportID = id
		return nil
	})
	if err != nil {
		return err
	}

	err = r.step(logger, result, StepWait, func() error {
		return r.waitForReport(ctx, logger, result)
	})
	if err != nil {
		return err
	}

	err = r.step(logger, result, StepExport, func() error {
		data, err := r.engine.ExportReport(ctx, result.ReportID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(r.cfg.OutputPath, data, reportFileMode); err != nil {
			return errors.WrapDeliveryError(errors.CodeFileWrite, "failed to write report", r.cfg.OutputPath, err)
		}
		result.ReportSize = len(data)
		return nil
	})
	if err != nil {
		return err
	}

	return r.step(logger, result, StepDeliver, func() error {
		return r.deliverer.SendReport(ctx, r.cfg.OutputPath, r.cfg.Subject, r.cfg.Body,
			r.cfg.Sender, r.cfg.Recipients)
	})
}

// step runs fn, records its timing and logs the outcome.
func (r *Runner) step(logger *logging.Logger, result *Result, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	result.Steps = append(result.Steps, StepTiming{Name: name, Duration: elapsed})
	r.recorder.RecordStep(name, elapsed)

	if err != nil {
		result.FailedStep = name
		logger.ErrorStep("Step failed", name, err, "duration", elapsed)
		return err
	}
	logger.InfoStep("Step completed", name, "duration", elapsed)
	return nil
}

func (r *Runner) logVersion(ctx context.Context, logger *logging.Logger) {
	version, err := r.engine.Version(ctx)
	if err != nil {
		logger.Warn("Could not read engine version", "error", err)
		return
	}
	logger.InfoEngine("Connected to scan engine", "version", version)
}

// ensureTarget reuses a target with the run's name or creates one holding
// every host of the network. A failed lookup is treated like a missing target.
func (r *Runner) ensureTarget(ctx context.Context, logger *logging.Logger, result *Result, hosts []string) error {
	id, err := r.engine.FindTargetIDByName(ctx, result.TargetName)
	if err == nil {
		result.TargetID = id
		logger.Info("Reusing existing target", "target", result.TargetName, "target_id", id)
		return nil
	}
	if !stderrors.Is(err, gmp.ErrNotFound) {
		logger.Warn("Target lookup failed, creating target", "target", result.TargetName, "error", err)
	}

	id, err = r.engine.CreateTarget(ctx, result.TargetName, hosts)
	if err != nil {
		return err
	}
	result.TargetID = id
	result.TargetCreated = true
	logger.Info("Created target", "target", result.TargetName, "target_id", id, "hosts", len(hosts))
	return nil
}

// waitForReport queries the report status immediately and then once per poll
// interval until it reads "Done". Status errors count as not finished.
func (r *Runner) waitForReport(ctx context.Context, logger *logging.Logger, result *Result) error {
	var deadline <-chan time.Time
	if r.cfg.MaxWait > 0 {
		timer := time.NewTimer(r.cfg.MaxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		result.Polls++
		r.recorder.RecordPoll()

		status, err := r.engine.ReportStatus(ctx, result.ReportID)
		switch {
		case err != nil:
			logger.Warn("Could not read report status", "report_id", result.ReportID, "error", err)
		case status == gmp.StatusDone:
			logger.Info("Report finished", "report_id", result.ReportID, "polls", result.Polls)
			return nil
		default:
			logger.Debug("Report not finished", "report_id", result.ReportID, "status", status)
		}

		select {
		case <-ctx.Done():
			return errors.WrapEngineError(errors.CodeCanceled, "wait_report", "stopped waiting for report", ctx.Err()).
				WithContext("report_id", result.ReportID)
		case <-deadline:
			return errors.NewEngineError(errors.CodeTimeout, "wait_report", "report did not finish within "+r.cfg.MaxWait.String()).
				WithContext("report_id", result.ReportID)
		case <-ticker.C:
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordStep(string, time.Duration) {}
func (nopRecorder) RecordPoll()                      {}
func (nopRecorder) RecordTargetHosts(int)            {}
func (nopRecorder) RecordDeliveryFailure()           {}
func (nopRecorder) RecordRun(string, time.Time)      {}
