// Package scheduler runs report runs on a cron schedule. Runs never overlap:
// a tick that fires while a run is in progress is skipped, and manual triggers
// are refused until the current run finishes.
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anstrom/openvas-reporter/internal/errors"
	"github.com/anstrom/openvas-reporter/internal/logging"
	"github.com/anstrom/openvas-reporter/internal/orchestrator"
)

// DefaultHistorySize is the number of finished runs kept in memory.
const DefaultHistorySize = 20

// ErrBusy is returned when a run is requested while another is in progress.
var ErrBusy = stderrors.New("a report run is already in progress")

// Runner executes one report run.
type Runner interface {
	Run(ctx context.Context) (*orchestrator.Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context) (*orchestrator.Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context) (*orchestrator.Result, error) {
	return f(ctx)
}

// Status is a snapshot of the scheduler.
type Status struct {
	Started  bool                 `json:"started"`
	Busy     bool                 `json:"busy"`
	Schedule string               `json:"schedule,omitempty"`
	NextRun  *time.Time           `json:"next_run,omitempty"`
	LastRun  *orchestrator.Result `json:"last_run,omitempty"`
	Runs     int                  `json:"runs"`
}

// Scheduler triggers report runs from a cron expression or on demand and
// keeps a bounded history of their results.
type Scheduler struct {
	cron        *cron.Cron
	runner      Runner
	logger      *logging.Logger
	historySize int

	mu       sync.RWMutex
	history  []*orchestrator.Result
	runs     int
	started  bool
	busy     bool
	schedule string
	entryID  cron.EntryID

	// runMu is held for the duration of a run.
	runMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used by the scheduler.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithHistorySize sets how many finished runs History returns.
func WithHistorySize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// NewScheduler creates a scheduler for runner.
func NewScheduler(runner Runner, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		runner:      runner,
		logger:      logging.Default(),
		historySize: DefaultHistorySize,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("scheduler")
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.logger}),
		cron.SkipIfStillRunning(cronLogger{s.logger}),
	))
	return s
}

// ValidateSchedule checks a standard five-field cron expression or descriptor
// such as "@daily".
func ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return errors.WrapConfigError(errors.CodeValidation, fmt.Sprintf("invalid cron expression %q", expr), err)
	}
	return nil
}

// Schedule registers expr as the recurring run schedule, replacing any
// previous one.
func (s *Scheduler) Schedule(expr string) error {
	if err := ValidateSchedule(expr); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	id, err := s.cron.AddFunc(expr, s.scheduledRun)
	if err != nil {
		return errors.WrapConfigError(errors.CodeValidation, "failed to schedule report run", err)
	}
	s.entryID = id
	s.schedule = expr

	s.logger.Info("Report run scheduled", "schedule", expr)
	return nil
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler is already running")
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("scheduler has been stopped")
	}

	s.cron.Start()
	s.started = true

	s.logger.InfoDaemon("Scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts the schedule, cancels any run in progress and waits for it to
// return. A stopped scheduler cannot be started again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasStarted := s.started
	s.started = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()

	// Manual and API runs are not tracked by cron.
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if wasStarted {
		s.logger.InfoDaemon("Scheduler stopped")
	}
}

// RunNow executes a run synchronously. It returns ErrBusy without running
// when another run is in progress.
func (s *Scheduler) RunNow(ctx context.Context) (*orchestrator.Result, error) {
	if !s.runMu.TryLock() {
		return nil, ErrBusy
	}
	defer s.runMu.Unlock()
	return s.execute(ctx, "manual")
}

// Trigger starts a run in the background under the scheduler's lifetime.
// It returns ErrBusy when another run is in progress.
func (s *Scheduler) Trigger() error {
	if !s.runMu.TryLock() {
		return ErrBusy
	}
	go func() {
		defer s.runMu.Unlock()
		_, _ = s.execute(s.ctx, "api")
	}()
	return nil
}

func (s *Scheduler) scheduledRun() {
	if !s.runMu.TryLock() {
		s.logger.Warn("Skipping scheduled report run", "error", ErrBusy)
		return
	}
	defer s.runMu.Unlock()
	_, _ = s.execute(s.ctx, "schedule")
}

// execute runs once; the caller holds runMu.
func (s *Scheduler) execute(ctx context.Context, trigger string) (*orchestrator.Result, error) {
	s.setBusy(true)
	defer s.setBusy(false)

	s.logger.InfoDaemon("Report run starting", "trigger", trigger)
	result, err := s.runner.Run(ctx)
	if result != nil {
		s.record(result)
	}
	if err != nil {
		s.logger.ErrorDaemon("Report run failed", err, "trigger", trigger)
		return result, err
	}
	s.logger.InfoDaemon("Report run finished", "trigger", trigger)
	return result, nil
}

func (s *Scheduler) setBusy(busy bool) {
	s.mu.Lock()
	s.busy = busy
	s.mu.Unlock()
}

func (s *Scheduler) record(result *orchestrator.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	s.history = append([]*orchestrator.Result{result}, s.history...)
	if len(s.history) > s.historySize {
		s.history = s.history[:s.historySize]
	}
}

// History returns finished runs, newest first.
func (s *Scheduler) History() []*orchestrator.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*orchestrator.Result, len(s.history))
	copy(out, s.history)
	return out
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		Started:  s.started,
		Busy:     s.busy,
		Schedule: s.schedule,
		Runs:     s.runs,
	}
	if len(s.history) > 0 {
		status.LastRun = s.history[0]
	}
	if s.started && s.entryID != 0 {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
