package orchestrator

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/openvas-reporter/internal/errors"
	"github.com/anstrom/openvas-reporter/internal/gmp"
	"github.com/anstrom/openvas-reporter/internal/logging"
	"github.com/anstrom/openvas-reporter/internal/orchestrator/mocks"
	"github.com/anstrom/openvas-reporter/internal/subnet"
)

const (
	testTarget = "Local Subnet 192.168.1.0/30"
	testTask   = "Local Subnet Scan 2024-05-01 10:00:00"
)

var (
	testHosts  = []string{"192.168.1.0", "192.168.1.1", "192.168.1.2", "192.168.1.3"}
	testPDF    = []byte("%PDF-1.4\n1 0 obj\n%%EOF\n")
	fixedClock = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
)

type runFixture struct {
	engine    *mocks.MockEngine
	deliverer *mocks.MockDeliverer
	cfg       Config
	lister    subnet.Lister
}

func newFixture(t *testing.T) *runFixture {
	ctrl := gomock.NewController(t)

	cfg := DefaultConfig()
	cfg.Username = "admin"
	cfg.Password = "secret"
	cfg.Sender = "scanner@example.com"
	cfg.Recipients = []string{"ops@example.com"}
	cfg.PollInterval = time.Millisecond
	cfg.OutputPath = filepath.Join(t.TempDir(), "report.pdf")

	return &runFixture{
		engine:    mocks.NewMockEngine(ctrl),
		deliverer: mocks.NewMockDeliverer(ctrl),
		cfg:       cfg,
		lister:    lister(subnet.Interface{Name: "eth0", Addrs: []string{"192.168.1.2/30"}}),
	}
}

func (f *runFixture) runner(opts ...Option) *Runner {
	opts = append([]Option{WithLogger(logging.Discard()), WithClock(fixedClock)}, opts...)
	return New(f.cfg, f.engine, f.lister, f.deliverer, opts...)
}

func (f *runFixture) expectSession() {
	f.engine.EXPECT().Authenticate(gomock.Any(), "admin", "secret").Return(nil)
	f.engine.EXPECT().Version(gomock.Any()).Return("22.4", nil)
}

func (f *runFixture) expectThroughStart() {
	f.expectSession()
	f.engine.EXPECT().FindTargetIDByName(gomock.Any(), testTarget).Return("", gmp.ErrNotFound)
	f.engine.EXPECT().CreateTarget(gomock.Any(), testTarget, testHosts).Return("T1", nil)
	f.engine.EXPECT().CreateTask(gomock.Any(), testTask, "T1").Return("K1", nil)
	f.engine.EXPECT().StartTask(gomock.Any(), "K1").
		Return(&gmp.StartResult{StatusText: "OK, request submitted", ReportID: "R1"}, nil)
}

func lister(ifaces ...subnet.Interface) subnet.Lister {
	return subnet.ListerFunc(func(context.Context) ([]subnet.Interface, error) {
		return ifaces, nil
	})
}

func TestRunEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.expectThroughStart()
	gomock.InOrder(
		f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").Return("Running", nil).Times(2),
		f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").Return(gmp.StatusDone, nil),
	)
	f.engine.EXPECT().ExportReport(gomock.Any(), "R1").Return(testPDF, nil)
	f.deliverer.EXPECT().
		SendReport(gomock.Any(), f.cfg.OutputPath, "OpenVAS Scan Report", "Here is your OpenVAS Scan Report!",
			"scanner@example.com", []string{"ops@example.com"}).
		DoAndReturn(func(_ context.Context, path, _, _, _ string, _ []string) error {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, testPDF, data)
			return nil
		}).
		Times(1)

	result, err := f.runner().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, result.Status)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "192.168.1.0/30", result.Network)
	assert.Equal(t, 4, result.HostCount)
	assert.Equal(t, testTarget, result.TargetName)
	assert.Equal(t, "T1", result.TargetID)
	assert.True(t, result.TargetCreated)
	assert.Equal(t, testTask, result.TaskName)
	assert.Equal(t, "K1", result.TaskID)
	assert.Equal(t, "R1", result.ReportID)
	assert.Equal(t, 3, result.Polls)
	assert.Equal(t, len(testPDF), result.ReportSize)
	assert.Nil(t, result.Err)
	assert.Nil(t, result.DeliveryErr)

	var steps []string
	for _, s := range result.Steps {
		steps = append(steps, s.Name)
	}
	assert.Equal(t, []string{
		StepAuthenticate, StepDiscover, StepTarget, StepTask, StepStart, StepWait, StepExport, StepDeliver,
	}, steps)

	data, err := os.ReadFile(f.cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, testPDF, data)
}

func TestRunReusesExistingTarget(t *testing.T) {
	f := newFixture(t)
	f.expectSession()
	f.engine.EXPECT().FindTargetIDByName(gomock.Any(), testTarget).Return("T0", nil)
	f.engine.EXPECT().CreateTask(gomock.Any(), testTask, "T0").Return("K1", nil)
	f.engine.EXPECT().StartTask(gomock.Any(), "K1").Return(&gmp.StartResult{ReportID: "R1"}, nil)
	f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").Return(gmp.StatusDone, nil)
	f.engine.EXPECT().ExportReport(gomock.Any(), "R1").Return(testPDF, nil)
	f.deliverer.EXPECT().SendReport(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.runner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T0", result.TargetID)
	assert.False(t, result.TargetCreated)
}

func TestRunLookupErrorCreatesTarget(t *testing.T) {
	f := newFixture(t)
	f.expectSession()
	f.engine.EXPECT().FindTargetIDByName(gomock.Any(), testTarget).
		Return("", errors.NewEngineError(errors.CodeEngine, "get_targets", "engine rejected get_targets"))
	f.engine.EXPECT().CreateTarget(gomock.Any(), testTarget, testHosts).Return("T1", nil)
	f.engine.EXPECT().CreateTask(gomock.Any(), testTask, "T1").Return("", stderrors.New("boom"))

	result, err := f.runner().Run(context.Background())
	require.Error(t, err)
	assert.True(t, result.TargetCreated)
	assert.Equal(t, StepTask, result.FailedStep)
}

func TestRunStatusErrorsKeepPolling(t *testing.T) {
	f := newFixture(t)
	f.expectThroughStart()
	gomock.InOrder(
		f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").
			Return("", errors.NewEngineError(errors.CodeEngine, "get_reports", "engine rejected get_reports")),
		f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").Return("done", nil),
		f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").Return(gmp.StatusDone, nil),
	)
	f.engine.EXPECT().ExportReport(gomock.Any(), "R1").Return(testPDF, nil)
	f.deliverer.EXPECT().SendReport(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.runner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Polls)
}

func TestRunDeliveryFailureKeepsReport(t *testing.T) {
	f := newFixture(t)
	f.expectThroughStart()
	f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").Return(gmp.StatusDone, nil)
	f.engine.EXPECT().ExportReport(gomock.Any(), "R1").Return(testPDF, nil)

	cause := errors.WrapDeliveryError(errors.CodeDeliveryFailed, "failed to send report mail",
		f.cfg.OutputPath, stderrors.New("535 authentication unsuccessful"))
	f.deliverer.EXPECT().SendReport(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(cause).Times(1)

	result, err := f.runner().Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDeliveryFailed))
	assert.False(t, errors.IsFatal(err))
	assert.Equal(t, StatusDeliveryFailed, result.Status)
	assert.Equal(t, StepDeliver, result.FailedStep)
	assert.Same(t, cause, result.DeliveryErr)

	data, readErr := os.ReadFile(f.cfg.OutputPath)
	require.NoError(t, readErr)
	assert.Equal(t, testPDF, data)
}

func TestRunAborts(t *testing.T) {
	engineErr := errors.NewEngineError(errors.CodeEngine, "op", "engine rejected op")

	tests := []struct {
		name   string
		setup  func(f *runFixture)
		code   errors.ErrorCode
		step   string
		noFile bool
	}{
		{
			name: "authentication failure",
			setup: func(f *runFixture) {
				f.engine.EXPECT().Authenticate(gomock.Any(), "admin", "secret").
					Return(errors.NewEngineError(errors.CodeAuthFailed, "authenticate", "authentication failed"))
			},
			code: errors.CodeAuthFailed,
			step: StepAuthenticate,
		},
		{
			name: "no usable interface",
			setup: func(f *runFixture) {
				f.expectSession()
				f.lister = lister(subnet.Interface{Name: "lo", Addrs: []string{"127.0.0.1/8"}})
			},
			code: errors.CodeDiscoveryFailed,
			step: StepDiscover,
		},
		{
			name: "subnet too large",
			setup: func(f *runFixture) {
				f.expectSession()
				f.lister = lister(subnet.Interface{Name: "eth0", Addrs: []string{"10.0.0.1/8"}})
			},
			code: errors.CodeDiscoveryFailed,
			step: StepDiscover,
		},
		{
			name: "target creation fails",
			setup: func(f *runFixture) {
				f.expectSession()
				f.engine.EXPECT().FindTargetIDByName(gomock.Any(), testTarget).Return("", gmp.ErrNotFound)
				f.engine.EXPECT().CreateTarget(gomock.Any(), testTarget, testHosts).Return("", engineErr)
			},
			code: errors.CodeEngine,
			step: StepTarget,
		},
		{
			name: "task creation fails",
			setup: func(f *runFixture) {
				f.expectSession()
				f.engine.EXPECT().FindTargetIDByName(gomock.Any(), testTarget).Return("T1", nil)
				f.engine.EXPECT().CreateTask(gomock.Any(), testTask, "T1").Return("", engineErr)
			},
			code: errors.CodeEngine,
			step: StepTask,
		},
		{
			name: "start fails",
			setup: func(f *runFixture) {
				f.expectSession()
				f.engine.EXPECT().FindTargetIDByName(gomock.Any(), testTarget).Return("T1", nil)
				f.engine.EXPECT().CreateTask(gomock.Any(), testTask, "T1").Return("K1", nil)
				f.engine.EXPECT().StartTask(gomock.Any(), "K1").Return(nil, engineErr)
			},
			code: errors.CodeEngine,
			step: StepStart,
		},
		{
			name: "start without report id",
			setup: func(f *runFixture) {
				f.expectSession()
				f.engine.EXPECT().FindTargetIDByName(gomock.Any(), testTarget).Return("T1", nil)
				f.engine.EXPECT().CreateTask(gomock.Any(), testTask, "T1").Return("K1", nil)
				f.engine.EXPECT().StartTask(gomock.Any(), "K1").
					Return(&gmp.StartResult{StatusText: "OK, request submitted"}, nil)
			},
			code: errors.CodeMalformedResponse,
			step: StepStart,
		},
		{
			name: "export fails",
			setup: func(f *runFixture) {
				f.expectThroughStart()
				f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").Return(gmp.StatusDone, nil)
				f.engine.EXPECT().ExportReport(gomock.Any(), "R1").Return(nil, engineErr)
			},
			code: errors.CodeEngine,
			step: StepExport,
		},
		{
			name: "report file cannot be written",
			setup: func(f *runFixture) {
				f.cfg.OutputPath = filepath.Join(f.cfg.OutputPath, "missing-dir", "report.pdf")
				f.expectThroughStart()
				f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").Return(gmp.StatusDone, nil)
				f.engine.EXPECT().ExportReport(gomock.Any(), "R1").Return(testPDF, nil)
			},
			code: errors.CodeFileWrite,
			step: StepExport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			result, err := f.runner().Run(context.Background())
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
			assert.True(t, errors.IsFatal(err))
			assert.Equal(t, StatusFailed, result.Status)
			assert.Equal(t, tt.step, result.FailedStep)
			assert.Equal(t, err.Error(), result.Error)

			_, statErr := os.Stat(f.cfg.OutputPath)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestRunMaxWait(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxWait = 20 * time.Millisecond
	f.expectThroughStart()
	f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").Return("Running", nil).MinTimes(1)

	result, err := f.runner().Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeTimeout))
	assert.Equal(t, StepWait, result.FailedStep)
}

func TestRunCanceledWhileWaiting(t *testing.T) {
	f := newFixture(t)
	f.cfg.PollInterval = time.Hour
	f.expectThroughStart()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").
		DoAndReturn(func(context.Context, string) (string, error) {
			cancel()
			return "Running", nil
		})

	result, err := f.runner().Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled))
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Equal(t, 1, result.Polls)
}

func TestRunRecordsMetrics(t *testing.T) {
	f := newFixture(t)
	recorder := mocks.NewMockRecorder(gomock.NewController(t))

	f.expectThroughStart()
	f.engine.EXPECT().ReportStatus(gomock.Any(), "R1").Return(gmp.StatusDone, nil)
	f.engine.EXPECT().ExportReport(gomock.Any(), "R1").Return(testPDF, nil)
	f.deliverer.EXPECT().SendReport(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.WrapDeliveryError(errors.CodeDeliveryFailed, "failed to send report mail", "", nil))

	recorder.EXPECT().RecordStep(gomock.Any(), gomock.Any()).Times(8)
	recorder.EXPECT().RecordTargetHosts(4)
	recorder.EXPECT().RecordPoll().Times(1)
	recorder.EXPECT().RecordDeliveryFailure()
	recorder.EXPECT().RecordRun(string(StatusDeliveryFailed), fixedClock())

	_, err := f.runner(WithRecorder(recorder)).Run(context.Background())
	require.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	r := New(Config{}, nil, nil, nil, WithLogger(logging.Discard()))
	assert.Equal(t, DefaultTargetPrefix, r.cfg.TargetPrefix)
	assert.Equal(t, DefaultTaskPrefix, r.cfg.TaskPrefix)
	assert.Equal(t, DefaultPollInterval, r.cfg.PollInterval)
	assert.Equal(t, DefaultOutputPath, r.cfg.OutputPath)
	assert.Zero(t, r.cfg.MaxWait)
	assert.IsType(t, nopRecorder{}, r.recorder)
}
