package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/dbtuneai/pgvacuum/pkg/checks"
	"github.com/dbtuneai/pgvacuum/pkg/config"
	"github.com/dbtuneai/pgvacuum/pkg/events"
	"github.com/dbtuneai/pgvacuum/pkg/maintenance"
	"github.com/dbtuneai/pgvacuum/pkg/pg"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const gb = config.GB

// MockActivity implements activityRegistry for testing
type MockActivity struct {
	mock.Mock
}

func (m *MockActivity) CountInstances(ctx context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

func (m *MockActivity) CountActive(ctx context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

func (m *MockActivity) InProgress(ctx context.Context) ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type fakeCatalog struct {
	byClass map[maintenance.Class][]maintenance.Candidate
	err     error
	calls   int
}

func (f *fakeCatalog) Select(ctx context.Context, class maintenance.Class, _ maintenance.Filter) ([]maintenance.Candidate, error) {
	f.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.byClass[class], nil
}

type fakeExecutor struct {
	executed []string
}

func (f *fakeExecutor) Execute(_ context.Context, _ maintenance.Action, c maintenance.Candidate) error {
	f.executed = append(f.executed, c.Identifier())
	return nil
}

type fakeLauncher struct {
	jobs []maintenance.Job
}

func (f *fakeLauncher) LaunchDetached(_ context.Context, job maintenance.Job) (maintenance.LaunchResult, error) {
	f.jobs = append(f.jobs, job)
	return maintenance.LaunchResult{OK: true, PID: 100}, nil
}

type capturePublisher struct {
	events []events.Event
}

func (c *capturePublisher) Publish(_ context.Context, e events.Event) {
	c.events = append(c.events, e)
}

func (c *capturePublisher) report(t *testing.T) events.Summary {
	t.Helper()
	for _, e := range c.events {
		if r, ok := e.(events.ReportEvent); ok {
			return r.Summary
		}
	}
	require.Fail(t, "no report event published")
	return events.Summary{}
}

type fixture struct {
	cfg       config.Config
	activity  *MockActivity
	catalog   *fakeCatalog
	executor  *fakeExecutor
	launcher  *fakeLauncher
	publisher *capturePublisher
	stats     []pg.TableStats
	opened    int
	out       bytes.Buffer
	logger    *logrus.Logger
	hook      *test.Hook
}

func newFixture() *fixture {
	logger, hook := test.NewNullLogger()
	return &fixture{
		cfg: config.Config{
			Database: config.Database{DBName: "shop", ApplicationName: "pgvacuum"},
			Policy: config.Policy{
				MaxTableSize:      400 * gb,
				MaxSyncSize:       100 * gb,
				AsyncRowThreshold: 100000000,
				MinDeadTuples:     1000,
				MinTableSize:      50 * config.MB,
				MaxDaysAnalyze:    60,
				MaxDaysVacuum:     30,
				FreezePct:         90,
				FreezeWindow:      25000000,
				FreezeLimit:       60,
				MaxConcurrentJobs: 12,
			},
			Timing: config.Timing{
				AdmissionInterval: time.Minute,
				DrainInterval:     time.Minute,
				DrainAttempts:     20,
			},
		},
		activity:  new(MockActivity),
		catalog:   &fakeCatalog{byClass: map[maintenance.Class][]maintenance.Candidate{}},
		executor:  &fakeExecutor{},
		launcher:  &fakeLauncher{},
		publisher: &capturePublisher{},
		logger:    logger,
		hook:      hook,
	}
}

func (f *fixture) session() *session {
	return &session{
		activity: f.activity,
		catalog: func(context.Context) (maintenance.CatalogInspector, error) {
			f.opened++
			return f.catalog, nil
		},
		executor: f.executor,
		launcher: f.launcher,
		statistics: func(context.Context, string) ([]pg.TableStats, error) {
			return f.stats, nil
		},
	}
}

func (f *fixture) execute(ctx context.Context) error {
	return execute(ctx, f.cfg, f.session(), f.publisher, &f.out, f.logger)
}

func (f *fixture) add(table string, class maintenance.Class, size, rows int64) {
	f.catalog.byClass[class] = append(f.catalog.byClass[class], maintenance.Candidate{
		Schema: "public", Table: table, Class: class, SizeBytes: size, Rows: rows,
	})
}

func TestExecuteStopsWhenAlreadyRunning(t *testing.T) {
	f := newFixture()
	f.activity.On("CountInstances").Return(2, nil)

	err := f.execute(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, checks.ErrAlreadyRunning)
	assert.Zero(t, f.opened, "no catalog may be opened")
	assert.Zero(t, f.catalog.calls, "no catalog query may be issued")
	f.activity.AssertExpectations(t)
}

func TestExecuteDryRun(t *testing.T) {
	f := newFixture()
	f.cfg.Mode.DryRun = true
	f.add("t1", maintenance.ClassVacuumAnalyze, 10*gb, 50000000)
	f.add("t2", maintenance.ClassVacuumAnalyze, 150*gb, 150000000)
	f.add("t3", maintenance.ClassVacuumAnalyze, 500*gb, 1000)
	f.activity.On("CountInstances").Return(1, nil)

	require.NoError(t, f.execute(context.Background()))

	assert.Empty(t, f.executor.executed)
	assert.Empty(t, f.launcher.jobs)
	summary := f.publisher.report(t)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.Dispatched)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, "shop", summary.Database)
	assert.Contains(t, f.out.String(), "(dry run)")
	// Neither admission nor drain polled the database.
	f.activity.AssertNotCalled(t, "CountActive")
	f.activity.AssertExpectations(t)
}

func TestExecuteDispatchesAndDrains(t *testing.T) {
	f := newFixture()
	f.add("t1", maintenance.ClassVacuumAnalyze, 10*gb, 50000000)
	f.add("t2", maintenance.ClassVacuumAnalyze, 150*gb, 150000000)
	f.add("t1", maintenance.ClassVacuum, 10*gb, 50000000)
	f.activity.On("CountInstances").Return(1, nil)
	f.activity.On("CountActive").Return(0, nil).Once()

	require.NoError(t, f.execute(context.Background()))

	assert.Equal(t, []string{"public.t1"}, f.executor.executed)
	require.Len(t, f.launcher.jobs, 1)
	assert.Equal(t, "public.t2", f.launcher.jobs[0].Identifier())

	summary := f.publisher.report(t)
	assert.Equal(t, 2, summary.Dispatched)
	assert.Equal(t, 1, summary.AsyncJobs)
	assert.Zero(t, summary.ActiveJobs)
	f.activity.AssertExpectations(t)
}

func TestExecuteClosingNote(t *testing.T) {
	f := newFixture()
	f.cfg.Timing.DrainAttempts = 1
	f.add("t2", maintenance.ClassVacuumAnalyze, 150*gb, 150000000)
	f.activity.On("CountInstances").Return(1, nil)
	f.activity.On("CountActive").Return(1, nil)
	f.activity.On("InProgress").Return([]string{"public.t2"}, nil)

	require.NoError(t, f.execute(context.Background()))

	assert.Equal(t, 1, f.publisher.report(t).ActiveJobs)
	var found bool
	for _, e := range f.hook.AllEntries() {
		if e.Message == "Vacuums still in progress: public.t2" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExecuteCatalogErrorIsFatal(t *testing.T) {
	f := newFixture()
	f.catalog.err = errors.New("permission denied for relation pg_class")
	f.activity.On("CountInstances").Return(1, nil)

	err := f.execute(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, maintenance.ErrCatalog)
	assert.NotErrorIs(t, err, ErrInterrupted)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.EventTypeError, f.publisher.events[0].Type())
	assert.Empty(t, f.out.String())
}

func TestExecuteInterrupted(t *testing.T) {
	f := newFixture()
	f.activity.On("CountInstances").Return(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.execute(ctx)

	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteInquiry(t *testing.T) {
	tests := []struct {
		name    string
		inquiry string
		want    []string
		notWant []string
	}{
		{name: "all", inquiry: "all", want: []string{"public.t1", "public.other"}},
		{name: "found", inquiry: "found", want: []string{"public.t1"}, notWant: []string{"public.other"}},
		{name: "disabled", inquiry: "", notWant: []string{"public.other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.cfg.Mode.DryRun = true
			f.cfg.Mode.Inquiry = tt.inquiry
			f.add("t1", maintenance.ClassVacuum, gb, 1000)
			f.stats = []pg.TableStats{
				{Schema: "public", Table: "t1", SizeBytes: gb},
				{Schema: "public", Table: "other", SizeBytes: gb},
			}
			f.activity.On("CountInstances").Return(1, nil)

			require.NoError(t, f.execute(context.Background()))

			for _, w := range tt.want {
				assert.Contains(t, f.out.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, f.out.String(), w)
			}
		})
	}
}

func TestExecuteWritesMetricsTextfile(t *testing.T) {
	f := newFixture()
	f.cfg.Mode.DryRun = true
	f.cfg.Outputs.MetricsTextfile = filepath.Join(t.TempDir(), "pgvacuum.prom")
	f.add("t1", maintenance.ClassVacuum, gb, 1000)
	f.activity.On("CountInstances").Return(1, nil)

	require.NoError(t, f.execute(context.Background()))

	data, err := os.ReadFile(f.cfg.Outputs.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pgvacuum_class_dispatched{class="vacuum"} 1`)
}

func TestConfigMapping(t *testing.T) {
	f := newFixture()
	f.cfg.Mode = config.Mode{DryRun: true, Freeze: true, IgnorePartitions: true, Schema: "sales"}
	f.cfg.Timing.LoadThreshold = 250
	f.cfg.Timing.LoadInterval = 5 * time.Minute
	f.cfg.Timing.LoadAttempts = 6

	th := thresholds(f.cfg)
	assert.Equal(t, 400*gb, th.MaxTableSize)
	assert.Equal(t, 12, th.MaxConcurrentJobs)
	assert.Equal(t, 90, th.FreezePct)

	m := mode(f.cfg)
	assert.Equal(t, maintenance.Mode{DryRun: true, FreezeEnabled: true, IgnorePartitions: true, Schema: "sales"}, m)

	assert.Equal(t, 250.0, loadSettings(f.cfg).Threshold)
	assert.Equal(t, 6, loadSettings(f.cfg).Attempts)
}

func TestBuildSinks(t *testing.T) {
	logger, _ := test.NewNullLogger()

	sinks, err := buildSinks(config.Config{}, logger)
	require.NoError(t, err)
	assert.Empty(t, sinks)

	cfg := config.Config{Outputs: config.Outputs{
		DecisionLog: filepath.Join(t.TempDir(), "decisions.jsonl"),
		ReportURL:   "http://localhost:9/report",
	}}
	sinks, err = buildSinks(cfg, logger)
	require.NoError(t, err)
	require.Len(t, sinks, 2)
	assert.Equal(t, "file", sinks[0].Name())
	for _, s := range sinks {
		assert.NoError(t, s.Close())
	}

	cfg.Outputs.DecisionLog = filepath.Join(t.TempDir(), "missing", "decisions.jsonl")
	_, err = buildSinks(cfg, logger)
	assert.Error(t, err)
}

func TestWatchInterrupts(t *testing.T) {
	logger, hook := test.NewNullLogger()

	t.Run("signal exits with status 1", func(t *testing.T) {
		sigs := make(chan os.Signal, 1)
		sigs <- syscall.SIGINT
		code := -1
		watchInterrupts(sigs, make(chan struct{}), logger, func(c int) { code = c })

		assert.Equal(t, 1, code)
		require.NotNil(t, hook.LastEntry())
		assert.Contains(t, hook.LastEntry().Message, "User-interrupted!")
	})

	t.Run("stop returns without exiting", func(t *testing.T) {
		done := make(chan struct{})
		close(done)
		called := false
		watchInterrupts(make(chan os.Signal), done, logger, func(int) { called = true })
		assert.False(t, called)
	})
}

type fakeJobRunner struct {
	err  error
	runs []string
}

func (f *fakeJobRunner) Run(_ context.Context, action maintenance.Action, schema, table string) error {
	f.runs = append(f.runs, string(action)+" "+schema+"."+table)
	return f.err
}

func TestRunJob(t *testing.T) {
	logger, hook := test.NewNullLogger()
	job := maintenance.Job{RunID: "r1", Schema: "public", Table: "orders", Action: maintenance.ActionVacuumAnalyze}

	r := &fakeJobRunner{}
	require.NoError(t, runJob(context.Background(), r, job, logger))
	assert.Equal(t, []string{"vacuum_analyze public.orders"}, r.runs)
	assert.Equal(t, "Job finished", hook.LastEntry().Message)

	r = &fakeJobRunner{err: errors.New("deadlock detected")}
	err := runJob(context.Background(), r, job, logger)
	assert.ErrorContains(t, err, "deadlock detected")
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
