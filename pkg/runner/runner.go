package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dbtuneai/pgvacuum/pkg/checks"
	"github.com/dbtuneai/pgvacuum/pkg/config"
	"github.com/dbtuneai/pgvacuum/pkg/events"
	"github.com/dbtuneai/pgvacuum/pkg/guardrails"
	"github.com/dbtuneai/pgvacuum/pkg/internal/utils"
	"github.com/dbtuneai/pgvacuum/pkg/launcher"
	"github.com/dbtuneai/pgvacuum/pkg/maintenance"
	"github.com/dbtuneai/pgvacuum/pkg/metrics"
	"github.com/dbtuneai/pgvacuum/pkg/pg"
	"github.com/dbtuneai/pgvacuum/pkg/router"
	"github.com/dbtuneai/pgvacuum/pkg/sink"
	"github.com/dbtuneai/pgvacuum/pkg/version"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/sirupsen/logrus"
)

// ErrInterrupted is returned when the run context is cancelled.
var ErrInterrupted = errors.New("user interrupted")

// NewLogger returns the logger used by every command.
func NewLogger(debug bool) *logrus.Logger {
	return utils.NewLogger(os.Stdout, debug)
}

// activityRegistry is everything the run asks pg_stat_activity.
type activityRegistry interface {
	checks.InstanceRegistry
	maintenance.ActivityRegistry
	maintenance.ProgressReporter
}

// session is the database facing half of a run.
type session struct {
	activity activityRegistry
	// catalog is only built once the single instance check passed.
	catalog    func(ctx context.Context) (maintenance.CatalogInspector, error)
	executor   maintenance.ActionExecutor
	launcher   maintenance.JobLauncher
	statistics func(ctx context.Context, schema string) ([]pg.TableStats, error)
}

// Run executes one maintenance run with cfg and returns the first fatal error.
func Run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	logBanner(ctx, cfg, logger)

	lock, err := checks.AcquireHostLock(cfg.Outputs.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warnf("Unable to release lock %s: %v", lock.Path(), err)
		}
	}()

	gate := guardrails.NewLoadGate(guardrails.HostSampler{}, loadSettings(cfg), logger)
	if err := gate.Wait(ctx); err != nil {
		return err
	}

	sinks, err := buildSinks(cfg, logger)
	if err != nil {
		return err
	}
	publisher := router.New(sinks, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warnf("Unable to close sinks: %v", err)
		}
	}()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("unable to locate the pgvacuum binary: %w", err)
	}

	s := &session{
		activity: pg.NewActivity(pool, cfg.Database.ApplicationName),
		catalog: func(ctx context.Context) (maintenance.CatalogInspector, error) {
			num, err := pg.ServerVersionNum(ctx, pool)
			if err != nil {
				return nil, err
			}
			if v, err := pg.ServerVersion(ctx, pool); err == nil {
				logger.Infof("Connected to PostgreSQL %s (%s)", v, cfg.Database.DBName)
			}
			return pg.NewCatalog(pool, num), nil
		},
		executor: pg.NewExecutor(pool),
		launcher: launcher.New(executable, cfg.Environ(), cfg.Outputs.JobLog, logger),
		statistics: func(ctx context.Context, schema string) ([]pg.TableStats, error) {
			return pg.TableStatistics(ctx, pool, schema)
		},
	}

	return execute(ctx, cfg, s, publisher, os.Stdout, logger)
}

// execute runs the engine against an open session and reports the outcome.
func execute(ctx context.Context, cfg config.Config, s *session, publisher events.Publisher, out io.Writer, logger *logrus.Logger) error {
	if err := checks.CheckSingleInstance(ctx, s.activity, logger); err != nil {
		return err
	}

	catalog, err := s.catalog(ctx)
	if err != nil {
		return err
	}

	rc := maintenance.NewRunContext(uuid.NewString(), thresholds(cfg), mode(cfg))
	logger.Debugf("Run id %s", rc.RunID)

	admission := maintenance.NewAdmissionController(s.activity, cfg.Timing.AdmissionInterval, cfg.Timing.AdmissionMaxPolls, logger)
	dispatcher := maintenance.NewDispatcher(s.executor, s.launcher, admission, publisher, logger)
	drain := maintenance.NewDrainController(s.activity, s.activity, cfg.Timing.DrainInterval, cfg.Timing.DrainAttempts, logger)
	engine := maintenance.NewEngine(catalog, dispatcher, drain, logger)

	report, err := engine.Run(ctx, rc)
	if err != nil {
		publisher.Publish(context.WithoutCancel(ctx), events.NewErrorEvent(rc.RunID, "", err))
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		return err
	}

	summary := report.Summary()
	summary.Version = version.GetVersionOnly()
	summary.Database = cfg.Database.DBName
	publisher.Publish(ctx, events.NewReportEvent(summary))

	if err := metrics.RenderSummary(out, summary); err != nil {
		logger.Warnf("Unable to print the run summary: %v", err)
	}
	if cfg.Outputs.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.Outputs.MetricsTextfile, summary); err != nil {
			logger.Warnf("Unable to write metrics: %v", err)
		}
	}

	closingNote(ctx, s.activity, report, logger)

	if cfg.Mode.Inquiry != "" {
		if err := inquiry(ctx, cfg, s, report, out); err != nil {
			logger.Warnf("Inquiry failed: %v", err)
		}
	}

	logger.Infof("End of run %s: %d dispatched, %d skipped, %d failed in %s",
		rc.RunID, summary.Dispatched, summary.Skipped, summary.Failed, summary.Duration().Round(time.Millisecond))
	return nil
}

// closingNote names the vacuums still running when the run exits.
func closingNote(ctx context.Context, progress maintenance.ProgressReporter, report *maintenance.Report, logger *logrus.Logger) {
	if report.DryRun || report.ActiveJobs == 0 {
		return
	}
	tables, err := progress.InProgress(ctx)
	if err != nil {
		logger.Debugf("unable to list vacuums in progress: %v", err)
		return
	}
	if len(tables) == 0 {
		return
	}
	logger.Infof("Vacuums still in progress: %s", strings.Join(tables, ", "))
}

func inquiry(ctx context.Context, cfg config.Config, s *session, report *maintenance.Report, out io.Writer) error {
	stats, err := s.statistics(ctx, cfg.Mode.Schema)
	if err != nil {
		return err
	}
	if cfg.Mode.Inquiry == "found" {
		stats = pg.FilterTables(stats, report.Tables)
	}
	return metrics.RenderInquiry(out, stats)
}

func thresholds(cfg config.Config) maintenance.Thresholds {
	p := cfg.Policy
	return maintenance.Thresholds{
		MaxTableSize:      p.MaxTableSize,
		MaxSyncSize:       p.MaxSyncSize,
		AsyncRowThreshold: p.AsyncRowThreshold,
		MinDeadTuples:     p.MinDeadTuples,
		MinTableSize:      p.MinTableSize,
		MaxDaysAnalyze:    p.MaxDaysAnalyze,
		MaxDaysVacuum:     p.MaxDaysVacuum,
		FreezePct:         p.FreezePct,
		FreezeWindow:      p.FreezeWindow,
		FreezeLimit:       p.FreezeLimit,
		MaxConcurrentJobs: p.MaxConcurrentJobs,
	}
}

func mode(cfg config.Config) maintenance.Mode {
	return maintenance.Mode{
		DryRun:           cfg.Mode.DryRun,
		FreezeEnabled:    cfg.Mode.Freeze,
		IgnorePartitions: cfg.Mode.IgnorePartitions,
		Schema:           cfg.Mode.Schema,
	}
}

func loadSettings(cfg config.Config) guardrails.Settings {
	return guardrails.Settings{
		Threshold: cfg.Timing.LoadThreshold,
		Interval:  cfg.Timing.LoadInterval,
		Attempts:  cfg.Timing.LoadAttempts,
	}
}

func buildSinks(cfg config.Config, logger *logrus.Logger) ([]sink.Sink, error) {
	var sinks []sink.Sink
	if cfg.Outputs.DecisionLog != "" {
		fileSink, err := sink.NewFileSink(cfg.Outputs.DecisionLog, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
	}
	if cfg.Outputs.ReportURL != "" {
		sinks = append(sinks, sink.NewWebhookSink(sink.NewWebhookClient(logger), cfg.Outputs.ReportURL, logger))
	}
	return sinks, nil
}

func logBanner(ctx context.Context, cfg config.Config, logger *logrus.Logger) {
	logger.Infof("%s starting", version.GetVersion())
	logger.WithFields(logrus.Fields{
		"host":                cfg.Database.Host,
		"port":                cfg.Database.Port,
		"dbname":              cfg.Database.DBName,
		"user":                cfg.Database.User,
		"schema":              cfg.Mode.Schema,
		"dry_run":             cfg.Mode.DryRun,
		"freeze":              cfg.Mode.Freeze,
		"ignore_partitions":   cfg.Mode.IgnorePartitions,
		"max_table_size":      humanize.Bytes(uint64(max(cfg.Policy.MaxTableSize, 0))),
		"max_sync_size":       humanize.Bytes(uint64(max(cfg.Policy.MaxSyncSize, 0))),
		"async_row_threshold": humanize.Comma(cfg.Policy.AsyncRowThreshold),
		"min_dead_tuples":     cfg.Policy.MinDeadTuples,
		"max_days_analyze":    cfg.Policy.MaxDaysAnalyze,
		"max_days_vacuum":     cfg.Policy.MaxDaysVacuum,
		"freeze_pct":          cfg.Policy.FreezePct,
		"max_concurrent_jobs": cfg.Policy.MaxConcurrentJobs,
		"inquiry":             cfg.Mode.Inquiry,
	}).Info("Run parameters")

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		logger.Debugf("unable to read host info: %v", err)
		return
	}
	logger.Debugf("Running on %s (%s %s, kernel %s)", info.Hostname, info.Platform, info.PlatformVersion, info.KernelVersion)
}

// HandleInterrupts exits the process with status 1 on SIGINT or SIGTERM.
// In-flight statements are left to the server and detached jobs keep running.
func HandleInterrupts(logger *logrus.Logger) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go watchInterrupts(sigs, done, logger, os.Exit)
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func watchInterrupts(sigs <-chan os.Signal, done <-chan struct{}, logger *logrus.Logger, exit func(int)) {
	select {
	case sig := <-sigs:
		logger.Errorf("User-interrupted! (%s)", sig)
		exit(1)
	case <-done:
	}
}
