package maintenance

import "context"

// Filter carries the operator thresholds that shape the selection queries.
type Filter struct {
	Schema         string
	MinDeadTuples  int64
	MinTableSize   int64
	MaxDaysAnalyze int
	MaxDaysVacuum  int
	// FreezeWindow is the distance in transactions to
	// autovacuum_freeze_max_age that qualifies a table for freezing.
	FreezeWindow int64
	FreezeLimit  int
}

// CatalogInspector returns the candidates of one selection class, in the
// order they should be processed. System schemas are never returned.
type CatalogInspector interface {
	Select(ctx context.Context, class Class, filter Filter) ([]Candidate, error)
}

// ActivityRegistry reports the authoritative number of maintenance jobs
// currently active against the database.
type ActivityRegistry interface {
	CountActive(ctx context.Context) (int, error)
}

// ProgressReporter lists the tables a vacuum is currently running on.
type ProgressReporter interface {
	InProgress(ctx context.Context) ([]string, error)
}

// ActionExecutor runs an action inline on the engine's own connection.
type ActionExecutor interface {
	Execute(ctx context.Context, action Action, candidate Candidate) error
}

// JobLauncher starts a detached, independently connecting job. It returns
// as soon as the job is started and never waits for it.
type JobLauncher interface {
	LaunchDetached(ctx context.Context, job Job) (LaunchResult, error)
}
