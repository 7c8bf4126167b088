package runner

import (
	"context"
	"time"

	"github.com/dbtuneai/pgvacuum/pkg/config"
	"github.com/dbtuneai/pgvacuum/pkg/maintenance"
	"github.com/dbtuneai/pgvacuum/pkg/pg"
	"github.com/sirupsen/logrus"
)

// JobRunner runs a single action. It is satisfied by *pg.Executor.
type JobRunner interface {
	Run(ctx context.Context, action maintenance.Action, schema, table string) error
}

// RunJob is the body of a detached job: it opens its own connection, runs
// one action to completion and exits.
func RunJob(ctx context.Context, cfg config.Config, job maintenance.Job, logger *logrus.Logger) error {
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	return runJob(ctx, pg.NewExecutor(pool), job, logger)
}

func runJob(ctx context.Context, runner JobRunner, job maintenance.Job, logger *logrus.Logger) error {
	entry := logger.WithFields(logrus.Fields{
		"run_id": job.RunID,
		"action": job.Action,
		"table":  job.Identifier(),
	})

	start := time.Now()
	entry.Infof("Job started")
	if err := runner.Run(ctx, job.Action, job.Schema, job.Table); err != nil {
		entry.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Errorf("Job failed: %v", err)
		return err
	}
	entry.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("Job finished")
	return nil
}
