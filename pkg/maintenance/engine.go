package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbtuneai/pgvacuum/pkg/events"
	"github.com/sirupsen/logrus"
)

// ErrCatalog wraps any failure to enumerate candidates. It always ends the
// run: evaluating a partial candidate list would leave maintenance undone
// while reporting it as evaluated.
var ErrCatalog = errors.New("catalog query failed")

// Engine runs every selection class in order, then drains outstanding jobs.
type Engine struct {
	catalog    CatalogInspector
	dispatcher *Dispatcher
	drain      *DrainController
	logger     *logrus.Logger
}

func NewEngine(catalog CatalogInspector, dispatcher *Dispatcher, drain *DrainController, logger *logrus.Logger) *Engine {
	return &Engine{
		catalog:    catalog,
		dispatcher: dispatcher,
		drain:      drain,
		logger:     logger,
	}
}

// Report is the outcome of Engine.Run.
type Report struct {
	RunID      string
	DryRun     bool
	Started    time.Time
	Finished   time.Time
	Counters   Counters
	Tables     []string
	ActiveJobs int
}

func (e *Engine) Run(ctx context.Context, rc *RunContext) (*Report, error) {
	for _, class := range Classes {
		if err := e.runClass(ctx, rc, class); err != nil {
			return nil, err
		}
	}

	active := 0
	if !rc.DryRun {
		remaining, err := e.drain.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// The work of this run is done; jobs still running are independent.
			e.logger.Warnf("Unable to confirm that maintenance jobs finished: %v", err)
		}
		active = remaining
	}

	return &Report{
		RunID:      rc.RunID,
		DryRun:     rc.DryRun,
		Started:    rc.Started,
		Finished:   time.Now(),
		Counters:   rc.Counters,
		Tables:     append([]string(nil), rc.Tables...),
		ActiveJobs: active,
	}, nil
}

func (e *Engine) runClass(ctx context.Context, rc *RunContext, class Class) error {
	candidates, err := e.catalog.Select(ctx, class, rc.Filter())
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCatalog, class, err)
	}

	eligible := make([]Candidate, 0, len(candidates))
	partitions := 0
	for _, c := range candidates {
		if rc.Dedup.Seen(c.Identifier()) {
			continue
		}
		if rc.IgnorePartitions && c.IsPartition {
			partitions++
			continue
		}
		eligible = append(eligible, c)
	}

	rc.Counters.Evaluated[class] += len(eligible)
	rc.Counters.PartitionsByClass[class] += partitions
	rc.Counters.PartitionsSkipped += partitions

	if len(eligible) == 0 {
		e.logger.Infof("No %s actions need to be done", class.Label())
	} else {
		e.logger.Infof("%s actions to be evaluated=%d", class.Label(), len(eligible))
	}

	if class == ClassFreeze && !rc.FreezeEnabled && !rc.DryRun {
		if len(eligible) > 0 {
			e.logger.Infof("Bypassing VACUUM FREEZE for %d tables. Otherwise specify --freeze to do them.", len(eligible))
			rc.Counters.FreezeBypassed += len(eligible)
		}
		return nil
	}

	for _, c := range eligible {
		if err := ctx.Err(); err != nil {
			return err
		}
		// A candidate may have been marked earlier in this same class.
		if rc.Dedup.Seen(c.Identifier()) {
			continue
		}
		if err := e.dispatcher.Dispatch(ctx, rc, c); err != nil {
			return err
		}
	}

	if rc.IgnorePartitions {
		e.logger.Infof("Partitioned table %s actions bypassed=%d", class.Label(), partitions)
	}
	e.logger.WithField("class", class.String()).Debugf("%s dispatched=%d", class.Label(), rc.Counters.Dispatched[class])
	return nil
}

// Summary converts the report into the event payload shared by every sink.
func (r *Report) Summary() events.Summary {
	classes := make([]events.ClassSummary, 0, len(Classes))
	for _, class := range Classes {
		classes = append(classes, events.ClassSummary{
			Class:             class.String(),
			Evaluated:         r.Counters.Evaluated[class],
			Dispatched:        r.Counters.Dispatched[class],
			PartitionsSkipped: r.Counters.PartitionsByClass[class],
		})
	}
	return events.Summary{
		RunID:             r.RunID,
		DryRun:            r.DryRun,
		Started:           r.Started,
		Finished:          r.Finished,
		Classes:           classes,
		Dispatched:        r.Counters.TotalDispatched(),
		Skipped:           r.Counters.Skipped + r.Counters.PartitionsSkipped,
		PartitionsSkipped: r.Counters.PartitionsSkipped,
		Failed:            r.Counters.Failed,
		AsyncJobs:         r.Counters.AsyncJobs,
		FreezeBypassed:    r.Counters.FreezeBypassed,
		ActiveJobs:        r.ActiveJobs,
		Tables:            r.Tables,
	}
}
