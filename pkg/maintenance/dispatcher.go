package maintenance

import (
	"context"
	"time"

	"github.com/dbtuneai/pgvacuum/pkg/events"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// Classify applies the dispatch rules to a candidate, in priority order:
// the hard size limit, the freeze urgency gate, then the async thresholds.
// Admission is not consulted here.
func Classify(c Candidate, rc *RunContext) Decision {
	if c.SizeBytes > rc.MaxTableSize {
		return Skip(ReasonTooLarge)
	}
	if c.Class == ClassFreeze && c.FreezeUrgencyPct < float64(rc.FreezePct) {
		return Skip(ReasonNotUrgent)
	}
	if c.Rows > rc.AsyncRowThreshold || c.SizeBytes > rc.MaxSyncSize {
		return Async
	}
	return Sync
}

// Dispatcher turns decisions into work: inline actions, detached jobs, or
// log lines only when the run is a dry run.
type Dispatcher struct {
	executor  ActionExecutor
	launcher  JobLauncher
	admission *AdmissionController
	publisher events.Publisher
	logger    *logrus.Logger
}

func NewDispatcher(
	executor ActionExecutor,
	launcher JobLauncher,
	admission *AdmissionController,
	publisher events.Publisher,
	logger *logrus.Logger,
) *Dispatcher {
	if publisher == nil {
		publisher = events.Discard
	}
	return &Dispatcher{
		executor:  executor,
		launcher:  launcher,
		admission: admission,
		publisher: publisher,
		logger:    logger,
	}
}

// Dispatch handles one candidate. Per table failures are logged and counted;
// only errors that must end the run are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, rc *RunContext, c Candidate) error {
	decision := Classify(c, rc)

	switch decision.Kind {
	case DecisionSkip:
		rc.Counters.Skipped++
		// A table that is not urgent yet may still qualify for another class.
		if decision.Reason != ReasonNotUrgent {
			rc.Dedup.Mark(c.Identifier())
		}
		d.record(ctx, rc, c, decision)
		return nil

	case DecisionAsync:
		admitted, err := d.admission.Admit(ctx, rc)
		if err != nil {
			return err
		}
		if !admitted {
			rc.Counters.Skipped++
			d.record(ctx, rc, c, Skip(ReasonMaxConcurrent))
			return nil
		}
		if rc.DryRun {
			rc.ActiveJobEstimate++
			rc.recordDispatch(c)
			d.record(ctx, rc, c, decision)
			return nil
		}
		job := Job{
			RunID:      rc.RunID,
			Schema:     c.Schema,
			Table:      c.Table,
			Action:     c.Class.Action(),
			LaunchedAt: time.Now(),
		}
		res, err := d.launcher.LaunchDetached(ctx, job)
		if err != nil {
			rc.Counters.Failed++
			rc.Dedup.Mark(c.Identifier())
			d.fail(ctx, rc, c, decision, err)
			return nil
		}
		rc.Counters.AsyncJobs++
		rc.ActiveJobEstimate++
		rc.recordDispatch(c)
		d.entry(c, decision).WithField("pid", res.PID).Debug("Detached job started")
		d.record(ctx, rc, c, decision)
		return nil

	default:
		if rc.DryRun {
			rc.recordDispatch(c)
			d.record(ctx, rc, c, decision)
			return nil
		}
		started := time.Now()
		if err := d.executor.Execute(ctx, c.Class.Action(), c); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rc.Counters.Failed++
			rc.Dedup.Mark(c.Identifier())
			d.fail(ctx, rc, c, decision, err)
			return nil
		}
		rc.recordDispatch(c)
		d.entry(c, decision).WithField("elapsed", time.Since(started).Round(time.Millisecond)).Debug("Action finished")
		d.record(ctx, rc, c, decision)
		return nil
	}
}

func (d *Dispatcher) entry(c Candidate, decision Decision) *logrus.Entry {
	fields := logrus.Fields{
		"class": c.Class.String(),
		"table": c.Identifier(),
		"rows":  humanize.Comma(c.Rows),
		"size":  humanize.Bytes(uint64(max(c.SizeBytes, 0))),
		"dead":  humanize.Comma(c.DeadTuples),
	}
	if c.Class == ClassFreeze {
		fields["pct"] = int(c.FreezeUrgencyPct)
	}
	return d.logger.WithFields(fields).WithField("decision", decision.Kind.String())
}

func (d *Dispatcher) record(ctx context.Context, rc *RunContext, c Candidate, decision Decision) {
	entry := d.entry(c, decision)
	prefix := ""
	if rc.DryRun {
		prefix = "[dry run] "
	}
	switch decision.Kind {
	case DecisionSkip:
		entry.Infof("%sSkip  %s %s: %s", prefix, c.Class.Label(), c.Identifier(), decision.Reason)
	case DecisionAsync:
		entry.Infof("%sAsync %s %s", prefix, c.Class.Label(), c.Identifier())
	default:
		entry.Infof("%sSync  %s %s", prefix, c.Class.Label(), c.Identifier())
	}

	d.publisher.Publish(ctx, events.NewDecisionEvent(rc.RunID, events.Decision{
		Class:    c.Class.String(),
		Table:    c.Identifier(),
		Action:   string(c.Class.Action()),
		Decision: decision.Kind.String(),
		Reason:   decision.Reason,
		Rows:     c.Rows,
		Dead:     c.DeadTuples,
		Size:     c.SizeBytes,
		DryRun:   rc.DryRun,
	}))
}

func (d *Dispatcher) fail(ctx context.Context, rc *RunContext, c Candidate, decision Decision, err error) {
	d.entry(c, decision).WithError(err).Errorf("%s %s failed", c.Class.Label(), c.Identifier())
	d.publisher.Publish(ctx, events.NewErrorEvent(rc.RunID, c.Identifier(), err))
}
