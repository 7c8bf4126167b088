package maintenance

import "time"

// Thresholds are the policy limits applied to every candidate.
type Thresholds struct {
	MaxTableSize      int64
	MaxSyncSize       int64
	AsyncRowThreshold int64
	MinDeadTuples     int64
	MinTableSize      int64
	MaxDaysAnalyze    int
	MaxDaysVacuum     int
	FreezePct         int
	FreezeWindow      int64
	FreezeLimit       int
	MaxConcurrentJobs int
}

// Mode holds the operator switches of a run.
type Mode struct {
	DryRun           bool
	FreezeEnabled    bool
	IgnorePartitions bool
	Schema           string
}

// Counters accumulate the outcome of a run.
type Counters struct {
	Evaluated         map[Class]int
	Dispatched        map[Class]int
	PartitionsByClass map[Class]int
	Skipped           int
	PartitionsSkipped int
	Failed            int
	AsyncJobs         int
	FreezeBypassed    int
}

func newCounters() Counters {
	return Counters{
		Evaluated:         make(map[Class]int),
		Dispatched:        make(map[Class]int),
		PartitionsByClass: make(map[Class]int),
	}
}

// TotalDispatched sums the dispatched counters of every class.
func (c Counters) TotalDispatched() int {
	total := 0
	for _, n := range c.Dispatched {
		total += n
	}
	return total
}

// RunContext is the configuration and mutable state of one invocation. It
// is owned by the run loop and handed by reference to each component.
type RunContext struct {
	RunID   string
	Started time.Time
	Thresholds
	Mode

	Dedup             *DedupRegistry
	ActiveJobEstimate int
	Counters          Counters
	// Tables lists the tables dispatched this run, in dispatch order.
	Tables []string
}

func NewRunContext(runID string, thresholds Thresholds, mode Mode) *RunContext {
	return &RunContext{
		RunID:      runID,
		Started:    time.Now(),
		Thresholds: thresholds,
		Mode:       mode,
		Dedup:      NewDedupRegistry(),
		Counters:   newCounters(),
	}
}

// Filter derives the selection filter from the run thresholds.
func (rc *RunContext) Filter() Filter {
	return Filter{
		Schema:         rc.Schema,
		MinDeadTuples:  rc.MinDeadTuples,
		MinTableSize:   rc.MinTableSize,
		MaxDaysAnalyze: rc.MaxDaysAnalyze,
		MaxDaysVacuum:  rc.MaxDaysVacuum,
		FreezeWindow:   rc.FreezeWindow,
		FreezeLimit:    rc.FreezeLimit,
	}
}

func (rc *RunContext) recordDispatch(c Candidate) {
	rc.Counters.Dispatched[c.Class]++
	rc.Tables = append(rc.Tables, c.Identifier())
	rc.Dedup.Mark(c.Identifier())
}
