package maintenance

import (
	"fmt"
	"time"
)

// Class is one of the fixed selection policies. Classes are evaluated in
// declaration order and earlier classes win tables that qualify for several.
type Class int

const (
	ClassFreeze Class = iota
	ClassVacuumAnalyze
	ClassVacuum
	ClassAnalyzeSmall
	ClassAnalyzeBig
	ClassStaleAnalyze
	ClassStaleVacuum
)

// Classes lists every selection class in evaluation order.
var Classes = []Class{
	ClassFreeze,
	ClassVacuumAnalyze,
	ClassVacuum,
	ClassAnalyzeSmall,
	ClassAnalyzeBig,
	ClassStaleAnalyze,
	ClassStaleVacuum,
}

func (c Class) String() string {
	switch c {
	case ClassFreeze:
		return "freeze"
	case ClassVacuumAnalyze:
		return "vacuum_analyze"
	case ClassVacuum:
		return "vacuum"
	case ClassAnalyzeSmall:
		return "analyze_small"
	case ClassAnalyzeBig:
		return "analyze_big"
	case ClassStaleAnalyze:
		return "stale_analyze"
	case ClassStaleVacuum:
		return "stale_vacuum"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Label is the operator facing name used in log lines.
func (c Class) Label() string {
	switch c {
	case ClassFreeze:
		return "VACUUM FREEZE"
	case ClassVacuumAnalyze:
		return "VACUUM ANALYZE"
	case ClassVacuum:
		return "VACUUM"
	case ClassAnalyzeSmall:
		return "ANALYZE (small)"
	case ClassAnalyzeBig:
		return "ANALYZE (big)"
	case ClassStaleAnalyze:
		return "ANALYZE (stale)"
	case ClassStaleVacuum:
		return "VACUUM (stale)"
	default:
		return c.String()
	}
}

// Action returns the maintenance action performed on candidates of c.
func (c Class) Action() Action {
	switch c {
	case ClassFreeze:
		return ActionFreeze
	case ClassVacuumAnalyze:
		return ActionVacuumAnalyze
	case ClassVacuum, ClassStaleVacuum:
		return ActionVacuum
	default:
		return ActionAnalyze
	}
}

// Action is a named maintenance operation understood by the ActionExecutor.
type Action string

const (
	ActionFreeze        Action = "freeze"
	ActionVacuumAnalyze Action = "vacuum_analyze"
	ActionVacuum        Action = "vacuum"
	ActionAnalyze       Action = "analyze"
)

// ParseAction validates the textual form of an action, as passed to a
// detached job on its command line.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionFreeze, ActionVacuumAnalyze, ActionVacuum, ActionAnalyze:
		return a, nil
	default:
		return "", fmt.Errorf("unknown maintenance action %q", s)
	}
}

// Candidate is one table proposed by a selection class.
type Candidate struct {
	Schema     string
	Table      string
	Class      Class
	Rows       int64
	DeadTuples int64
	SizeBytes  int64
	// IsPartition is set for tables that are a partition of a parent table.
	IsPartition bool
	// FreezeUrgencyPct is only meaningful for ClassFreeze: the transaction
	// age of the table as a percentage of autovacuum_freeze_max_age.
	FreezeUrgencyPct float64
	// DaysSinceMaintenance is nil when the table was never maintained.
	DaysSinceMaintenance *int
}

// Identifier is the schema qualified name used for deduplication.
func (c Candidate) Identifier() string {
	return c.Schema + "." + c.Table
}

// DecisionKind enumerates dispatch outcomes.
type DecisionKind int

const (
	DecisionSkip DecisionKind = iota
	DecisionSync
	DecisionAsync
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionSync:
		return "sync"
	case DecisionAsync:
		return "async"
	default:
		return "skip"
	}
}

const (
	ReasonTooLarge      = "too large for automation"
	ReasonNotUrgent     = "freeze not urgent yet"
	ReasonMaxConcurrent = "max concurrent processes reached"
)

// Decision is the transient classification of one candidate.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

func Skip(reason string) Decision {
	return Decision{Kind: DecisionSkip, Reason: reason}
}

var (
	Sync  = Decision{Kind: DecisionSync}
	Async = Decision{Kind: DecisionAsync}
)

func (d Decision) String() string {
	if d.Kind == DecisionSkip && d.Reason != "" {
		return "skip: " + d.Reason
	}
	return d.Kind.String()
}

// Job is one asynchronous action handed to a detached process.
type Job struct {
	RunID      string
	Schema     string
	Table      string
	Action     Action
	LaunchedAt time.Time
}

func (j Job) Identifier() string {
	return j.Schema + "." + j.Table
}

// LaunchResult reports that a detached job was started. A successful launch
// means the job was admitted, not that it completed.
type LaunchResult struct {
	OK  bool
	PID int
}
