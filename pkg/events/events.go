package events

import (
	"context"
	"time"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// EventType represents the type of event
type EventType string

const (
	EventTypeDecision EventType = "decision"
	EventTypeReport   EventType = "report"
	EventTypeError    EventType = "error"
)

// Publisher accepts events produced during a run. Publishing never fails the
// run: implementations log their own delivery errors.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventTimestamp time.Time `json:"timestamp"`
	EventType      EventType `json:"type"`
	RunID          string    `json:"run_id"`
}

func (e BaseEvent) Timestamp() time.Time {
	return e.EventTimestamp
}

func (e BaseEvent) Type() EventType {
	return e.EventType
}

// DecisionEvent records the outcome for one candidate table.
type DecisionEvent struct {
	BaseEvent
	Class    string `json:"class"`
	Table    string `json:"table"`
	Action   string `json:"action"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
	Rows     int64  `json:"rows"`
	Dead     int64  `json:"dead_tuples"`
	Size     int64  `json:"size_bytes"`
	DryRun   bool   `json:"dry_run"`
}

// Decision describes a dispatch outcome without its timestamp.
type Decision struct {
	Class    string
	Table    string
	Action   string
	Decision string
	Reason   string
	Rows     int64
	Dead     int64
	Size     int64
	DryRun   bool
}

func NewDecisionEvent(runID string, d Decision) DecisionEvent {
	return DecisionEvent{
		BaseEvent: BaseEvent{EventTimestamp: time.Now(), EventType: EventTypeDecision, RunID: runID},
		Class:     d.Class,
		Table:     d.Table,
		Action:    d.Action,
		Decision:  d.Decision,
		Reason:    d.Reason,
		Rows:      d.Rows,
		Dead:      d.Dead,
		Size:      d.Size,
		DryRun:    d.DryRun,
	}
}

// ClassSummary holds the counters of one selection class.
type ClassSummary struct {
	Class             string `json:"class"`
	Evaluated         int    `json:"evaluated"`
	Dispatched        int    `json:"dispatched"`
	PartitionsSkipped int    `json:"partitions_skipped"`
}

// Summary is the final tally of a run.
type Summary struct {
	RunID             string         `json:"run_id"`
	Version           string         `json:"version"`
	Database          string         `json:"database"`
	DryRun            bool           `json:"dry_run"`
	Started           time.Time      `json:"started"`
	Finished          time.Time      `json:"finished"`
	Classes           []ClassSummary `json:"classes"`
	Dispatched        int            `json:"dispatched"`
	Skipped           int            `json:"skipped"`
	PartitionsSkipped int            `json:"partitions_skipped"`
	Failed            int            `json:"failed"`
	AsyncJobs         int            `json:"async_jobs"`
	FreezeBypassed    int            `json:"freeze_bypassed"`
	ActiveJobs        int            `json:"active_jobs"`
	Tables            []string       `json:"tables,omitempty"`
}

// Duration is the wall time between start and finish.
func (s Summary) Duration() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}

// ReportEvent carries the final summary of a run.
type ReportEvent struct {
	BaseEvent
	Summary Summary `json:"summary"`
}

func NewReportEvent(summary Summary) ReportEvent {
	return ReportEvent{
		BaseEvent: BaseEvent{EventTimestamp: time.Now(), EventType: EventTypeReport, RunID: summary.RunID},
		Summary:   summary,
	}
}

// ErrorEvent for error reporting
type ErrorEvent struct {
	BaseEvent
	Message string `json:"message"`
	Table   string `json:"table,omitempty"`
}

func NewErrorEvent(runID string, table string, err error) ErrorEvent {
	return ErrorEvent{
		BaseEvent: BaseEvent{EventTimestamp: time.Now(), EventType: EventTypeError, RunID: runID},
		Message:   err.Error(),
		Table:     table,
	}
}
