package metrics

import (
	"fmt"
	"math"
	"reflect"

	"github.com/dbtuneai/pgvacuum/pkg/events"
)

type MetricType string

const (
	Int     MetricType = "int"
	Float   MetricType = "float"
	Bytes   MetricType = "bytes"
	Boolean MetricType = "boolean"
	Time    MetricType = "time"
)

// FlatValue is a struct that represents
// a flat metric value.
type FlatValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
	Type  MetricType  `json:"type"`
	// Class is set for the per selection class counters.
	Class string `json:"class,omitempty"`
}

// NewMetric creates a new Metric object based on the provided key, value, and type.
func NewMetric(key string, value interface{}, typeStr MetricType) (FlatValue, error) {
	switch typeStr {
	case Int, Bytes, Time:
		v := reflect.ValueOf(value)
		if !(v.Kind() >= reflect.Int && v.Kind() <= reflect.Uint64) {
			return FlatValue{}, fmt.Errorf("value is not of type int")
		}
		// If value is uint64, try to safely cast to int64
		if v.Kind() == reflect.Uint64 {
			intVal, err := TryUint64ToInt64(v.Interface().(uint64))
			if err != nil {
				return FlatValue{}, err
			}
			value = intVal
		}
	case Float:
		if _, ok := value.(float64); !ok {
			return FlatValue{}, fmt.Errorf("value is not of type float")
		}
	case Boolean:
		if _, ok := value.(bool); !ok {
			return FlatValue{}, fmt.Errorf("value is not of type boolean")
		}
	default:
		return FlatValue{}, fmt.Errorf("unknown type: %s", typeStr)
	}

	return FlatValue{
		Key:   key,
		Value: value,
		Type:  typeStr,
	}, nil
}

// Float64 returns the numeric value of the metric.
func (f FlatValue) Float64() float64 {
	switch v := f.Value.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return v
	}
	rv := reflect.ValueOf(f.Value)
	switch {
	case rv.Kind() >= reflect.Int && rv.Kind() <= reflect.Int64:
		return float64(rv.Int())
	case rv.Kind() >= reflect.Uint && rv.Kind() <= reflect.Uint64:
		return float64(rv.Uint())
	}
	return math.NaN()
}

// truncateFloat rounds to three decimals.
func truncateFloat(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func TryUint64ToInt64(value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, fmt.Errorf("value is too large to convert to int64")
	}
	return int64(value), nil
}

type MetricDef struct {
	Key  string
	Help string
	Type MetricType
}

func (m MetricDef) AsFlatValue(value any) (FlatValue, error) {
	return NewMetric(m.Key, value, m.Type)
}

var (
	// Run
	RunDryRun           = MetricDef{Key: "run_dry_run", Help: "Whether the last run was a dry run.", Type: Boolean}
	RunTimestamp        = MetricDef{Key: "run_timestamp_seconds", Help: "Unix time the last run finished.", Type: Time}
	RunDurationSeconds  = MetricDef{Key: "run_duration_seconds", Help: "Wall time of the last run.", Type: Float}
	RunDispatched       = MetricDef{Key: "run_dispatched", Help: "Tables dispatched by the last run.", Type: Int}
	RunSkipped          = MetricDef{Key: "run_skipped", Help: "Tables skipped by the last run, partitions included.", Type: Int}
	RunPartitionSkipped = MetricDef{Key: "run_partitions_skipped", Help: "Partitions ignored by the last run.", Type: Int}
	RunFailed           = MetricDef{Key: "run_failed", Help: "Actions that failed during the last run.", Type: Int}
	RunAsyncJobs        = MetricDef{Key: "run_async_jobs", Help: "Detached jobs launched by the last run.", Type: Int}
	RunFreezeBypassed   = MetricDef{Key: "run_freeze_bypassed", Help: "Freeze candidates bypassed because freezing was disabled.", Type: Int}
	RunActiveJobs       = MetricDef{Key: "run_active_jobs", Help: "Jobs still active when the last run exited.", Type: Int}

	// Per class
	ClassEvaluated  = MetricDef{Key: "class_evaluated", Help: "Candidates evaluated per selection class.", Type: Int}
	ClassDispatched = MetricDef{Key: "class_dispatched", Help: "Candidates dispatched per selection class.", Type: Int}
)

// SummaryValues flattens a run summary. Per class values carry their class.
func SummaryValues(s events.Summary) ([]FlatValue, error) {
	type entry struct {
		def   MetricDef
		value any
	}
	entries := []entry{
		{RunDryRun, s.DryRun},
		{RunTimestamp, s.Finished.Unix()},
		{RunDurationSeconds, truncateFloat(s.Duration().Seconds())},
		{RunDispatched, s.Dispatched},
		{RunSkipped, s.Skipped},
		{RunPartitionSkipped, s.PartitionsSkipped},
		{RunFailed, s.Failed},
		{RunAsyncJobs, s.AsyncJobs},
		{RunFreezeBypassed, s.FreezeBypassed},
		{RunActiveJobs, s.ActiveJobs},
	}

	values := make([]FlatValue, 0, len(entries)+2*len(s.Classes))
	for _, e := range entries {
		v, err := e.def.AsFlatValue(e.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.def.Key, err)
		}
		values = append(values, v)
	}

	for _, c := range s.Classes {
		for _, e := range []entry{{ClassEvaluated, c.Evaluated}, {ClassDispatched, c.Dispatched}} {
			v, err := e.def.AsFlatValue(e.value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", e.def.Key, err)
			}
			v.Class = c.Class
			values = append(values, v)
		}
	}
	return values, nil
}
