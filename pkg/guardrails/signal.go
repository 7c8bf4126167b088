package guardrails

type CriticalityLevel string

const (
	// Critical means the run must not start while the signal holds.
	Critical CriticalityLevel = "critical"
	// NonCritical is logged but does not hold the run back.
	NonCritical CriticalityLevel = "non-critical"
)

type Type string

const (
	Load Type = "load"
)

type Signal struct {
	Level CriticalityLevel `json:"level"`
	Type  Type             `json:"type"`
	// LoadPct is the one minute load average as a percentage of the
	// logical cpu count.
	LoadPct float64 `json:"load_pct"`
}
