package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TableStats is the per table view printed by inquiry mode.
type TableStats struct {
	Schema          string     `json:"schema"`
	Table           string     `json:"table"`
	SizeBytes       int64      `json:"size_bytes"`
	XIDAge          int64      `json:"xid_age"`
	Rows            int64      `json:"n_tup"`
	LiveTuples      int64      `json:"n_live_tup"`
	DeadTuples      int64      `json:"n_dead_tup"`
	LastVacuum      *time.Time `json:"last_vacuum,omitempty"`
	LastAutoVacuum  *time.Time `json:"last_autovacuum,omitempty"`
	LastAnalyze     *time.Time `json:"last_analyze,omitempty"`
	LastAutoAnalyze *time.Time `json:"last_autoanalyze,omitempty"`
}

func (t TableStats) Identifier() string {
	return t.Schema + "." + t.Table
}

// TableStatistics returns the statistics of every user table, optionally
// restricted to one schema.
func TableStatistics(ctx context.Context, q Querier, schema string) ([]TableStats, error) {
	rows, err := q.Query(ctx, TableStatsQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("error querying table statistics: %w", err)
	}
	stats, err := pgx.CollectRows(rows, pgx.RowToStructByPos[TableStats])
	if err != nil {
		return nil, fmt.Errorf("error reading table statistics: %w", err)
	}
	return stats, nil
}

// FilterTables keeps the statistics of the named tables only.
func FilterTables(stats []TableStats, identifiers []string) []TableStats {
	keep := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		keep[id] = struct{}{}
	}
	var out []TableStats
	for _, s := range stats {
		if _, ok := keep[s.Identifier()]; ok {
			out = append(out, s)
		}
	}
	return out
}
