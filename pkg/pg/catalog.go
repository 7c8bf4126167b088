package pg

import (
	"context"
	"fmt"

	"github.com/dbtuneai/pgvacuum/pkg/maintenance"
	"github.com/jackc/pgx/v5"
)

// CandidateRow is one row of a selection query, in column order.
type CandidateRow struct {
	Schema       string
	Table        string
	Rows         int64
	DeadTuples   int64
	SizeBytes    int64
	IsPartition  bool
	XIDAge       int64
	FreezeMaxAge int64
	DaysSince    *int64
}

// Candidate converts the row into the candidate of class.
func (r CandidateRow) Candidate(class maintenance.Class) maintenance.Candidate {
	c := maintenance.Candidate{
		Schema:      r.Schema,
		Table:       r.Table,
		Class:       class,
		Rows:        r.Rows,
		DeadTuples:  r.DeadTuples,
		SizeBytes:   r.SizeBytes,
		IsPartition: r.IsPartition,
	}
	if r.FreezeMaxAge > 0 {
		c.FreezeUrgencyPct = float64(r.XIDAge) / float64(r.FreezeMaxAge) * 100
	}
	if r.DaysSince != nil {
		days := int(*r.DaysSince)
		c.DaysSinceMaintenance = &days
	}
	return c
}

// Catalog is the pgx backed maintenance.CatalogInspector.
type Catalog struct {
	q                Querier
	serverVersionNum int
}

func NewCatalog(q Querier, serverVersionNum int) *Catalog {
	return &Catalog{q: q, serverVersionNum: serverVersionNum}
}

func (c *Catalog) Select(ctx context.Context, class maintenance.Class, f maintenance.Filter) ([]maintenance.Candidate, error) {
	query, err := CandidateQuery(class, c.serverVersionNum)
	if err != nil {
		return nil, err
	}

	rows, err := c.q.Query(ctx, query, CandidateArgs(class, f)...)
	if err != nil {
		return nil, fmt.Errorf("error selecting %s candidates: %w", class, err)
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByPos[CandidateRow])
	if err != nil {
		return nil, fmt.Errorf("error reading %s candidates: %w", class, err)
	}

	candidates := make([]maintenance.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, r.Candidate(class))
	}
	return candidates, nil
}
