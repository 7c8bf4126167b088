package pg

import (
	"context"
	"fmt"

	"github.com/dbtuneai/pgvacuum/pkg/maintenance"
	"github.com/jackc/pgx/v5"
)

// ActionStatement renders the maintenance statement for a table. The table
// name is quoted, so mixed case and unusual names are safe.
func ActionStatement(action maintenance.Action, schema, table string) (string, error) {
	target := pgx.Identifier{schema, table}.Sanitize()
	switch action {
	case maintenance.ActionFreeze:
		return "VACUUM (FREEZE, VERBOSE) " + target, nil
	case maintenance.ActionVacuumAnalyze:
		return "VACUUM (ANALYZE, VERBOSE) " + target, nil
	case maintenance.ActionVacuum:
		return "VACUUM VERBOSE " + target, nil
	case maintenance.ActionAnalyze:
		return "ANALYZE VERBOSE " + target, nil
	default:
		return "", fmt.Errorf("unknown maintenance action %q", action)
	}
}

// Executor runs maintenance statements on an existing session. VACUUM
// cannot run inside a transaction block, so statements go through the
// simple protocol as single implicit transactions.
type Executor struct {
	q Querier
}

func NewExecutor(q Querier) *Executor {
	return &Executor{q: q}
}

func (e *Executor) Execute(ctx context.Context, action maintenance.Action, c maintenance.Candidate) error {
	return e.Run(ctx, action, c.Schema, c.Table)
}

// Run executes action against schema.table.
func (e *Executor) Run(ctx context.Context, action maintenance.Action, schema, table string) error {
	stmt, err := ActionStatement(action, schema, table)
	if err != nil {
		return err
	}
	if _, err := e.q.Exec(ctx, stmt, pgx.QueryExecModeSimpleProtocol); err != nil {
		return fmt.Errorf("%s failed: %w", stmt, err)
	}
	return nil
}
