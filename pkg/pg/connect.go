package pg

import (
	"context"
	"fmt"

	"github.com/dbtuneai/pgvacuum/pkg/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of *pgxpool.Pool used by this package.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens the single session used by a run. The pool never grows past
// one connection so that inline actions and registry queries share the
// session the single-instance guard counted.
func Connect(ctx context.Context, db config.Database) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(db.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("invalid connection settings: %w", err)
	}
	poolConfig.MaxConns = 1
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s:%d/%s: %w", db.Host, db.Port, db.DBName, err)
	}

	if _, err := pool.Exec(ctx, Select1Query); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to %s:%d/%s: %w", db.Host, db.Port, db.DBName, err)
	}

	return pool, nil
}

// ServerVersionNum returns server_version_num, e.g. 160004.
func ServerVersionNum(ctx context.Context, q Querier) (int, error) {
	var num int
	if err := q.QueryRow(ctx, ServerVersionNumQuery).Scan(&num); err != nil {
		return 0, fmt.Errorf("error getting server version: %w", err)
	}
	return num, nil
}

// ServerVersion returns the human readable server version, e.g. 16.4.
func ServerVersion(ctx context.Context, q Querier) (string, error) {
	var version string
	if err := q.QueryRow(ctx, ServerVersionQuery).Scan(&version); err != nil {
		return "", fmt.Errorf("error getting server version: %w", err)
	}
	return version, nil
}
