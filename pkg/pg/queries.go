package pg

import (
	"fmt"

	"github.com/dbtuneai/pgvacuum/pkg/maintenance"
)

// Every query carries the /*pgvacuum*/ tag so that it can be told apart from
// maintenance statements in pg_stat_activity. The VACUUM and ANALYZE
// statements themselves are left untagged: the active job count matches
// them by prefix.

const Select1Query = `
/*pgvacuum*/
SELECT 1;
`

const ServerVersionNumQuery = `
/*pgvacuum*/
SELECT current_setting('server_version_num')::integer;
`

const ServerVersionQuery = `
/*pgvacuum*/
SELECT current_setting('server_version');
`

// InstanceCountQuery counts every session registered under the application
// name, the caller's own session included.
const InstanceCountQuery = `
/*pgvacuum*/
SELECT COUNT(*)
FROM pg_stat_activity
WHERE application_name = $1;
`

// ActiveJobsQuery counts the maintenance statements currently running under
// the application name. The caller's own session is excluded.
const ActiveJobsQuery = `
/*pgvacuum*/
SELECT COUNT(*)
FROM pg_stat_activity
WHERE application_name = $1
  AND state = 'active'
  AND (query ILIKE 'VACUUM%' OR query ILIKE 'ANALYZE%')
  AND pid <> pg_backend_pid();
`

const VacuumProgressQuery = `
/*pgvacuum*/
SELECT COALESCE(array_agg(relid::regclass::text ORDER BY relid), '{}')
FROM pg_stat_progress_vacuum;
`

// PostgreSQL 10 introduced declarative partitioning and relispartition.
const partitionColumnSinceV10 = `c.relispartition`

const partitionColumnLegacy = `EXISTS (SELECT 1 FROM pg_inherits i WHERE i.inhrelid = c.oid)`

const candidateStatsCTE = `
/*pgvacuum*/
WITH stats AS (
    SELECT
        n.nspname AS schema_name,
        c.relname AS table_name,
        GREATEST(c.reltuples, 0)::bigint AS n_tup,
        COALESCE(u.n_dead_tup, 0)::bigint AS dead_tup,
        pg_total_relation_size(c.oid) AS size_bytes,
        %s AS is_partition,
        age(c.relfrozenxid)::bigint AS xid_age,
        current_setting('autovacuum_freeze_max_age')::bigint AS freeze_max_age,
        (current_date - GREATEST(u.last_vacuum, u.last_autovacuum)::date)::bigint AS days_vacuum,
        (current_date - GREATEST(u.last_analyze, u.last_autoanalyze)::date)::bigint AS days_analyze
    FROM pg_class c
    JOIN pg_namespace n ON n.oid = c.relnamespace
    JOIN pg_stat_user_tables u ON u.relid = c.oid
    WHERE c.relkind IN ('r', 'm')
      AND n.nspname NOT IN ('pg_catalog', 'pg_toast', 'information_schema')
      AND ($1::text = '' OR n.nspname = $1::text)
)
SELECT schema_name, table_name, n_tup, dead_tup, size_bytes, is_partition,
       xid_age, freeze_max_age, %s AS days_since
FROM stats
WHERE %s
ORDER BY %s
`

// classPredicate holds the selection rules of one class. Parameters are
// numbered from $2, $1 is always the schema filter.
type classPredicate struct {
	where     string
	daysSince string
	orderBy   string
	limit     bool
}

var classPredicates = map[maintenance.Class]classPredicate{
	maintenance.ClassFreeze: {
		where:     `freeze_max_age - xid_age > 1 AND freeze_max_age - xid_age < $2::bigint`,
		daysSince: `days_vacuum`,
		orderBy:   `xid_age DESC, schema_name, table_name`,
		limit:     true,
	},
	maintenance.ClassVacuumAnalyze: {
		where: `(dead_tup > $2::bigint AND size_bytes > $3::bigint
        AND days_vacuum > $4::bigint AND days_analyze > $4::bigint)
    OR days_vacuum IS NULL OR days_analyze IS NULL`,
		daysSince: `LEAST(days_vacuum, days_analyze)`,
		orderBy:   `dead_tup DESC, schema_name, table_name`,
	},
	maintenance.ClassVacuum: {
		where:     `dead_tup > $2::bigint OR days_vacuum IS NULL`,
		daysSince: `days_vacuum`,
		orderBy:   `dead_tup DESC, schema_name, table_name`,
	},
	maintenance.ClassAnalyzeSmall: {
		where:     `days_analyze > $2::bigint AND size_bytes <= $3::bigint`,
		daysSince: `days_analyze`,
		orderBy:   `days_analyze DESC, schema_name, table_name`,
	},
	maintenance.ClassAnalyzeBig: {
		where:     `(days_analyze IS NULL OR days_analyze > $2::bigint) AND size_bytes > $3::bigint`,
		daysSince: `days_analyze`,
		orderBy:   `size_bytes DESC, schema_name, table_name`,
	},
	maintenance.ClassStaleAnalyze: {
		where:     `days_analyze > $2::bigint`,
		daysSince: `days_analyze`,
		orderBy:   `days_analyze DESC, schema_name, table_name`,
	},
	maintenance.ClassStaleVacuum: {
		where:     `days_vacuum > $2::bigint`,
		daysSince: `days_vacuum`,
		orderBy:   `days_vacuum DESC, schema_name, table_name`,
	},
}

// CandidateQuery renders the selection query of class for a server of the
// given server_version_num.
func CandidateQuery(class maintenance.Class, serverVersionNum int) (string, error) {
	p, ok := classPredicates[class]
	if !ok {
		return "", fmt.Errorf("no selection query for class %s", class)
	}

	partition := partitionColumnSinceV10
	if serverVersionNum < 100000 {
		partition = partitionColumnLegacy
	}

	query := fmt.Sprintf(candidateStatsCTE, partition, p.daysSince, p.where, p.orderBy)
	if p.limit {
		query += "LIMIT $3::integer\n"
	}
	return query, nil
}

// CandidateArgs returns the parameters matching CandidateQuery for class.
func CandidateArgs(class maintenance.Class, f maintenance.Filter) []any {
	switch class {
	case maintenance.ClassFreeze:
		return []any{f.Schema, f.FreezeWindow, f.FreezeLimit}
	case maintenance.ClassVacuumAnalyze:
		return []any{f.Schema, f.MinDeadTuples, f.MinTableSize, f.MaxDaysAnalyze}
	case maintenance.ClassVacuum:
		return []any{f.Schema, f.MinDeadTuples}
	case maintenance.ClassAnalyzeSmall, maintenance.ClassAnalyzeBig:
		return []any{f.Schema, f.MaxDaysAnalyze, f.MinTableSize}
	case maintenance.ClassStaleAnalyze:
		return []any{f.Schema, f.MaxDaysAnalyze}
	case maintenance.ClassStaleVacuum:
		return []any{f.Schema, f.MaxDaysVacuum}
	default:
		return []any{f.Schema}
	}
}

const TableStatsQuery = `
/*pgvacuum*/
SELECT
    n.nspname AS schema_name,
    c.relname AS table_name,
    pg_total_relation_size(c.oid) AS size_bytes,
    age(c.relfrozenxid)::bigint AS xid_age,
    GREATEST(c.reltuples, 0)::bigint AS n_tup,
    u.n_live_tup::bigint,
    u.n_dead_tup::bigint,
    u.last_vacuum,
    u.last_autovacuum,
    u.last_analyze,
    u.last_autoanalyze
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
JOIN pg_stat_user_tables u ON u.relid = c.oid
WHERE c.relkind IN ('r', 'm')
  AND n.nspname NOT IN ('pg_catalog', 'pg_toast', 'information_schema')
  AND ($1::text = '' OR n.nspname = $1::text)
ORDER BY n.nspname, c.relname;
`
