package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps each command line flag to the configuration key it sets.
// The short names follow the historical cron invocations of the tool.
var flagKeys = map[string]string{
	"dryrun":         "dry_run",
	"freeze":         "freeze",
	"host":           "host",
	"dbname":         "dbname",
	"dbuser":         "user",
	"dbport":         "port",
	"schema":         "schema",
	"maxsize":        "max_table_size",
	"maxsyncsize":    "max_sync_size",
	"asyncrows":      "async_row_threshold",
	"analyzemaxdays": "max_days_analyze",
	"vacuummaxdays":  "max_days_vacuum",
	"pctfreeze":      "freeze_pct",
	"mindeadtups":    "min_dead_tuples",
	"inquiry":        "inquiry",
	"ignoreparts":    "ignore_partitions",
	"maxjobs":        "max_concurrent_jobs",
	"decision-log":   "decision_log",
	"report-url":     "report_url",
	"metrics-file":   "metrics_textfile",
	"lock-file":      "lock_file",
	"job-log":        "job_log",
}

// RegisterFlags defines the run flags on fs. Defaults shown in the help
// output come from SetDefaults, the flag values only count when set.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.BoolP("dryrun", "r", false, "dry run: log decisions without executing or launching anything")
	fs.BoolP("freeze", "f", false, "execute VACUUM FREEZE actions")
	fs.StringP("host", "H", "localhost", "database host name")
	fs.StringP("dbname", "d", "", "database name")
	fs.StringP("dbuser", "U", "postgres", "database user")
	fs.IntP("dbport", "p", 5432, "database port")
	fs.StringP("schema", "m", "", "only consider tables in this schema")
	fs.Int64P("maxsize", "s", 400*GB, "tables larger than this many bytes are never automated")
	fs.Int64("maxsyncsize", 100*GB, "tables larger than this many bytes are processed asynchronously")
	fs.Int64("asyncrows", 100000000, "tables with more rows than this are processed asynchronously")
	fs.IntP("analyzemaxdays", "y", 60, "analyze tables not analyzed for more than this many days")
	fs.IntP("vacuummaxdays", "x", 30, "vacuum tables not vacuumed for more than this many days")
	fs.IntP("pctfreeze", "z", 90, "minimum percent of autovacuum_freeze_max_age before freezing (10-99)")
	fs.Int64P("mindeadtups", "t", 10000, "minimum dead tuples before a vacuum is considered")
	fs.StringP("inquiry", "q", "", "report table statistics after the run: all or found")
	fs.BoolP("ignoreparts", "i", false, "ignore partition tables")
	fs.Int("maxjobs", 12, "maximum concurrently active maintenance jobs")
	fs.String("decision-log", "", "append every decision as a JSON line to this file")
	fs.String("report-url", "", "POST the final run report to this URL")
	fs.String("metrics-file", "", "write run counters in prometheus text format to this file")
	fs.String("lock-file", "", "hold an exclusive lock on this file for the duration of the run")
	fs.String("job-log", "", "append the output of detached jobs to this file")
}

// BindFlags binds every flag registered by RegisterFlags to its key on v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("unable to bind flag %s: %w", name, err)
		}
	}
	return nil
}
