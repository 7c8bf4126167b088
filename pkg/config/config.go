package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbtuneai/pgvacuum/pkg/internal/utils"
	"github.com/spf13/viper"
)

const (
	DEFAULT_CONFIG_NAME      = "pgvacuum"
	DEFAULT_ENV_PREFIX       = "PGV"
	DEFAULT_APPLICATION_NAME = "pgvacuum"

	GB = int64(1000 * 1000 * 1000)
	MB = int64(1000 * 1000)

	// Values at or below the floor are ignored in favour of the built-in
	// dead tuple threshold.
	MIN_DEAD_TUPLES_FLOOR   = 100
	MIN_DEAD_TUPLES_BUILTIN = 1000
)

// Database holds the connection settings for the engine and for every
// detached job it launches.
type Database struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	DBName          string        `mapstructure:"dbname" validate:"required"`
	User            string        `mapstructure:"user" validate:"required"`
	ApplicationName string        `mapstructure:"application_name" validate:"required"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// ConnectionString renders a libpq keyword/value connection string.
// The password is never part of it: it comes from PGPASSWORD or ~/.pgpass.
func (d Database) ConnectionString() string {
	parts := []string{
		"host=" + quoteConnValue(d.Host),
		fmt.Sprintf("port=%d", d.Port),
		"dbname=" + quoteConnValue(d.DBName),
		"user=" + quoteConnValue(d.User),
		"application_name=" + quoteConnValue(d.ApplicationName),
	}
	if d.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(d.ConnectTimeout.Seconds())))
	}
	return strings.Join(parts, " ")
}

func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Policy holds the thresholds that drive candidate selection and dispatch.
type Policy struct {
	MaxTableSize      int64 `mapstructure:"max_table_size" validate:"gte=0"`
	MaxSyncSize       int64 `mapstructure:"max_sync_size" validate:"gte=0"`
	AsyncRowThreshold int64 `mapstructure:"async_row_threshold" validate:"gte=0"`
	MinDeadTuples     int64 `mapstructure:"min_dead_tuples" validate:"gte=0"`
	MinTableSize      int64 `mapstructure:"min_table_size" validate:"gte=0"`
	MaxDaysAnalyze    int   `mapstructure:"max_days_analyze" validate:"gte=0"`
	MaxDaysVacuum     int   `mapstructure:"max_days_vacuum" validate:"gte=0"`
	FreezePct         int   `mapstructure:"freeze_pct" validate:"gte=10,lte=99"`
	FreezeWindow      int64 `mapstructure:"freeze_window" validate:"gte=1"`
	FreezeLimit       int   `mapstructure:"freeze_limit" validate:"gte=1"`
	MaxConcurrentJobs int   `mapstructure:"max_concurrent_jobs" validate:"gte=1"`
}

// Mode holds the operator switches of one invocation.
type Mode struct {
	DryRun           bool   `mapstructure:"dry_run"`
	Freeze           bool   `mapstructure:"freeze"`
	IgnorePartitions bool   `mapstructure:"ignore_partitions"`
	Schema           string `mapstructure:"schema"`
	Inquiry          string `mapstructure:"inquiry" validate:"omitempty,oneof=all found"`
}

// Timing holds the polling intervals and their bounds.
type Timing struct {
	LoadThreshold     float64       `mapstructure:"load_threshold" validate:"gt=0"`
	LoadInterval      time.Duration `mapstructure:"load_interval" validate:"gte=0"`
	LoadAttempts      int           `mapstructure:"load_attempts" validate:"gte=0"`
	AdmissionInterval time.Duration `mapstructure:"admission_interval" validate:"gte=0"`
	AdmissionMaxPolls int           `mapstructure:"admission_max_polls" validate:"gte=0"`
	DrainInterval     time.Duration `mapstructure:"drain_interval" validate:"gte=0"`
	DrainAttempts     int           `mapstructure:"drain_attempts" validate:"gte=1"`
}

// Outputs holds the optional destinations besides standard output.
type Outputs struct {
	DecisionLog     string `mapstructure:"decision_log"`
	ReportURL       string `mapstructure:"report_url" validate:"omitempty,url"`
	MetricsTextfile string `mapstructure:"metrics_textfile"`
	LockFile        string `mapstructure:"lock_file"`
	JobLog          string `mapstructure:"job_log"`
}

type Config struct {
	Database Database `mapstructure:",squash"`
	Policy   Policy   `mapstructure:",squash"`
	Mode     Mode     `mapstructure:",squash"`
	Timing   Timing   `mapstructure:",squash"`
	Outputs  Outputs  `mapstructure:",squash"`
	Debug    bool     `mapstructure:"debug"`
}

// Keys lists every configuration key understood by pgvacuum.
var Keys = []string{
	"host", "port", "dbname", "user", "application_name", "connect_timeout",
	"max_table_size", "max_sync_size", "async_row_threshold", "min_dead_tuples",
	"min_table_size", "max_days_analyze", "max_days_vacuum", "freeze_pct",
	"freeze_window", "freeze_limit", "max_concurrent_jobs",
	"dry_run", "freeze", "ignore_partitions", "schema", "inquiry",
	"load_threshold", "load_interval", "load_attempts", "admission_interval",
	"admission_max_polls", "drain_interval", "drain_attempts",
	"decision_log", "report_url", "metrics_textfile", "lock_file", "job_log",
	"debug",
}

// SetDefaults registers the built-in values of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 5432)
	v.SetDefault("user", "postgres")
	v.SetDefault("application_name", DEFAULT_APPLICATION_NAME)
	v.SetDefault("connect_timeout", 30*time.Second)

	v.SetDefault("max_table_size", 400*GB)
	v.SetDefault("max_sync_size", 100*GB)
	v.SetDefault("async_row_threshold", int64(100000000))
	v.SetDefault("min_dead_tuples", int64(10000))
	v.SetDefault("min_table_size", 50*MB)
	v.SetDefault("max_days_analyze", 60)
	v.SetDefault("max_days_vacuum", 30)
	v.SetDefault("freeze_pct", 90)
	v.SetDefault("freeze_window", int64(25000000))
	v.SetDefault("freeze_limit", 60)
	v.SetDefault("max_concurrent_jobs", 12)

	v.SetDefault("load_threshold", 250.0)
	v.SetDefault("load_interval", 5*time.Minute)
	v.SetDefault("load_attempts", 6)
	v.SetDefault("admission_interval", 5*time.Minute)
	v.SetDefault("admission_max_polls", 0)
	v.SetDefault("drain_interval", 5*time.Minute)
	v.SetDefault("drain_attempts", 20)
}

// NewViper returns a viper instance wired the way every pgvacuum command
// reads its configuration: defaults, then an optional yaml file, then
// PGV_ prefixed environment variables. Flags are bound by BindFlags.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(DEFAULT_ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows about, so bind every key
	// to its environment variable up front.
	for _, key := range Keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("unable to bind %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(DEFAULT_CONFIG_NAME)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit --config path that does not exist is an error,
		// a missing default file is not.
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %v", err)
	}

	cfg.Policy.MinDeadTuples = EffectiveMinDeadTuples(cfg.Policy.MinDeadTuples)

	if err := utils.ValidateStruct(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// EffectiveMinDeadTuples applies the floor below which an operator supplied
// dead tuple threshold is ignored.
func EffectiveMinDeadTuples(v int64) int64 {
	if v <= MIN_DEAD_TUPLES_FLOOR {
		return MIN_DEAD_TUPLES_BUILTIN
	}
	return v
}

// Environ renders the connection settings as PGV_ environment variables so
// that a child process reading its configuration through NewViper connects
// to the same database as its parent.
func (c Config) Environ() []string {
	return []string{
		DEFAULT_ENV_PREFIX + "_HOST=" + c.Database.Host,
		fmt.Sprintf("%s_PORT=%d", DEFAULT_ENV_PREFIX, c.Database.Port),
		DEFAULT_ENV_PREFIX + "_DBNAME=" + c.Database.DBName,
		DEFAULT_ENV_PREFIX + "_USER=" + c.Database.User,
		DEFAULT_ENV_PREFIX + "_APPLICATION_NAME=" + c.Database.ApplicationName,
		fmt.Sprintf("%s_CONNECT_TIMEOUT=%s", DEFAULT_ENV_PREFIX, c.Database.ConnectTimeout),
		fmt.Sprintf("%s_DEBUG=%t", DEFAULT_ENV_PREFIX, c.Debug),
	}
}
