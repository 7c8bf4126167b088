package main

import (
	"fmt"

	"github.com/dbtuneai/pgvacuum/pkg/config"
	"github.com/dbtuneai/pgvacuum/pkg/runner"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// commandContext carries the persistent flags shared by every subcommand.
type commandContext struct {
	configFile string
	debug      bool
}

// load reads the configuration: defaults, file, environment, then the run
// flags of fs when given.
func (c *commandContext) load(fs *pflag.FlagSet) (config.Config, error) {
	v, err := config.NewViper(c.configFile)
	if err != nil {
		return config.Config{}, err
	}
	if fs != nil {
		if err := config.BindFlags(v, fs); err != nil {
			return config.Config{}, err
		}
	}
	if c.debug {
		v.Set("debug", true)
	}
	return config.Load(v)
}

// loggedError is a fatal error already written to the log.
type loggedError struct {
	error
}

func (e loggedError) Unwrap() error {
	return e.error
}

// fail logs a fatal error with a timestamp before cobra returns it.
func fail(logger *logrus.Logger, err error) error {
	logger.Errorf("%v", err)
	return loggedError{err}
}

// runMaintenance is the action of both the root command and "run".
func runMaintenance(ctx *commandContext) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := ctx.load(cmd.Flags())
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger := runner.NewLogger(cfg.Debug)

		stop := runner.HandleInterrupts(logger)
		defer stop()

		if err := runner.Run(cmd.Context(), cfg, logger); err != nil {
			return fail(logger, err)
		}
		return nil
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one maintenance pass (the default)",
		Args:  cobra.NoArgs,
		RunE:  runMaintenance(ctx),
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:   "pgvacuum",
		Short: "Vacuum and analyze the tables of a PostgreSQL database that need it",
		Long: "pgvacuum selects tables needing VACUUM FREEZE, VACUUM and ANALYZE from the statistics\n" +
			"catalog, runs small ones inline and hands large ones to detached jobs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runMaintenance(ctx),
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&ctx.debug, "debug", false, "Enable debug logging")
	config.RegisterFlags(rootCmd.Flags())

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newJobCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
