package main

import (
	"fmt"

	"github.com/dbtuneai/pgvacuum/pkg/launcher"
	"github.com/dbtuneai/pgvacuum/pkg/maintenance"
	"github.com/dbtuneai/pgvacuum/pkg/runner"
	"github.com/spf13/cobra"
)

// newJobCommand is the entry point of the detached jobs started by a run.
// The connection settings come from the environment set by the launcher.
func newJobCommand(ctx *commandContext) *cobra.Command {
	var job maintenance.Job
	var action string

	cmd := &cobra.Command{
		Use:    launcher.JOB_COMMAND,
		Short:  "Run a single maintenance action",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := maintenance.ParseAction(action)
			if err != nil {
				return err
			}
			job.Action = a

			cfg, err := ctx.load(nil)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger := runner.NewLogger(cfg.Debug)

			if err := runner.RunJob(cmd.Context(), cfg, job, logger); err != nil {
				return fail(logger, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "freeze, vacuum_analyze, vacuum or analyze")
	cmd.Flags().StringVar(&job.Schema, "schema", "", "schema of the table")
	cmd.Flags().StringVar(&job.Table, "table", "", "table name")
	cmd.Flags().StringVar(&job.RunID, "run-id", "", "id of the run that launched the job")
	for _, name := range []string{"action", "schema", "table"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}
