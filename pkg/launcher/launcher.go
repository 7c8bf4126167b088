package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/dbtuneai/pgvacuum/pkg/maintenance"
	"github.com/sirupsen/logrus"
)

// JOB_COMMAND is the hidden subcommand a detached job runs.
const JOB_COMMAND = "job"

// Launcher starts maintenance jobs as detached copies of the running
// binary. A launched job opens its own connection, so it outlives the run
// that started it.
type Launcher struct {
	executable string
	env        []string
	jobLog     string
	logger     *logrus.Logger
}

// New returns a Launcher re-executing executable. env is appended to the
// current environment of every job, jobLog receives their output when set.
func New(executable string, env []string, jobLog string, logger *logrus.Logger) *Launcher {
	return &Launcher{
		executable: executable,
		env:        env,
		jobLog:     jobLog,
		logger:     logger,
	}
}

// Args returns the command line arguments of job.
func Args(job maintenance.Job) []string {
	return []string{
		JOB_COMMAND,
		"--action", string(job.Action),
		"--schema", job.Schema,
		"--table", job.Table,
		"--run-id", job.RunID,
	}
}

// Command builds the process for job without starting it.
func (l *Launcher) Command(job maintenance.Job) *exec.Cmd {
	cmd := exec.Command(l.executable, Args(job)...)
	cmd.Env = append(os.Environ(), l.env...)
	detach(cmd)
	return cmd
}

func (l *Launcher) LaunchDetached(ctx context.Context, job maintenance.Job) (maintenance.LaunchResult, error) {
	if err := ctx.Err(); err != nil {
		return maintenance.LaunchResult{}, err
	}

	cmd := l.Command(job)
	if l.jobLog != "" {
		f, err := os.OpenFile(l.jobLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return maintenance.LaunchResult{}, fmt.Errorf("failed to open job log %s: %w", l.jobLog, err)
		}
		// The child keeps its own descriptor once started.
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return maintenance.LaunchResult{}, fmt.Errorf("failed to start %s job for %s: %w", job.Action, job.Identifier(), err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		l.logger.Debugf("unable to release job process %d: %v", pid, err)
	}

	return maintenance.LaunchResult{OK: true, PID: pid}, nil
}
