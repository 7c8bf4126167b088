package maintenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dbtuneai/pgvacuum/pkg/internal/utils"
	"github.com/sirupsen/logrus"
)

// DrainController waits, within a bound, for detached jobs to finish before
// the run exits. Jobs still active when the bound is reached are left alone.
type DrainController struct {
	registry ActivityRegistry
	progress ProgressReporter
	interval time.Duration
	attempts int
	sleep    utils.SleepFunc
	logger   *logrus.Logger
}

// NewDrainController returns a controller polling registry at most attempts
// times. progress is optional and only used to name the running tables.
func NewDrainController(
	registry ActivityRegistry,
	progress ProgressReporter,
	interval time.Duration,
	attempts int,
	logger *logrus.Logger,
) *DrainController {
	if attempts < 1 {
		attempts = 1
	}
	return &DrainController{
		registry: registry,
		progress: progress,
		interval: interval,
		attempts: attempts,
		sleep:    utils.Sleep,
		logger:   logger,
	}
}

// Wait returns the number of jobs still active when it stopped polling.
func (d *DrainController) Wait(ctx context.Context) (int, error) {
	active := 0
	for poll := 1; poll <= d.attempts; poll++ {
		var err error
		active, err = d.registry.CountActive(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count active maintenance jobs: %w", err)
		}
		if active == 0 {
			return 0, nil
		}
		if poll == d.attempts {
			break
		}

		d.logger.Infof("NOTE: maintenance jobs still running: %d%s. Waiting another %s before exiting...",
			active, d.describe(ctx), d.interval)
		if err := d.sleep(ctx, d.interval); err != nil {
			return active, err
		}
	}

	d.logger.Warnf("NOTE: Program ending, but %d vacuums/analyzes are still in progress", active)
	return active, nil
}

func (d *DrainController) describe(ctx context.Context) string {
	if d.progress == nil {
		return ""
	}
	tables, err := d.progress.InProgress(ctx)
	if err != nil {
		d.logger.Debugf("unable to list vacuums in progress: %v", err)
		return ""
	}
	if len(tables) == 0 {
		return ""
	}
	return " (" + strings.Join(tables, ", ") + ")"
}
