package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/dbtuneai/pgvacuum/pkg/internal/utils"
	"github.com/sirupsen/logrus"
)

// AdmissionController enforces the concurrency cap on asynchronous jobs.
// The run keeps an optimistic local estimate and only asks the database for
// the authoritative count once the estimate exceeds the cap.
type AdmissionController struct {
	registry ActivityRegistry
	interval time.Duration
	// maxPolls bounds the polls spent on a single candidate. Zero waits
	// until the database reports room under the cap.
	maxPolls int
	sleep    utils.SleepFunc
	logger   *logrus.Logger
}

func NewAdmissionController(
	registry ActivityRegistry,
	interval time.Duration,
	maxPolls int,
	logger *logrus.Logger,
) *AdmissionController {
	return &AdmissionController{
		registry: registry,
		interval: interval,
		maxPolls: maxPolls,
		sleep:    utils.Sleep,
		logger:   logger,
	}
}

// Admit reports whether one more asynchronous job may be launched. When it
// polls, the authoritative count replaces the local estimate.
func (a *AdmissionController) Admit(ctx context.Context, rc *RunContext) (bool, error) {
	if rc.ActiveJobEstimate <= rc.MaxConcurrentJobs {
		return true, nil
	}

	for polls := 1; ; polls++ {
		active, err := a.registry.CountActive(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to count active maintenance jobs: %w", err)
		}
		rc.ActiveJobEstimate = active

		if active <= rc.MaxConcurrentJobs {
			a.logger.Infof("Current process count (%d) is within the limit (%d), processing continues", active, rc.MaxConcurrentJobs)
			return true, nil
		}

		if a.maxPolls > 0 && polls >= a.maxPolls {
			return false, nil
		}

		a.logger.Infof("Current process count (%d) is still higher than the limit (%d), sleeping for %s", active, rc.MaxConcurrentJobs, a.interval)
		if err := a.sleep(ctx, a.interval); err != nil {
			return false, err
		}
	}
}
