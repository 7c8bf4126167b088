package checks

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrAlreadyRunning is returned when another pgvacuum session is registered
// against the same database.
var ErrAlreadyRunning = errors.New("pgvacuum is already running against this database")

// InstanceRegistry counts the sessions registered under the program's
// identity, the caller's own session included.
type InstanceRegistry interface {
	CountInstances(ctx context.Context) (int, error)
}

// CheckSingleInstance fails when any session other than the caller's own is
// registered. It must run before the first catalog query.
func CheckSingleInstance(ctx context.Context, registry InstanceRegistry, logger *logrus.Logger) error {
	count, err := registry.CountInstances(ctx)
	if err != nil {
		return fmt.Errorf("unable to check for running instances: %w", err)
	}
	if count > 1 {
		return fmt.Errorf("%w: %d sessions found", ErrAlreadyRunning, count)
	}
	logger.Debugf("Single instance check passed (%d session)", count)
	return nil
}
