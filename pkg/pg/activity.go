package pg

import (
	"context"
	"fmt"
)

// Activity answers the registry questions asked of pg_stat_activity: how
// many pgvacuum sessions exist and how many maintenance jobs are running.
type Activity struct {
	q       Querier
	appName string
}

func NewActivity(q Querier, applicationName string) *Activity {
	return &Activity{q: q, appName: applicationName}
}

// CountInstances counts the sessions registered under the application name.
func (a *Activity) CountInstances(ctx context.Context) (int, error) {
	var count int
	if err := a.q.QueryRow(ctx, InstanceCountQuery, a.appName).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting %s sessions: %w", a.appName, err)
	}
	return count, nil
}

// CountActive counts the VACUUM and ANALYZE statements running under the
// application name on other sessions.
func (a *Activity) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := a.q.QueryRow(ctx, ActiveJobsQuery, a.appName).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting active maintenance jobs: %w", err)
	}
	return count, nil
}

// InProgress lists the tables pg_stat_progress_vacuum reports as being
// vacuumed, whoever started the vacuum.
func (a *Activity) InProgress(ctx context.Context) ([]string, error) {
	var tables []string
	if err := a.q.QueryRow(ctx, VacuumProgressQuery).Scan(&tables); err != nil {
		return nil, fmt.Errorf("error listing vacuums in progress: %w", err)
	}
	return tables, nil
}
