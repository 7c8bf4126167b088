package guardrails

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbtuneai/pgvacuum/pkg/internal/utils"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/sirupsen/logrus"
)

// ErrHighLoad is returned when the host stays overloaded for every attempt.
var ErrHighLoad = errors.New("host load too high")

// WARNING_RATIO is the fraction of the threshold above which a non-critical
// signal is raised.
const WARNING_RATIO = 0.8

// LoadSample is one reading of the host load.
type LoadSample struct {
	Load1 float64
	CPUs  int
}

// Pct returns the one minute load average as a percentage of the cpu count.
func (s LoadSample) Pct() (float64, error) {
	if s.CPUs <= 0 {
		return 0, fmt.Errorf("invalid logical cpu count %d", s.CPUs)
	}
	return s.Load1 / float64(s.CPUs) * 100, nil
}

type LoadSampler interface {
	Sample(ctx context.Context) (LoadSample, error)
}

// HostSampler reads the load of the machine pgvacuum runs on.
type HostSampler struct{}

func (HostSampler) Sample(ctx context.Context) (LoadSample, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return LoadSample{}, fmt.Errorf("error reading load average: %w", err)
	}
	cpus, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return LoadSample{}, fmt.Errorf("error counting cpus: %w", err)
	}
	return LoadSample{Load1: avg.Load1, CPUs: cpus}, nil
}

// Settings bound the wait of the load gate.
type Settings struct {
	// Threshold is the load percentage above which the host is overloaded.
	Threshold float64
	Interval  time.Duration
	// Attempts is the number of re-samples after the first overloaded one.
	Attempts int
}

// LoadGate holds a run back while the host is overloaded.
type LoadGate struct {
	sampler  LoadSampler
	settings Settings
	sleep    utils.SleepFunc
	logger   *logrus.Logger
}

func NewLoadGate(sampler LoadSampler, settings Settings, logger *logrus.Logger) *LoadGate {
	return &LoadGate{
		sampler:  sampler,
		settings: settings,
		sleep:    utils.Sleep,
		logger:   logger,
	}
}

// Check samples the host once and returns a signal when the load is high,
// nil otherwise.
func (g *LoadGate) Check(ctx context.Context) (*Signal, LoadSample, error) {
	sample, err := g.sampler.Sample(ctx)
	if err != nil {
		return nil, sample, err
	}
	pct, err := sample.Pct()
	if err != nil {
		return nil, sample, err
	}

	switch {
	case pct > g.settings.Threshold:
		return &Signal{Level: Critical, Type: Load, LoadPct: pct}, sample, nil
	case pct > g.settings.Threshold*WARNING_RATIO:
		return &Signal{Level: NonCritical, Type: Load, LoadPct: pct}, sample, nil
	default:
		return nil, sample, nil
	}
}

// Wait returns once the host load is acceptable. It samples once, then
// re-samples up to Attempts times at a fixed interval, and returns
// ErrHighLoad if the host is still overloaded.
func (g *LoadGate) Wait(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		signal, sample, err := g.Check(ctx)
		if err != nil {
			return fmt.Errorf("unable to check host load: %w", err)
		}

		if signal == nil || signal.Level != Critical {
			fields := logrus.Fields{"load1": sample.Load1, "cpus": sample.CPUs}
			if signal != nil {
				g.logger.WithFields(fields).Warnf("Load average is %.0f%% of cpu capacity, close to the %.0f%% limit", signal.LoadPct, g.settings.Threshold)
			} else {
				g.logger.WithFields(fields).Debug("Load average check passed")
			}
			return nil
		}

		if attempt >= g.settings.Attempts {
			return fmt.Errorf("%w: load average is %.0f%% of cpu capacity (limit %.0f%%)", ErrHighLoad, signal.LoadPct, g.settings.Threshold)
		}

		g.logger.Warnf("Deferring program start: load average (%.2f) is %.0f%% of %d cpus, over the %.0f%% limit. Sleeping %s (%d/%d)",
			sample.Load1, signal.LoadPct, sample.CPUs, g.settings.Threshold, g.settings.Interval, attempt+1, g.settings.Attempts)
		if err := g.sleep(ctx, g.settings.Interval); err != nil {
			return err
		}
	}
}
