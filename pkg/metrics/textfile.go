package metrics

import (
	"fmt"

	"github.com/dbtuneai/pgvacuum/pkg/events"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "pgvacuum"

	// Labels
	classLabel = "class"
)

// Registry builds a registry holding the gauges of one run summary.
func Registry(s events.Summary) (*prometheus.Registry, error) {
	values, err := SummaryValues(s)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	vecs := map[string]*prometheus.GaugeVec{}
	for _, def := range []MetricDef{ClassEvaluated, ClassDispatched} {
		vec := prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: def.Key, Help: def.Help},
			[]string{classLabel},
		)
		if err := registry.Register(vec); err != nil {
			return nil, fmt.Errorf("error registering %s: %w", def.Key, err)
		}
		vecs[def.Key] = vec
	}

	help := map[string]string{}
	for _, def := range []MetricDef{
		RunDryRun, RunTimestamp, RunDurationSeconds, RunDispatched, RunSkipped,
		RunPartitionSkipped, RunFailed, RunAsyncJobs, RunFreezeBypassed, RunActiveJobs,
	} {
		help[def.Key] = def.Help
	}

	for _, v := range values {
		if v.Class != "" {
			vec, ok := vecs[v.Key]
			if !ok {
				return nil, fmt.Errorf("no class gauge for %s", v.Key)
			}
			vec.With(prometheus.Labels{classLabel: v.Class}).Set(v.Float64())
			continue
		}
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: v.Key, Help: help[v.Key]})
		gauge.Set(v.Float64())
		if err := registry.Register(gauge); err != nil {
			return nil, fmt.Errorf("error registering %s: %w", v.Key, err)
		}
	}
	return registry, nil
}

// WriteTextfile writes the summary gauges in the node exporter textfile
// format. The file is replaced atomically.
func WriteTextfile(path string, s events.Summary) error {
	registry, err := Registry(s)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("error writing metrics to %s: %w", path, err)
	}
	return nil
}
