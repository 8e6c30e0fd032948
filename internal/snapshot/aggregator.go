// Package snapshot assembles the consolidated read surface consumed by
// dashboards and the remote bridge. It is the only external view of the
// engine; everything it returns is defensively normalized so a partially
// failed subsystem degrades the snapshot instead of crashing the consumer.
package snapshot

import (
	"fmt"
	"time"

	"plegma/internal/model"
	"plegma/internal/telemetry"
)

type RegistryView interface {
	ListClusters() []model.ClusterStats
	ClusterCount() int
}

type TelemetryView interface {
	ComputeMetrics() telemetry.ComputeMetrics
	Collect()
	Sample() telemetry.ResourceSample
}

type Aggregator struct {
	registry  RegistryView
	telemetry TelemetryView
}

func New(registry RegistryView, tel TelemetryView) *Aggregator {
	return &Aggregator{registry: registry, telemetry: tel}
}

// GetSystemState combines the cluster listing, telemetry metrics, and a
// fresh resource read into one map. Any internal failure comes back as an
// error result, never a panic.
func (a *Aggregator) GetSystemState() (state map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			state = nil
			err = fmt.Errorf("system state aggregation failed: %v", r)
		}
	}()

	if a.registry == nil || a.telemetry == nil {
		return nil, fmt.Errorf("snapshot aggregator is missing a source")
	}

	clusters := a.registry.ListClusters()
	normalized := make([]map[string]any, 0, len(clusters))
	for _, stats := range clusters {
		normalized = append(normalized, normalizeCluster(stats))
	}

	a.telemetry.Collect()
	metrics := a.telemetry.ComputeMetrics()
	sample := a.telemetry.Sample()

	return map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"clusters":  normalized,
		"telemetry": map[string]any{
			"node_id":        metrics.NodeID,
			"uptime_seconds": metrics.UptimeSeconds,
			"global":         metrics.Global,
		},
		"system": map[string]any{
			"memory_alloc_bytes": sample.MemoryAllocBytes,
			"memory_sys_bytes":   sample.MemorySysBytes,
			"goroutines":         sample.Goroutines,
			"schedulers":         sample.Schedulers,
			"cpus":               sample.CPUs,
			"uptime_seconds":     sample.UptimeSeconds,
		},
		"domain_insight": insight(clusters),
	}, nil
}

// normalizeCluster fills defaults for placeholder entries so consumers
// always see the same shape regardless of cluster health.
func normalizeCluster(stats model.ClusterStats) map[string]any {
	status := "running"
	switch {
	case stats.Error != "":
		status = "error"
	case stats.Paused:
		status = "paused"
	}
	return map[string]any{
		"cluster_id": stats.ClusterID,
		"status":     status,
		"generation": stats.Generation,
		"cell_count": stats.CellCount,
		"rounds":     stats.Rounds,
		"avg_ms":     stats.AvgMs,
		"min_ms":     stats.MinMs,
		"max_ms":     stats.MaxMs,
		"last_ms":    stats.LastMs,
		"error":      stats.Error,
	}
}

func insight(clusters []model.ClusterStats) map[string]any {
	var totalGenerations uint64
	var busiest string
	var busiestRounds uint64
	active := 0
	paused := 0
	for _, stats := range clusters {
		if stats.Error != "" {
			continue
		}
		active++
		if stats.Paused {
			paused++
		}
		totalGenerations += stats.Generation
		if stats.Rounds >= busiestRounds && stats.Rounds > 0 {
			busiest = stats.ClusterID
			busiestRounds = stats.Rounds
		}
	}
	return map[string]any{
		"active_clusters":   active,
		"paused_clusters":   paused,
		"total_generations": totalGenerations,
		"busiest_cluster":   busiest,
	}
}
