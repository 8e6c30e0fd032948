package snapshot

import (
	"testing"

	"plegma/internal/model"
	"plegma/internal/telemetry"
)

type stubRegistry struct {
	clusters []model.ClusterStats
	panics   bool
}

func (s *stubRegistry) ListClusters() []model.ClusterStats {
	if s.panics {
		panic("registry unavailable")
	}
	return s.clusters
}

func (s *stubRegistry) ClusterCount() int {
	return len(s.clusters)
}

type stubTelemetry struct {
	collected int
}

func (s *stubTelemetry) ComputeMetrics() telemetry.ComputeMetrics {
	return telemetry.ComputeMetrics{
		NodeID:        "node-test",
		UptimeSeconds: 12.5,
		Global:        telemetry.Timing{Generations: 7},
	}
}

func (s *stubTelemetry) Collect() { s.collected++ }

func (s *stubTelemetry) Sample() telemetry.ResourceSample {
	return telemetry.ResourceSample{Goroutines: 3, Schedulers: 2, CPUs: 2}
}

func TestGetSystemState(t *testing.T) {
	reg := &stubRegistry{clusters: []model.ClusterStats{
		{ClusterID: "alpha", Generation: 10, CellCount: 8, Rounds: 10, Healthy: true},
		{ClusterID: "bravo", Generation: 4, CellCount: 8, Rounds: 4, Paused: true, Healthy: true},
		{ClusterID: "broken", Error: "exceeded restart budget"},
	}}
	tel := &stubTelemetry{}
	a := New(reg, tel)

	state, err := a.GetSystemState()
	if err != nil {
		t.Fatalf("system state: %v", err)
	}
	if tel.collected != 1 {
		t.Fatalf("collect calls: got=%d want=1", tel.collected)
	}

	clusters, ok := state["clusters"].([]map[string]any)
	if !ok {
		t.Fatalf("clusters has type %T", state["clusters"])
	}
	if len(clusters) != 3 {
		t.Fatalf("clusters: got=%d want=3", len(clusters))
	}
	wantStatus := map[string]string{"alpha": "running", "bravo": "paused", "broken": "error"}
	for _, entry := range clusters {
		id := entry["cluster_id"].(string)
		if got := entry["status"]; got != wantStatus[id] {
			t.Fatalf("cluster %s status: got=%v want=%s", id, got, wantStatus[id])
		}
	}

	insight, ok := state["domain_insight"].(map[string]any)
	if !ok {
		t.Fatalf("domain_insight has type %T", state["domain_insight"])
	}
	if got := insight["active_clusters"]; got != 2 {
		t.Fatalf("active clusters: got=%v want=2", got)
	}
	if got := insight["paused_clusters"]; got != 1 {
		t.Fatalf("paused clusters: got=%v want=1", got)
	}
	if got := insight["total_generations"]; got != uint64(14) {
		t.Fatalf("total generations: got=%v want=14", got)
	}
	if got := insight["busiest_cluster"]; got != "alpha" {
		t.Fatalf("busiest cluster: got=%v want=alpha", got)
	}

	if _, ok := state["timestamp"].(string); !ok {
		t.Fatal("missing timestamp")
	}
	if _, ok := state["telemetry"].(map[string]any); !ok {
		t.Fatal("missing telemetry section")
	}
	if _, ok := state["system"].(map[string]any); !ok {
		t.Fatal("missing system section")
	}
}

func TestGetSystemStateEmptyRegistry(t *testing.T) {
	a := New(&stubRegistry{}, &stubTelemetry{})

	state, err := a.GetSystemState()
	if err != nil {
		t.Fatalf("system state: %v", err)
	}
	clusters := state["clusters"].([]map[string]any)
	if len(clusters) != 0 {
		t.Fatalf("clusters: got=%d want=0", len(clusters))
	}
	insight := state["domain_insight"].(map[string]any)
	if got := insight["busiest_cluster"]; got != "" {
		t.Fatalf("busiest cluster: got=%v want empty", got)
	}
}

func TestGetSystemStateRecoversFromPanic(t *testing.T) {
	a := New(&stubRegistry{panics: true}, &stubTelemetry{})

	if _, err := a.GetSystemState(); err == nil {
		t.Fatal("expected panicking source to surface as error")
	}
}

func TestGetSystemStateMissingSource(t *testing.T) {
	a := New(nil, nil)

	if _, err := a.GetSystemState(); err == nil {
		t.Fatal("expected missing sources to surface as error")
	}
}
