package telemetry

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"plegma/internal/bridge"
)

const (
	// CollectionInterval is the cadence of the node-level resource pull.
	CollectionInterval = 5 * time.Second

	recentEventCap = 100
)

type Event struct {
	ClusterID string    `json:"cluster_id"`
	Kind      string    `json:"kind"`
	At        time.Time `json:"at"`
}

// ResourceSample is a point-in-time read of VM-level resource metrics.
type ResourceSample struct {
	MemoryAllocBytes uint64    `json:"memory_alloc_bytes"`
	MemorySysBytes   uint64    `json:"memory_sys_bytes"`
	HeapObjects      uint64    `json:"heap_objects"`
	GCCycles         uint32    `json:"gc_cycles"`
	Goroutines       int       `json:"goroutines"`
	Schedulers       int       `json:"schedulers"`
	CPUs             int       `json:"cpus"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
	SampledAt        time.Time `json:"sampled_at"`
}

// Timing is the aggregated generation-timing shape, kept identical for the
// per-cluster and the global views.
type Timing struct {
	Generations uint64  `json:"generations"`
	TotalMs     float64 `json:"total_ms"`
	AvgMs       float64 `json:"avg_ms"`
	MinMs       float64 `json:"min_ms"`
	MaxMs       float64 `json:"max_ms"`
}

type ComputeMetrics struct {
	NodeID        string         `json:"node_id"`
	Timestamp     time.Time      `json:"timestamp"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Global        Timing         `json:"global"`
	Resources     ResourceSample `json:"resources"`
}

type PerformanceReport struct {
	Summary      Timing            `json:"summary"`
	Clusters     map[string]Timing `json:"clusters"`
	RecentEvents []Event           `json:"recent_events"`
	System       ResourceSample    `json:"system"`
}

type timingAgg struct {
	generations uint64
	totalMs     float64
	minMs       float64
	maxMs       float64
}

func (a *timingAgg) observe(ms float64) {
	a.generations++
	a.totalMs += ms
	if a.generations == 1 || ms < a.minMs {
		a.minMs = ms
	}
	if ms > a.maxMs {
		a.maxMs = ms
	}
}

func (a *timingAgg) timing() Timing {
	t := Timing{
		Generations: a.generations,
		TotalMs:     a.totalMs,
		MinMs:       a.minMs,
		MaxMs:       a.maxMs,
	}
	if a.generations > 0 {
		t.AvgMs = a.totalMs / float64(a.generations)
	}
	return t
}

// Aggregator collects push-based generation timings from coordinators and
// pulls node-level resource metrics on a fixed interval. Every accessor
// returns a well-formed value even before any cluster has run; a failed
// metric read is logged and defaulted, never surfaced to callers.
type Aggregator struct {
	nodeID    string
	startedAt time.Time
	emitter   bridge.Emitter

	mu       sync.Mutex
	clusters map[string]*timingAgg
	global   timingAgg
	events   []Event
	sample   ResourceSample

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewAggregator(emitter bridge.Emitter) *Aggregator {
	a := &Aggregator{
		nodeID:    uuid.NewString(),
		startedAt: time.Now(),
		emitter:   emitter,
		clusters:  make(map[string]*timingAgg),
		quit:      make(chan struct{}),
	}
	a.Collect()
	a.wg.Add(1)
	go a.collectLoop()
	return a
}

func (a *Aggregator) NodeID() string {
	return a.nodeID
}

func (a *Aggregator) collectLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(CollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Collect()
			if a.emitter != nil {
				a.emitter.EmitHeartbeat(bridge.Heartbeat{NodeID: a.nodeID, At: time.Now()})
			}
		case <-a.quit:
			return
		}
	}
}

// Collect takes an immediate resource sample.
func (a *Aggregator) Collect() {
	sample := a.readResources()

	a.mu.Lock()
	a.sample = sample
	a.mu.Unlock()

	memoryAllocBytes.Set(float64(sample.MemoryAllocBytes))
	goroutineCount.Set(float64(sample.Goroutines))
}

func (a *Aggregator) readResources() (sample ResourceSample) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Any("cause", r).Msg("resource sampling failed, returning defaults")
			sample = ResourceSample{SampledAt: time.Now()}
		}
	}()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return ResourceSample{
		MemoryAllocBytes: mem.Alloc,
		MemorySysBytes:   mem.Sys,
		HeapObjects:      mem.HeapObjects,
		GCCycles:         mem.NumGC,
		Goroutines:       runtime.NumGoroutine(),
		Schedulers:       runtime.GOMAXPROCS(0),
		CPUs:             runtime.NumCPU(),
		UptimeSeconds:    time.Since(a.startedAt).Seconds(),
		SampledAt:        time.Now(),
	}
}

// RecordGenerationTime accepts one completed round's wall-clock duration.
func (a *Aggregator) RecordGenerationTime(clusterID string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0

	a.mu.Lock()
	agg, ok := a.clusters[clusterID]
	if !ok {
		agg = &timingAgg{}
		a.clusters[clusterID] = agg
	}
	agg.observe(ms)
	a.global.observe(ms)
	a.mu.Unlock()

	generationsTotal.WithLabelValues(clusterID).Inc()
	generationDuration.WithLabelValues(clusterID).Observe(d.Seconds())
}

// RecordClusterEvent accepts a lifecycle event and keeps it in a bounded
// recent-event buffer.
func (a *Aggregator) RecordClusterEvent(clusterID, kind string) {
	event := Event{ClusterID: clusterID, Kind: kind, At: time.Now()}

	a.mu.Lock()
	if len(a.events) == recentEventCap {
		copy(a.events, a.events[1:])
		a.events = a.events[:recentEventCap-1]
	}
	a.events = append(a.events, event)
	a.mu.Unlock()

	clusterEventsTotal.WithLabelValues(clusterID, kind).Inc()
}

func (a *Aggregator) ComputeMetrics() ComputeMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	return ComputeMetrics{
		NodeID:        a.nodeID,
		Timestamp:     time.Now(),
		UptimeSeconds: time.Since(a.startedAt).Seconds(),
		Global:        a.global.timing(),
		Resources:     a.sample,
	}
}

func (a *Aggregator) PerformanceReport() PerformanceReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	clusters := make(map[string]Timing, len(a.clusters))
	for id, agg := range a.clusters {
		clusters[id] = agg.timing()
	}
	return PerformanceReport{
		Summary:      a.global.timing(),
		Clusters:     clusters,
		RecentEvents: append([]Event(nil), a.events...),
		System:       a.sample,
	}
}

// Sample returns the latest resource sample without taking a new one.
func (a *Aggregator) Sample() ResourceSample {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sample
}

func (a *Aggregator) Close() {
	a.closeOnce.Do(func() {
		close(a.quit)
	})
	a.wg.Wait()
}
