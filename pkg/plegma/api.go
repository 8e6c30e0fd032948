// Package plegma is the public client facade over the distributed
// cellular-automaton compute engine: the cluster registry, the optimization
// and benchmark engine, the telemetry aggregator, and the consolidated
// system snapshot.
package plegma

import (
	"context"
	"fmt"

	"plegma/internal/bridge"
	"plegma/internal/engine"
	"plegma/internal/model"
	"plegma/internal/registry"
	"plegma/internal/snapshot"
	"plegma/internal/storage"
	"plegma/internal/telemetry"
)

const defaultDBPath = "plegma.db"

type Options struct {
	StoreKind string
	DBPath    string
	// Emitter receives outbound bridge pushes; nil keeps everything local.
	Emitter bridge.Emitter
}

type Client struct {
	store     storage.Store
	telemetry *telemetry.Aggregator
	registry  *registry.Registry
	engine    *engine.Engine
	snapshot  *snapshot.Aggregator
}

// Client accepts inbound rule pushes from the remote orchestrator.
var _ bridge.RuleSink = (*Client)(nil)

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	tel := telemetry.NewAggregator(opts.Emitter)
	reg := registry.New(registry.Config{
		Recorder: tel,
		Store:    store,
		Emitter:  opts.Emitter,
	})

	return &Client{
		store:     store,
		telemetry: tel,
		registry:  reg,
		engine:    engine.New(),
		snapshot:  snapshot.New(reg, tel),
	}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	c.registry.Close()
	c.telemetry.Close()
	return storage.CloseIfSupported(c.store)
}

// Registry surface.

func (c *Client) StartCluster(ctx context.Context, cfg model.ClusterConfig) (model.ClusterStats, error) {
	coordinator, err := c.registry.StartCluster(ctx, cfg)
	if err != nil {
		return model.ClusterStats{}, err
	}
	return coordinator.Stats(), nil
}

func (c *Client) StopCluster(ctx context.Context, id string) error {
	return c.registry.StopCluster(ctx, id)
}

func (c *Client) Clusters() []model.ClusterStats {
	return c.registry.ListClusters()
}

func (c *Client) ClusterCount() int {
	return c.registry.ClusterCount()
}

func (c *Client) RestoreClusters(ctx context.Context) ([]string, error) {
	return c.registry.RestoreClusters(ctx)
}

func (c *Client) ClusterSummary(ctx context.Context, id string) (model.ClusterSummary, error) {
	summary, ok, err := c.store.GetClusterSummary(ctx, id)
	if err != nil {
		return model.ClusterSummary{}, err
	}
	if !ok {
		return model.ClusterSummary{}, fmt.Errorf("cluster summary not found: %s", id)
	}
	return summary, nil
}

// Coordinator surface.

func (c *Client) EvolveGeneration(ctx context.Context, id string) (uint64, error) {
	coordinator, err := c.registry.Get(id)
	if err != nil {
		return 0, err
	}
	return coordinator.EvolveGeneration(ctx)
}

func (c *Client) ClusterStats(id string) (model.ClusterStats, error) {
	coordinator, err := c.registry.Get(id)
	if err != nil {
		return model.ClusterStats{}, err
	}
	return coordinator.Stats(), nil
}

func (c *Client) CellState(id string, coord model.Coord) (model.CellSnapshot, error) {
	coordinator, err := c.registry.Get(id)
	if err != nil {
		return model.CellSnapshot{}, err
	}
	return coordinator.GetCellState(coord)
}

func (c *Client) SetRules(id string, rule model.RuleSet) error {
	coordinator, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	return coordinator.SetRules(rule)
}

// ApplyRules is the inbound remote-bridge entry point.
func (c *Client) ApplyRules(clusterID string, rule model.RuleSet) error {
	return c.SetRules(clusterID, rule)
}

func (c *Client) PauseCluster(id string) error {
	coordinator, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	coordinator.Pause()
	return nil
}

func (c *Client) ResumeCluster(id string) error {
	coordinator, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	return coordinator.Resume()
}

// Engine surface.

func (c *Client) Algorithms() []model.RulePreset {
	return c.engine.AvailableAlgorithms()
}

func (c *Client) OptimizeRules(rules model.RuleSet, target model.PerformanceTarget) (model.OptimizedRuleSet, error) {
	return c.engine.OptimizeRules(rules, target)
}

func (c *Client) Benchmark(ctx context.Context, cfg model.ClusterConfig) (model.BenchmarkRecord, error) {
	return c.engine.BenchmarkPerformance(ctx, cfg)
}

func (c *Client) BenchmarkHistory() []model.BenchmarkRecord {
	return c.engine.BenchmarkHistory()
}

func (c *Client) EngineStatus() engine.Status {
	return c.engine.Status()
}

// Telemetry and snapshot surface.

func (c *Client) ComputeMetrics() telemetry.ComputeMetrics {
	return c.telemetry.ComputeMetrics()
}

func (c *Client) PerformanceReport() telemetry.PerformanceReport {
	return c.telemetry.PerformanceReport()
}

func (c *Client) SystemState() (map[string]any, error) {
	return c.snapshot.GetSystemState()
}

func (c *Client) NodeID() string {
	return c.telemetry.NodeID()
}
