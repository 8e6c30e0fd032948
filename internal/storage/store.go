package storage

import (
	"context"

	"plegma/internal/model"
)

// Store persists cluster configs (for restart recovery) and last-known
// cluster summaries. Benchmark records and telemetry snapshots are
// deliberately not persisted; they live and die with the engine process.
type Store interface {
	Init(ctx context.Context) error
	SaveClusterConfig(ctx context.Context, cfg model.ClusterConfig) error
	GetClusterConfig(ctx context.Context, id string) (model.ClusterConfig, bool, error)
	ListClusterConfigs(ctx context.Context) ([]model.ClusterConfig, error)
	DeleteClusterConfig(ctx context.Context, id string) error
	SaveClusterSummary(ctx context.Context, summary model.ClusterSummary) error
	GetClusterSummary(ctx context.Context, id string) (model.ClusterSummary, bool, error)
}

// Resetter is implemented by stores that can drop all state.
type Resetter interface {
	Reset(ctx context.Context) error
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
