package storage

import (
	"context"
	"sort"
	"sync"

	"plegma/internal/model"
)

type MemoryStore struct {
	mu        sync.RWMutex
	configs   map[string]model.ClusterConfig
	summaries map[string]model.ClusterSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.configs == nil {
		s.configs = make(map[string]model.ClusterConfig)
	}
	if s.summaries == nil {
		s.summaries = make(map[string]model.ClusterSummary)
	}
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs = make(map[string]model.ClusterConfig)
	s.summaries = make(map[string]model.ClusterSummary)
	return nil
}

func (s *MemoryStore) SaveClusterConfig(_ context.Context, cfg model.ClusterConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.VersionedRecord = model.NewVersionedRecord()
	s.configs[cfg.ID] = cfg
	return nil
}

func (s *MemoryStore) GetClusterConfig(_ context.Context, id string) (model.ClusterConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	return cfg, ok, nil
}

func (s *MemoryStore) ListClusterConfigs(_ context.Context) ([]model.ClusterConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.configs))
	for id := range s.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.ClusterConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.configs[id])
	}
	return out, nil
}

func (s *MemoryStore) DeleteClusterConfig(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.configs, id)
	return nil
}

func (s *MemoryStore) SaveClusterSummary(_ context.Context, summary model.ClusterSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[summary.ID] = summary
	return nil
}

func (s *MemoryStore) GetClusterSummary(_ context.Context, id string) (model.ClusterSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[id]
	return summary, ok, nil
}
