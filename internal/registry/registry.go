package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"plegma/internal/bridge"
	"plegma/internal/cluster"
	"plegma/internal/model"
	"plegma/internal/storage"
)

var ErrClusterNotFound = errors.New("cluster not found")

type Config struct {
	Recorder cluster.Recorder
	Store    storage.Store
	Emitter  bridge.Emitter
	Policy   SupervisorPolicy
}

// Registry is the dynamic pool of named clusters. It is the sole mutator of
// the id-to-cluster map; each cluster runs under the supervisor so a fatal
// failure in one never reaches its siblings or the registry itself.
type Registry struct {
	recorder   cluster.Recorder
	store      storage.Store
	emitter    bridge.Emitter
	supervisor *Supervisor

	mu       sync.Mutex
	clusters map[string]*entry
}

type entry struct {
	cfg model.ClusterConfig

	mu      sync.Mutex
	initial *cluster.Coordinator
	current *cluster.Coordinator
}

func (e *entry) take() *cluster.Coordinator {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.initial
	e.initial = nil
	return c
}

func (e *entry) set(c *cluster.Coordinator) {
	e.mu.Lock()
	e.current = c
	e.mu.Unlock()
}

func (e *entry) get() *cluster.Coordinator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func New(cfg Config) *Registry {
	r := &Registry{
		recorder: cfg.Recorder,
		store:    cfg.Store,
		emitter:  cfg.Emitter,
		clusters: make(map[string]*entry),
	}
	r.supervisor = NewSupervisor(cfg.Policy, SupervisorHooks{
		OnRestart: func(name string, err error, restartCount int) {
			log.Warn().Str("cluster", name).Err(err).Int("restarts", restartCount).
				Msg("restarting cluster")
			if r.recorder != nil {
				r.recorder.RecordClusterEvent(name, "cluster_restarted")
			}
		},
		OnPermanentFailure: func(name string, err error, restartCount int) {
			log.Error().Str("cluster", name).Err(err).Int("restarts", restartCount).
				Msg("cluster exceeded restart budget, leaving it down")
			if r.recorder != nil {
				r.recorder.RecordClusterEvent(name, "cluster_failed")
			}
		},
	})
	return r
}

// StartCluster starts a named cluster. Idempotent: starting an id that is
// already running returns the existing handle.
func (r *Registry) StartCluster(ctx context.Context, cfg model.ClusterConfig) (*cluster.Coordinator, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.clusters[cfg.ID]; ok {
		r.mu.Unlock()
		if c := existing.get(); c != nil {
			return c, nil
		}
		return nil, fmt.Errorf("cluster %s is restarting", cfg.ID)
	}

	c, err := cluster.New(cfg, r.recorder)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	e := &entry{cfg: cfg, initial: c, current: c}
	r.clusters[cfg.ID] = e
	r.mu.Unlock()

	run := func(ctx context.Context) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("cluster %s: %v", cfg.ID, rec)
			}
		}()
		co := e.take()
		if co == nil {
			co, err = cluster.New(cfg, r.recorder)
			if err != nil {
				return err
			}
			e.set(co)
		}
		defer co.Stop()
		return co.Run(ctx)
	}

	if err := r.supervisor.Start(cfg.ID, run); err != nil {
		r.mu.Lock()
		delete(r.clusters, cfg.ID)
		r.mu.Unlock()
		c.Stop()
		return nil, err
	}

	if r.store != nil {
		if err := r.store.SaveClusterConfig(ctx, cfg); err != nil {
			log.Warn().Str("cluster", cfg.ID).Err(err).Msg("persist cluster config failed")
		}
	}
	if r.emitter != nil {
		r.emitter.EmitStatus(bridge.StatusPush{ClusterID: cfg.ID, Status: "started", At: time.Now()})
	}
	if r.recorder != nil {
		r.recorder.RecordClusterEvent(cfg.ID, "cluster_started")
	}
	return c, nil
}

// StopCluster stops one cluster and forgets it. Its last known stats are
// persisted as a summary before the entry is removed.
func (r *Registry) StopCluster(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.clusters[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	delete(r.clusters, id)
	r.mu.Unlock()

	var last model.ClusterStats
	if c := e.get(); c != nil {
		last = c.Stats()
	}
	r.supervisor.Stop(id)

	if r.store != nil {
		summary := model.ClusterSummary{
			VersionedRecord: model.NewVersionedRecord(),
			ID:              id,
			LastStats:       last,
			StoppedAtUTC:    time.Now().UTC().Format(time.RFC3339),
		}
		if err := r.store.SaveClusterSummary(ctx, summary); err != nil {
			log.Warn().Str("cluster", id).Err(err).Msg("persist cluster summary failed")
		}
		if err := r.store.DeleteClusterConfig(ctx, id); err != nil {
			log.Warn().Str("cluster", id).Err(err).Msg("delete cluster config failed")
		}
	}
	if r.emitter != nil {
		r.emitter.EmitStatus(bridge.StatusPush{ClusterID: id, Status: "stopped", At: time.Now()})
	}
	if r.recorder != nil {
		r.recorder.RecordClusterEvent(id, "cluster_stopped")
	}
	return nil
}

// Get returns the live coordinator for one cluster.
func (r *Registry) Get(id string) (*cluster.Coordinator, error) {
	r.mu.Lock()
	e, ok := r.clusters[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	c := e.get()
	if c == nil {
		return nil, fmt.Errorf("cluster %s is restarting", id)
	}
	return c, nil
}

// ListClusters reports stats for every known cluster. A cluster that cannot
// answer gets a placeholder entry instead of failing the whole listing.
func (r *Registry) ListClusters() []model.ClusterStats {
	r.mu.Lock()
	ids := make([]string, 0, len(r.clusters))
	entries := make(map[string]*entry, len(r.clusters))
	for id, e := range r.clusters {
		ids = append(ids, id)
		entries[id] = e
	}
	r.mu.Unlock()
	sort.Strings(ids)

	out := make([]model.ClusterStats, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.statsOf(id, entries[id]))
	}
	return out
}

func (r *Registry) statsOf(id string, e *entry) (stats model.ClusterStats) {
	defer func() {
		if rec := recover(); rec != nil {
			stats = model.ClusterStats{ClusterID: id, Error: fmt.Sprintf("stats query panic: %v", rec)}
		}
	}()

	if status, ok := r.supervisor.Status(id); ok && status.PermanentFailed {
		return model.ClusterStats{ClusterID: id, Error: "exceeded restart budget: " + status.LastError}
	}
	c := e.get()
	if c == nil {
		return model.ClusterStats{ClusterID: id, Error: "cluster restarting"}
	}
	return c.Stats()
}

func (r *Registry) ClusterCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clusters)
}

// RestoreClusters starts every cluster whose config was persisted. Returns
// the ids actually started.
func (r *Registry) RestoreClusters(ctx context.Context) ([]string, error) {
	if r.store == nil {
		return nil, errors.New("no store configured")
	}
	configs, err := r.store.ListClusterConfigs(ctx)
	if err != nil {
		return nil, err
	}
	started := make([]string, 0, len(configs))
	for _, cfg := range configs {
		if _, err := r.StartCluster(ctx, cfg); err != nil {
			log.Warn().Str("cluster", cfg.ID).Err(err).Msg("restore cluster failed")
			continue
		}
		started = append(started, cfg.ID)
	}
	sort.Strings(started)
	return started, nil
}

// Close stops every cluster without removing persisted configs, so a later
// RestoreClusters can bring them back.
func (r *Registry) Close() {
	r.mu.Lock()
	r.clusters = make(map[string]*entry)
	r.mu.Unlock()
	r.supervisor.StopAll()
}
