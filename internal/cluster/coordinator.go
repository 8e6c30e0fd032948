package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"plegma/internal/cell"
	"plegma/internal/model"
)

var (
	ErrCellNotFound = errors.New("cell not found")
	ErrNotPaused    = errors.New("cluster is not paused")
	ErrStopped      = errors.New("cluster is stopped")
)

// Recorder receives generation timings and lifecycle events from a
// coordinator. Implemented by the telemetry aggregator; nil disables
// reporting (ephemeral benchmark clusters).
type Recorder interface {
	RecordGenerationTime(clusterID string, d time.Duration)
	RecordClusterEvent(clusterID, event string)
}

// neighborOffsets is the 3-D Moore neighborhood: all offsets in {-1,0,1}^3
// except the origin.
var neighborOffsets = buildNeighborOffsets()

func buildNeighborOffsets() []model.Coord {
	out := make([]model.Coord, 0, model.MaxNeighbors)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out = append(out, model.Coord{X: dx, Y: dy, Z: dz})
			}
		}
	}
	return out
}

// Coordinator owns a 3-D grid of cell workers and drives the two-phase
// generation protocol. It is the sole mutator of the coordinate-to-worker
// map; workers never talk to each other.
type Coordinator struct {
	cfg      model.ClusterConfig
	recorder Recorder

	mu         sync.Mutex
	cells      map[model.Coord]*cell.Worker
	rule       model.RuleSet
	generation uint64
	paused     bool
	stopped    bool
	rounds     uint64
	totalMs    float64
	minMs      float64
	maxMs      float64
	lastMs     float64
	rng        *rand.Rand

	// evolveMu serializes rounds so timer-driven and manual evolution
	// never interleave phases.
	evolveMu sync.Mutex

	exits chan cell.ExitNotice
	quit  chan struct{}
}

// New validates the config, spawns the full grid of workers and the crash
// monitor. The evolution timer only runs inside Run; manual stepping via
// EvolveGeneration works immediately.
func New(cfg model.ClusterConfig, recorder Recorder) (*Coordinator, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cluster config: %w", err)
	}

	c := &Coordinator{
		cfg:      cfg,
		recorder: recorder,
		cells:    make(map[model.Coord]*cell.Worker, cfg.Dimensions.CellCount()),
		rule:     cfg.Rule.Clone(),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		exits:    make(chan cell.ExitNotice, cfg.Dimensions.CellCount()),
		quit:     make(chan struct{}),
	}

	alive := make(map[model.Coord]struct{}, len(cfg.InitialAlive))
	for _, coord := range cfg.InitialAlive {
		alive[coord] = struct{}{}
	}
	for x := 0; x < cfg.Dimensions.X; x++ {
		for y := 0; y < cfg.Dimensions.Y; y++ {
			for z := 0; z < cfg.Dimensions.Z; z++ {
				coord := model.Coord{X: x, Y: y, Z: z}
				state := model.Dead
				if len(cfg.InitialAlive) > 0 {
					if _, ok := alive[coord]; ok {
						state = model.Alive
					}
				} else if c.rng.Float64() < cfg.FillDensity {
					state = model.Alive
				}
				c.cells[coord] = cell.Spawn(coord, state, c.rule, c.exits)
			}
		}
	}

	go c.monitor()
	return c, nil
}

func (c *Coordinator) ID() string {
	return c.cfg.ID
}

func (c *Coordinator) Config() model.ClusterConfig {
	return c.cfg
}

// monitor watches for worker crashes and replaces each dead worker with a
// freshly initialized one at the same coordinate. One crash never affects
// any sibling cell or the generation counter.
func (c *Coordinator) monitor() {
	for {
		select {
		case notice := <-c.exits:
			c.replaceWorker(notice)
		case <-c.quit:
			return
		}
	}
}

func (c *Coordinator) replaceWorker(notice cell.ExitNotice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if _, ok := c.cells[notice.Coord]; !ok {
		return
	}
	state := model.Dead
	if c.rng.Float64() < c.cfg.FillDensity {
		state = model.Alive
	}
	c.cells[notice.Coord] = cell.Spawn(notice.Coord, state, c.rule, c.exits)
	log.Warn().
		Str("cluster", c.cfg.ID).
		Str("coord", notice.Coord.String()).
		Err(notice.Err).
		Msg("replaced crashed cell worker")
	if c.recorder != nil {
		c.recorder.RecordClusterEvent(c.cfg.ID, "worker_replaced")
	}
}

// Run drives timer-based evolution until ctx is done or a round panics.
// Pausing skips ticks without stopping the timer goroutine.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.EvolutionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.Paused() {
				continue
			}
			if err := c.safeEvolve(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		case <-c.quit:
			return nil
		}
	}
}

func (c *Coordinator) safeEvolve(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evolution round panic: %v", r)
		}
	}()
	_, err = c.EvolveGeneration(ctx)
	if errors.Is(err, ErrStopped) {
		return nil
	}
	return err
}

// EvolveGeneration runs one full two-phase round and returns the new
// generation number.
//
// Phase 1 reads the current state of every worker before anything else
// happens; every neighbor snapshot for this round is assembled from that one
// consistent read, so each cell's decision for generation G+1 depends only
// on the grid at generation G. Phase 2 broadcasts prepare, and only after
// every prepare has been sent does phase 3 broadcast commit.
func (c *Coordinator) EvolveGeneration(ctx context.Context) (uint64, error) {
	c.evolveMu.Lock()
	defer c.evolveMu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, ErrStopped
	}
	workers := make(map[model.Coord]*cell.Worker, len(c.cells))
	for coord, w := range c.cells {
		workers[coord] = w
	}
	c.mu.Unlock()

	start := time.Now()

	// Snapshot phase. A worker that crashed mid-round reads as dead for
	// this round; the monitor replaces it independently.
	states := make(map[model.Coord]model.State, len(workers))
	for coord, w := range workers {
		snapshot, err := w.State()
		if err != nil {
			states[coord] = model.Dead
			continue
		}
		states[coord] = snapshot.State
	}

	// Prepare broadcast. Out-of-bounds neighbors stay dead: the grid has
	// an open boundary and never wraps.
	for coord, w := range workers {
		neighbors := make([]model.State, 0, model.MaxNeighbors)
		for _, offset := range neighborOffsets {
			neighbor := model.Coord{X: coord.X + offset.X, Y: coord.Y + offset.Y, Z: coord.Z + offset.Z}
			if !c.cfg.Dimensions.Contains(neighbor) {
				continue
			}
			neighbors = append(neighbors, states[neighbor])
		}
		_ = w.Prepare(neighbors)
	}

	// Commit broadcast, sent only after every prepare has been sent.
	for _, w := range workers {
		_ = w.Commit()
	}

	elapsed := time.Since(start)

	c.mu.Lock()
	c.generation++
	generation := c.generation
	ms := float64(elapsed.Microseconds()) / 1000.0
	c.rounds++
	c.totalMs += ms
	c.lastMs = ms
	if c.rounds == 1 || ms < c.minMs {
		c.minMs = ms
	}
	if ms > c.maxMs {
		c.maxMs = ms
	}
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.RecordGenerationTime(c.cfg.ID, elapsed)
	}
	return generation, nil
}

// GetCellState performs a synchronous state query against one worker.
func (c *Coordinator) GetCellState(coord model.Coord) (model.CellSnapshot, error) {
	if !c.cfg.Dimensions.Contains(coord) {
		return model.CellSnapshot{}, fmt.Errorf("%w: %s", ErrCellNotFound, coord)
	}
	c.mu.Lock()
	w, ok := c.cells[coord]
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return model.CellSnapshot{}, ErrStopped
	}
	if !ok {
		return model.CellSnapshot{}, fmt.Errorf("%w: %s", ErrCellNotFound, coord)
	}
	snapshot, err := w.State()
	if err != nil {
		return model.CellSnapshot{}, fmt.Errorf("cell %s: %w", coord, err)
	}
	return snapshot, nil
}

// SetRules broadcasts a new rule set to every worker. Each worker keeps its
// own copy; replacements spawned later also receive it.
func (c *Coordinator) SetRules(rule model.RuleSet) error {
	rule = rule.Normalized()
	if err := rule.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	c.rule = rule
	workers := make([]*cell.Worker, 0, len(c.cells))
	for _, w := range c.cells {
		workers = append(workers, w)
	}
	c.mu.Unlock()

	for _, w := range workers {
		_ = w.SetRule(rule)
	}
	if c.recorder != nil {
		c.recorder.RecordClusterEvent(c.cfg.ID, "rules_updated")
	}
	return nil
}

// Pause cancels timer-driven evolution. Idempotent.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
	if c.recorder != nil {
		c.recorder.RecordClusterEvent(c.cfg.ID, "paused")
	}
}

// Resume re-enables timer-driven evolution. Fails unless currently paused.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return ErrNotPaused
	}
	c.paused = false
	c.mu.Unlock()
	if c.recorder != nil {
		c.recorder.RecordClusterEvent(c.cfg.ID, "resumed")
	}
	return nil
}

func (c *Coordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Coordinator) Stats() model.ClusterStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := model.ClusterStats{
		ClusterID:  c.cfg.ID,
		Generation: c.generation,
		CellCount:  len(c.cells),
		Paused:     c.paused,
		Rounds:     c.rounds,
		MinMs:      c.minMs,
		MaxMs:      c.maxMs,
		LastMs:     c.lastMs,
		Healthy:    !c.stopped,
	}
	if c.rounds > 0 {
		stats.AvgMs = c.totalMs / float64(c.rounds)
	}
	return stats
}

// Stop tears down the monitor and every worker. Idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	workers := make([]*cell.Worker, 0, len(c.cells))
	for _, w := range c.cells {
		workers = append(workers, w)
	}
	c.mu.Unlock()

	close(c.quit)
	for _, w := range workers {
		w.Stop()
	}
}
