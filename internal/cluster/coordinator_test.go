package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"plegma/internal/cell"
	"plegma/internal/model"
)

func conway() model.RuleSet {
	return model.NewRuleSet([]int{3}, []int{2, 3})
}

func newTestCluster(t *testing.T, id string, dims model.Dimensions, alive []model.Coord, rule model.RuleSet) *Coordinator {
	t.Helper()
	c, err := New(model.ClusterConfig{
		ID:           id,
		Dimensions:   dims,
		Rule:         rule,
		InitialAlive: alive,
		Seed:         1,
	}, nil)
	if err != nil {
		t.Fatalf("new cluster: %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

func mustState(t *testing.T, c *Coordinator, coord model.Coord) model.State {
	t.Helper()
	snapshot, err := c.GetCellState(coord)
	if err != nil {
		t.Fatalf("cell state %s: %v", coord, err)
	}
	return snapshot.State
}

func TestEvolveGenerationIncrementsByOne(t *testing.T) {
	c := newTestCluster(t, "inc", model.Dimensions{X: 3, Y: 3, Z: 3}, nil, conway())

	for want := uint64(1); want <= 3; want++ {
		got, err := c.EvolveGeneration(context.Background())
		if err != nil {
			t.Fatalf("evolve: %v", err)
		}
		if got != want {
			t.Fatalf("generation: got=%d want=%d", got, want)
		}
	}
	if c.Generation() != 3 {
		t.Fatalf("final generation: got=%d want=3", c.Generation())
	}
}

func TestSingleLiveCellGridGoesDark(t *testing.T) {
	dims := model.Dimensions{X: 3, Y: 3, Z: 1}
	center := model.Coord{X: 1, Y: 1, Z: 0}
	c := newTestCluster(t, "dark", dims, []model.Coord{center}, conway())

	if _, err := c.EvolveGeneration(context.Background()); err != nil {
		t.Fatalf("evolve: %v", err)
	}

	// The lone cell has zero live neighbors and dies; every neighbor saw
	// exactly one live cell, short of any birth count.
	for x := 0; x < dims.X; x++ {
		for y := 0; y < dims.Y; y++ {
			coord := model.Coord{X: x, Y: y, Z: 0}
			if got := mustState(t, c, coord); got != model.Dead {
				t.Fatalf("cell %s: got=%s want=%s", coord, got, model.Dead)
			}
		}
	}
}

func TestBlinkerOscillates(t *testing.T) {
	dims := model.Dimensions{X: 3, Y: 3, Z: 1}
	row := []model.Coord{
		{X: 0, Y: 1, Z: 0},
		{X: 1, Y: 1, Z: 0},
		{X: 2, Y: 1, Z: 0},
	}
	c := newTestCluster(t, "blinker", dims, row, conway())

	if _, err := c.EvolveGeneration(context.Background()); err != nil {
		t.Fatalf("evolve: %v", err)
	}

	column := map[model.Coord]bool{
		{X: 1, Y: 0, Z: 0}: true,
		{X: 1, Y: 1, Z: 0}: true,
		{X: 1, Y: 2, Z: 0}: true,
	}
	for x := 0; x < dims.X; x++ {
		for y := 0; y < dims.Y; y++ {
			coord := model.Coord{X: x, Y: y, Z: 0}
			want := model.Dead
			if column[coord] {
				want = model.Alive
			}
			if got := mustState(t, c, coord); got != want {
				t.Fatalf("cell %s after flip: got=%s want=%s", coord, got, want)
			}
		}
	}

	if _, err := c.EvolveGeneration(context.Background()); err != nil {
		t.Fatalf("evolve: %v", err)
	}
	for _, coord := range row {
		if got := mustState(t, c, coord); got != model.Alive {
			t.Fatalf("cell %s after flip back: got=%s want=%s", coord, got, model.Alive)
		}
	}
}

// A fully live plane under S3 keeps exactly the corners: each corner sees 3
// in-bounds live neighbors while edges see 5 and the center 8. Off-grid
// neighbors counting as dead is what makes the corner count 3.
func TestOpenBoundaryCornersSurvive(t *testing.T) {
	dims := model.Dimensions{X: 3, Y: 3, Z: 1}
	all := make([]model.Coord, 0, 9)
	for x := 0; x < dims.X; x++ {
		for y := 0; y < dims.Y; y++ {
			all = append(all, model.Coord{X: x, Y: y, Z: 0})
		}
	}
	c := newTestCluster(t, "boundary", dims, all, model.NewRuleSet(nil, []int{3}))

	if _, err := c.EvolveGeneration(context.Background()); err != nil {
		t.Fatalf("evolve: %v", err)
	}

	corners := map[model.Coord]bool{
		{X: 0, Y: 0, Z: 0}: true,
		{X: 2, Y: 0, Z: 0}: true,
		{X: 0, Y: 2, Z: 0}: true,
		{X: 2, Y: 2, Z: 0}: true,
	}
	for _, coord := range all {
		want := model.Dead
		if corners[coord] {
			want = model.Alive
		}
		if got := mustState(t, c, coord); got != want {
			t.Fatalf("cell %s: got=%s want=%s", coord, got, want)
		}
	}
}

func TestCrashedWorkerIsReplaced(t *testing.T) {
	dims := model.Dimensions{X: 2, Y: 2, Z: 1}
	c := newTestCluster(t, "crash", dims, []model.Coord{{X: 0, Y: 0, Z: 0}}, conway())

	victim := model.Coord{X: 1, Y: 1, Z: 0}
	c.mu.Lock()
	old := c.cells[victim]
	c.mu.Unlock()

	old.Kill("induced fault")

	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		replaced := c.cells[victim] != old
		c.mu.Unlock()
		if replaced {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker never replaced after crash")
		}
		time.Sleep(time.Millisecond)
	}

	// The replacement answers queries and the grid keeps evolving.
	if _, err := c.GetCellState(victim); err != nil {
		t.Fatalf("state after replacement: %v", err)
	}
	got, err := c.EvolveGeneration(context.Background())
	if err != nil {
		t.Fatalf("evolve after replacement: %v", err)
	}
	if got != 1 {
		t.Fatalf("generation after replacement: got=%d want=1", got)
	}

	// Siblings were untouched by the crash.
	other := model.Coord{X: 0, Y: 1, Z: 0}
	snapshot, err := c.GetCellState(other)
	if err != nil {
		t.Fatalf("sibling state: %v", err)
	}
	if snapshot.Generation != 1 {
		t.Fatalf("sibling generation: got=%d want=1", snapshot.Generation)
	}
}

func TestRunEvolvesOnTimer(t *testing.T) {
	c, err := New(model.ClusterConfig{
		ID:                "timer",
		Dimensions:        model.Dimensions{X: 2, Y: 2, Z: 1},
		Rule:              conway(),
		EvolutionInterval: 5 * time.Millisecond,
		Seed:              1,
	}, nil)
	if err != nil {
		t.Fatalf("new cluster: %v", err)
	}
	t.Cleanup(c.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for c.Generation() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timer never advanced the generation")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-runDone; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestPauseSkipsTimerRounds(t *testing.T) {
	c, err := New(model.ClusterConfig{
		ID:                "pause",
		Dimensions:        model.Dimensions{X: 2, Y: 2, Z: 1},
		Rule:              conway(),
		EvolutionInterval: 5 * time.Millisecond,
		Seed:              1,
	}, nil)
	if err != nil {
		t.Fatalf("new cluster: %v", err)
	}
	t.Cleanup(c.Stop)

	c.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if got := c.Generation(); got != 0 {
		t.Fatalf("paused cluster evolved: generation=%d", got)
	}

	// Manual stepping still works while paused.
	if _, err := c.EvolveGeneration(context.Background()); err != nil {
		t.Fatalf("manual evolve while paused: %v", err)
	}
	if got := c.Generation(); got != 1 {
		t.Fatalf("generation after manual step: got=%d want=1", got)
	}
}

func TestResumeRequiresPaused(t *testing.T) {
	c := newTestCluster(t, "resume", model.Dimensions{X: 1, Y: 1, Z: 1}, nil, conway())

	if err := c.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("resume while running: got=%v want=%v", err, ErrNotPaused)
	}

	c.Pause()
	c.Pause() // idempotent
	if !c.Paused() {
		t.Fatal("cluster not paused")
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if c.Paused() {
		t.Fatal("cluster still paused after resume")
	}
}

func TestGetCellStateOutOfBounds(t *testing.T) {
	c := newTestCluster(t, "bounds", model.Dimensions{X: 2, Y: 2, Z: 2}, nil, conway())

	if _, err := c.GetCellState(model.Coord{X: 5, Y: 0, Z: 0}); !errors.Is(err, ErrCellNotFound) {
		t.Fatalf("out-of-bounds query: got=%v want=%v", err, ErrCellNotFound)
	}
}

func TestSetRulesReachesEveryWorker(t *testing.T) {
	c := newTestCluster(t, "rules", model.Dimensions{X: 2, Y: 2, Z: 1}, nil, conway())

	next := model.NewRuleSet([]int{6}, []int{5, 6, 7})
	if err := c.SetRules(next); err != nil {
		t.Fatalf("set rules: %v", err)
	}

	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			snapshot, err := c.GetCellState(model.Coord{X: x, Y: y, Z: 0})
			if err != nil {
				t.Fatalf("cell state: %v", err)
			}
			if got, want := snapshot.Rule.Key(), next.Key(); got != want {
				t.Fatalf("cell (%d,%d) rule: got=%s want=%s", x, y, got, want)
			}
		}
	}

	if err := c.SetRules(model.RuleSet{Birth: []int{30}}); err == nil {
		t.Fatal("expected invalid rule set to be rejected")
	}
}

func TestStopIsIdempotentAndFinal(t *testing.T) {
	c := newTestCluster(t, "stop", model.Dimensions{X: 2, Y: 2, Z: 1}, nil, conway())

	c.Stop()
	c.Stop()

	if _, err := c.EvolveGeneration(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("evolve after stop: got=%v want=%v", err, ErrStopped)
	}
	if _, err := c.GetCellState(model.Coord{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("state after stop: got=%v want=%v", err, ErrStopped)
	}
	if err := c.SetRules(conway()); !errors.Is(err, ErrStopped) {
		t.Fatalf("set rules after stop: got=%v want=%v", err, ErrStopped)
	}
	if c.Stats().Healthy {
		t.Fatal("stopped cluster reports healthy")
	}
}

func TestStatsTracksRounds(t *testing.T) {
	c := newTestCluster(t, "stats", model.Dimensions{X: 2, Y: 2, Z: 1}, nil, conway())

	for i := 0; i < 3; i++ {
		if _, err := c.EvolveGeneration(context.Background()); err != nil {
			t.Fatalf("evolve: %v", err)
		}
	}

	stats := c.Stats()
	if stats.Rounds != 3 {
		t.Fatalf("rounds: got=%d want=3", stats.Rounds)
	}
	if stats.CellCount != 4 {
		t.Fatalf("cell count: got=%d want=4", stats.CellCount)
	}
	if stats.MaxMs < stats.MinMs {
		t.Fatalf("timing bounds inverted: min=%f max=%f", stats.MinMs, stats.MaxMs)
	}
	if !stats.Healthy {
		t.Fatal("running cluster reports unhealthy")
	}
}

func TestCrashDuringRoundReadsAsDead(t *testing.T) {
	dims := model.Dimensions{X: 2, Y: 1, Z: 1}
	left := model.Coord{X: 0, Y: 0, Z: 0}
	right := model.Coord{X: 1, Y: 0, Z: 0}
	// Survival on a single live neighbor keeps both cells alive round after
	// round while both workers are healthy.
	c := newTestCluster(t, "deadread", dims, []model.Coord{left, right}, model.NewRuleSet(nil, []int{0, 1}))

	// A clean stop emits no exit notice, so the monitor never replaces the
	// worker and the round has to cope with a permanently dead mailbox.
	c.mu.Lock()
	stopped := c.cells[right]
	c.mu.Unlock()
	stopped.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := stopped.State(); errors.Is(err, cell.ErrStopped) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker never stopped")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := c.EvolveGeneration(context.Background()); err != nil {
		t.Fatalf("evolve with dead worker: %v", err)
	}

	// The healthy cell saw its crashed neighbor as dead, which still
	// satisfies survive-on-0 here; the round itself never stalls.
	if got := mustState(t, c, left); got != model.Alive {
		t.Fatalf("healthy cell: got=%s want=%s", got, model.Alive)
	}
}
