package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"plegma/internal/cluster"
	"plegma/internal/model"
)

const (
	benchmarkGenerations = 10
	benchmarkHistoryCap  = 50

	// A benchmark that cannot finish its generations within this budget is
	// treated as hung and fails with an error; teardown still happens.
	benchmarkTimeout = 30 * time.Second
)

type Status struct {
	Algorithms          int    `json:"algorithms"`
	CachedOptimizations int    `json:"cached_optimizations"`
	Recomputations      uint64 `json:"recomputations"`
	BenchmarksRun       uint64 `json:"benchmarks_run"`
	HistoryLength       int    `json:"history_length"`
}

// Engine owns the rule-preset catalog, the memoized optimization cache, and
// the benchmark facility. It is a singleton, application-lifetime component.
//
// Benchmark clusters are built directly, bypassing the registry, so they are
// never visible to list_clusters and carry no supervision or telemetry.
type Engine struct {
	mu             sync.Mutex
	cache          map[string]model.OptimizedRuleSet
	recomputations uint64
	benchmarksRun  uint64
	history        []model.BenchmarkRecord
}

func New() *Engine {
	return &Engine{
		cache: make(map[string]model.OptimizedRuleSet),
	}
}

// AvailableAlgorithms lists the static preset catalog.
func (e *Engine) AvailableAlgorithms() []model.RulePreset {
	out := make([]model.RulePreset, len(rulePresets))
	for i, preset := range rulePresets {
		preset.Rule = preset.Rule.Clone()
		out[i] = preset
	}
	return out
}

// OptimizeRules returns a rule set tuned toward the performance target.
// Results are memoized: identical (rules, target) inputs always return the
// identical cached output without recomputation.
func (e *Engine) OptimizeRules(rules model.RuleSet, target model.PerformanceTarget) (model.OptimizedRuleSet, error) {
	rules = rules.Normalized()
	if err := rules.Validate(); err != nil {
		return model.OptimizedRuleSet{}, err
	}
	key := rules.Key() + "|" + target.Key()

	e.mu.Lock()
	defer e.mu.Unlock()

	if cached, ok := e.cache[key]; ok {
		cached.Rule = cached.Rule.Clone()
		return cached, nil
	}

	optimized := optimize(rules, target)
	e.recomputations++
	e.cache[key] = optimized

	optimized.Rule = optimized.Rule.Clone()
	return optimized, nil
}

// optimize is the deterministic heuristic: a tight generation-time target
// swaps in the fast preset's small sets, anything else passes through.
func optimize(rules model.RuleSet, target model.PerformanceTarget) model.OptimizedRuleSet {
	if target.MaxGenerationTimeMs > 0 && target.MaxGenerationTimeMs < 50 {
		fast, _ := presetByName(fastPresetName)
		return model.OptimizedRuleSet{
			Rule:  fast.Rule.Clone(),
			Level: model.OptimizationHigh,
		}
	}
	return model.OptimizedRuleSet{
		Rule:  rules.Clone(),
		Level: model.OptimizationMedium,
	}
}

// BenchmarkPerformance starts a throwaway cluster with the given config,
// times exactly ten generations, and tears the cluster down unconditionally.
// The result is appended to a bounded in-process history.
func (e *Engine) BenchmarkPerformance(ctx context.Context, cfg model.ClusterConfig) (model.BenchmarkRecord, error) {
	benchmarkID := "bench-" + uuid.NewString()
	cfg.ID = benchmarkID

	ctx, cancel := context.WithTimeout(ctx, benchmarkTimeout)
	defer cancel()

	c, err := cluster.New(cfg, nil)
	if err != nil {
		return model.BenchmarkRecord{}, fmt.Errorf("benchmark cluster: %w", err)
	}
	defer c.Stop()

	times := make([]float64, 0, benchmarkGenerations)
	start := time.Now()
	for i := 0; i < benchmarkGenerations; i++ {
		genStart := time.Now()
		if _, err := c.EvolveGeneration(ctx); err != nil {
			log.Warn().Str("benchmark", benchmarkID).Err(err).Msg("benchmark aborted")
			return model.BenchmarkRecord{}, fmt.Errorf("benchmark generation %d: %w", i+1, err)
		}
		times = append(times, float64(time.Since(genStart).Microseconds())/1000.0)
	}
	total := time.Since(start)

	record := model.BenchmarkRecord{
		BenchmarkID:       benchmarkID,
		ClusterID:         benchmarkID,
		TotalTimeMs:       float64(total.Microseconds()) / 1000.0,
		GenerationTimesMs: times,
		FinalStats:        c.Stats(),
		Timestamp:         time.Now(),
	}

	e.mu.Lock()
	e.benchmarksRun++
	e.history = append(e.history, record)
	if len(e.history) > benchmarkHistoryCap {
		e.history = e.history[len(e.history)-benchmarkHistoryCap:]
	}
	e.mu.Unlock()

	return record, nil
}

// BenchmarkHistory returns the bounded benchmark history, oldest first.
func (e *Engine) BenchmarkHistory() []model.BenchmarkRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.BenchmarkRecord(nil), e.history...)
}

// Recomputations reports how many optimization results were actually
// computed rather than served from cache.
func (e *Engine) Recomputations() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recomputations
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Algorithms:          len(rulePresets),
		CachedOptimizations: len(e.cache),
		Recomputations:      e.recomputations,
		BenchmarksRun:       e.benchmarksRun,
		HistoryLength:       len(e.history),
	}
}
