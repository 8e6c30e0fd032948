package model

import (
	"fmt"
	"time"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

// VersionedRecord is embedded in every persisted record so the storage codec
// can reject payloads written by an incompatible build.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

func NewVersionedRecord() VersionedRecord {
	return VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}

type State uint8

const (
	Dead State = iota
	Alive
)

func (s State) String() string {
	if s == Alive {
		return "alive"
	}
	return "dead"
}

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (c Coord) String() string {
	return fmt.Sprintf("%d,%d,%d", c.X, c.Y, c.Z)
}

type Dimensions struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (d Dimensions) CellCount() int {
	return d.X * d.Y * d.Z
}

func (d Dimensions) Contains(c Coord) bool {
	return c.X >= 0 && c.X < d.X &&
		c.Y >= 0 && c.Y < d.Y &&
		c.Z >= 0 && c.Z < d.Z
}

func (d Dimensions) Validate() error {
	if d.X <= 0 || d.Y <= 0 || d.Z <= 0 {
		return fmt.Errorf("dimensions must be positive on every axis: %dx%dx%d", d.X, d.Y, d.Z)
	}
	return nil
}

// CellSnapshot is the read-only view a cell worker returns for a state query.
type CellSnapshot struct {
	Coord      Coord   `json:"coord"`
	State      State   `json:"state"`
	Generation uint64  `json:"generation"`
	Rule       RuleSet `json:"rule"`
	History    []State `json:"history,omitempty"`
}

type ClusterConfig struct {
	VersionedRecord

	ID                string        `json:"id"`
	Dimensions        Dimensions    `json:"dimensions"`
	Rule              RuleSet       `json:"rule"`
	EvolutionInterval time.Duration `json:"evolution_interval_ns"`
	Seed              int64         `json:"seed"`
	FillDensity       float64       `json:"fill_density"`
	InitialAlive      []Coord       `json:"initial_alive,omitempty"`
}

const (
	DefaultEvolutionInterval = 100 * time.Millisecond
	DefaultFillDensity       = 0.3
)

func (c ClusterConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("cluster id is required")
	}
	if err := c.Dimensions.Validate(); err != nil {
		return err
	}
	if err := c.Rule.Validate(); err != nil {
		return err
	}
	if c.FillDensity < 0 || c.FillDensity > 1 {
		return fmt.Errorf("fill density must be in [0,1]: %v", c.FillDensity)
	}
	for _, coord := range c.InitialAlive {
		if !c.Dimensions.Contains(coord) {
			return fmt.Errorf("initial live cell out of bounds: %s", coord)
		}
	}
	return nil
}

// Normalized returns the config with defaults applied.
func (c ClusterConfig) Normalized() ClusterConfig {
	if c.EvolutionInterval <= 0 {
		c.EvolutionInterval = DefaultEvolutionInterval
	}
	if c.FillDensity == 0 && len(c.InitialAlive) == 0 {
		c.FillDensity = DefaultFillDensity
	}
	c.Rule = c.Rule.Normalized()
	return c
}

type ClusterStats struct {
	ClusterID  string  `json:"cluster_id"`
	Generation uint64  `json:"generation"`
	CellCount  int     `json:"cell_count"`
	Paused     bool    `json:"paused"`
	Rounds     uint64  `json:"rounds"`
	AvgMs      float64 `json:"avg_ms"`
	MinMs      float64 `json:"min_ms"`
	MaxMs      float64 `json:"max_ms"`
	LastMs     float64 `json:"last_ms"`
	Healthy    bool    `json:"healthy"`
	Error      string  `json:"error,omitempty"`
}

type ClusterSummary struct {
	VersionedRecord

	ID           string       `json:"id"`
	LastStats    ClusterStats `json:"last_stats"`
	StoppedAtUTC string       `json:"stopped_at_utc"`
}

type PerformanceTarget struct {
	MaxGenerationTimeMs float64 `json:"max_generation_time_ms"`
	TargetGenPerSecond  float64 `json:"target_gen_per_second,omitempty"`
}

func (t PerformanceTarget) Key() string {
	return fmt.Sprintf("max=%g;gps=%g", t.MaxGenerationTimeMs, t.TargetGenPerSecond)
}

type OptimizationLevel string

const (
	OptimizationMedium OptimizationLevel = "medium"
	OptimizationHigh   OptimizationLevel = "high"
)

type OptimizedRuleSet struct {
	Rule  RuleSet           `json:"rule"`
	Level OptimizationLevel `json:"optimization_level"`
}

type RulePreset struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Complexity  string  `json:"complexity"`
	Rule        RuleSet `json:"rule"`
}

type BenchmarkRecord struct {
	BenchmarkID       string       `json:"benchmark_id"`
	ClusterID         string       `json:"cluster_id"`
	TotalTimeMs       float64      `json:"total_time_ms"`
	GenerationTimesMs []float64    `json:"per_generation_times_ms"`
	FinalStats        ClusterStats `json:"final_cluster_stats"`
	Timestamp         time.Time    `json:"timestamp"`
}
