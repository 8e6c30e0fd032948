package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"plegma/internal/model"
)

type ruleFileConfig struct {
	Birth   []int `toml:"birth"`
	Survive []int `toml:"survive"`
}

type clusterFileConfig struct {
	ID           string         `toml:"id"`
	Dimensions   []int          `toml:"dimensions"`
	Rule         ruleFileConfig `toml:"rule"`
	IntervalMs   int            `toml:"interval_ms"`
	Seed         int64          `toml:"seed"`
	FillDensity  float64        `toml:"fill_density"`
	InitialAlive [][]int        `toml:"initial_alive"`
}

func loadClusterConfig(path string) (model.ClusterConfig, error) {
	var raw clusterFileConfig
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return model.ClusterConfig{}, fmt.Errorf("load cluster config: %w", err)
	}
	return clusterConfigFromFile(raw)
}

func clusterConfigFromFile(raw clusterFileConfig) (model.ClusterConfig, error) {
	if len(raw.Dimensions) != 3 {
		return model.ClusterConfig{}, fmt.Errorf("dimensions must have exactly 3 entries, got %d", len(raw.Dimensions))
	}
	cfg := model.ClusterConfig{
		ID: raw.ID,
		Dimensions: model.Dimensions{
			X: raw.Dimensions[0],
			Y: raw.Dimensions[1],
			Z: raw.Dimensions[2],
		},
		Rule:              model.NewRuleSet(raw.Rule.Birth, raw.Rule.Survive),
		EvolutionInterval: time.Duration(raw.IntervalMs) * time.Millisecond,
		Seed:              raw.Seed,
		FillDensity:       raw.FillDensity,
	}
	for i, entry := range raw.InitialAlive {
		if len(entry) != 3 {
			return model.ClusterConfig{}, fmt.Errorf("initial_alive[%d] must have exactly 3 entries", i)
		}
		cfg.InitialAlive = append(cfg.InitialAlive, model.Coord{X: entry[0], Y: entry[1], Z: entry[2]})
	}
	return cfg, nil
}

// parseCounts parses a comma-separated neighbor-count list, e.g. "5,6,7".
func parseCounts(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid neighbor count %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}
