package engine

import "plegma/internal/model"

// rulePresets is the static catalog of named rule sets offered for
// discovery. The order is the listing order.
var rulePresets = []model.RulePreset{
	{
		Name:        "bays-4555",
		Description: "Bays' 3-D Life variant; compact, mostly stable structures",
		Complexity:  "moderate",
		Rule:        model.NewRuleSet([]int{5}, []int{4, 5}),
	},
	{
		Name:        "bays-5766",
		Description: "Bays' second 3-D Life variant; slow expanding colonies",
		Complexity:  "moderate",
		Rule:        model.NewRuleSet([]int{6}, []int{5, 6, 7}),
	},
	{
		Name:        "sparse-fast",
		Description: "minimal birth/survival sets tuned for cheap rounds",
		Complexity:  "low",
		Rule:        model.NewRuleSet([]int{6}, []int{5, 6}),
	},
	{
		Name:        "dense-growth",
		Description: "wide survival range producing dense, long-lived blobs",
		Complexity:  "high",
		Rule:        model.NewRuleSet([]int{4, 5}, []int{2, 3, 4, 5}),
	},
	{
		Name:        "conway-plane",
		Description: "classic 2-D Life rule for single-layer grids",
		Complexity:  "low",
		Rule:        model.NewRuleSet([]int{3}, []int{2, 3}),
	},
}

// fastPresetName is the preset optimize falls back to when a target demands
// aggressive simplification.
const fastPresetName = "sparse-fast"

func presetByName(name string) (model.RulePreset, bool) {
	for _, preset := range rulePresets {
		if preset.Name == name {
			return preset, true
		}
	}
	return model.RulePreset{}, false
}
