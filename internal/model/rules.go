package model

import (
	"fmt"
	"sort"
	"strings"
)

// MaxNeighbors is the Moore neighborhood size in three dimensions.
const MaxNeighbors = 26

// RuleSet holds birth and survival neighbor counts. A dead cell becomes
// alive iff its live-neighbor count is in Birth; a live cell stays alive iff
// its count is in Survive; every other transition goes to Dead. Rule sets are
// copied on broadcast, never shared between workers.
type RuleSet struct {
	Birth   []int `json:"birth"`
	Survive []int `json:"survive"`
}

func NewRuleSet(birth, survive []int) RuleSet {
	return RuleSet{Birth: birth, Survive: survive}.Normalized()
}

func (r RuleSet) Validate() error {
	for _, n := range r.Birth {
		if n < 0 || n > MaxNeighbors {
			return fmt.Errorf("birth count out of range [0,%d]: %d", MaxNeighbors, n)
		}
	}
	for _, n := range r.Survive {
		if n < 0 || n > MaxNeighbors {
			return fmt.Errorf("survive count out of range [0,%d]: %d", MaxNeighbors, n)
		}
	}
	return nil
}

// Normalized returns a copy with both sets sorted and deduplicated so that
// equal rules always produce the same Key.
func (r RuleSet) Normalized() RuleSet {
	return RuleSet{
		Birth:   normalizeCounts(r.Birth),
		Survive: normalizeCounts(r.Survive),
	}
}

// Key renders the rule in B/S notation, e.g. "B3/S23". Counts above 9 are
// comma separated to stay unambiguous.
func (r RuleSet) Key() string {
	n := r.Normalized()
	return "B" + joinCounts(n.Birth) + "/S" + joinCounts(n.Survive)
}

func (r RuleSet) Clone() RuleSet {
	return RuleSet{
		Birth:   append([]int(nil), r.Birth...),
		Survive: append([]int(nil), r.Survive...),
	}
}

// Next applies the birth/survival predicate to one cell.
func (r RuleSet) Next(current State, liveNeighbors int) State {
	if current == Alive {
		if containsCount(r.Survive, liveNeighbors) {
			return Alive
		}
		return Dead
	}
	if containsCount(r.Birth, liveNeighbors) {
		return Alive
	}
	return Dead
}

func normalizeCounts(counts []int) []int {
	seen := make(map[int]struct{}, len(counts))
	out := make([]int, 0, len(counts))
	for _, n := range counts {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func joinCounts(counts []int) string {
	parts := make([]string, 0, len(counts))
	wide := false
	for _, n := range counts {
		if n > 9 {
			wide = true
		}
		parts = append(parts, fmt.Sprintf("%d", n))
	}
	if wide {
		return strings.Join(parts, ",")
	}
	return strings.Join(parts, "")
}

func containsCount(counts []int, n int) bool {
	for _, c := range counts {
		if c == n {
			return true
		}
	}
	return false
}
