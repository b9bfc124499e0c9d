package combat

import (
	"sort"

	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
)

// PhaseTracker fires each boss phase once, the first time health falls to
// or below its threshold.
type PhaseTracker struct {
	phases    []dungeon.BossPhase
	triggered []bool
}

// NewPhaseTracker returns a tracker over phases, ordered by descending threshold.
func NewPhaseTracker(phases []dungeon.BossPhase) *PhaseTracker {
	sorted := append([]dungeon.BossPhase(nil), phases...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Threshold > sorted[j].Threshold })
	return &PhaseTracker{phases: sorted, triggered: make([]bool, len(sorted))}
}

// Check returns the phases newly crossed at healthFraction, in threshold order.
//
// Postcondition: no phase is ever returned twice.
func (p *PhaseTracker) Check(healthFraction float64) []dungeon.BossPhase {
	var out []dungeon.BossPhase
	for i, ph := range p.phases {
		if p.triggered[i] || healthFraction > ph.Threshold {
			continue
		}
		p.triggered[i] = true
		out = append(out, ph)
	}
	return out
}

// Triggered returns the number of phases that have fired.
func (p *PhaseTracker) Triggered() int {
	n := 0
	for _, t := range p.triggered {
		if t {
			n++
		}
	}
	return n
}
