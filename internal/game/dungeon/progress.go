package dungeon

// GateProgress tracks forces cleared and gate bosses killed per gate.
type GateProgress struct {
	d          *Dungeon
	forces     map[int]int
	bossKilled map[int]bool
	total      int
}

// NewProgress returns empty progress over d.
func NewProgress(d *Dungeon) *GateProgress {
	return &GateProgress{d: d, forces: make(map[int]int), bossKilled: make(map[int]bool)}
}

// Clear records a defeated pack. Packs unknown to the dungeon are ignored.
func (g *GateProgress) Clear(packID string) {
	p, ok := g.d.Pack(packID)
	if !ok {
		return
	}
	g.forces[p.Gate] += p.Forces
	g.total += p.Forces
	if gate, ok := g.d.Gate(p.Gate); ok && gate.BossPackID == p.ID {
		g.bossKilled[p.Gate] = true
	}
}

// ForcesCleared returns the cumulative forces of all cleared packs.
func (g *GateProgress) ForcesCleared() int { return g.total }

// GateForces returns the forces cleared inside one gate.
func (g *GateProgress) GateForces(index int) int { return g.forces[index] }

// Satisfied reports whether gate index has met its forces requirement and,
// if it has one, its gate boss is dead.
func (g *GateProgress) Satisfied(index int) bool {
	gate, ok := g.d.Gate(index)
	if !ok {
		return false
	}
	if g.forces[index] < gate.ForcesRequired {
		return false
	}
	return gate.BossPackID == "" || g.bossKilled[index]
}

// Unlocked reports whether gate index may be entered: every earlier gate
// must be satisfied. Gate 1 is always unlocked.
func (g *GateProgress) Unlocked(index int) bool {
	if _, ok := g.d.Gate(index); !ok {
		return false
	}
	for i := 1; i < index; i++ {
		if !g.Satisfied(i) {
			return false
		}
	}
	return true
}

// AllSatisfied reports whether every gate is satisfied, which opens the final boss.
func (g *GateProgress) AllSatisfied() bool {
	for _, gate := range g.d.Gates {
		if !g.Satisfied(gate.Index) {
			return false
		}
	}
	return true
}
