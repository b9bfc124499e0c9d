package enemy

import "github.com/cory-johannsen/dungeonrun/internal/game/dice"

// DefaultBossNames is the built-in pool of gate-boss display names.
var DefaultBossNames = []string{
	"Gravemaw", "Ashen Warden", "Thessaly the Drowned", "Korrug Bonecleaver",
	"The Hollow Saint", "Vessa Nightcoil", "Old Cinderjaw", "Marrowgeist",
	"Ilvane of the Pale Flame", "Brother Rust", "The Gilded Husk", "Sorn Deepcaller",
}

// NamePool hands out display names without repeats until every name has
// been used, after which duplicates are allowed.
type NamePool struct {
	names []string
	used  map[string]bool
	src   dice.Source
}

// NewNamePool returns a pool over names drawing from src.
//
// Precondition: src must be non-nil.
func NewNamePool(names []string, src dice.Source) *NamePool {
	return &NamePool{names: append([]string(nil), names...), used: make(map[string]bool), src: src}
}

// Draw returns a random unused name, or any name once the pool is exhausted.
// An empty pool yields "".
func (p *NamePool) Draw() string {
	if len(p.names) == 0 {
		return ""
	}
	unused := make([]string, 0, len(p.names))
	for _, n := range p.names {
		if !p.used[n] {
			unused = append(unused, n)
		}
	}
	if len(unused) == 0 {
		return p.names[p.src.Intn(len(p.names))]
	}
	name := unused[p.src.Intn(len(unused))]
	p.used[name] = true
	return name
}

// Remaining returns the number of names not yet drawn.
func (p *NamePool) Remaining() int {
	n := 0
	for _, name := range p.names {
		if !p.used[name] {
			n++
		}
	}
	return n
}
