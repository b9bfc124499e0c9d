// Package dungeon models the static dungeon layout: gates, enemy packs, the
// final boss, and the routes players build over them.
package dungeon

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownPack is returned when a route references a pack the dungeon does not define.
	ErrUnknownPack = errors.New("unknown pack")
	// ErrPackReused is returned when a pack appears in more than one pull.
	ErrPackReused = errors.New("pack appears in more than one pull")
	// ErrEmptyPull is returned when a route contains a pull with no packs.
	ErrEmptyPull = errors.New("pull has no packs")
	// ErrGateLocked is returned when a route enters a gate before every earlier
	// gate's forces requirement and gate boss are met by the pulls before it.
	ErrGateLocked = errors.New("gate is locked")
)

// MaxGates is the largest number of gates a dungeon may define.
const MaxGates = 3

// Position is a point on the dungeon map.
type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Position) Distance(q Position) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Lerp returns the point a fraction t of the way from p to q.
func (p Position) Lerp(q Position, t float64) Position {
	return Position{X: p.X + (q.X-p.X)*t, Y: p.Y + (q.Y-p.Y)*t}
}

// Gate is one sequential zone of the dungeon.
type Gate struct {
	Index          int     `yaml:"index"`
	ForcesRequired int     `yaml:"forces_required"`
	BossPackID     string  `yaml:"boss_pack"`
	SpanStart      float64 `yaml:"span_start"`
	SpanEnd        float64 `yaml:"span_end"`
}

// PackMember is one enemy type and count within a pack.
type PackMember struct {
	EnemyID string `yaml:"enemy"`
	Count   int    `yaml:"count"`
}

// EnemyPack is a group of enemies placed on the map.
type EnemyPack struct {
	ID         string       `yaml:"id"`
	Members    []PackMember `yaml:"members"`
	Position   Position     `yaml:"position"`
	PullRadius float64      `yaml:"pull_radius"`
	Forces     int          `yaml:"forces"`
	Gate       int          `yaml:"gate"`
	GateBoss   bool         `yaml:"gate_boss"`
	// Optional packs are excluded from planned routes and engaged on request.
	Optional bool `yaml:"optional"`
}

// Size returns the total number of enemies in the pack.
func (p EnemyPack) Size() int {
	n := 0
	for _, m := range p.Members {
		n += m.Count
	}
	return n
}

// BossPhase is a one-time transition triggered when boss health falls to Threshold.
type BossPhase struct {
	// Threshold is a health fraction in (0, 1).
	Threshold float64 `yaml:"threshold"`
	Name      string  `yaml:"name"`
	// CooldownScale multiplies the boss's ability cooldowns once the phase begins.
	CooldownScale  float64  `yaml:"cooldown_scale"`
	GrantAbilities []string `yaml:"grant_abilities"`
}

// DungeonBoss is the final encounter.
type DungeonBoss struct {
	EnemyID  string      `yaml:"enemy"`
	Name     string      `yaml:"name"`
	Position Position    `yaml:"position"`
	Phases   []BossPhase `yaml:"phases"`
}

// Dungeon is the static, externally authored layout of one dungeon.
type Dungeon struct {
	ID               string      `yaml:"id"`
	Name             string      `yaml:"name"`
	TimeLimitSeconds float64     `yaml:"time_limit_seconds"`
	Start            Position    `yaml:"start"`
	Gates            []Gate      `yaml:"gates"`
	Packs            []EnemyPack `yaml:"packs"`
	Boss             DungeonBoss `yaml:"boss"`
}

// Pack returns the pack with the given id.
func (d *Dungeon) Pack(id string) (EnemyPack, bool) {
	for _, p := range d.Packs {
		if p.ID == id {
			return p, true
		}
	}
	return EnemyPack{}, false
}

// Gate returns the gate with the given 1-based index.
func (d *Dungeon) Gate(index int) (Gate, bool) {
	for _, g := range d.Gates {
		if g.Index == index {
			return g, true
		}
	}
	return Gate{}, false
}

// GateAt returns the index of the gate whose span contains x, or 0 if none does.
func (d *Dungeon) GateAt(x float64) int {
	for _, g := range d.Gates {
		if x >= g.SpanStart && x < g.SpanEnd {
			return g.Index
		}
	}
	return 0
}

// ForcesRequired returns the total forces of every gate.
func (d *Dungeon) ForcesRequired() int {
	n := 0
	for _, g := range d.Gates {
		n += g.ForcesRequired
	}
	return n
}

// Validate checks the structural invariants of the layout.
//
// Postcondition: Returns nil iff gates are numbered 1..n with n <= MaxGates,
// pack ids are unique, every pack belongs to exactly one existing gate, every
// gate boss pack exists inside its gate, and the final boss names an enemy.
func (d *Dungeon) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, fmt.Errorf("dungeon id must not be empty"))
	}
	if d.TimeLimitSeconds <= 0 {
		errs = append(errs, fmt.Errorf("time_limit_seconds must be > 0"))
	}
	if len(d.Gates) == 0 || len(d.Gates) > MaxGates {
		errs = append(errs, fmt.Errorf("dungeon must define 1..%d gates, got %d", MaxGates, len(d.Gates)))
	}
	for i, g := range d.Gates {
		if g.Index != i+1 {
			errs = append(errs, fmt.Errorf("gate %d: index must be %d", g.Index, i+1))
		}
		if g.ForcesRequired < 0 {
			errs = append(errs, fmt.Errorf("gate %d: forces_required must be >= 0", g.Index))
		}
	}
	seen := make(map[string]bool, len(d.Packs))
	for _, p := range d.Packs {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("pack id must not be empty"))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("pack %q: duplicate id", p.ID))
		}
		seen[p.ID] = true
		if _, ok := d.Gate(p.Gate); !ok {
			errs = append(errs, fmt.Errorf("pack %q: gate %d does not exist", p.ID, p.Gate))
		}
		if p.Size() == 0 {
			errs = append(errs, fmt.Errorf("pack %q: has no members", p.ID))
		}
		for _, m := range p.Members {
			if m.EnemyID == "" || m.Count < 1 {
				errs = append(errs, fmt.Errorf("pack %q: members need an enemy and a positive count", p.ID))
			}
		}
	}
	for _, g := range d.Gates {
		if g.BossPackID == "" {
			continue
		}
		p, ok := d.Pack(g.BossPackID)
		if !ok {
			errs = append(errs, fmt.Errorf("gate %d: boss pack %q: %w", g.Index, g.BossPackID, ErrUnknownPack))
			continue
		}
		if p.Gate != g.Index {
			errs = append(errs, fmt.Errorf("gate %d: boss pack %q belongs to gate %d", g.Index, p.ID, p.Gate))
		}
	}
	if d.Boss.EnemyID == "" {
		errs = append(errs, fmt.Errorf("boss.enemy must not be empty"))
	}
	for _, ph := range d.Boss.Phases {
		if ph.Threshold <= 0 || ph.Threshold >= 1 {
			errs = append(errs, fmt.Errorf("boss phase %q: threshold must be in (0, 1)", ph.Name))
		}
	}
	return errors.Join(errs...)
}

// Centroid returns the mean position of the given packs.
//
// Precondition: len(packs) > 0.
func Centroid(packs []EnemyPack) Position {
	var c Position
	for _, p := range packs {
		c.X += p.Position.X
		c.Y += p.Position.Y
	}
	n := float64(len(packs))
	return Position{X: c.X / n, Y: c.Y / n}
}
