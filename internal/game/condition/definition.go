// Package condition models timed buffs, debuffs, heal-over-time and
// damage-over-time effects carried by combatants during a run.
package condition

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind classifies an effect for logging and dispel purposes.
type Kind string

const (
	KindBuff   Kind = "buff"
	KindDebuff Kind = "debuff"
	KindHoT    Kind = "hot"
	KindDoT    Kind = "dot"
)

// Built-in effect IDs referenced by the combat engine.
const (
	Fortify  = "fortify"  // tank defensive cooldown
	Rally    = "rally"    // team-wide damage buff
	Renew    = "renew"    // healer heal-over-time
	Sunder   = "sunder"   // stacking armor break applied by melee enemies
	Enrage   = "enrage"   // boss damage buff granted on phase change
	Ignite   = "ignite"   // fire damage-over-time from casters
	Weakened = "weakened" // outgoing-damage debuff from tankbusters
)

// EffectDef is the static definition of an effect, loaded from YAML.
// Percentage modifiers are per stack.
type EffectDef struct {
	ID                 string  `yaml:"id"`
	Name               string  `yaml:"name"`
	Description        string  `yaml:"description"`
	Kind               Kind    `yaml:"kind"`
	MaxStacks          int     `yaml:"max_stacks"` // 0 = unstackable
	DurationSeconds    float64 `yaml:"duration_seconds"`
	DamageDealtPct     float64 `yaml:"damage_dealt_pct"`
	DamageTakenPct     float64 `yaml:"damage_taken_pct"`
	HealingReceivedPct float64 `yaml:"healing_received_pct"`
	ArmorPct           float64 `yaml:"armor_pct"`
	// TickValue is the heal (hot) or damage (dot) applied per second per stack.
	TickValue  float64 `yaml:"tick_value"`
	DamageType string  `yaml:"damage_type"`
}

// Validate checks the definition's invariants.
//
// Postcondition: Returns nil iff ID and Name are non-empty, Kind is known,
// MaxStacks >= 0, and DurationSeconds > 0.
func (d *EffectDef) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("effect: id must not be empty")
	}
	if d.Name == "" {
		return fmt.Errorf("effect %q: name must not be empty", d.ID)
	}
	switch d.Kind {
	case KindBuff, KindDebuff, KindHoT, KindDoT:
	default:
		return fmt.Errorf("effect %q: kind must be one of [buff, debuff, hot, dot], got %q", d.ID, d.Kind)
	}
	if d.MaxStacks < 0 {
		return fmt.Errorf("effect %q: max_stacks must be >= 0", d.ID)
	}
	if d.DurationSeconds <= 0 {
		return fmt.Errorf("effect %q: duration_seconds must be > 0", d.ID)
	}
	return nil
}

// Registry holds all known EffectDefs keyed by ID.
type Registry struct {
	defs map[string]*EffectDef
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*EffectDef)}
}

// DefaultRegistry returns a Registry holding the built-in effects the engine applies.
//
// Postcondition: Get succeeds for every built-in effect ID constant.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range []*EffectDef{
		{ID: Fortify, Name: "Fortify", Kind: KindBuff, DurationSeconds: 8, DamageTakenPct: -40},
		{ID: Rally, Name: "Rally", Kind: KindBuff, DurationSeconds: 15, DamageDealtPct: 25},
		{ID: Renew, Name: "Renew", Kind: KindHoT, MaxStacks: 2, DurationSeconds: 9, TickValue: 0},
		{ID: Sunder, Name: "Sunder", Kind: KindDebuff, MaxStacks: 5, DurationSeconds: 10, ArmorPct: -8},
		{ID: Enrage, Name: "Enrage", Kind: KindBuff, DurationSeconds: 3600, DamageDealtPct: 30},
		{ID: Ignite, Name: "Ignite", Kind: KindDoT, MaxStacks: 3, DurationSeconds: 6, DamageType: "fire"},
		{ID: Weakened, Name: "Weakened", Kind: KindDebuff, DurationSeconds: 6, DamageDealtPct: -20},
	} {
		r.Register(d)
	}
	return r
}

// Register adds def to the registry, overwriting any existing entry with the same ID.
// Precondition: def must not be nil and def.ID must not be empty.
func (r *Registry) Register(def *EffectDef) {
	r.defs[def.ID] = def
}

// Get returns the EffectDef for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*EffectDef, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// All returns a snapshot slice of all registered EffectDefs ordered by ID.
func (r *Registry) All() []*EffectDef {
	out := make([]*EffectDef, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDirectory reads every *.yaml file in dir on top of the built-in effects.
// Files override built-ins with the same ID.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error if any file fails to parse or validate.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading effect dir %q: %w", dir, err)
	}
	reg := DefaultRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var def EffectDef
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("validating %q: %w", path, err)
		}
		reg.Register(&def)
	}
	return reg, nil
}
