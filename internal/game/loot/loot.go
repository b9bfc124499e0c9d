// Package loot defines the loot-table contract consumed by the run controller
// and a YAML-backed default table.
package loot

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/dungeonrun/internal/game/dice"
	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
)

// Kind classifies a drop.
type Kind string

const (
	KindCurrency Kind = "currency"
	KindItem     Kind = "item"
	KindOrb      Kind = "orb"
	KindFragment Kind = "fragment"
)

// Request carries the numeric inputs of one loot roll.
type Request struct {
	EnemyValue           float64
	EnemyTier            int
	KeyLevel             int
	HighestCompletedTier int
	Position             dungeon.Position
	// QuantityBonus and RarityBonus are percentages.
	QuantityBonus float64
	RarityBonus   float64
	// Source names the enemy that dropped the loot, for logging.
	Source string
}

// Drop is one generated loot instance.
type Drop struct {
	ID       string           `json:"id"`
	ItemID   string           `json:"item_id"`
	Kind     Kind             `json:"kind"`
	Rarity   string           `json:"rarity,omitempty"`
	Quantity int              `json:"quantity"`
	Source   string           `json:"source,omitempty"`
	Position dungeon.Position `json:"position"`
}

// Table generates drops. Implementations may fail or panic; callers go through SafeRoll.
type Table interface {
	Roll(req Request, r *dice.Roller) ([]Drop, error)
}

// Entry is one line of a YAML loot table.
type Entry struct {
	ItemID string `yaml:"item"`
	Kind   Kind   `yaml:"kind"`
	Rarity string `yaml:"rarity"`
	// Chance is the base drop probability in (0, 1].
	Chance float64 `yaml:"chance"`
	// Quantity is a dice expression such as "1d4+1".
	Quantity string `yaml:"quantity"`
	// MinTier and MinKeyLevel gate the entry on enemy tier and key level.
	MinTier     int `yaml:"min_tier"`
	MinKeyLevel int `yaml:"min_key_level"`
	// ScalesWithValue multiplies quantity by the enemy value.
	ScalesWithValue bool `yaml:"scales_with_value"`
}

// Validate checks that the entry satisfies its invariants.
//
// Postcondition: Returns nil iff ItemID is non-empty, Kind is known, Chance is
// in (0, 1], and Quantity parses as a dice expression.
func (e Entry) Validate() error {
	if e.ItemID == "" {
		return fmt.Errorf("loot entry: item must not be empty")
	}
	switch e.Kind {
	case KindCurrency, KindItem, KindOrb, KindFragment:
	default:
		return fmt.Errorf("loot entry %q: unknown kind %q", e.ItemID, e.Kind)
	}
	if e.Chance <= 0 || e.Chance > 1 {
		return fmt.Errorf("loot entry %q: chance must be in (0, 1], got %f", e.ItemID, e.Chance)
	}
	if _, err := dice.Parse(e.Quantity); err != nil {
		return fmt.Errorf("loot entry %q: quantity: %w", e.ItemID, err)
	}
	return nil
}

// YAMLTable is the default table loaded from content.
type YAMLTable struct {
	Entries []Entry `yaml:"entries"`
}

// Roll rolls every eligible entry.
//
// Postcondition: every drop has a unique ID and Quantity >= 1.
func (t *YAMLTable) Roll(req Request, r *dice.Roller) ([]Drop, error) {
	var drops []Drop
	for _, e := range t.Entries {
		if req.EnemyTier < e.MinTier || req.KeyLevel < e.MinKeyLevel {
			continue
		}
		chance := e.Chance
		if e.Kind != KindCurrency {
			chance *= 1 + req.RarityBonus/100
			// Fragments of tiers above the highest completed one are rarer.
			if e.Kind == KindFragment && req.EnemyTier > req.HighestCompletedTier {
				chance /= 2
			}
		}
		if !r.Check("loot "+e.ItemID, chance) {
			continue
		}
		factor := 1 + req.QuantityBonus/100
		if e.ScalesWithValue {
			factor *= math.Max(req.EnemyValue, 0)
		}
		n, err := r.Scaled(e.Quantity, factor)
		if err != nil {
			return nil, fmt.Errorf("rolling %q quantity: %w", e.ItemID, err)
		}
		if n < 1 {
			continue
		}
		drops = append(drops, Drop{
			ID:       uuid.NewString(),
			ItemID:   e.ItemID,
			Kind:     e.Kind,
			Rarity:   e.Rarity,
			Quantity: n,
			Source:   req.Source,
			Position: req.Position,
		})
	}
	return drops, nil
}

// Load reads and validates a YAML loot table.
func Load(path string) (*YAMLTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading loot table %q: %w", path, err)
	}
	var t YAMLTable
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("parsing loot table %q: %w", path, err)
	}
	for _, e := range t.Entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("loot table %q: %w", path, err)
		}
	}
	return &t, nil
}

// Default returns a small built-in table.
func Default() *YAMLTable {
	return &YAMLTable{Entries: []Entry{
		{ItemID: "gold", Kind: KindCurrency, Chance: 1, Quantity: "2d6", ScalesWithValue: true},
		{ItemID: "chaos_orb", Kind: KindOrb, Rarity: "rare", Chance: 0.05, Quantity: "1"},
		{ItemID: "map_fragment", Kind: KindFragment, Rarity: "magic", Chance: 0.02, Quantity: "1", MinKeyLevel: 2},
		{ItemID: "rusted_blade", Kind: KindItem, Rarity: "normal", Chance: 0.1, Quantity: "1"},
	}}
}

// None is a table that never drops anything.
type None struct{}

// Roll returns no drops.
func (None) Roll(Request, *dice.Roller) ([]Drop, error) { return nil, nil }

// SafeRoll invokes t and converts errors and panics into a returned error
// with no drops.
//
// Postcondition: on a non-nil error the drop list is nil.
func SafeRoll(t Table, req Request, r *dice.Roller, logger *zap.Logger) (drops []Drop, err error) {
	if t == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			drops = nil
			err = fmt.Errorf("loot table panicked: %v", r)
		}
		if err != nil && logger != nil {
			logger.Warn("loot roll failed", zap.String("source", req.Source), zap.Error(err))
		}
	}()
	drops, err = t.Roll(req, r)
	if err != nil {
		return nil, err
	}
	return drops, nil
}
