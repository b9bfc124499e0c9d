// Package enemy provides enemy definitions, level-derived base stats, and the
// factory that turns the packs of one pull into scaled enemy instances.
package enemy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// ErrUnknownEnemy is returned when a pack references an enemy id the catalog does not hold.
var ErrUnknownEnemy = errors.New("unknown enemy")

// Behavior selects an enemy's action policy.
type Behavior string

const (
	BehaviorMelee      Behavior = "melee"
	BehaviorCaster     Behavior = "caster"
	BehaviorArcher     Behavior = "archer"
	BehaviorTankbuster Behavior = "tankbuster"
	BehaviorBoss       Behavior = "boss"
)

// Type is the enemy's rank, which selects its fixed health and damage multipliers.
type Type string

const (
	TypeNormal   Type = "normal"
	TypeElite    Type = "elite"
	TypeMiniboss Type = "miniboss"
	TypeBoss     Type = "boss"
)

// typeMultipliers maps rank to {health, damage}.
var typeMultipliers = map[Type][2]float64{
	TypeNormal:   {1.0, 1.0},
	TypeElite:    {1.8, 1.25},
	TypeMiniboss: {2.5, 1.4},
	TypeBoss:     {4.0, 1.6},
}

// Defenses is the cached defensive profile of a definition.
type Defenses struct {
	Armor        float64
	Evasion      float64
	EnergyShield float64
	Resists      stats.Resistances
}

// Definition is a reusable enemy archetype loaded from YAML.
type Definition struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Behavior    Behavior         `yaml:"behavior"`
	Type        Type             `yaml:"type"`
	DangerLevel int              `yaml:"danger_level"`
	DamageType  stats.DamageType `yaml:"damage_type"`
	// AttackSeconds is the auto-attack interval.
	AttackSeconds float64 `yaml:"attack_seconds"`
	// CastSeconds is the cast time of the caster or tankbuster signature spell.
	CastSeconds float64 `yaml:"cast_seconds"`
	// CastCooldownSeconds is the cadence of the signature spell.
	CastCooldownSeconds float64 `yaml:"cast_cooldown_seconds"`
	// CastDamageMultiplier scales the signature spell relative to base damage.
	CastDamageMultiplier float64 `yaml:"cast_damage_multiplier"`
	// AoECooldownSeconds enables an area spell hitting every living member. Zero disables it.
	AoECooldownSeconds float64 `yaml:"aoe_cooldown_seconds"`
	// AoEDamageMultiplier scales the area spell relative to base damage.
	AoEDamageMultiplier float64 `yaml:"aoe_damage_multiplier"`
	// EnergyShield grants the level-table energy shield.
	EnergyShield bool `yaml:"energy_shield"`
	// Resists overrides the level-table resistances when set.
	Resists *stats.Resistances `yaml:"resists"`
	// Value and Tier are passed to the loot table.
	Value float64 `yaml:"value"`
	Tier  int     `yaml:"tier"`

	defOnce  sync.Once
	defenses Defenses
}

// Level returns the equivalent character level of the definition's danger level.
//
// Postcondition: result >= 1.
func (d *Definition) Level() int {
	return LevelForDanger(d.DangerLevel)
}

// LevelForDanger maps a danger level to an equivalent character level.
func LevelForDanger(danger int) int {
	return 1 + 5*(max(danger, 1)-1)
}

// Defenses returns the definition's defensive stats, computing them from table
// on first use and caching the result on the definition.
//
// Precondition: table must be non-nil.
func (d *Definition) Defenses(table *LevelTable) Defenses {
	d.defOnce.Do(func() {
		row := table.At(float64(d.Level()))
		def := Defenses{
			Armor:   row.Armor,
			Evasion: row.Evasion,
			Resists: stats.Resistances{
				Fire: row.Resist, Cold: row.Resist, Lightning: row.Resist, Chaos: row.Resist / 2,
			},
		}
		if d.EnergyShield {
			def.EnergyShield = row.EnergyShield
		}
		if d.Resists != nil {
			def.Resists = *d.Resists
		}
		d.defenses = def
	})
	return d.defenses
}

// applyDefaults fills zero timing fields with behavior-specific defaults.
func (d *Definition) applyDefaults() {
	if d.Type == "" {
		d.Type = TypeNormal
	}
	if d.DamageType == "" {
		d.DamageType = stats.Physical
	}
	if d.AttackSeconds == 0 {
		switch d.Behavior {
		case BehaviorArcher:
			d.AttackSeconds = 2.5
		default:
			d.AttackSeconds = 2.0
		}
	}
	if d.CastSeconds == 0 {
		switch d.Behavior {
		case BehaviorCaster:
			d.CastSeconds = 2.5
		case BehaviorTankbuster:
			d.CastSeconds = 3.0
		}
	}
	if d.CastCooldownSeconds == 0 {
		switch d.Behavior {
		case BehaviorCaster:
			d.CastCooldownSeconds = 4
		case BehaviorTankbuster:
			d.CastCooldownSeconds = 12
		}
	}
	if d.CastDamageMultiplier == 0 {
		switch d.Behavior {
		case BehaviorTankbuster:
			d.CastDamageMultiplier = 3
		default:
			d.CastDamageMultiplier = 1.5
		}
	}
	if d.AoEDamageMultiplier == 0 {
		d.AoEDamageMultiplier = 0.6
	}
	if d.Value == 0 {
		d.Value = 1
	}
}

// Validate checks that the definition satisfies basic invariants.
//
// Precondition: d must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, Behavior, Type and
// DamageType are known, and every timing field is non-negative.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("enemy definition: id must not be empty")
	}
	if d.Name == "" {
		return fmt.Errorf("enemy definition %q: name must not be empty", d.ID)
	}
	switch d.Behavior {
	case BehaviorMelee, BehaviorCaster, BehaviorArcher, BehaviorTankbuster, BehaviorBoss:
	default:
		return fmt.Errorf("enemy definition %q: unknown behavior %q", d.ID, d.Behavior)
	}
	if _, ok := typeMultipliers[d.Type]; !ok && d.Type != "" {
		return fmt.Errorf("enemy definition %q: unknown type %q", d.ID, d.Type)
	}
	if d.DamageType != "" && !d.DamageType.Valid() {
		return fmt.Errorf("enemy definition %q: unknown damage_type %q", d.ID, d.DamageType)
	}
	for name, v := range map[string]float64{
		"attack_seconds":        d.AttackSeconds,
		"cast_seconds":          d.CastSeconds,
		"cast_cooldown_seconds": d.CastCooldownSeconds,
		"aoe_cooldown_seconds":  d.AoECooldownSeconds,
	} {
		if v < 0 {
			return fmt.Errorf("enemy definition %q: %s must be >= 0", d.ID, name)
		}
	}
	return nil
}

// Catalog holds enemy definitions by id.
type Catalog struct {
	defs  map[string]*Definition
	table *LevelTable
}

// NewCatalog builds a catalog from validated definitions and a level table.
// A nil table selects DefaultLevelTable.
//
// Postcondition: every definition has its defaults applied.
func NewCatalog(table *LevelTable, defs ...*Definition) (*Catalog, error) {
	if table == nil {
		table = DefaultLevelTable()
	}
	c := &Catalog{defs: make(map[string]*Definition, len(defs)), table: table}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.defs[d.ID]; dup {
			return nil, fmt.Errorf("enemy definition %q: duplicate id", d.ID)
		}
		d.applyDefaults()
		c.defs[d.ID] = d
	}
	return c, nil
}

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (*Definition, error) {
	d, ok := c.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnemy, id)
	}
	return d, nil
}

// IDs returns every definition id, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.defs))
	for id := range c.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Table returns the catalog's level table.
func (c *Catalog) Table() *LevelTable { return c.table }

// LoadDefinitionFromBytes parses a single enemy definition.
//
// Postcondition: Returns a validated *Definition or an error.
func LoadDefinitionFromBytes(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing enemy YAML: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadCatalog reads every *.yaml file in dir as one enemy definition.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the catalog or an error on the first parse or validate failure.
func LoadCatalog(dir string, table *LevelTable) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading enemy dir %q: %w", dir, err)
	}
	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		def, err := LoadDefinitionFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		defs = append(defs, def)
	}
	return NewCatalog(table, defs...)
}
