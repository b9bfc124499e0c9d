// Package stats derives the combat-ready stat block of every team member from
// character base stats, passives, talents, equipment, and team-wide talent effects.
package stats

import "fmt"

// Role is the combat role that selects a member's action policy.
type Role string

const (
	RoleTank   Role = "tank"
	RoleHealer Role = "healer"
	RoleDPS    Role = "dps"
)

// Priority orders roles for heal-target tie breaks: lower is healed first.
func (r Role) Priority() int {
	switch r {
	case RoleTank:
		return 0
	case RoleHealer:
		return 1
	default:
		return 2
	}
}

// Stat names one derivable quantity.
type Stat string

const (
	Health            Stat = "health"
	Mana              Stat = "mana"
	EnergyShield      Stat = "energy_shield"
	Armor             Stat = "armor"
	Evasion           Stat = "evasion"
	FireResist        Stat = "fire_resist"
	ColdResist        Stat = "cold_resist"
	LightningResist   Stat = "lightning_resist"
	ChaosResist       Stat = "chaos_resist"
	BlockChance       Stat = "block_chance"
	SpellBlockChance  Stat = "spell_block_chance"
	SuppressionChance Stat = "suppression_chance"
	CritChance        Stat = "crit_chance"
	CritMultiplier    Stat = "crit_multiplier"
	Damage            Stat = "damage"
	HealingPower      Stat = "healing_power"
	Accuracy          Stat = "accuracy"
)

// AllStats lists every Stat in derivation order.
var AllStats = []Stat{
	Health, Mana, EnergyShield, Armor, Evasion,
	FireResist, ColdResist, LightningResist, ChaosResist,
	BlockChance, SpellBlockChance, SuppressionChance, CritChance, CritMultiplier,
	Damage, HealingPower, Accuracy,
}

// Valid reports whether s is a known Stat.
func (s Stat) Valid() bool {
	for _, k := range AllStats {
		if k == s {
			return true
		}
	}
	return false
}

// Character is the persistent character as seen by the simulator.
type Character struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Class string `yaml:"class"`
	Role  Role   `yaml:"role"`
	Level int    `yaml:"level"`
	// Base overrides the level-derived base stats for the listed keys.
	Base map[Stat]float64 `yaml:"base"`
	// Abilities lists ability IDs the member may use (e.g. "interrupt", "rally").
	Abilities []string `yaml:"abilities"`
}

// Passive is one allocated passive-tree node granting a flat bonus.
type Passive struct {
	ID    string  `yaml:"id"`
	Stat  Stat    `yaml:"stat"`
	Value float64 `yaml:"value"`
}

// Talent grants flat and percentage bonuses plus special effects.
type Talent struct {
	ID      string           `yaml:"id"`
	Name    string           `yaml:"name"`
	Flat    map[Stat]float64 `yaml:"flat"`
	Pct     map[Stat]float64 `yaml:"pct"`
	Special []SpecialEffect  `yaml:"special"`
}

// Slot is an equipment slot.
type Slot string

const (
	SlotMainHand Slot = "main_hand"
	SlotOffHand  Slot = "off_hand"
	SlotHelmet   Slot = "helmet"
	SlotBody     Slot = "body"
	SlotGloves   Slot = "gloves"
	SlotBoots    Slot = "boots"
	SlotRing     Slot = "ring"
	SlotAmulet   Slot = "amulet"
)

// Item is one equipped item.
type Item struct {
	ID     string           `yaml:"id"`
	Name   string           `yaml:"name"`
	Slot   Slot             `yaml:"slot"`
	Weapon bool             `yaml:"weapon"`
	Flat   map[Stat]float64 `yaml:"flat"`
	Pct    map[Stat]float64 `yaml:"pct"`
}

// Member bundles everything the derivation pipeline consumes for one character.
type Member struct {
	Character Character `yaml:"character"`
	Passives  []Passive `yaml:"passives"`
	Talents   []Talent  `yaml:"talents"`
	Equipment []Item    `yaml:"equipment"`
}

// Validate checks that the member references only known stats, roles, and effect kinds.
//
// Postcondition: Returns nil iff the member can be derived.
func (m Member) Validate() error {
	c := m.Character
	if c.ID == "" {
		return fmt.Errorf("member: character id must not be empty")
	}
	switch c.Role {
	case RoleTank, RoleHealer, RoleDPS:
	default:
		return fmt.Errorf("member %q: role must be one of [tank, healer, dps], got %q", c.ID, c.Role)
	}
	if c.Level < 1 {
		return fmt.Errorf("member %q: level must be >= 1", c.ID)
	}
	for s := range c.Base {
		if !s.Valid() {
			return fmt.Errorf("member %q: unknown base stat %q", c.ID, s)
		}
	}
	for _, p := range m.Passives {
		if !p.Stat.Valid() {
			return fmt.Errorf("member %q: passive %q has unknown stat %q", c.ID, p.ID, p.Stat)
		}
	}
	for _, t := range m.Talents {
		for _, sp := range t.Special {
			if _, ok := effectTable[sp.Kind]; !ok {
				return fmt.Errorf("member %q: talent %q has unknown special effect %q", c.ID, t.ID, sp.Kind)
			}
		}
	}
	for _, it := range m.Equipment {
		for s := range it.Flat {
			if !s.Valid() {
				return fmt.Errorf("member %q: item %q has unknown stat %q", c.ID, it.ID, s)
			}
		}
	}
	return nil
}

// Resistances holds the four resistance percentages.
type Resistances struct {
	Fire      float64 `json:"fire"`
	Cold      float64 `json:"cold"`
	Lightning float64 `json:"lightning"`
	Chaos     float64 `json:"chaos"`
}

// Block is the final combat-ready stat block. Chances and multipliers are percentages.
type Block struct {
	Role              Role        `json:"role"`
	Level             int         `json:"level"`
	MaxHealth         float64     `json:"max_health"`
	MaxMana           float64     `json:"max_mana"`
	MaxEnergyShield   float64     `json:"max_energy_shield"`
	Armor             float64     `json:"armor"`
	Evasion           float64     `json:"evasion"`
	Resists           Resistances `json:"resists"`
	BlockChance       float64     `json:"block_chance"`
	SpellBlockChance  float64     `json:"spell_block_chance"`
	SuppressionChance float64     `json:"suppression_chance"`
	CritChance        float64     `json:"crit_chance"`
	CritMultiplier    float64     `json:"crit_multiplier"`
	Damage            float64     `json:"damage"`
	HealingPower      float64     `json:"healing_power"`
	Accuracy          float64     `json:"accuracy"`
	DualWielding      bool        `json:"dual_wielding"`
}

// field returns a pointer to the Block field holding s.
func (b *Block) field(s Stat) *float64 {
	switch s {
	case Health:
		return &b.MaxHealth
	case Mana:
		return &b.MaxMana
	case EnergyShield:
		return &b.MaxEnergyShield
	case Armor:
		return &b.Armor
	case Evasion:
		return &b.Evasion
	case FireResist:
		return &b.Resists.Fire
	case ColdResist:
		return &b.Resists.Cold
	case LightningResist:
		return &b.Resists.Lightning
	case ChaosResist:
		return &b.Resists.Chaos
	case BlockChance:
		return &b.BlockChance
	case SpellBlockChance:
		return &b.SpellBlockChance
	case SuppressionChance:
		return &b.SuppressionChance
	case CritChance:
		return &b.CritChance
	case CritMultiplier:
		return &b.CritMultiplier
	case Damage:
		return &b.Damage
	case HealingPower:
		return &b.HealingPower
	case Accuracy:
		return &b.Accuracy
	}
	return nil
}

// Get returns the value of s in the block, or 0 for unknown stats.
func (b Block) Get(s Stat) float64 {
	if p := b.field(s); p != nil {
		return *p
	}
	return 0
}
