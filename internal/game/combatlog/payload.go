package combatlog

import (
	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
	"github.com/cory-johannsen/dungeonrun/internal/game/loot"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// Type is the entry taxonomy.
type Type string

const (
	TypeDamage  Type = "damage"
	TypeHeal    Type = "heal"
	TypeDeath   Type = "death"
	TypeAbility Type = "ability"
	TypeBuff    Type = "buff"
	TypeDebuff  Type = "debuff"
	TypePull    Type = "pull"
	TypePhase   Type = "phase"
	TypeBoss    Type = "boss"
	TypeTravel  Type = "travel"
	TypeLoot    Type = "loot"
	TypeSystem  Type = "system"
	TypeLevel   Type = "level"
)

// Payload is the closed set of per-type entry payloads.
type Payload interface {
	Kind() Type
}

// ActorSnapshot captures the verifiable state of one actor at one instant.
type ActorSnapshot struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Health          float64           `json:"health"`
	MaxHealth       float64           `json:"max_health"`
	EnergyShield    float64           `json:"energy_shield"`
	MaxEnergyShield float64           `json:"max_energy_shield"`
	Mana            float64           `json:"mana"`
	Armor           float64           `json:"armor"`
	Evasion         float64           `json:"evasion"`
	Resists         stats.Resistances `json:"resists"`
	Dead            bool              `json:"dead"`
}

// DamagePayload records one resolved hit with every pipeline outcome.
type DamagePayload struct {
	DamageType  stats.DamageType `json:"damage_type"`
	Spell       bool             `json:"spell"`
	Raw         float64          `json:"raw"`
	EvadeChance float64          `json:"evade_chance"`
	Evaded      bool             `json:"evaded"`
	Blocked     bool             `json:"blocked"`
	Suppressed  bool             `json:"suppressed"`
	Crit        bool             `json:"crit"`
	// PreMitigation is the damage entering the armor or resistance layer.
	PreMitigation float64       `json:"pre_mitigation"`
	Mitigated     float64       `json:"mitigated"`
	Absorbed      float64       `json:"absorbed"`
	HealthLoss    float64       `json:"health_loss"`
	Final         float64       `json:"final"`
	Before        ActorSnapshot `json:"before"`
	After         ActorSnapshot `json:"after"`
}

func (DamagePayload) Kind() Type { return TypeDamage }

// HealPayload records one heal.
type HealPayload struct {
	Raw       float64       `json:"raw"`
	Effective float64       `json:"effective"`
	Overheal  float64       `json:"overheal"`
	Periodic  bool          `json:"periodic"`
	Before    ActorSnapshot `json:"before"`
	After     ActorSnapshot `json:"after"`
}

func (HealPayload) Kind() Type { return TypeHeal }

// DeathPayload records an actor reaching zero health.
type DeathPayload struct {
	Victim ActorSnapshot `json:"victim"`
	Killer string        `json:"killer,omitempty"`
	Team   bool          `json:"team"`
}

func (DeathPayload) Kind() Type { return TypeDeath }

// AbilityEvent is the lifecycle step of an ability.
type AbilityEvent string

const (
	AbilityUsed        AbilityEvent = "used"
	AbilityCastStart   AbilityEvent = "cast_start"
	AbilityCastEnd     AbilityEvent = "cast_complete"
	AbilityInterrupted AbilityEvent = "interrupted"
	AbilityCancelled   AbilityEvent = "cancelled"
	AbilityResurrect   AbilityEvent = "resurrect"
)

// AbilityPayload records an ability use or cast transition.
type AbilityPayload struct {
	Event       AbilityEvent `json:"event"`
	CastEndTick int          `json:"cast_end_tick,omitempty"`
	Cooldown    int          `json:"cooldown_ticks,omitempty"`
}

func (AbilityPayload) Kind() Type { return TypeAbility }

// EffectChange is the shared body of buff and debuff payloads.
type EffectChange struct {
	EffectID      string `json:"effect_id"`
	Stacks        int    `json:"stacks"`
	ExpiresAtTick int    `json:"expires_at_tick"`
	Expired       bool   `json:"expired"`
}

// BuffPayload records a beneficial effect applied or expired.
type BuffPayload struct{ EffectChange }

func (BuffPayload) Kind() Type { return TypeBuff }

// DebuffPayload records a harmful effect applied or expired.
type DebuffPayload struct{ EffectChange }

func (DebuffPayload) Kind() Type { return TypeDebuff }

// PullEvent is the lifecycle step of a pull.
type PullEvent string

const (
	PullStart   PullEvent = "start"
	PullClear   PullEvent = "clear"
	PullTrickle PullEvent = "trickle"
	PullLocked  PullEvent = "gate_locked"
)

// PullPayload records pull lifecycle changes.
type PullPayload struct {
	Index    int       `json:"index"`
	Event    PullEvent `json:"event"`
	PackIDs  []string  `json:"pack_ids"`
	Enemies  int       `json:"enemies"`
	Withheld int       `json:"withheld"`
	Forces   int       `json:"forces"`
}

func (PullPayload) Kind() Type { return TypePull }

// PhasePayload records a one-time boss phase transition.
type PhasePayload struct {
	Boss           string   `json:"boss"`
	Phase          string   `json:"phase"`
	Threshold      float64  `json:"threshold"`
	HealthFraction float64  `json:"health_fraction"`
	Granted        []string `json:"granted,omitempty"`
}

func (PhasePayload) Kind() Type { return TypePhase }

// BossPayload records boss engagement and defeat.
type BossPayload struct {
	Boss      string   `json:"boss"`
	BaseName  string   `json:"base_name"`
	Event     string   `json:"event"`
	Abilities []string `json:"abilities,omitempty"`
}

func (BossPayload) Kind() Type { return TypeBoss }

// TravelPayload records one travel leg.
type TravelPayload struct {
	From     dungeon.Position `json:"from"`
	To       dungeon.Position `json:"to"`
	Distance float64          `json:"distance"`
	Seconds  float64          `json:"seconds"`
}

func (TravelPayload) Kind() Type { return TypeTravel }

// LootPayload records drops from one enemy.
type LootPayload struct {
	Drops []loot.Drop `json:"drops"`
}

func (LootPayload) Kind() Type { return TypeLoot }

// SystemPayload records warnings and recovered faults.
type SystemPayload struct {
	Severity string `json:"severity"`
	Error    string `json:"error,omitempty"`
}

func (SystemPayload) Kind() Type { return TypeSystem }

// LevelPayload records a mid-run level-up.
type LevelPayload struct {
	CharacterID string `json:"character_id"`
	Level       int    `json:"level"`
	Experience  int    `json:"experience"`
}

func (LevelPayload) Kind() Type { return TypeLevel }

// newPayload returns a zero payload for t, or nil for unknown types.
func newPayload(t Type) Payload {
	switch t {
	case TypeDamage:
		return &DamagePayload{}
	case TypeHeal:
		return &HealPayload{}
	case TypeDeath:
		return &DeathPayload{}
	case TypeAbility:
		return &AbilityPayload{}
	case TypeBuff:
		return &BuffPayload{}
	case TypeDebuff:
		return &DebuffPayload{}
	case TypePull:
		return &PullPayload{}
	case TypePhase:
		return &PhasePayload{}
	case TypeBoss:
		return &BossPayload{}
	case TypeTravel:
		return &TravelPayload{}
	case TypeLoot:
		return &LootPayload{}
	case TypeSystem:
		return &SystemPayload{}
	case TypeLevel:
		return &LevelPayload{}
	}
	return nil
}
