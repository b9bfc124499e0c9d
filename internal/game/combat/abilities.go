package combat

import (
	"fmt"

	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// Team ability ids.
const (
	AbilityAttack    = "attack"
	AbilityHeal      = "heal"
	AbilityRenew     = "renew"
	AbilityTaunt     = "taunt"
	AbilityFortify   = "fortify"
	AbilityInterrupt = "interrupt"
	AbilityRally     = "rally"
)

// abilityCooldownSeconds holds the cooldown of every team ability.
var abilityCooldownSeconds = map[string]float64{
	AbilityRenew:     6,
	AbilityTaunt:     8,
	AbilityFortify:   30,
	AbilityInterrupt: 12,
	AbilityRally:     60,
}

// DefaultAbilities returns the abilities every member of role knows.
func DefaultAbilities(role stats.Role) []string {
	switch role {
	case stats.RoleTank:
		return []string{AbilityAttack, AbilityTaunt, AbilityFortify, AbilityInterrupt}
	case stats.RoleHealer:
		return []string{AbilityAttack, AbilityHeal, AbilityRenew}
	default:
		return []string{AbilityAttack, AbilityInterrupt}
	}
}

// BossTarget selects who a boss ability hits.
type BossTarget string

const (
	TargetTank   BossTarget = "tank"
	TargetRandom BossTarget = "random"
	TargetAll    BossTarget = "all"
	TargetSelf   BossTarget = "self"
)

// BossAbility is one entry of a boss's ability table.
type BossAbility struct {
	Name             string
	Target           BossTarget
	DamageMultiplier float64
	DamageType       stats.DamageType
	CooldownSeconds  float64
	CastSeconds      float64
	Interruptible    bool
	// Effect is an effect id applied to each target, or to the boss for TargetSelf.
	Effect string
	// Phase locks the ability until the named boss phase begins.
	Phase string
}

// Validate checks the ability's invariants.
func (a BossAbility) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("boss ability: name must not be empty")
	}
	switch a.Target {
	case TargetTank, TargetRandom, TargetAll, TargetSelf:
	default:
		return fmt.Errorf("boss ability %q: unknown target %q", a.Name, a.Target)
	}
	if a.DamageType != "" && !a.DamageType.Valid() {
		return fmt.Errorf("boss ability %q: unknown damage type %q", a.Name, a.DamageType)
	}
	if a.CooldownSeconds < 0 || a.CastSeconds < 0 || a.DamageMultiplier < 0 {
		return fmt.Errorf("boss ability %q: cooldown, cast time and multiplier must be >= 0", a.Name)
	}
	return nil
}

// AbilitySource looks up a boss's ability table by name. It may return an
// empty list, an error, or panic; the engine treats all three as "no abilities".
type AbilitySource func(name string) ([]BossAbility, error)

// SafeAbilities queries src for displayName, then baseName if the first
// lookup is empty. Errors and panics yield no abilities and a non-nil error.
//
// Postcondition: every returned ability passed Validate.
func SafeAbilities(src AbilitySource, displayName, baseName string) (abilities []BossAbility, err error) {
	if src == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			abilities = nil
			err = fmt.Errorf("boss ability lookup panicked: %v", r)
		}
	}()
	abilities, err = src(displayName)
	if err == nil && len(abilities) == 0 && baseName != "" && baseName != displayName {
		abilities, err = src(baseName)
	}
	if err != nil {
		return nil, fmt.Errorf("boss ability lookup %q: %w", displayName, err)
	}
	valid := abilities[:0:0]
	for _, a := range abilities {
		if verr := a.Validate(); verr != nil {
			err = verr
			continue
		}
		valid = append(valid, a)
	}
	return valid, err
}
