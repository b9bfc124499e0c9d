package stats

import "math"

// DualWieldBlock is the flat block chance granted for wielding two weapons.
const DualWieldBlock = 15.0

// Accumulator collects additive flat values, additive percentage increases,
// and post-multiplier bonuses per stat.
type Accumulator struct {
	flat  map[Stat]float64
	pct   map[Stat]float64
	bonus map[Stat]float64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		flat:  make(map[Stat]float64),
		pct:   make(map[Stat]float64),
		bonus: make(map[Stat]float64),
	}
}

// AddFlat adds v to the additive flat sum of s.
func (a *Accumulator) AddFlat(s Stat, v float64) { a.flat[s] += v }

// AddPct adds v percent to the increase applied on top of the flat sum of s.
func (a *Accumulator) AddPct(s Stat, v float64) { a.pct[s] += v }

// AddBonus adds v to s after percentage multipliers are applied.
func (a *Accumulator) AddBonus(s Stat, v float64) { a.bonus[s] += v }

func (a *Accumulator) clone() *Accumulator {
	c := NewAccumulator()
	for k, v := range a.flat {
		c.flat[k] = v
	}
	for k, v := range a.pct {
		c.pct[k] = v
	}
	for k, v := range a.bonus {
		c.bonus[k] = v
	}
	return c
}

// Caps bounds the derived block.
type Caps struct {
	MaxBlock          float64
	MaxSpellBlock     float64
	MaxSuppression    float64
	MinCritMultiplier float64
	ElementalResist   float64
	ChaosResist       float64
}

// DefaultCaps returns the standard caps.
func DefaultCaps() Caps {
	return Caps{
		MaxBlock:          75,
		MaxSpellBlock:     75,
		MaxSuppression:    100,
		MinCritMultiplier: 100,
		ElementalResist:   75,
		ChaosResist:       75,
	}
}

// BaseStats returns the level-derived base stats for a role.
//
// Precondition: level >= 1.
func BaseStats(role Role, level int) map[Stat]float64 {
	l := float64(max(level, 1))
	base := map[Stat]float64{
		Health:         100 + 15*(l-1),
		Mana:           50 + 5*(l-1),
		Armor:          50 + 10*l,
		Evasion:        50 + 10*l,
		Accuracy:       300 + 20*l,
		Damage:         20 + 3*l,
		CritChance:     5,
		CritMultiplier: 150,
	}
	switch role {
	case RoleTank:
		base[Health] *= 1.5
		base[Armor] = 200 + 40*l
		base[BlockChance] = 25
		base[Damage] *= 0.8
	case RoleHealer:
		base[HealingPower] = 30 + 4*l
		base[EnergyShield] = 40 + 5*l
		base[Damage] *= 0.6
	case RoleDPS:
		base[Evasion] = 150 + 20*l
		base[Damage] *= 1.5
	}
	return base
}

// accumulate folds base, passives, talent flat and pct bonuses, and equipment
// into an accumulator. Self special effects are not applied here.
func accumulate(m Member) (*Accumulator, bool) {
	acc := NewAccumulator()
	for s, v := range BaseStats(m.Character.Role, m.Character.Level) {
		acc.AddFlat(s, v)
	}
	for s, v := range m.Character.Base {
		acc.flat[s] = v
	}
	for _, p := range m.Passives {
		acc.AddFlat(p.Stat, p.Value)
	}
	for _, t := range m.Talents {
		for s, v := range t.Flat {
			acc.AddFlat(s, v)
		}
		for s, v := range t.Pct {
			acc.AddPct(s, v)
		}
	}
	weapons := 0
	hasMain, hasOff := false, false
	for _, it := range m.Equipment {
		for s, v := range it.Flat {
			acc.AddFlat(s, v)
		}
		for s, v := range it.Pct {
			acc.AddPct(s, v)
		}
		if it.Weapon {
			weapons++
			switch it.Slot {
			case SlotMainHand:
				hasMain = true
			case SlotOffHand:
				hasOff = true
			}
		}
	}
	dual := weapons >= 2 && hasMain && hasOff
	if dual {
		acc.AddFlat(BlockChance, DualWieldBlock)
	}
	return acc, dual
}

// resolve applies percentage multipliers and bonuses, without caps.
func resolve(acc *Accumulator, m Member, dual bool) Block {
	b := Block{Role: m.Character.Role, Level: m.Character.Level, DualWielding: dual}
	for _, s := range AllStats {
		v := acc.flat[s]*(1+acc.pct[s]/100) + acc.bonus[s]
		*b.field(s) = sanitize(v)
	}
	return b
}

// applySelf runs the member's self-scoped special effects against its own
// uncapped block and returns the accumulator with the results folded in.
func applySelf(acc *Accumulator, m Member, dual bool) *Accumulator {
	self := resolve(acc, m, dual)
	out := acc.clone()
	for _, t := range m.Talents {
		for _, sp := range t.Special {
			tr, ok := effectTable[sp.Kind]
			if !ok || tr.scope != scopeSelf {
				continue
			}
			tr.apply(out, self, sp.Value)
		}
	}
	return out
}

// ApplyCaps clamps a derived block to the given caps.
func ApplyCaps(b Block, caps Caps) Block {
	b.BlockChance = clamp(b.BlockChance, 0, caps.MaxBlock)
	b.SpellBlockChance = clamp(b.SpellBlockChance, 0, caps.MaxSpellBlock)
	b.SuppressionChance = clamp(b.SuppressionChance, 0, caps.MaxSuppression)
	b.CritChance = clamp(b.CritChance, 0, 100)
	b.CritMultiplier = math.Max(b.CritMultiplier, caps.MinCritMultiplier)
	b.Resists.Fire = math.Min(b.Resists.Fire, caps.ElementalResist)
	b.Resists.Cold = math.Min(b.Resists.Cold, caps.ElementalResist)
	b.Resists.Lightning = math.Min(b.Resists.Lightning, caps.ElementalResist)
	b.Resists.Chaos = math.Min(b.Resists.Chaos, caps.ChaosResist)
	return b
}

// Derive computes the final block for a single member with no ally effects.
func Derive(m Member, caps Caps) Block {
	return DeriveTeam([]Member{m}, caps)[0]
}

// DeriveTeam computes the final block of every member in two passes: each
// member is resolved independently, then ally-scoped special effects of every
// other member are folded in using the source's first-pass values.
//
// Postcondition: len(result) == len(members) and result[i] corresponds to members[i].
func DeriveTeam(members []Member, caps Caps) []Block {
	accs := make([]*Accumulator, len(members))
	duals := make([]bool, len(members))
	first := make([]Block, len(members))
	for i, m := range members {
		acc, dual := accumulate(m)
		accs[i] = applySelf(acc, m, dual)
		duals[i] = dual
		first[i] = ApplyCaps(resolve(accs[i], m, dual), caps)
	}
	out := make([]Block, len(members))
	for i, m := range members {
		acc := accs[i].clone()
		for j, src := range members {
			if j == i {
				continue
			}
			for _, t := range src.Talents {
				for _, sp := range t.Special {
					tr, ok := effectTable[sp.Kind]
					if !ok || tr.scope != scopeAlly {
						continue
					}
					tr.apply(acc, first[j], sp.Value)
				}
			}
		}
		out[i] = ApplyCaps(resolve(acc, m, duals[i]), caps)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
