package stats

// EffectKind names a talent special effect.
type EffectKind string

const (
	// EffectAllyArmorPct grants every other member +Value% armor.
	EffectAllyArmorPct EffectKind = "ally_armor_pct"
	// EffectAllyHealthPct grants every other member +Value% health.
	EffectAllyHealthPct EffectKind = "ally_health_pct"
	// EffectAllyDamagePct grants every other member +Value% damage.
	EffectAllyDamagePct EffectKind = "ally_damage_pct"
	// EffectAllyResist grants every other member +Value to each elemental resistance.
	EffectAllyResist EffectKind = "ally_resist"
	// EffectShareSuppression grants every other member Value% of the source's suppression chance.
	EffectShareSuppression EffectKind = "share_suppression"
	// EffectShareBlock grants every other member Value% of the source's block chance.
	EffectShareBlock EffectKind = "share_block"
	// EffectEvasionToArmor adds Value% of the member's own evasion as armor.
	EffectEvasionToArmor EffectKind = "evasion_to_armor"
	// EffectBlockToSpellBlock adds Value% of the member's own block chance as spell block.
	EffectBlockToSpellBlock EffectKind = "block_to_spell_block"
	// EffectHealthToShield adds Value% of the member's own maximum health as energy shield.
	EffectHealthToShield EffectKind = "health_to_shield"
)

// SpecialEffect is one entry of a talent's special-effect list.
type SpecialEffect struct {
	Kind  EffectKind `yaml:"kind"`
	Value float64    `yaml:"value"`
}

type scope int

const (
	scopeSelf scope = iota
	scopeAlly
)

// transform folds one special effect into an accumulator. source is the
// effect owner's block: the member itself for self effects, the first-pass
// block of the granting member for ally effects.
type transform func(acc *Accumulator, source Block, value float64)

type effectSpec struct {
	scope scope
	apply transform
}

var effectTable = map[EffectKind]effectSpec{
	EffectAllyArmorPct: {scopeAlly, func(acc *Accumulator, _ Block, v float64) {
		acc.AddPct(Armor, v)
	}},
	EffectAllyHealthPct: {scopeAlly, func(acc *Accumulator, _ Block, v float64) {
		acc.AddPct(Health, v)
	}},
	EffectAllyDamagePct: {scopeAlly, func(acc *Accumulator, _ Block, v float64) {
		acc.AddPct(Damage, v)
	}},
	EffectAllyResist: {scopeAlly, func(acc *Accumulator, _ Block, v float64) {
		acc.AddFlat(FireResist, v)
		acc.AddFlat(ColdResist, v)
		acc.AddFlat(LightningResist, v)
	}},
	EffectShareSuppression: {scopeAlly, func(acc *Accumulator, src Block, v float64) {
		acc.AddBonus(SuppressionChance, src.SuppressionChance*v/100)
	}},
	EffectShareBlock: {scopeAlly, func(acc *Accumulator, src Block, v float64) {
		acc.AddBonus(BlockChance, src.BlockChance*v/100)
	}},
	EffectEvasionToArmor: {scopeSelf, func(acc *Accumulator, self Block, v float64) {
		acc.AddBonus(Armor, self.Evasion*v/100)
	}},
	EffectBlockToSpellBlock: {scopeSelf, func(acc *Accumulator, self Block, v float64) {
		acc.AddBonus(SpellBlockChance, self.BlockChance*v/100)
	}},
	EffectHealthToShield: {scopeSelf, func(acc *Accumulator, self Block, v float64) {
		acc.AddBonus(EnergyShield, self.MaxHealth*v/100)
	}},
}

// KnownEffect reports whether k has a registered transform.
func KnownEffect(k EffectKind) bool {
	_, ok := effectTable[k]
	return ok
}
