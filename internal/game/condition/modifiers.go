package condition

// sumPct totals a per-stack percentage across all active effects.
func sumPct(s *ActiveSet, pick func(*EffectDef) float64) float64 {
	if s == nil {
		return 0
	}
	total := 0.0
	for _, ae := range s.effects {
		total += pick(ae.Def) * float64(ae.Stacks)
	}
	return total
}

func multiplier(pct float64) float64 {
	m := 1 + pct/100
	if m < 0 {
		return 0
	}
	return m
}

// DamageDealtMultiplier returns the outgoing damage multiplier from all effects.
//
// Postcondition: Returns >= 0.
func DamageDealtMultiplier(s *ActiveSet) float64 {
	return multiplier(sumPct(s, func(d *EffectDef) float64 { return d.DamageDealtPct }))
}

// DamageTakenMultiplier returns the incoming damage multiplier from all effects.
//
// Postcondition: Returns >= 0.
func DamageTakenMultiplier(s *ActiveSet) float64 {
	return multiplier(sumPct(s, func(d *EffectDef) float64 { return d.DamageTakenPct }))
}

// HealingReceivedMultiplier returns the healing multiplier from all effects.
//
// Postcondition: Returns >= 0.
func HealingReceivedMultiplier(s *ActiveSet) float64 {
	return multiplier(sumPct(s, func(d *EffectDef) float64 { return d.HealingReceivedPct }))
}

// ArmorMultiplier returns the armor multiplier from all effects.
//
// Postcondition: Returns >= 0.
func ArmorMultiplier(s *ActiveSet) float64 {
	return multiplier(sumPct(s, func(d *EffectDef) float64 { return d.ArmorPct }))
}
