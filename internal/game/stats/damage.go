package stats

// DamageType is the element of a hit.
type DamageType string

const (
	Physical  DamageType = "physical"
	Fire      DamageType = "fire"
	Cold      DamageType = "cold"
	Lightning DamageType = "lightning"
	Chaos     DamageType = "chaos"
)

// AllDamageTypes lists every DamageType.
var AllDamageTypes = []DamageType{Physical, Fire, Cold, Lightning, Chaos}

// Valid reports whether d is a known damage type. The empty string is not valid.
func (d DamageType) Valid() bool {
	for _, t := range AllDamageTypes {
		if t == d {
			return true
		}
	}
	return false
}

// Elemental reports whether d is fire, cold, or lightning.
func (d DamageType) Elemental() bool {
	return d == Fire || d == Cold || d == Lightning
}

// For returns the resistance matching d, or 0 for physical.
func (r Resistances) For(d DamageType) float64 {
	switch d {
	case Fire:
		return r.Fire
	case Cold:
		return r.Cold
	case Lightning:
		return r.Lightning
	case Chaos:
		return r.Chaos
	}
	return 0
}
