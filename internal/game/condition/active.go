package condition

import (
	"fmt"
	"sort"
)

// Permanent is the ExpiresAtTick value of an effect that never expires.
const Permanent = -1

// ActiveEffect tracks one applied effect on a combatant.
type ActiveEffect struct {
	Def           *EffectDef
	Stacks        int
	ExpiresAtTick int
	// SourceID is the actor that applied the effect; HoT/DoT credit goes to it.
	SourceID string
	// Magnitude overrides Def.TickValue when > 0 (heals scaled by caster power).
	Magnitude float64
}

// TickAmount returns the per-second heal or damage for the current stack count.
func (a *ActiveEffect) TickAmount() float64 {
	v := a.Def.TickValue
	if a.Magnitude > 0 {
		v = a.Magnitude
	}
	return v * float64(a.Stacks)
}

// ActiveSet tracks all effects currently applied to one combatant.
// It is not safe for concurrent use; the caller must serialise access.
type ActiveSet struct {
	effects map[string]*ActiveEffect
}

// NewActiveSet creates an empty ActiveSet.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{effects: make(map[string]*ActiveEffect)}
}

// Apply adds or refreshes an effect.
// Re-application adds stacks (capped at MaxStacks, unstackable stays at 1) and
// replaces the expiry with expiresAt: duration is refreshed, never summed.
//
// Precondition: def must not be nil; stacks >= 1.
// Postcondition: Has(def.ID) is true and its ExpiresAtTick == expiresAt.
func (s *ActiveSet) Apply(def *EffectDef, stacks, expiresAt int, sourceID string) (*ActiveEffect, error) {
	if def == nil {
		return nil, fmt.Errorf("Apply: def must not be nil")
	}
	if stacks < 1 {
		stacks = 1
	}
	if existing, ok := s.effects[def.ID]; ok {
		existing.Stacks = capStacks(def, existing.Stacks+stacks)
		existing.ExpiresAtTick = expiresAt
		existing.SourceID = sourceID
		return existing, nil
	}
	ae := &ActiveEffect{
		Def:           def,
		Stacks:        capStacks(def, stacks),
		ExpiresAtTick: expiresAt,
		SourceID:      sourceID,
	}
	s.effects[def.ID] = ae
	return ae, nil
}

func capStacks(def *EffectDef, n int) int {
	if def.MaxStacks == 0 {
		return 1
	}
	if n > def.MaxStacks {
		return def.MaxStacks
	}
	return n
}

// Remove deletes the effect with the given ID. Missing IDs are a no-op.
//
// Postcondition: Has(id) is false.
func (s *ActiveSet) Remove(id string) {
	delete(s.effects, id)
}

// Prune removes every effect whose expiry tick has been reached and returns the
// removed effects ordered by ID. Permanent effects are never pruned.
//
// Postcondition: No remaining effect has 0 <= ExpiresAtTick <= now.
func (s *ActiveSet) Prune(now int) []*ActiveEffect {
	var expired []*ActiveEffect
	for id, ae := range s.effects {
		if ae.ExpiresAtTick == Permanent || ae.ExpiresAtTick > now {
			continue
		}
		expired = append(expired, ae)
		delete(s.effects, id)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Def.ID < expired[j].Def.ID })
	return expired
}

// Clear removes all effects.
func (s *ActiveSet) Clear() {
	clear(s.effects)
}

// Has reports whether the effect with id is currently active.
func (s *ActiveSet) Has(id string) bool {
	_, ok := s.effects[id]
	return ok
}

// Get returns the active effect with id, or nil.
func (s *ActiveSet) Get(id string) *ActiveEffect {
	return s.effects[id]
}

// Stacks returns the current stack count for effect id, or 0 if not present.
func (s *ActiveSet) Stacks(id string) int {
	if ae, ok := s.effects[id]; ok {
		return ae.Stacks
	}
	return 0
}

// Len returns the number of active effects.
func (s *ActiveSet) Len() int { return len(s.effects) }

// All returns the active effects ordered by ID.
// The slice is a new allocation but the pointed-to values are shared.
func (s *ActiveSet) All() []*ActiveEffect {
	out := make([]*ActiveEffect, 0, len(s.effects))
	for _, ae := range s.effects {
		out = append(out, ae)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Def.ID < out[j].Def.ID })
	return out
}

// IDs returns the IDs of the active effects in order.
func (s *ActiveSet) IDs() []string {
	all := s.All()
	ids := make([]string, len(all))
	for i, ae := range all {
		ids[i] = ae.Def.ID
	}
	return ids
}
