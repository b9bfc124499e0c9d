package dungeon

import "fmt"

// RoutePull is one atomic engagement: the packs fought simultaneously.
type RoutePull struct {
	PackIDs []string `yaml:"packs" json:"packs"`
}

// Route is the ordered list of pulls.
type Route []RoutePull

// PackCount returns the number of pack references across the route.
func (r Route) PackCount() int {
	n := 0
	for _, p := range r {
		n += len(p.PackIDs)
	}
	return n
}

// ValidateRoute checks that every pull is non-empty, every pack exists, no
// pack appears twice across the route, and no pull enters a gate that the
// pulls before it leave locked.
//
// Postcondition: Returns an error wrapping ErrEmptyPull, ErrUnknownPack,
// ErrPackReused, or ErrGateLocked on the first violation found.
func ValidateRoute(d *Dungeon, route Route) error {
	used := make(map[string]int)
	prog := NewProgress(d)
	for i, pull := range route {
		if len(pull.PackIDs) == 0 {
			return fmt.Errorf("pull %d: %w", i+1, ErrEmptyPull)
		}
		for _, id := range pull.PackIDs {
			if _, ok := d.Pack(id); !ok {
				return fmt.Errorf("pull %d: pack %q: %w", i+1, id, ErrUnknownPack)
			}
			if prev, dup := used[id]; dup {
				return fmt.Errorf("pull %d: pack %q already used by pull %d: %w", i+1, id, prev, ErrPackReused)
			}
			used[id] = i + 1
		}
		if err := CheckUnlocked(d, prog, pull); err != nil {
			return fmt.Errorf("pull %d: %w", i+1, err)
		}
		for _, id := range pull.PackIDs {
			prog.Clear(id)
		}
	}
	return nil
}

// CheckUnlocked reports whether every pack of pull lies in a gate that prog
// has unlocked.
//
// Postcondition: Returns nil, or an error wrapping ErrUnknownPack or ErrGateLocked.
func CheckUnlocked(d *Dungeon, prog *GateProgress, pull RoutePull) error {
	for _, id := range pull.PackIDs {
		p, ok := d.Pack(id)
		if !ok {
			return fmt.Errorf("pack %q: %w", id, ErrUnknownPack)
		}
		if !prog.Unlocked(p.Gate) {
			return fmt.Errorf("pack %q is behind gate %d: %w", id, p.Gate, ErrGateLocked)
		}
	}
	return nil
}

// ResolvePull returns the packs of pull in order.
//
// Precondition: the pull passed ValidateRoute against d.
func ResolvePull(d *Dungeon, pull RoutePull) ([]EnemyPack, error) {
	packs := make([]EnemyPack, 0, len(pull.PackIDs))
	for _, id := range pull.PackIDs {
		p, ok := d.Pack(id)
		if !ok {
			return nil, fmt.Errorf("pack %q: %w", id, ErrUnknownPack)
		}
		packs = append(packs, p)
	}
	return packs, nil
}
