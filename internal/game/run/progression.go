package run

import (
	"fmt"
	"sync"
)

// Progression is the persistent-character collaborator. The run never
// mutates character records directly.
type Progression interface {
	// AwardExperience credits amount and reports whether the character levelled.
	AwardExperience(characterID string, amount int) (leveledUp bool, err error)
	ApplyDeathPenalty(characterID string) error
}

// NoProgression ignores experience and death penalties.
type NoProgression struct{}

func (NoProgression) AwardExperience(string, int) (bool, error) { return false, nil }
func (NoProgression) ApplyDeathPenalty(string) error            { return nil }

// ExperienceForLevel returns the total experience needed to reach level.
//
// Postcondition: strictly increasing for level >= 2; 0 for level <= 1.
func ExperienceForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	l := level - 1
	return 100 * l * l
}

// deathPenaltyPct is the share of progress into the current level lost on death.
const deathPenaltyPct = 10

// LevelFor returns the level reached from level with total experience.
// Levels never go down. maxLevel <= 0 means uncapped.
func LevelFor(level, experience, maxLevel int) int {
	for maxLevel <= 0 || level < maxLevel {
		if experience < ExperienceForLevel(level+1) {
			break
		}
		level++
	}
	return level
}

// AfterDeathPenalty returns experience after losing deathPenaltyPct of the
// progress into level. It never drops below the level's floor.
func AfterDeathPenalty(level, experience int) int {
	floor := ExperienceForLevel(level)
	progress := max(experience-floor, 0)
	return experience - progress*deathPenaltyPct/100
}

// Ledger is an in-memory Progression keyed by character id.
type Ledger struct {
	mu         sync.Mutex
	experience map[string]int
	levels     map[string]int
	maxLevel   int
}

// NewLedger returns a ledger seeded with starting levels. Characters not
// seeded start at level 1.
func NewLedger(levels map[string]int, maxLevel int) *Ledger {
	l := &Ledger{experience: make(map[string]int), levels: make(map[string]int), maxLevel: maxLevel}
	for id, lvl := range levels {
		l.levels[id] = max(lvl, 1)
		l.experience[id] = ExperienceForLevel(lvl)
	}
	return l
}

func (l *Ledger) AwardExperience(characterID string, amount int) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("award experience %q: negative amount %d", characterID, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	before := max(l.levels[characterID], 1)
	l.experience[characterID] += amount
	l.levels[characterID] = LevelFor(before, l.experience[characterID], l.maxLevel)
	return l.levels[characterID] > before, nil
}

func (l *Ledger) ApplyDeathPenalty(characterID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.experience[characterID] = AfterDeathPenalty(max(l.levels[characterID], 1), l.experience[characterID])
	return nil
}

// Level returns the character's current level.
func (l *Ledger) Level(characterID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return max(l.levels[characterID], 1)
}

// Experience returns the character's total experience.
func (l *Ledger) Experience(characterID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.experience[characterID]
}
