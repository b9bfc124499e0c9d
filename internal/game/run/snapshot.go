package run

import (
	"sync"

	"github.com/cory-johannsen/dungeonrun/internal/game/combat"
	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
	"github.com/cory-johannsen/dungeonrun/internal/game/loot"
)

// Phase is the coarse state of a run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseTraveling Phase = "traveling"
	PhaseCombat    Phase = "combat"
	PhaseBoss      Phase = "boss"
	PhaseFinished  Phase = "finished"
)

// logTailSize is the number of log entries carried by each snapshot.
const logTailSize = 20

// ActorView is the read-only view of one combatant.
type ActorView struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Role            string   `json:"role,omitempty"`
	Health          float64  `json:"health"`
	MaxHealth       float64  `json:"max_health"`
	EnergyShield    float64  `json:"energy_shield"`
	MaxEnergyShield float64  `json:"max_energy_shield"`
	Mana            float64  `json:"mana"`
	MaxMana         float64  `json:"max_mana"`
	Dead            bool     `json:"dead"`
	Casting         string   `json:"casting,omitempty"`
	CastEndTick     int      `json:"cast_end_tick,omitempty"`
	Effects         []string `json:"effects,omitempty"`
}

// Floater is one floating number for the presentation layer.
type Floater struct {
	Tick   int     `json:"tick"`
	Target string  `json:"target"`
	Amount float64 `json:"amount"`
	// Kind is damage, heal, crit, or evade.
	Kind string `json:"kind"`
}

// Snapshot is a consistent copy of run state. It shares no memory with the run.
type Snapshot struct {
	RunID          string            `json:"run_id"`
	Phase          Phase             `json:"phase"`
	Tick           int               `json:"tick"`
	Elapsed        float64           `json:"elapsed"`
	Remaining      float64           `json:"remaining"`
	Position       dungeon.Position  `json:"position"`
	PullIndex      int               `json:"pull_index"`
	ForcesCleared  int               `json:"forces_cleared"`
	ForcesRequired int               `json:"forces_required"`
	Paused         bool              `json:"paused"`
	Team           []ActorView       `json:"team"`
	Enemies        []ActorView       `json:"enemies"`
	LogTail        []combatlog.Entry `json:"log_tail"`
	Floaters       []Floater         `json:"floaters,omitempty"`
	LootDrops      []loot.Drop       `json:"loot_drops,omitempty"`
	Result         *Result           `json:"result,omitempty"`
}

// Publisher receives every snapshot a run produces, from the run goroutine.
type Publisher interface {
	Publish(Snapshot)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Snapshot)

// Publish calls f(s).
func (f PublisherFunc) Publish(s Snapshot) { f(s) }

func actorView(a *combat.Actor, role string) ActorView {
	v := ActorView{
		ID:              a.ID,
		Name:            a.Name,
		Role:            role,
		Health:          a.Health,
		MaxHealth:       a.MaxHealth,
		EnergyShield:    a.EnergyShield,
		MaxEnergyShield: a.MaxEnergyShield,
		Mana:            a.Mana,
		MaxMana:         a.MaxMana,
		Dead:            a.Dead,
		Effects:         a.Effects.IDs(),
	}
	if a.Cast != nil {
		v.Casting = a.Cast.Ability
		v.CastEndTick = a.Cast.EndTick
	}
	return v
}

// Broadcaster fans snapshots out to subscribers and remembers the latest.
// A subscriber whose channel is full misses that snapshot.
type Broadcaster struct {
	mu          sync.Mutex
	latest      *Snapshot
	subscribers map[chan<- Snapshot]struct{}
}

// NewBroadcaster returns a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan<- Snapshot]struct{})}
}

// Publish records s as the latest snapshot and offers it to every subscriber.
func (b *Broadcaster) Publish(s Snapshot) {
	b.mu.Lock()
	b.latest = &s
	subs := make([]chan<- Snapshot, 0, len(b.subscribers))
	for ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Subscribe registers ch for future snapshots.
//
// Precondition: ch must not be nil.
func (b *Broadcaster) Subscribe(ch chan<- Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[ch] = struct{}{}
}

// Unsubscribe removes ch.
func (b *Broadcaster) Unsubscribe(ch chan<- Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, ch)
}

// Latest returns the most recent snapshot, if any.
func (b *Broadcaster) Latest() (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return Snapshot{}, false
	}
	return *b.latest, true
}
