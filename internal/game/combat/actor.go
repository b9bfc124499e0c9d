package combat

import (
	"sort"

	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/condition"
	"github.com/cory-johannsen/dungeonrun/internal/game/enemy"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// Cast is an in-progress cast window.
type Cast struct {
	Ability       string
	StartTick     int
	EndTick       int
	TargetID      string
	Interruptible bool
	Amount        float64
	DamageType    stats.DamageType
	Spell         bool
	// Effect is applied to each target the cast hits.
	Effect string
	// AoE casts hit every living team member on completion.
	AoE bool
}

// Actor is the state shared by team members and enemies.
type Actor struct {
	ID   string
	Name string

	Health          float64
	MaxHealth       float64
	EnergyShield    float64
	MaxEnergyShield float64
	Mana            float64
	MaxMana         float64

	Armor             float64
	Evasion           float64
	Accuracy          float64
	Resists           stats.Resistances
	BlockChance       float64
	SpellBlockChance  float64
	SuppressionChance float64
	CritChance        float64
	CritMultiplier    float64
	Damage            float64

	// Dead is set once when health reaches 0 and cleared only by resurrection.
	Dead    bool
	Effects *condition.ActiveSet
	Cast    *Cast
}

// Alive reports whether the actor can act and be targeted.
func (a *Actor) Alive() bool { return !a.Dead }

// HealthFraction returns current over maximum health in [0, 1].
func (a *Actor) HealthFraction() float64 {
	if a.MaxHealth <= 0 {
		return 0
	}
	return Sanitize(a.Health / a.MaxHealth)
}

// EffectiveArmor returns armor after active effect modifiers.
func (a *Actor) EffectiveArmor() float64 {
	return a.Armor * condition.ArmorMultiplier(a.Effects)
}

// Snapshot captures the actor for the combat log.
func (a *Actor) Snapshot() combatlog.ActorSnapshot {
	return combatlog.ActorSnapshot{
		ID:              a.ID,
		Name:            a.Name,
		Health:          Sanitize(a.Health),
		MaxHealth:       Sanitize(a.MaxHealth),
		EnergyShield:    Sanitize(a.EnergyShield),
		MaxEnergyShield: Sanitize(a.MaxEnergyShield),
		Mana:            Sanitize(a.Mana),
		Armor:           Sanitize(a.EffectiveArmor()),
		Evasion:         Sanitize(a.Evasion),
		Resists:         a.Resists,
		Dead:            a.Dead,
	}
}

// TeamMember is one party member for the duration of a run.
type TeamMember struct {
	Actor
	CharacterID  string
	Role         stats.Role
	Level        int
	HealingPower float64
	Member       stats.Member

	GCDEndTick int
	Cooldowns  Cooldowns
	abilities  map[string]bool

	TotalDamage  float64
	TotalHealing float64
	DamageTaken  float64
	Deaths       int
}

// NewTeamMember builds a member at full health from its derived block.
func NewTeamMember(m stats.Member, b stats.Block) *TeamMember {
	tm := &TeamMember{
		Actor: Actor{
			ID:      m.Character.ID,
			Name:    m.Character.Name,
			Effects: condition.NewActiveSet(),
		},
		CharacterID: m.Character.ID,
		Member:      m,
		Cooldowns:   NewCooldowns(),
		abilities:   make(map[string]bool),
	}
	if tm.Name == "" {
		tm.Name = m.Character.ID
	}
	for _, a := range DefaultAbilities(m.Character.Role) {
		tm.abilities[a] = true
	}
	for _, a := range m.Character.Abilities {
		tm.abilities[a] = true
	}
	tm.ApplyBlock(b)
	tm.Health = tm.MaxHealth
	tm.EnergyShield = tm.MaxEnergyShield
	tm.Mana = tm.MaxMana
	return tm
}

// ApplyBlock installs a (re-)derived stat block, preserving the current
// health, energy-shield, and mana fractions.
func (t *TeamMember) ApplyBlock(b stats.Block) {
	hf, ef, mf := 1.0, 1.0, 1.0
	if t.MaxHealth > 0 {
		hf = t.Health / t.MaxHealth
	}
	if t.MaxEnergyShield > 0 {
		ef = t.EnergyShield / t.MaxEnergyShield
	}
	if t.MaxMana > 0 {
		mf = t.Mana / t.MaxMana
	}
	t.Role = b.Role
	t.Level = b.Level
	t.MaxHealth = Sanitize(b.MaxHealth)
	t.MaxEnergyShield = Sanitize(b.MaxEnergyShield)
	t.MaxMana = Sanitize(b.MaxMana)
	t.Armor = Sanitize(b.Armor)
	t.Evasion = Sanitize(b.Evasion)
	t.Accuracy = Sanitize(b.Accuracy)
	t.Resists = b.Resists
	t.BlockChance = Sanitize(b.BlockChance)
	t.SpellBlockChance = Sanitize(b.SpellBlockChance)
	t.SuppressionChance = Sanitize(b.SuppressionChance)
	t.CritChance = Sanitize(b.CritChance)
	t.CritMultiplier = Sanitize(b.CritMultiplier)
	t.Damage = Sanitize(b.Damage)
	t.HealingPower = Sanitize(b.HealingPower)
	if !t.Dead {
		t.Health = Sanitize(t.MaxHealth * hf)
	}
	t.EnergyShield = Sanitize(t.MaxEnergyShield * ef)
	t.Mana = Sanitize(t.MaxMana * mf)
}

// HasAbility reports whether the member knows ability id.
func (t *TeamMember) HasAbility(id string) bool { return t.abilities[id] }

// Enemy is one hostile combatant for the duration of a pull.
type Enemy struct {
	Actor
	Instance *enemy.Instance
	Behavior enemy.Behavior
	PackID   string

	// Tick timers; zero means ready. GCDEndTick is shared by every action.
	GCDEndTick      int
	AttackReadyTick int
	CastReadyTick   int
	AoEReadyTick    int

	Abilities     []BossAbility
	abilityReady  map[string]int
	unlocked      map[string]bool
	CooldownScale float64
	threat        map[string]float64
	threatOrder   []string
}

// NewEnemy builds an enemy at full health with every timer ready.
func NewEnemy(inst *enemy.Instance) *Enemy {
	return &Enemy{
		Actor: Actor{
			ID:              inst.ID,
			Name:            inst.Name,
			Health:          Sanitize(inst.MaxHealth),
			MaxHealth:       Sanitize(inst.MaxHealth),
			EnergyShield:    Sanitize(inst.MaxEnergyShield),
			MaxEnergyShield: Sanitize(inst.MaxEnergyShield),
			Armor:           Sanitize(inst.Armor),
			Evasion:         Sanitize(inst.Evasion),
			Accuracy:        Sanitize(inst.Accuracy),
			Resists:         inst.Resists,
			CritChance:      5,
			CritMultiplier:  150,
			Damage:          Sanitize(inst.Damage),
			Effects:         condition.NewActiveSet(),
		},
		Instance:      inst,
		Behavior:      inst.Behavior,
		PackID:        inst.PackID,
		abilityReady:  make(map[string]int),
		unlocked:      make(map[string]bool),
		CooldownScale: 1,
		threat:        make(map[string]float64),
	}
}

// AddThreat adds amount of threat for member id.
func (e *Enemy) AddThreat(id string, amount float64) {
	if _, ok := e.threat[id]; !ok {
		e.threatOrder = append(e.threatOrder, id)
	}
	e.threat[id] += Sanitize(amount)
}

// Threat returns the threat held by member id.
func (e *Enemy) Threat(id string) float64 { return e.threat[id] }

// Taunt makes id the top of the threat table.
func (e *Enemy) Taunt(id string) {
	top := 0.0
	for _, v := range e.threat {
		top = max(top, v)
	}
	if _, ok := e.threat[id]; !ok {
		e.threatOrder = append(e.threatOrder, id)
	}
	e.threat[id] = top + 1
}

// HighestThreat returns the living member holding the most threat. Without
// any threat the first living tank is chosen, then the first living member.
func (e *Enemy) HighestThreat(team []*TeamMember) *TeamMember {
	var best *TeamMember
	bestThreat := -1.0
	for _, id := range e.threatOrder {
		m := findMember(team, id)
		if m == nil || !m.Alive() {
			continue
		}
		if v := e.threat[id]; v > bestThreat {
			best, bestThreat = m, v
		}
	}
	if best != nil {
		return best
	}
	living := LivingMembers(team)
	if len(living) == 0 {
		return nil
	}
	for _, m := range living {
		if m.Role == stats.RoleTank {
			return m
		}
	}
	return living[0]
}

// cooldownTicks scales a cooldown by the enemy's phase scale and speed factor.
func (e *Enemy) cooldownTicks(r Rules, seconds float64) int {
	speed := 1.0
	if e.Instance != nil && e.Instance.SpeedFactor > 0 {
		speed = e.Instance.SpeedFactor
	}
	return r.Ticks(seconds * e.CooldownScale / speed)
}

func findMember(team []*TeamMember, id string) *TeamMember {
	for _, m := range team {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// LivingMembers returns the members that are not dead, in team order.
func LivingMembers(team []*TeamMember) []*TeamMember {
	out := make([]*TeamMember, 0, len(team))
	for _, m := range team {
		if m.Alive() {
			out = append(out, m)
		}
	}
	return out
}

// LivingEnemies returns the enemies that are not dead, in spawn order.
func LivingEnemies(enemies []*Enemy) []*Enemy {
	out := make([]*Enemy, 0, len(enemies))
	for _, e := range enemies {
		if e.Alive() {
			out = append(out, e)
		}
	}
	return out
}

// LowestHealthAlly returns the living member with the lowest health
// fraction, ties broken by role priority then team order.
func LowestHealthAlly(team []*TeamMember) *TeamMember {
	living := LivingMembers(team)
	if len(living) == 0 {
		return nil
	}
	sort.SliceStable(living, func(i, j int) bool {
		fi, fj := living[i].HealthFraction(), living[j].HealthFraction()
		if fi != fj {
			return fi < fj
		}
		return living[i].Role.Priority() < living[j].Role.Priority()
	})
	return living[0]
}

// LowestHealthEnemy returns the living enemy with the least current health.
func LowestHealthEnemy(enemies []*Enemy) *Enemy {
	var best *Enemy
	for _, e := range enemies {
		if !e.Alive() {
			continue
		}
		if best == nil || e.Health+e.EnergyShield < best.Health+best.EnergyShield {
			best = e
		}
	}
	return best
}

// TeamWiped reports whether every member is dead.
func TeamWiped(team []*TeamMember) bool {
	return len(LivingMembers(team)) == 0
}
