package enemy

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/config"
	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// Instance is one concrete, scaled enemy.
type Instance struct {
	// ID uniquely identifies this runtime instance.
	ID           string
	DefinitionID string
	// Name is the display name. For gate-boss packs it is the drawn boss name.
	Name string
	// BaseName is the definition's own name, used as the ability-lookup fallback.
	BaseName string
	PackID   string
	Behavior Behavior
	Type     Type
	Level    int

	MaxHealth       float64
	MaxEnergyShield float64
	Damage          float64
	Accuracy        float64
	Armor           float64
	Evasion         float64
	Resists         stats.Resistances
	DamageType      stats.DamageType

	AttackSeconds        float64
	CastSeconds          float64
	CastCooldownSeconds  float64
	CastDamageMultiplier float64
	AoECooldownSeconds   float64
	AoEDamageMultiplier  float64
	// SpeedFactor divides every cooldown.
	SpeedFactor float64

	Value     float64
	Tier      int
	GateBoss  bool
	FinalBoss bool
}

// Group is the enemies of one pack.
type Group struct {
	PackID  string
	Enemies []*Instance
}

// Spawn is the result of instantiating one pull.
type Spawn struct {
	// Active enemies fight from the first tick.
	Active []*Instance
	// Withheld groups trickle in later, in order.
	Withheld []Group
}

// All returns every instance in spawn order.
func (s Spawn) All() []*Instance {
	out := append([]*Instance(nil), s.Active...)
	for _, g := range s.Withheld {
		out = append(out, g.Enemies...)
	}
	return out
}

// Factory instantiates enemies for pulls. One factory serves one run.
type Factory struct {
	catalog  *Catalog
	balance  config.BalanceConfig
	withhold bool
	names    *NamePool
	logger   *zap.Logger
}

// NewFactory returns a factory. When withhold is true, packs after the first
// in a pull are returned as withheld groups.
//
// Precondition: catalog and names must be non-nil.
func NewFactory(catalog *Catalog, balance config.BalanceConfig, withhold bool, names *NamePool, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{catalog: catalog, balance: balance, withhold: withhold, names: names, logger: logger}
}

type rank int

const (
	rankTrash rank = iota
	rankMiniboss
	rankBoss
)

func (f *Factory) roleMultipliers(r rank) (health, damage float64) {
	switch r {
	case rankBoss:
		return f.balance.BossHealthMultiplier, f.balance.BossDamageMultiplier
	case rankMiniboss:
		return f.balance.MinibossHealthMultiplier, f.balance.MinibossDamageMultiplier
	default:
		return f.balance.TrashHealthMultiplier, f.balance.TrashDamageMultiplier
	}
}

// instantiate builds one scaled instance.
// health = base × key × affix × type × role, and likewise for damage.
func (f *Factory) instantiate(def *Definition, r rank, scaling dungeon.KeyScaling, affixes dungeon.AffixEffects) *Instance {
	row := f.catalog.table.At(float64(def.Level()))
	defs := def.Defenses(f.catalog.table)
	tm := typeMultipliers[def.Type]
	rh, rd := f.roleMultipliers(r)

	health := row.Health * scaling.HealthMultiplier * affixes.EnemyHealthFactor() * tm[0] * rh
	damage := row.Damage * scaling.DamageMultiplier * affixes.EnemyDamageFactor() * tm[1] * rd

	return &Instance{
		ID:                   uuid.NewString(),
		DefinitionID:         def.ID,
		Name:                 def.Name,
		BaseName:             def.Name,
		Behavior:             def.Behavior,
		Type:                 def.Type,
		Level:                def.Level(),
		MaxHealth:            max(health, 1),
		MaxEnergyShield:      defs.EnergyShield * scaling.HealthMultiplier * affixes.EnemyHealthFactor(),
		Damage:               damage,
		Accuracy:             row.Accuracy,
		Armor:                defs.Armor,
		Evasion:              defs.Evasion,
		Resists:              defs.Resists,
		DamageType:           def.DamageType,
		AttackSeconds:        def.AttackSeconds,
		CastSeconds:          def.CastSeconds,
		CastCooldownSeconds:  def.CastCooldownSeconds,
		CastDamageMultiplier: def.CastDamageMultiplier,
		AoECooldownSeconds:   def.AoECooldownSeconds,
		AoEDamageMultiplier:  def.AoEDamageMultiplier,
		SpeedFactor:          affixes.SpeedFactor(),
		Value:                def.Value,
		Tier:                 def.Tier,
	}
}

// Validate checks that every enemy referenced by packs exists.
func (f *Factory) Validate(packs []dungeon.EnemyPack) error {
	for _, p := range packs {
		for _, m := range p.Members {
			if _, err := f.catalog.Get(m.EnemyID); err != nil {
				return fmt.Errorf("pack %q: %w", p.ID, err)
			}
		}
	}
	return nil
}

// SpawnPull instantiates every enemy of packs.
//
// Precondition: len(packs) > 0.
// Postcondition: Spawn.Active holds the first pack's enemies; later packs are
// active too unless the factory withholds them, in which case they appear in
// Spawn.Withheld in pack order.
func (f *Factory) SpawnPull(packs []dungeon.EnemyPack, scaling dungeon.KeyScaling, affixes dungeon.AffixEffects) (Spawn, error) {
	var spawn Spawn
	for i, p := range packs {
		group := Group{PackID: p.ID}
		bossName := ""
		if p.GateBoss {
			bossName = f.names.Draw()
		}
		for _, m := range p.Members {
			def, err := f.catalog.Get(m.EnemyID)
			if err != nil {
				return Spawn{}, fmt.Errorf("pack %q: %w", p.ID, err)
			}
			r := rankTrash
			if p.GateBoss || def.Type == TypeMiniboss {
				r = rankMiniboss
			}
			for n := 0; n < m.Count; n++ {
				inst := f.instantiate(def, r, scaling, affixes)
				inst.PackID = p.ID
				if p.GateBoss {
					inst.GateBoss = true
					if bossName != "" {
						inst.Name = bossName
					}
				}
				group.Enemies = append(group.Enemies, inst)
			}
		}
		if i == 0 || !f.withhold {
			spawn.Active = append(spawn.Active, group.Enemies...)
		} else {
			spawn.Withheld = append(spawn.Withheld, group)
		}
	}
	f.logger.Debug("pull spawned",
		zap.Int("packs", len(packs)),
		zap.Int("active", len(spawn.Active)),
		zap.Int("withheld_groups", len(spawn.Withheld)),
	)
	return spawn, nil
}

// SpawnBoss instantiates the dungeon's final boss.
func (f *Factory) SpawnBoss(boss dungeon.DungeonBoss, scaling dungeon.KeyScaling, affixes dungeon.AffixEffects) (*Instance, error) {
	def, err := f.catalog.Get(boss.EnemyID)
	if err != nil {
		return nil, fmt.Errorf("final boss: %w", err)
	}
	inst := f.instantiate(def, rankBoss, scaling, affixes)
	inst.Behavior = BehaviorBoss
	inst.FinalBoss = true
	inst.PackID = "boss"
	if boss.Name != "" {
		inst.Name = boss.Name
	}
	return inst, nil
}
