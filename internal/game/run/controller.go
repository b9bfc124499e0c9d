// Package run drives one dungeon run from validation to a terminal Result:
// travel between pulls, the per-tick combat loop, gate progress, the final
// boss, and the control surface observers use to steer a live run.
package run

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/config"
	"github.com/cory-johannsen/dungeonrun/internal/game/combat"
	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/condition"
	"github.com/cory-johannsen/dungeonrun/internal/game/dice"
	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
	"github.com/cory-johannsen/dungeonrun/internal/game/enemy"
	"github.com/cory-johannsen/dungeonrun/internal/game/loot"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

var (
	// ErrEmptyRoute is returned when a run is started without pulls.
	ErrEmptyRoute = errors.New("route has no pulls")
	// ErrNoTeam is returned when a run is started without members.
	ErrNoTeam = errors.New("team has no members")
	// ErrNoDungeon is returned when a run is started without a dungeon.
	ErrNoDungeon = errors.New("no dungeon")
	// ErrNoCatalog is returned when the controller has no enemy catalog.
	ErrNoCatalog = errors.New("no enemy catalog")
)

// Deps are the collaborators shared by every run a controller executes.
type Deps struct {
	Logger *zap.Logger
	// Source seeds every random decision. Nil selects a crypto source.
	Source  dice.Source
	Catalog *enemy.Catalog
	// Effects defaults to condition.DefaultRegistry.
	Effects     *condition.Registry
	Abilities   combat.AbilitySource
	Loot        loot.Table
	Progression Progression
	Publisher   Publisher
	// BossNames defaults to enemy.DefaultBossNames.
	BossNames []string
}

// Params describe one run.
type Params struct {
	// RunID defaults to a new UUID.
	RunID                string
	Team                 []stats.Member
	Dungeon              *dungeon.Dungeon
	Route                dungeon.Route
	KeyLevel             int
	Affixes              dungeon.AffixEffects
	HighestCompletedTier int
	// QuantityBonus and RarityBonus are loot percentages.
	QuantityBonus float64
	RarityBonus   float64
	// Signals defaults to a fresh, never-signalled set.
	Signals *ControlSignals
	// Log defaults to a new log; pass one to export it after the run.
	Log *combatlog.Logger
}

// Controller executes runs. It holds no per-run state and may run several
// runs concurrently, each on its own goroutine, provided Deps.Source is safe
// for concurrent use.
type Controller struct {
	cfg  config.Config
	deps Deps
}

// NewController returns a controller.
//
// Precondition: cfg passed Validate.
func NewController(cfg config.Config, deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Source == nil {
		deps.Source = dice.NewCryptoSource()
	}
	if deps.Effects == nil {
		deps.Effects = condition.DefaultRegistry()
	}
	if deps.Loot == nil {
		deps.Loot = loot.None{}
	}
	if deps.Progression == nil {
		deps.Progression = NoProgression{}
	}
	if deps.BossNames == nil {
		deps.BossNames = enemy.DefaultBossNames
	}
	return &Controller{cfg: cfg, deps: deps}
}

// caps returns the stat caps with the configured resistance ceilings.
func (c *Controller) caps() stats.Caps {
	caps := stats.DefaultCaps()
	caps.ElementalResist = c.cfg.Balance.ElementalResistCap
	caps.ChaosResist = c.cfg.Balance.ChaosResistCap
	return caps
}

// Validate reports configuration errors that prevent p from starting.
//
// Postcondition: Returns an error wrapping ErrNoDungeon, ErrNoTeam,
// ErrEmptyRoute, ErrNoCatalog, dungeon.ErrKeyLevelTooHigh, dungeon.ErrUnknownPack,
// dungeon.ErrPackReused, dungeon.ErrEmptyPull, dungeon.ErrGateLocked, or
// enemy.ErrUnknownEnemy, or nil.
func (c *Controller) Validate(p Params) error {
	if p.Dungeon == nil {
		return ErrNoDungeon
	}
	if len(p.Team) == 0 {
		return ErrNoTeam
	}
	if len(p.Route) == 0 {
		return ErrEmptyRoute
	}
	if p.KeyLevel > dungeon.MaxKeyLevel {
		return fmt.Errorf("key level %d: %w", p.KeyLevel, dungeon.ErrKeyLevelTooHigh)
	}
	if c.deps.Catalog == nil {
		return ErrNoCatalog
	}
	if err := p.Dungeon.Validate(); err != nil {
		return fmt.Errorf("dungeon %q: %w", p.Dungeon.ID, err)
	}
	seen := make(map[string]bool, len(p.Team))
	for _, m := range p.Team {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("team: %w", err)
		}
		if seen[m.Character.ID] {
			return fmt.Errorf("team: duplicate member %q", m.Character.ID)
		}
		seen[m.Character.ID] = true
	}
	if err := dungeon.ValidateRoute(p.Dungeon, p.Route); err != nil {
		return fmt.Errorf("route: %w", err)
	}
	f := enemy.NewFactory(c.deps.Catalog, c.cfg.Balance, false, nil, c.deps.Logger)
	if err := f.Validate(p.Dungeon.Packs); err != nil {
		return fmt.Errorf("dungeon %q: %w", p.Dungeon.ID, err)
	}
	if _, err := c.deps.Catalog.Get(p.Dungeon.Boss.EnemyID); err != nil {
		return fmt.Errorf("final boss: %w", err)
	}
	return nil
}

// Run executes p to completion.
//
// Precondition: ctx must be non-nil.
// Postcondition: on a nil error the Result is terminal (success, wipe, or
// timeout); configuration errors return a zero Result. Cancellation through
// ctx or p.Signals yields a wipe result, and an internal fault is recovered
// into a wipe result.
func (c *Controller) Run(ctx context.Context, p Params) (res Result, err error) {
	if err := c.Validate(p); err != nil {
		return Result{}, err
	}
	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}
	if p.Signals == nil {
		p.Signals = NewControlSignals()
	}
	st := c.newState(ctx, p)
	logger := st.logger
	logger.Info("run starting",
		zap.Int("pulls", len(p.Route)),
		zap.Int("team", len(p.Team)),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", zap.Any("panic", r), zap.Stack("stack"))
			detail := fmt.Sprintf("internal fault: %v", r)
			st.muted = true
			st.log.System(st.tick, "error", "run aborted by internal fault", errors.New(detail))
			res = st.finish(&terminal{reason: FailWipe, detail: detail})
			err = nil
		}
		logger.Info("run finished",
			zap.Bool("success", res.Success),
			zap.String("fail_reason", string(res.FailReason)),
			zap.Float64("elapsed_seconds", res.ElapsedSeconds),
			zap.Int("deaths", res.Deaths),
		)
	}()
	return st.execute(), nil
}

// InitialState captures p for a combat-log export, deriving the team with
// the caps the run itself uses.
func (c *Controller) InitialState(p Params) combatlog.InitialState {
	blocks := stats.DeriveTeam(p.Team, c.caps())
	team := make([]combatlog.ActorSnapshot, len(p.Team))
	for i, m := range p.Team {
		team[i] = combat.NewTeamMember(m, blocks[i]).Snapshot()
	}
	is := combatlog.InitialState{KeyLevel: p.KeyLevel, Affixes: p.Affixes, Route: p.Route, Team: team}
	if p.Dungeon != nil {
		is.DungeonID, is.DungeonName = p.Dungeon.ID, p.Dungeon.Name
	}
	return is
}
