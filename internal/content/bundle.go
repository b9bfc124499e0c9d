// Package content loads the on-disk game data a run is assembled from.
//
// Layout under the content root:
//
//	dungeons/*.yaml   one dungeon per file
//	routes/<id>.yaml  the default route of dungeon <id>
//	enemies/*.yaml    enemy definitions
//	effects/*.yaml    status effects layered over the built-ins
//	teams/<id>.yaml   parties
//	bosses/*.lua      boss ability tables
//	loot.yaml         loot table
//	affixes.yaml      map affixes
package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/game/combat"
	"github.com/cory-johannsen/dungeonrun/internal/game/condition"
	"github.com/cory-johannsen/dungeonrun/internal/game/dice"
	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
	"github.com/cory-johannsen/dungeonrun/internal/game/enemy"
	"github.com/cory-johannsen/dungeonrun/internal/game/loot"
	"github.com/cory-johannsen/dungeonrun/internal/game/run"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
	"github.com/cory-johannsen/dungeonrun/internal/scripting"
)

var (
	// ErrUnknownDungeon is returned for a dungeon id not in the bundle.
	ErrUnknownDungeon = errors.New("unknown dungeon")
	// ErrUnknownTeam is returned for a team id not in the bundle.
	ErrUnknownTeam = errors.New("unknown team")
	// ErrUnknownAffix is returned for an affix id not in the bundle.
	ErrUnknownAffix = errors.New("unknown affix")
)

// Bundle is every piece of content loaded from one root directory.
type Bundle struct {
	Dungeons map[string]*dungeon.Dungeon
	Routes   map[string]dungeon.Route
	Teams    map[string][]stats.Member
	Catalog  *enemy.Catalog
	Effects  *condition.Registry
	Loot     loot.Table
	Affixes  map[string]dungeon.Affix
	// Bosses is nil when the root has no bosses directory.
	Bosses *scripting.BossTable
}

// Options tune Load.
type Options struct {
	// LuaInstructionLimit bounds each boss ability lookup; 0 selects the default.
	LuaInstructionLimit int
}

// Load reads the content tree rooted at root.
//
// Precondition: root must contain dungeons/, routes/, enemies/ and teams/.
// Postcondition: Returns a bundle whose routes all validate against their
// dungeons, or an error naming the first bad file.
func Load(root string, opts Options, logger *zap.Logger) (*Bundle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	b := &Bundle{
		Dungeons: make(map[string]*dungeon.Dungeon),
		Routes:   make(map[string]dungeon.Route),
		Teams:    make(map[string][]stats.Member),
		Affixes:  make(map[string]dungeon.Affix),
	}

	err := eachYAML(filepath.Join(root, "dungeons"), func(path, _ string) error {
		d, err := dungeon.Load(path)
		if err != nil {
			return err
		}
		if _, dup := b.Dungeons[d.ID]; dup {
			return fmt.Errorf("dungeon %q: duplicate id %q", path, d.ID)
		}
		b.Dungeons[d.ID] = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachYAML(filepath.Join(root, "routes"), func(path, id string) error {
		d, ok := b.Dungeons[id]
		if !ok {
			return fmt.Errorf("route %q: %w %q", path, ErrUnknownDungeon, id)
		}
		r, err := dungeon.LoadRoute(path)
		if err != nil {
			return err
		}
		if err := dungeon.ValidateRoute(d, r); err != nil {
			return fmt.Errorf("route %q: %w", path, err)
		}
		b.Routes[id] = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachYAML(filepath.Join(root, "teams"), func(path, id string) error {
		team, err := stats.LoadTeam(path)
		if err != nil {
			return err
		}
		b.Teams[id] = team
		return nil
	})
	if err != nil {
		return nil, err
	}

	if b.Catalog, err = enemy.LoadCatalog(filepath.Join(root, "enemies"), enemy.DefaultLevelTable()); err != nil {
		return nil, err
	}

	b.Effects = condition.DefaultRegistry()
	if dir := filepath.Join(root, "effects"); exists(dir) {
		if b.Effects, err = condition.LoadDirectory(dir); err != nil {
			return nil, err
		}
	}

	b.Loot = loot.Default()
	if path := filepath.Join(root, "loot.yaml"); exists(path) {
		if b.Loot, err = loot.Load(path); err != nil {
			return nil, err
		}
	}

	if path := filepath.Join(root, "affixes.yaml"); exists(path) {
		affixes, err := dungeon.LoadAffixes(path)
		if err != nil {
			return nil, err
		}
		for _, a := range affixes {
			b.Affixes[a.ID] = a
		}
	}

	if dir := filepath.Join(root, "bosses"); exists(dir) {
		if b.Bosses, err = scripting.LoadBossTable(dir, opts.LuaInstructionLimit, logger); err != nil {
			return nil, err
		}
	}

	logger.Info("content loaded",
		zap.String("root", root),
		zap.Int("dungeons", len(b.Dungeons)),
		zap.Int("routes", len(b.Routes)),
		zap.Int("teams", len(b.Teams)),
		zap.Int("enemies", len(b.Catalog.IDs())),
		zap.Int("affixes", len(b.Affixes)),
		zap.Bool("boss_scripts", b.Bosses != nil),
		zap.Duration("elapsed", time.Since(start)),
	)
	return b, nil
}

// Close releases the boss script VM.
func (b *Bundle) Close() {
	if b.Bosses != nil {
		b.Bosses.Close()
	}
}

// RunDeps wires the bundle into controller dependencies. Progression and
// Publisher are left for the caller.
func (b *Bundle) RunDeps(logger *zap.Logger, src dice.Source) run.Deps {
	var abilities combat.AbilitySource
	if b.Bosses != nil {
		abilities = b.Bosses.Source()
	}
	return run.Deps{
		Logger:    logger,
		Source:    src,
		Catalog:   b.Catalog,
		Effects:   b.Effects,
		Abilities: abilities,
		Loot:      b.Loot,
	}
}

// Dungeon returns the dungeon id and its default route. The route is nil when
// none was shipped.
func (b *Bundle) Dungeon(id string) (*dungeon.Dungeon, dungeon.Route, error) {
	d, ok := b.Dungeons[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w %q", ErrUnknownDungeon, id)
	}
	return d, b.Routes[id], nil
}

// Team returns a copy of the party id.
func (b *Bundle) Team(id string) ([]stats.Member, error) {
	t, ok := b.Teams[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTeam, id)
	}
	return append([]stats.Member(nil), t...), nil
}

// AffixEffects sums the named affixes.
func (b *Bundle) AffixEffects(ids []string) (dungeon.AffixEffects, error) {
	picked := make([]dungeon.Affix, 0, len(ids))
	for _, id := range ids {
		a, ok := b.Affixes[id]
		if !ok {
			return dungeon.AffixEffects{}, fmt.Errorf("%w %q", ErrUnknownAffix, id)
		}
		picked = append(picked, a)
	}
	return dungeon.Aggregate(picked), nil
}

// DungeonIDs returns the loaded dungeon ids in order.
func (b *Bundle) DungeonIDs() []string {
	ids := make([]string, 0, len(b.Dungeons))
	for id := range b.Dungeons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// eachYAML calls fn for every *.yaml file in dir in name order, passing the
// file stem as id.
func eachYAML(dir string, fn func(path, id string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading content dir %q: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		if err := fn(filepath.Join(dir, e.Name()), strings.TrimSuffix(e.Name(), ".yaml")); err != nil {
			return err
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
