package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/game/combat"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// lookupFn is the global every boss script set must define.
const lookupFn = "boss_abilities"

// BossTable answers boss ability lookups from Lua scripts. Each lookup runs
// under its own instruction budget.
//
// BossTable is safe for concurrent use; lookups are serialized on one VM.
type BossTable struct {
	mu     sync.Mutex
	L      *lua.LState
	cancel func()
	limit  int
	logger *zap.Logger
}

// LoadBossTable creates a sandboxed VM, registers the engine module, then
// executes every *.lua file in dir in lexicographic order.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil table or an error on read or Lua load failure.
func LoadBossTable(dir string, instLimit int, logger *zap.Logger) (*BossTable, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading boss script dir %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	b := newBossTable(instLimit, logger)
	for _, path := range files {
		if err := b.L.DoFile(path); err != nil {
			b.Close()
			return nil, fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}
	return b, nil
}

// NewBossTableFromString is LoadBossTable for a single in-memory script.
func NewBossTableFromString(src string, instLimit int, logger *zap.Logger) (*BossTable, error) {
	b := newBossTable(instLimit, logger)
	if err := b.L.DoString(src); err != nil {
		b.Close()
		return nil, fmt.Errorf("scripting: loading boss script: %w", err)
	}
	return b, nil
}

func newBossTable(instLimit int, logger *zap.Logger) *BossTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	L, cancel := NewSandboxedState(instLimit)
	RegisterModules(L, logger)
	return &BossTable{L: L, cancel: cancel, limit: instLimit, logger: logger}
}

// Close releases the VM.
func (b *BossTable) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	b.L.Close()
}

// Source adapts the table to combat.AbilitySource.
func (b *BossTable) Source() combat.AbilitySource {
	return b.Abilities
}

// Abilities calls boss_abilities(name) and converts the returned list.
//
// Postcondition: returns (nil, nil) when the function is undefined or returns
// nil; a Lua error, an exhausted budget, or a malformed entry yields an error.
func (b *BossTable) Abilities(name string) ([]combat.BossAbility, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fn := b.L.GetGlobal(lookupFn)
	if fn == lua.LNil {
		return nil, nil
	}
	cancel := resetBudget(b.L, b.limit)
	defer cancel()
	if err := b.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(name)); err != nil {
		b.logger.Warn("scripting: boss ability lookup failed", zap.String("boss", name), zap.Error(err))
		return nil, fmt.Errorf("scripting: %s(%q): %w", lookupFn, name, err)
	}
	ret := b.L.Get(-1)
	b.L.Pop(1)

	if ret == lua.LNil {
		return nil, nil
	}
	list, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("scripting: %s(%q) returned %s, want table", lookupFn, name, ret.Type())
	}
	out := make([]combat.BossAbility, 0, list.Len())
	for i := 1; i <= list.Len(); i++ {
		entry, ok := list.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("scripting: %s(%q): entry %d is not a table", lookupFn, name, i)
		}
		a, err := toAbility(entry)
		if err != nil {
			return nil, fmt.Errorf("scripting: %s(%q): entry %d: %w", lookupFn, name, i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// toAbility reads one ability table. Unset fields keep their zero values
// except target, which defaults to "tank".
func toAbility(t *lua.LTable) (combat.BossAbility, error) {
	var a combat.BossAbility
	var err error
	str := func(key string) string {
		v := t.RawGetString(key)
		switch v := v.(type) {
		case lua.LString:
			return string(v)
		case *lua.LNilType:
			return ""
		}
		if err == nil {
			err = fmt.Errorf("field %q: want string, got %s", key, v.Type())
		}
		return ""
	}
	num := func(key string) float64 {
		v := t.RawGetString(key)
		switch v := v.(type) {
		case lua.LNumber:
			return float64(v)
		case *lua.LNilType:
			return 0
		}
		if err == nil {
			err = fmt.Errorf("field %q: want number, got %s", key, v.Type())
		}
		return 0
	}

	a.Name = str("name")
	a.Target = combat.BossTarget(str("target"))
	if a.Target == "" {
		a.Target = combat.TargetTank
	}
	a.DamageMultiplier = num("multiplier")
	a.DamageType = stats.DamageType(str("damage_type"))
	a.CooldownSeconds = num("cooldown")
	a.CastSeconds = num("cast")
	a.Interruptible = lua.LVAsBool(t.RawGetString("interruptible"))
	a.Effect = str("effect")
	a.Phase = str("phase")
	if err != nil {
		return combat.BossAbility{}, err
	}
	return a, nil
}
