package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/game/combat"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// RegisterModules registers the engine table into L: target and damage type
// constants, and engine.log for script diagnostics.
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func RegisterModules(L *lua.LState, logger *zap.Logger) {
	engine := L.NewTable()

	targets := L.NewTable()
	for _, t := range []combat.BossTarget{combat.TargetTank, combat.TargetRandom, combat.TargetAll, combat.TargetSelf} {
		targets.RawSetString(string(t), lua.LString(t))
	}
	engine.RawSetString("target", targets)

	types := L.NewTable()
	for _, t := range stats.AllDamageTypes {
		types.RawSetString(string(t), lua.LString(t))
	}
	engine.RawSetString("damage", types)

	engine.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		logger.Debug("boss script", zap.String("message", L.CheckString(1)))
		return 0
	}))
	L.SetGlobal("engine", engine)
}
