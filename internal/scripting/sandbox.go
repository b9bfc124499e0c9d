// Package scripting provides a sandboxed GopherLua environment for boss
// ability tables. Scripts define a global boss_abilities(name) function that
// returns the ability list of the named boss.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the opcode budget of one load or lookup when no
// override is configured.
const DefaultInstructionLimit = 100_000

// blockedGlobals are removed after the safe libraries are opened. print is
// replaced by engine.log.
var blockedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require", "print"}

// blockedMembers are library functions removed from otherwise safe libraries.
var blockedMembers = map[string][]string{
	"string": {"rep", "dump"},
}

// budget is a context that cancels itself once Done has been called more
// times than its limit. The VM polls Done once per opcode.
type budget struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func (b *budget) Done() <-chan struct{} {
	if b.left.Add(-1) < 0 {
		b.cancel()
	}
	return b.Context.Done()
}

// resetBudget installs a fresh budget of limit opcodes on L and returns its
// release function.
func resetBudget(L *lua.LState, limit int) context.CancelFunc {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &budget{Context: ctx, cancel: cancel}
	b.left.Store(int64(limit))
	L.SetContext(b)
	return cancel
}

// NewSandboxedState creates an LState with only the base, table, string and
// math libraries, the blocked globals and members removed, and a budget of
// instLimit opcodes installed.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: The caller owns the LState and must call L.Close(); the
// returned function releases the installed budget.
func NewSandboxedState(instLimit int) (*lua.LState, context.CancelFunc) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath} {
		open(L)
	}
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	for lib, names := range blockedMembers {
		if t, ok := L.GetGlobal(lib).(*lua.LTable); ok {
			for _, name := range names {
				t.RawSetString(name, lua.LNil)
			}
		}
	}
	return L, resetBudget(L, instLimit)
}
