package scriptfile

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/fightstick/fightstick/macro"
)

// LuaTimeout bounds how long a Lua source may run while building a script.
var LuaTimeout = 2 * time.Second

// parseLua runs src in a sandboxed state that only has the base, table,
// string and math libraries. Each call to step appends one step:
//
//	step{buttons = {"Y", "B"}, dir = "right", duration = 17}
//	step("Y+B", "right", 17)
func parseLua(src string) (*macro.Script, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openSandbox(L)

	ctx, cancel := context.WithTimeout(context.Background(), LuaTimeout)
	defer cancel()
	L.SetContext(ctx)

	var raw []rawStep
	L.SetGlobal("step", L.NewFunction(func(L *lua.LState) int {
		r, err := luaStep(L)
		if err != nil {
			L.RaiseError("step %d: %v", len(raw), err)
			return 0
		}
		raw = append(raw, r)
		return 0
	}))

	if err := L.DoString(src); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return buildScript(raw)
}

func openSandbox(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func luaStep(L *lua.LState) (rawStep, error) {
	if tbl, ok := L.Get(1).(*lua.LTable); ok && L.GetTop() == 1 {
		return luaStepFields(tbl.RawGetString("buttons"), tbl.RawGetString("dir"), tbl.RawGetString("duration"))
	}
	return luaStepFields(L.Get(1), L.Get(2), L.Get(3))
}

func luaStepFields(buttons, dir, duration lua.LValue) (rawStep, error) {
	var r rawStep
	switch b := buttons.(type) {
	case *lua.LNilType:
	case lua.LString:
		r.buttons = []string{string(b)}
	case *lua.LTable:
		var bad bool
		b.ForEach(func(_, v lua.LValue) {
			s, ok := v.(lua.LString)
			if !ok {
				bad = true
				return
			}
			r.buttons = append(r.buttons, string(s))
		})
		if bad {
			return r, fmt.Errorf("%w: button names must be strings", ErrMalformed)
		}
	default:
		return r, fmt.Errorf("%w: buttons must be a string or a table", ErrMalformed)
	}

	switch d := dir.(type) {
	case *lua.LNilType:
	case lua.LString:
		r.dir = string(d)
	default:
		return r, fmt.Errorf("%w: dir must be a string", ErrMalformed)
	}

	switch n := duration.(type) {
	case *lua.LNilType:
	case lua.LNumber:
		f := float64(n)
		if f != float64(int64(f)) {
			return r, fmt.Errorf("%w: duration must be an integer", ErrMalformed)
		}
		v := int64(f)
		r.duration = &v
	default:
		return r, fmt.Errorf("%w: duration must be a number", ErrMalformed)
	}
	return r, nil
}
