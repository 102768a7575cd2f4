package lua

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/loader"
)

// Extension is the implementation extension handled by this runtime
const Extension = ".lua"

// unitState is the interpreter kept alive for a loaded unit so its
// constructors can run after the load pass
type unitState struct {
	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

// close must be called with mu held
func (st *unitState) close() {
	if !st.closed {
		st.L.Close()
		st.closed = true
	}
}

// Runtime executes Lua implementation scripts. Each unit gets its own
// interpreter; calls into one interpreter are serialized.
type Runtime struct {
	mu     sync.Mutex
	states map[string]*unitState
	log    *logrus.Logger
}

// New creates a Lua runtime
func New(log *logrus.Logger) *Runtime {
	if log == nil {
		log = logrus.New()
	}
	return &Runtime{
		states: make(map[string]*unitState),
		log:    log,
	}
}

// Extensions implements loader.Runtime
func (r *Runtime) Extensions() []string {
	return []string{Extension}
}

// Execute runs the unit's script, which must return a function taking the
// RED table, and calls that function once.
func (r *Runtime) Execute(ctx context.Context, unit *descriptor.Unit, red *loader.RED) error {
	st := &unitState{L: lua.NewState()}
	st.mu.Lock()
	defer st.mu.Unlock()

	L := st.L
	fn, err := L.LoadFile(unit.File)
	if err != nil {
		st.close()
		return err
	}

	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		st.close()
		return err
	}
	ret := L.Get(-1)
	L.Pop(1)

	entry, ok := ret.(*lua.LFunction)
	if !ok {
		st.close()
		return fmt.Errorf("%s: script must return function(RED), got %s", unit.File, ret.Type())
	}

	L.SetContext(ctx)
	err = L.CallByParam(lua.P{Fn: entry, NRet: 0, Protect: true}, r.redTable(st, red))
	L.RemoveContext()
	if err != nil {
		st.close()
		return err
	}

	r.mu.Lock()
	old := r.states[unit.ID]
	r.states[unit.ID] = st
	r.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.close()
		old.mu.Unlock()
	}

	return nil
}

// Release closes the interpreter held for a unit
func (r *Runtime) Release(unitID string) {
	r.mu.Lock()
	st, ok := r.states[unitID]
	delete(r.states, unitID)
	r.mu.Unlock()

	if ok {
		st.mu.Lock()
		st.close()
		st.mu.Unlock()
		r.log.WithField("unit", unitID).Debug("Released Lua state")
	}
}

// Close releases every interpreter
func (r *Runtime) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Release(id)
	}
}

// Loaded returns the number of units with a live interpreter
func (r *Runtime) Loaded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *Runtime) redTable(st *unitState, red *loader.RED) *lua.LTable {
	L := st.L
	t := L.NewTable()

	nodes := L.NewTable()
	L.SetField(nodes, "registerType", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		fn := L.CheckFunction(2)
		opts := descriptor.TypeOptions{}
		if tbl, ok := L.Get(3).(*lua.LTable); ok {
			if m, ok := fromLua(tbl).(map[string]interface{}); ok {
				opts = m
			}
		}
		if err := red.RegisterType(name, constructor(st, fn), opts); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	}))
	L.SetField(t, "nodes", nodes)

	logTable := L.NewTable()
	for name, level := range map[string]logrus.Level{
		"trace": logrus.TraceLevel,
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
	} {
		level := level
		L.SetField(logTable, name, L.NewFunction(func(L *lua.LState) int {
			red.Log().Log(level, L.CheckString(1))
			return 0
		}))
	}
	L.SetField(t, "log", logTable)

	L.SetField(t, "_", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(red.Translate(L.CheckString(1))))
		return 1
	}))
	L.SetField(t, "unit", lua.LString(red.UnitID()))
	L.SetField(t, "module", lua.LString(red.Module()))

	return t
}

// constructor adapts a Lua function(config) into a descriptor.Constructor
func constructor(st *unitState, fn *lua.LFunction) descriptor.Constructor {
	return func(ctx context.Context, config map[string]interface{}) (interface{}, error) {
		st.mu.Lock()
		defer st.mu.Unlock()

		L := st.L
		if st.closed {
			return nil, fmt.Errorf("%w: implementation has been unloaded", descriptor.ErrLoadFailed)
		}

		if ctx != nil {
			L.SetContext(ctx)
			defer L.RemoveContext()
		}
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, toLua(L, config)); err != nil {
			return nil, err
		}
		ret := L.Get(-1)
		L.Pop(1)
		return fromLua(ret), nil
	}
}
