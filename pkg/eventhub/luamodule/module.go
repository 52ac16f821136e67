package luamodule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/randalmurphal/eventhub/pkg/eventhub"
	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/executor"
	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

// DefaultCallTimeout bounds every call into a script.
const DefaultCallTimeout = 5 * time.Second

// Script hooks.
const (
	hookRegister   = "on_register"
	hookUnregister = "on_unregister"
	hookError      = "on_error"
)

var (
	// ErrClosed is returned once the module's interpreter has been closed.
	ErrClosed = hberrors.New(hberrors.CodeModuleInvalidState+".lua_closed", "lua module is closed")

	// ErrDetached is returned by the hub API before the module is registered.
	ErrDetached = hberrors.New(hberrors.CodeModuleInvalidState+".lua_detached", "lua module is not registered")

	// ErrScript wraps compile and runtime errors raised by a script.
	ErrScript = hberrors.New(hberrors.CodeUnexpected+".lua_script", "lua script failed")
)

// Option configures a Module.
type Option func(*Module)

// WithCallTimeout sets how long a single call into the script may run.
// Non-positive values are ignored.
func WithCallTimeout(d time.Duration) Option {
	return func(m *Module) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger used before the module is registered and for
// script print output. After registration the hub's module logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Module is an eventhub.ExternalModule backed by a Lua script.
//
// The interpreter is not goroutine-safe, so every entry into it holds mu.
// Functions of the hub table run inside such a call and must not lock it again.
type Module struct {
	name    string
	version string
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	L        *lua.LState
	chunk    *lua.LFunction
	services eventhub.ExternalServices
	inflight map[int32]*event.Event
	closed   bool
}

var _ eventhub.ExternalModule = (*Module)(nil)

// New compiles script into a module. The script body runs when the hub
// attaches the module, so syntax errors are reported here and runtime errors
// abort registration.
func New(name, version, script string, opts ...Option) (*Module, error) {
	if strings.TrimSpace(name) == "" {
		return nil, hberrors.InvalidArgument("lua module name is empty")
	}

	m := &Module{
		name:     name,
		version:  version,
		timeout:  DefaultCallTimeout,
		logger:   slog.Default(),
		inflight: make(map[int32]*event.Event),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(m.L)

	chunk, err := m.L.LoadString(script)
	if err != nil {
		m.L.Close()
		return nil, hberrors.Wrap(err, ErrScript.Code, "compile "+name)
	}
	m.chunk = chunk
	m.installAPI()
	return m, nil
}

// openSafeLibraries opens base, table, string and math, then removes the
// base functions that load code from files or strings.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (m *Module) installAPI() {
	api := m.L.SetFuncs(m.L.NewTable(), map[string]lua.LGFunction{
		"listen":      m.luaListen,
		"listen_all":  m.luaListenAll,
		"dispatch":    m.luaDispatch,
		"set_state":   m.luaSetState,
		"clear_state": m.luaClearState,
		"get_state":   m.luaGetState,
		"log":         m.luaLog,
		"unregister":  m.luaUnregister,
	})
	m.L.SetGlobal("hub", api)
	m.L.SetGlobal("print", m.L.NewFunction(m.luaPrint))
}

// Name implements eventhub.ExternalModule.
func (m *Module) Name() string { return m.name }

// Version implements eventhub.ExternalModule.
func (m *Module) Version() string { return m.version }

// OnRegister runs the script body and then on_register. On failure the
// interpreter is closed.
func (m *Module) OnRegister(services eventhub.ExternalServices) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.services = services
	if err := m.call(context.Background(), "script", m.chunk); err != nil {
		m.closeLocked()
		return err
	}
	if err := m.callHook(hookRegister); err != nil {
		m.closeLocked()
		return err
	}
	return nil
}

// OnUnregister calls on_unregister and closes the interpreter.
func (m *Module) OnUnregister() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if err := m.callHook(hookUnregister); err != nil {
		m.log().Error("lua hook failed", slog.String("hook", hookUnregister), slog.String("error", err.Error()))
	}
	m.closeLocked()
}

// OnUnexpectedError passes a listener failure to on_error.
func (m *Module) OnUnexpectedError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || err == nil {
		return
	}
	if hookErr := m.callHook(hookError, lua.LString(err.Error())); hookErr != nil {
		m.log().Error("lua hook failed", slog.String("hook", hookError), slog.String("error", hookErr.Error()))
	}
}

// Close releases the interpreter of a module that was never registered.
// It is a no-op once the hub has unregistered the module.
func (m *Module) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Module) closeLocked() {
	if m.closed {
		return
	}
	m.closed = true
	m.services = nil
	clear(m.inflight)
	m.L.Close()
}

// call runs fn with args under the call timeout. The caller holds mu.
func (m *Module) call(ctx context.Context, where string, fn lua.LValue, args ...lua.LValue) error {
	if m.closed {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	m.L.SetContext(ctx)
	defer m.L.RemoveContext()

	err := executor.Run("lua "+m.name+" "+where, func() error {
		return m.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	})
	if err != nil {
		return hberrors.Wrap(err, ErrScript.Code, fmt.Sprintf("%s: %s", m.name, where))
	}
	return nil
}

// callHook calls a global function if the script defines one.
func (m *Module) callHook(name string, args ...lua.LValue) error {
	fn, ok := m.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil
	}
	return m.call(context.Background(), name, fn, args...)
}

func (m *Module) log() *slog.Logger {
	if m.services != nil {
		return m.services.Logger()
	}
	return m.logger
}

// listener wraps a script function as a hub listener. The event is kept in
// inflight while the function runs so set_state and get_state can resolve it.
func (m *Module) listener(fn *lua.LFunction) eventhub.Listener {
	return eventhub.ListenerFunc(func(ctx context.Context, ev *event.Event) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return ErrClosed
		}
		m.inflight[ev.Number()] = ev
		defer delete(m.inflight, ev.Number())
		return m.call(ctx, "listener "+ev.Type().String()+"/"+ev.Source().String(), fn, eventToTable(m.L, ev))
	})
}

// servicesOrRaise returns the hub services or raises a Lua error.
func (m *Module) servicesOrRaise(L *lua.LState) eventhub.ExternalServices {
	if m.services == nil {
		L.RaiseError("%s", ErrDetached.Error())
	}
	return m.services
}

// eventArg resolves an event table at idx to the event being delivered.
// Nil or absent yields nil.
func (m *Module) eventArg(L *lua.LState, idx int) *event.Event {
	lv := L.Get(idx)
	if lv == lua.LNil {
		return nil
	}
	t, ok := lv.(*lua.LTable)
	if !ok {
		L.ArgError(idx, "event table expected")
		return nil
	}
	n, ok := t.RawGetString("number").(lua.LNumber)
	if !ok {
		L.ArgError(idx, "event has no number")
		return nil
	}
	ev, ok := m.inflight[int32(n)]
	if !ok {
		L.ArgError(idx, fmt.Sprintf("event %d is not being delivered", int32(n)))
		return nil
	}
	return ev
}

func raise(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
}

func (m *Module) luaListen(L *lua.LState) int {
	typ := L.CheckString(1)
	source := L.CheckString(2)
	fn := L.CheckFunction(3)
	raise(L, m.servicesOrRaise(L).RegisterListener(typ, source, m.listener(fn)))
	return 0
}

func (m *Module) luaListenAll(L *lua.LState) int {
	fn := L.CheckFunction(1)
	raise(L, m.servicesOrRaise(L).RegisterWildcardListener(m.listener(fn)))
	return 0
}

// luaDispatch returns the number the event was given.
func (m *Module) luaDispatch(L *lua.LState) int {
	name := L.CheckString(1)
	typ := L.CheckString(2)
	source := L.CheckString(3)
	data, err := tableToData(L.Get(4))
	if err != nil {
		L.ArgError(4, err.Error())
		return 0
	}

	ev := event.NewBuilder(name, event.TypeOf(typ), event.SourceOf(source)).SetData(data).Build()
	raise(L, m.servicesOrRaise(L).DispatchEvent(ev))
	L.Push(lua.LNumber(ev.Number()))
	return 1
}

func (m *Module) luaSetState(L *lua.LState) int {
	data, err := tableToData(L.Get(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	state := ""
	if data != nil {
		state = data.JSON()
	}
	raise(L, m.servicesOrRaise(L).SetSharedEventState(state, m.eventArg(L, 2)))
	return 0
}

func (m *Module) luaClearState(L *lua.LState) int {
	raise(L, m.servicesOrRaise(L).ClearSharedEventStates())
	return 0
}

func (m *Module) luaGetState(L *lua.LState) int {
	name := L.CheckString(1)
	ev := m.eventArg(L, 2)
	if ev == nil {
		ev = event.SharedStateNewest
	}

	state, err := m.servicesOrRaise(L).SharedEventState(name, ev)
	raise(L, err)
	if state == "" {
		L.Push(lua.LNil)
		return 1
	}
	data, err := variant.ParseJSON(state)
	raise(L, err)
	L.Push(dataToTable(L, data))
	return 1
}

func (m *Module) luaLog(L *lua.LState) int {
	level := strings.ToLower(L.CheckString(1))
	msg := L.CheckString(2)
	logger := m.log().With(slog.String("script", m.name))
	switch level {
	case "debug":
		logger.Debug(msg)
	case "info":
		logger.Info(msg)
	case "warn", "warning":
		logger.Warn(msg)
	case "error":
		logger.Error(msg)
	default:
		L.ArgError(1, "unknown level "+level)
	}
	return 0
}

func (m *Module) luaUnregister(L *lua.LState) int {
	raise(L, m.servicesOrRaise(L).UnregisterModule())
	return 0
}

func (m *Module) luaPrint(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.Get(i + 1).String()
	}
	m.log().Info(strings.Join(parts, "\t"), slog.String("script", m.name))
	return 0
}
