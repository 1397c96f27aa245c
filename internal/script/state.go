package script

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Default limits for a Lua state.
const (
	DefaultCallStackSize = 256
	DefaultRegistrySize  = 256 * 20
)

// State wraps a gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe. A State is created, used and
// closed on the bridge consumer goroutine; the mutex only guards Close
// against late callers.
type State struct {
	L *lua.LState

	mu sync.Mutex

	callStackSize int
	registrySize  int
	goStackTrace  bool
	closed        bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithCallStackSize sets the Lua call stack depth.
func WithCallStackSize(n int) StateOption {
	return func(s *State) {
		if n > 0 {
			s.callStackSize = n
		}
	}
}

// WithRegistrySize sets the initial registry size.
func WithRegistrySize(n int) StateOption {
	return func(s *State) {
		if n > 0 {
			s.registrySize = n
		}
	}
}

// WithGoStackTrace includes Go stack traces in Lua errors raised by panics.
func WithGoStackTrace(enabled bool) StateOption {
	return func(s *State) {
		s.goStackTrace = enabled
	}
}

// NewState creates a Lua state with the standard libraries scripts need.
func NewState(opts ...StateOption) *State {
	state := &State{
		callStackSize: DefaultCallStackSize,
		registrySize:  DefaultRegistrySize,
	}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{
		CallStackSize:       state.callStackSize,
		RegistrySize:        state.registrySize,
		SkipOpenLibs:        true,
		IncludeGoStackTrace: state.goStackTrace,
	})
	state.L = L

	openLibraries(L)
	return state
}

// openLibraries opens everything except io and debug. Scripts reach the
// host through the native symbols, not through files.
func openLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
		{lua.OsLibName, lua.OpenOs},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// DoString executes a Lua chunk.
func (s *State) DoString(code string) error {
	if s.IsClosed() {
		return ErrStateClosed
	}
	return s.doWithRecovery(func() error {
		return s.L.DoString(code)
	})
}

// Preload registers source as the loader for module name, so that
// require(name) runs it once and caches the result.
func (s *State) Preload(name, source string) {
	s.L.PreloadModule(name, func(L *lua.LState) int {
		fn, err := L.LoadString(source)
		if err != nil {
			L.RaiseError("loading %s: %v", name, err)
			return 0
		}
		L.Push(fn)
		L.Call(0, 1)
		return 1
	})
}

// Boot compiles chunk and calls it with args in protected mode.
func (s *State) Boot(chunk string, args ...lua.LValue) error {
	if s.IsClosed() {
		return ErrStateClosed
	}

	fn, err := s.L.LoadString(chunk)
	if err != nil {
		return fmt.Errorf("compiling boot chunk: %w", err)
	}

	return s.doWithRecovery(func() error {
		s.L.Push(fn)
		for _, arg := range args {
			s.L.Push(arg)
		}
		return s.L.PCall(len(args), 0, nil)
	})
}

// doWithRecovery executes a function with panic recovery.
func (s *State) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	if s.IsClosed() {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	if s.IsClosed() {
		return
	}
	s.L.SetGlobal(name, value)
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state. It is safe to call more than once.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
