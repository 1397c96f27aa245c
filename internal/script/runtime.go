package script

import (
	_ "embed"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/scriptbridge/internal/bridge"
	"github.com/dshills/scriptbridge/internal/host"
)

// LibraryModule is the name the embedded library is preloaded under.
const LibraryModule = "dolphin"

//go:embed lua/dolphin.lua
var librarySource string

const bootChunk = `
local sysdir, symbols, main = ...
if sysdir ~= '' then
	package.path = package.path .. ';' .. sysdir .. '/?.lua;' .. sysdir .. '/?/init.lua'
end
_DOLPHIN_SYMS = symbols
_DOLPHIN_SYSDIR = sysdir
require(main).main()
`

// Runtime runs a Lua session on the bridge consumer goroutine. It
// implements bridge.Runtime.
type Runtime struct {
	scriptDir  string
	mainModule string
	mem        host.Memory
	alert      host.Alerter
	stateOpts  []StateOption
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithScriptDir adds dir to the module search path and looks for init.lua
// there.
func WithScriptDir(dir string) Option {
	return func(r *Runtime) {
		r.scriptDir = dir
	}
}

// WithMainModule sets the module whose main function runs the session.
func WithMainModule(name string) Option {
	return func(r *Runtime) {
		if name != "" {
			r.mainModule = name
		}
	}
}

// WithMemory attaches guest memory.
func WithMemory(m host.Memory) Option {
	return func(r *Runtime) {
		r.mem = m
	}
}

// WithAlerter attaches the host alert channel.
func WithAlerter(a host.Alerter) Option {
	return func(r *Runtime) {
		r.alert = a
	}
}

// WithStateOptions passes options to every Lua state the runtime creates.
func WithStateOptions(opts ...StateOption) Option {
	return func(r *Runtime) {
		r.stateOpts = append(r.stateOpts, opts...)
	}
}

// NewRuntime creates a Runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{mainModule: LibraryModule}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run creates a fresh Lua state and runs the main module until it returns.
// Every session starts from a clean state.
func (r *Runtime) Run(c *bridge.Consumer) error {
	log := c.Logger().WithComponent("script")

	state := NewState(r.stateOpts...)
	defer state.Close()

	n := &natives{c: c, mem: r.mem, alert: r.alert, log: log}
	state.SetGlobal("print", state.L.NewFunction(n.print))
	state.Preload(LibraryModule, librarySource)

	log.Debug("booting %s from %q", r.mainModule, r.scriptDir)

	err := state.Boot(bootChunk,
		lua.LString(r.scriptDir),
		n.table(state.L),
		lua.LString(r.mainModule),
	)
	if err != nil {
		return &BootError{Module: r.mainModule, Err: err}
	}
	return nil
}
