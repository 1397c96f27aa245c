// Package script runs the Lua side of the bridge on gopher-lua.
//
// A Runtime is handed to bridge.New. When the bridge starts its consumer
// goroutine, the runtime creates a fresh Lua state, preloads the embedded
// "dolphin" library and executes the boot chunk:
//
//	local sysdir, symbols, main = ...
//	package.path = package.path .. ';' .. sysdir .. '/?.lua;' .. sysdir .. '/?/init.lua'
//	_DOLPHIN_SYMS = symbols
//	_DOLPHIN_SYSDIR = sysdir
//	require(main).main()
//
// The symbols table carries the native call surface: mask control, wait,
// the current evaluate payload, logging, alerts and guest memory access.
// The main function returns when it receives a stop event, which ends the
// session.
//
// Scripts interact with the host through the library:
//
//	local dolphin = require('dolphin')
//	local n = 0
//	dolphin.on(dolphin.EVENT_FRAME, function()
//	    n = n + 1
//	    dolphin.mem_write32(n, 0x80001000)
//	end)
package script
