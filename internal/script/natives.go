package script

import (
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/scriptbridge/internal/bridge"
	"github.com/dshills/scriptbridge/internal/event"
	"github.com/dshills/scriptbridge/internal/host"
	"github.com/dshills/scriptbridge/internal/logging"
)

// WaitInfinite is the Lua value for an unbounded wait.
const WaitInfinite = -1

// natives implements the symbols table handed to the boot chunk.
type natives struct {
	c     *bridge.Consumer
	mem   host.Memory
	alert host.Alerter
	log   *logging.Logger
}

func (n *natives) table(L *lua.LState) *lua.LTable {
	t := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"add_event_mask":    n.addEventMask,
		"remove_event_mask": n.removeEventMask,
		"wait":              n.wait,
		"evaluate_script":   n.evaluateScript,
		"evaluate":          n.evaluate,
		"log":               n.logText,
		"msg_alert":         n.msgAlert,
		"file_exists":       fileExists,

		"mem_is_ram_address":    n.memIsRAMAddress,
		"mem_read8":             n.memRead8,
		"mem_read16":            n.memRead16,
		"mem_read32":            n.memRead32,
		"mem_read64":            n.memRead64,
		"mem_write8":            n.memWrite8,
		"mem_write16":           n.memWrite16,
		"mem_write32":           n.memWrite32,
		"mem_write64":           n.memWrite64,
		"mem_invalidate_icache": n.memInvalidateICache,
	})

	t.RawSetString("EVENT_STOP", lua.LNumber(event.KindStop))
	t.RawSetString("EVENT_EVALUATE", lua.LNumber(event.KindEvaluate))
	t.RawSetString("EVENT_FRAME", lua.LNumber(event.KindFrame))
	t.RawSetString("EVENT_NONE", lua.LNumber(event.KindNone))
	t.RawSetString("WAIT_INFINITE", lua.LNumber(WaitInfinite))

	t.RawSetString("LOG_NOTICE", lua.LNumber(logging.ScriptNotice))
	t.RawSetString("LOG_ERROR", lua.LNumber(logging.ScriptError))
	t.RawSetString("LOG_WARNING", lua.LNumber(logging.ScriptWarning))
	t.RawSetString("LOG_INFO", lua.LNumber(logging.ScriptInfo))
	t.RawSetString("LOG_DEBUG", lua.LNumber(logging.ScriptDebug))

	t.RawSetString("ALERT_INFORMATION", lua.LNumber(host.AlertInformation))
	t.RawSetString("ALERT_QUESTION", lua.LNumber(host.AlertQuestion))
	t.RawSetString("ALERT_WARNING", lua.LNumber(host.AlertWarning))
	t.RawSetString("ALERT_CRITICAL", lua.LNumber(host.AlertCritical))
	return t
}

// checkKind reads an event kind argument. Out-of-range numbers become
// KindNone, which the mask ignores.
func checkKind(L *lua.LState, n int) event.Kind {
	v := L.CheckNumber(n)
	if v < 0 || v > lua.LNumber(event.KindNone) {
		return event.KindNone
	}
	return event.Kind(v)
}

func (n *natives) addEventMask(L *lua.LState) int {
	n.c.Enable(checkKind(L, 1))
	return 0
}

func (n *natives) removeEventMask(L *lua.LState) int {
	n.c.Disable(checkKind(L, 1))
	return 0
}

// wait(timeout_ms) blocks for the next event and returns its kind.
func (n *natives) wait(L *lua.LState) int {
	ms := L.OptNumber(1, WaitInfinite)
	timeout := bridge.Infinite
	if ms >= 0 {
		timeout = time.Duration(float64(ms) * float64(time.Millisecond))
	}
	L.Push(lua.LNumber(n.c.Wait(timeout)))
	return 1
}

func (n *natives) evaluateScript(L *lua.LState) int {
	if text, ok := n.c.Script(); ok {
		L.Push(lua.LString(text))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

func (n *natives) evaluate(L *lua.LState) int {
	L.Push(lua.LBool(n.c.Evaluate(L.CheckString(1))))
	return 1
}

func (n *natives) logText(L *lua.LState) int {
	level := L.CheckInt(1)
	text := L.CheckString(2)
	n.log.Log(logging.FromScriptLevel(level), "%s", text)
	return 0
}

func (n *natives) msgAlert(L *lua.LState) int {
	yesNo := L.ToBool(1)
	style := host.AlertStyle(L.CheckInt(2))
	text := L.CheckString(3)

	if n.alert == nil {
		n.log.Warn("alert: %s", text)
		L.Push(lua.LTrue)
		return 1
	}
	L.Push(lua.LBool(n.alert.Alert(style, yesNo, text)))
	return 1
}

func fileExists(L *lua.LState) int {
	info, err := os.Stat(L.CheckString(1))
	L.Push(lua.LBool(err == nil && !info.IsDir()))
	return 1
}

// print replaces the base library print so output lands in the log.
func (n *natives) print(L *lua.LState) int {
	top := L.GetTop()
	buf := make([]byte, 0, 64)
	for i := 1; i <= top; i++ {
		if i > 1 {
			buf = append(buf, '\t')
		}
		buf = append(buf, L.ToStringMeta(L.Get(i)).String()...)
	}
	n.log.Info("%s", buf)
	return 0
}

// Lua numbers are float64; 64-bit values beyond 2^53 lose precision.
func checkAddr(L *lua.LState, n int) uint32 {
	return uint32(int64(L.CheckNumber(n)))
}

func checkValue(L *lua.LState, n int) uint64 {
	v := L.CheckNumber(n)
	if v < 0 {
		return uint64(int64(v))
	}
	return uint64(v)
}

func (n *natives) memory(L *lua.LState) host.Memory {
	if n.mem == nil {
		L.RaiseError("%v", ErrNoMemory)
	}
	return n.mem
}

func (n *natives) memIsRAMAddress(L *lua.LState) int {
	addr := checkAddr(L, 1)
	L.Push(lua.LBool(n.mem != nil && n.mem.IsRAMAddress(addr)))
	return 1
}

func (n *natives) memRead8(L *lua.LState) int {
	L.Push(lua.LNumber(n.memory(L).Read8(checkAddr(L, 1))))
	return 1
}

func (n *natives) memRead16(L *lua.LState) int {
	L.Push(lua.LNumber(n.memory(L).Read16(checkAddr(L, 1))))
	return 1
}

func (n *natives) memRead32(L *lua.LState) int {
	L.Push(lua.LNumber(n.memory(L).Read32(checkAddr(L, 1))))
	return 1
}

func (n *natives) memRead64(L *lua.LState) int {
	L.Push(lua.LNumber(n.memory(L).Read64(checkAddr(L, 1))))
	return 1
}

func (n *natives) memWrite8(L *lua.LState) int {
	n.memory(L).Write8(uint8(checkValue(L, 1)), checkAddr(L, 2))
	return 0
}

func (n *natives) memWrite16(L *lua.LState) int {
	n.memory(L).Write16(uint16(checkValue(L, 1)), checkAddr(L, 2))
	return 0
}

func (n *natives) memWrite32(L *lua.LState) int {
	n.memory(L).Write32(uint32(checkValue(L, 1)), checkAddr(L, 2))
	return 0
}

func (n *natives) memWrite64(L *lua.LState) int {
	n.memory(L).Write64(checkValue(L, 1), checkAddr(L, 2))
	return 0
}

func (n *natives) memInvalidateICache(L *lua.LState) int {
	addr := checkAddr(L, 1)
	size := checkAddr(L, 2)
	forced := L.ToBool(3)
	n.memory(L).InvalidateICache(addr, size, forced)
	return 0
}
