package evcore

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// debugMode gates the process-wide event lifecycle table: a pure
// development aid, off by default; enable with SetDebugMode(true) in
// tests or during development.
var debugMode atomic.Bool

// SetDebugMode toggles the process-wide debug bookkeeping table. When
// enabled, Add on an event the table has no record of and Del on an event
// that was never added panic with a diagnostic; when disabled, neither
// check is made and such calls proceed without an error.
func SetDebugMode(enabled bool) { debugMode.Store(enabled) }

// DebugModeEnabled reports the current debug-mode setting.
func DebugModeEnabled() bool { return debugMode.Load() }

type debugEventState struct {
	added bool
}

var debugTable sync.Map // map[*Event]*debugEventState

// debugRegister records a freshly-created event in the debug table.
func debugRegister(ev *Event) {
	if !debugMode.Load() {
		return
	}
	debugTable.Store(ev, &debugEventState{})
}

// debugMarkAdded flags an event as registered, panicking on an add of an
// event the table has no record of (use of an uninitialized event). A
// repeated add of a known event is not reported.
func debugMarkAdded(ev *Event) {
	if !debugMode.Load() {
		return
	}
	v, ok := debugTable.Load(ev)
	if !ok {
		panic(fmt.Sprintf("evcore: debug: add() on event %p not known to the debug table (missing assign/NewEvent?)", ev))
	}
	st := v.(*debugEventState)
	st.added = true
}

// debugUnregister clears the added flag. It does not remove the event
// entirely from the table; the event struct may be Add()-ed again.
func debugUnregister(ev *Event) {
	if !debugMode.Load() {
		return
	}
	v, ok := debugTable.Load(ev)
	if !ok {
		return
	}
	v.(*debugEventState).added = false
}

// debugAssertNotAdded panics (in debug mode) if del() is called on an
// event the table shows as never having been added: a "del on an
// unregistered event" misuse class.
func debugAssertNotAdded(ev *Event) {
	if !debugMode.Load() {
		return
	}
	v, ok := debugTable.Load(ev)
	if !ok || !v.(*debugEventState).added {
		panic(fmt.Sprintf("evcore: debug: del() on event %p that was never added", ev))
	}
}

// debugForget removes an event's entry entirely, for use once an Event is
// truly being discarded (e.g. after a finalize-free dispatch).
func debugForget(ev *Event) {
	if !debugMode.Load() {
		return
	}
	debugTable.Delete(ev)
}
