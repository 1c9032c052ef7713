package evcore

import (
	"sync"
	"time"
)

// scratchEventPool recycles one-shot Events created by Reactor.Once,
// grounded on gaio's aiocbPool (socket515-gaio/watcher.go): pooled scratch
// structs for a request kind the caller never holds a long-lived reference
// to, reused across creation and recycling rather than allocated and
// garbage collected per call.
var scratchEventPool = sync.Pool{
	New: func() any { return new(Event) },
}

// Once registers a one-shot, non-persistent callback for fdOrSig/mask,
// optionally with a timeout, returning the Event to a pool once it fires.
// mask must not include EvPersist or EvSignal; use NewEvent directly for
// those. An event canceled via Del before firing is left for the garbage
// collector rather than recycled, since nothing observes its teardown to
// trigger the pool release.
func (r *Reactor) Once(fdOrSig int, mask EventMask, timeout time.Duration, cb Callback, arg any) (*Event, error) {
	if mask&(EvPersist|EvSignal) != 0 {
		return nil, ErrPersistentOnce
	}
	ev := scratchEventPool.Get().(*Event)
	wrapped := func(fd int, res EventMask, a any) {
		cb(fd, res, a)
		// The dispatcher still writes to this *Event (inCallback, delCond)
		// after this function returns, so the actual pool release is
		// deferred to the finalize-free dispatch path via Finalize, rather
		// than done here: putting ev back in the pool now would let a
		// concurrent Once Get() and Assign() the same pointer while the
		// dispatcher is still finishing up with it.
		_ = ev.Finalize(true, recycleOnceEvent)
	}
	if err := ev.Assign(r, fdOrSig, mask, wrapped, arg); err != nil {
		scratchEventPool.Put(ev)
		return nil, err
	}
	if mask == EvTimeout && timeout <= 0 {
		// Timeout-only with a zero or absent timeout: activate right away
		// instead of arming a timer.
		ev.Active(EvTimeout, 1)
		return ev, nil
	}
	if err := ev.Add(timeout); err != nil {
		scratchEventPool.Put(ev)
		return nil, err
	}
	return ev, nil
}

// recycleOnceEvent is the FinalizeCallback that actually returns a scratch
// Event to the pool, run by the dispatcher once no callback of the event
// can still be running.
func recycleOnceEvent(ev *Event) {
	debugForget(ev)
	*ev = Event{}
	scratchEventPool.Put(ev)
}
