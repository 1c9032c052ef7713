package evcore

import (
	"container/list"
	"sync"
	"time"
)

// EventMask describes the combination of conditions an Event is
// interested in, and (when delivered to a Callback) which of them fired:
// I/O readiness, signal delivery, timeout, or some mix of the three.
type EventMask uint16

const (
	EvRead EventMask = 1 << iota
	EvWrite
	EvClosed // peer-closed (edge-triggered backends only report this distinctly)
	EvSignal
	EvTimeout

	// EvPersist is not a readiness condition but modifies re-arm behavior;
	// kept in the same mask type because the C original overlays it onto
	// the same bitfield.
	EvPersist
	// EvEdgeTriggered requests edge-triggered delivery where the backend
	// supports it.
	EvEdgeTriggered
)

// ioMask is the subset of EventMask that participates in backend
// aggregate-interest computation.
const ioMask = EvRead | EvWrite | EvClosed

// eventFlag is the per-event lifecycle state bitmask.
type eventFlag uint16

const (
	flagInit eventFlag = 1 << iota
	flagInserted
	flagActive
	flagActiveLater
	flagTimeout
	flagInternal
	flagFinalizing
	// flagSigCanceled is set by delLocked when a signal event is deleted
	// from inside its own in-flight callback, telling the remaining
	// coalesced-ncalls iterations in dispatchOneLocked to stop early
	// rather than keep invoking a callback that just canceled itself.
	flagSigCanceled
)

type closureKind uint8

const (
	closurePlain closureKind = iota
	closurePersistent
	closureSignal
	closureSelf
	closureFinalize
	closureFinalizeFree
	// closureSentinel marks an internal event representing a
	// common-timeout queue's head deadline (commontimeout.go); it is
	// never dispatched to a user callback.
	closureSentinel
)

// Callback is a user event handler. fd is the descriptor or signal number
// the Event was registered against; res is the mask of conditions that
// actually fired (a subset of the Event's registered mask, plus
// EvTimeout when the firing was a timeout).
type Callback func(fd int, res EventMask, arg any)

// SelfCallback is the opaque self-callback closure kind used internally
// for one-shot timers and deferred notifications.
type SelfCallback func(arg any)

// FinalizeCallback runs after an Event has been fully torn down, with the
// guarantee that no other callback of the event is concurrently running.
type FinalizeCallback func(ev *Event)

// Event is a registered interest in I/O readiness, a signal, and/or a
// timeout. Reactor.mu guards
// every field below.
type Event struct {
	reactor *Reactor

	fd       int // descriptor, or signal number when kind == closureSignal
	mask     EventMask
	cb       Callback
	selfCB   SelfCallback
	finalize FinalizeCallback
	arg      any
	priority int
	kind     closureKind
	flags    eventFlag

	// timer bookkeeping
	deadline time.Time
	duration time.Duration // re-arm interval for persistent events / common-timeout membership
	heapIdx  int           // index into the reactor's timer heap, -1 if absent
	ctID     CommonTimeoutID
	ctElem   *list.Element        // position within its common-timeout queue, nil if none
	sentinelQueue *commonTimeoutQueue // set only on closureSentinel events

	// activation bookkeeping
	activeRes EventMask
	queueElem *list.Element // position within its active/active-later queue

	// signal coalescing
	ncalls int32

	// cross-thread delete/finalize synchronization
	inCallback bool
	delCond    *sync.Cond
}

// NewEvent creates an Event bound to r, in the INIT state. fdOrSig is a file descriptor for EvRead/EvWrite/
// EvClosed masks, or a signal number for EvSignal. The event is not
// registered with the backend/timer structures until Add is called.
func (r *Reactor) NewEvent(fdOrSig int, mask EventMask, cb Callback, arg any) *Event {
	ev := &Event{
		reactor:  r,
		fd:       fdOrSig,
		mask:     mask,
		cb:       cb,
		arg:      arg,
		priority: r.defaultPriority(),
		flags:    flagInit,
		heapIdx:  -1,
		ctID:     -1,
	}
	if mask&EvSignal != 0 {
		ev.kind = closureSignal
	} else if mask&EvPersist != 0 {
		ev.kind = closurePersistent
	} else {
		ev.kind = closurePlain
	}
	debugRegister(ev)
	return ev
}

// newSelfEvent builds an internal self-callback event (wakeup/signal
// relay), never exposed for user Add/Del.
func (r *Reactor) newSelfEvent(cb SelfCallback, arg any) *Event {
	ev := &Event{
		reactor:  r,
		fd:       -1,
		kind:     closureSelf,
		selfCB:   cb,
		arg:      arg,
		priority: r.defaultPriority(),
		flags:    flagInit | flagInternal,
		heapIdx:  -1,
		ctID:     -1,
	}
	return ev
}

// Assign re-targets an already-allocated Event, useful for pooled
// Once-style events. The event must not be currently inserted or active.
func (e *Event) Assign(r *Reactor, fdOrSig int, mask EventMask, cb Callback, arg any) error {
	if e.flags&(flagInserted|flagActive|flagActiveLater|flagTimeout) != 0 {
		return ErrAlreadyAdded
	}
	e.reactor = r
	e.fd = fdOrSig
	e.mask = mask
	e.cb = cb
	e.arg = arg
	e.priority = r.defaultPriority()
	e.flags = flagInit
	e.heapIdx = -1
	e.ctID = -1
	e.ctElem = nil
	e.queueElem = nil
	if mask&EvSignal != 0 {
		e.kind = closureSignal
	} else if mask&EvPersist != 0 {
		e.kind = closurePersistent
	} else {
		e.kind = closurePlain
	}
	return nil
}

// Add registers the event for I/O/signal delivery (if its mask has
// EvRead/EvWrite/EvClosed/EvSignal bits) and, when timeout >= 0, schedules
// a deadline at now+timeout.
//
// A negative timeout means "no timeout"; Add called a second time on an
// already-inserted event is idempotent for the I/O registration (the
// backend is not re-added) but does refresh the timeout.
func (e *Event) Add(timeout time.Duration) error {
	if e.reactor == nil {
		return ErrNoReactor
	}
	r := e.reactor
	if r.invalidMask(e.mask) {
		return ErrInvalidMask
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.freed {
		return ErrReactorFreed
	}
	if e.flags&flagFinalizing != 0 {
		return ErrFinalizing
	}
	if err := r.addLocked(e, timeout); err != nil {
		return err
	}
	debugMarkAdded(e)
	r.maybeNotifyLocked()
	return nil
}

func (r *Reactor) addLocked(e *Event, timeout time.Duration) error {
	e.flags |= flagInit

	switch {
	case e.mask&EvSignal != 0:
		if e.flags&flagInserted == 0 {
			if err := r.addSignalLocked(e); err != nil {
				return err
			}
			e.flags |= flagInserted
		}
	case e.mask&ioMask != 0:
		if e.flags&flagInserted == 0 {
			if err := r.addIOLocked(e); err != nil {
				return err
			}
			e.flags |= flagInserted
		}
	}

	if timeout >= 0 {
		e.duration = timeout
		r.scheduleTimeoutLocked(e, timeout)
	}

	return nil
}

// Del removes the event from the backend, timer structures, and any
// activation queue. Equivalent to DelBlock from a
// non-owner goroutine, DelNoBlock from the owner (the owner can never be
// racing its own in-flight callback).
func (e *Event) Del() error {
	return e.del(true)
}

// DelBlock removes the event, blocking until any in-flight callback for
// this event on another goroutine completes.
func (e *Event) DelBlock() error { return e.del(true) }

// DelNoBlock removes the event without waiting for an in-flight callback
// to finish; safe to call from within the event's own callback.
func (e *Event) DelNoBlock() error { return e.del(false) }

func (e *Event) del(block bool) error {
	if e.reactor == nil {
		return ErrNoReactor
	}
	r := e.reactor
	r.mu.Lock()
	defer r.mu.Unlock()
	if block && e.inCallback && !r.isOwnerGoroutine() {
		if e.delCond == nil {
			e.delCond = sync.NewCond(&r.mu)
		}
		for e.inCallback {
			e.delCond.Wait()
		}
	}
	debugAssertNotAdded(e)
	r.delLocked(e)
	r.maybeNotifyLocked()
	return nil
}

func (r *Reactor) delLocked(e *Event) {
	if e.flags&flagInserted != 0 {
		switch {
		case e.kind == closureSignal:
			if e.inCallback {
				// Canceled from inside its own signal callback: let the
				// remaining coalesced deliveries in dispatchOneLocked's
				// loop see this and stop early instead of continuing to
				// invoke a callback that just deleted itself.
				e.flags |= flagSigCanceled
			}
			r.delSignalLocked(e)
		case e.mask&ioMask != 0:
			r.delIOLocked(e)
		}
	}
	if e.flags&flagTimeout != 0 {
		r.unscheduleTimeoutLocked(e)
	}
	if e.flags&(flagActive|flagActiveLater) != 0 {
		r.dequeueActiveLocked(e)
	}
	e.flags &^= flagInserted | flagTimeout | flagActive | flagActiveLater
	debugUnregister(e)
}

// Active enqueues the event as if the condition res had fired, with the
// given coalesced-call count). ncalls is meaningful only for signal-kind events.
func (e *Event) Active(res EventMask, ncalls int) {
	r := e.reactor
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// An activation from a goroutine other than the one running Dispatch
	// is deferred to activeLater and promoted at the top of the next
	// iteration, so it never races the priority queues a concurrent
	// processActiveLocked drain is currently walking.
	later := r.running && !r.isOwnerGoroutine()
	r.activateLocked(e, res, ncalls, later)
	r.maybeNotifyLocked()
}

// Pending reports whether mask bits of the event are currently registered
// (inserted) or active, and if a timeout is armed, its absolute deadline.
func (e *Event) Pending(mask EventMask) (bool, time.Time) {
	r := e.reactor
	if r == nil {
		return false, time.Time{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := false
	if mask&ioMask != 0 && e.flags&flagInserted != 0 && e.mask&mask&ioMask != 0 {
		pending = true
	}
	if mask&EvSignal != 0 && e.flags&flagInserted != 0 && e.kind == closureSignal {
		pending = true
	}
	if mask&EvTimeout != 0 && e.flags&flagTimeout != 0 {
		pending = true
	}
	if e.flags&(flagActive|flagActiveLater) != 0 {
		pending = true
	}
	var deadline time.Time
	if e.flags&flagTimeout != 0 {
		deadline = e.deadline
	}
	return pending, deadline
}

// PrioritySet assigns the event's dispatch priority (0 = highest). Must
// not be called while the event is active.
func (e *Event) PrioritySet(pri int) error {
	r := e.reactor
	if r == nil {
		return ErrNoReactor
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if pri < 0 || pri >= r.nPriorities {
		return ErrPriorityOutOfRange
	}
	if e.flags&(flagActive|flagActiveLater) != 0 {
		return ErrAlreadyAdded
	}
	e.priority = pri
	return nil
}

// Finalize performs a two-phase teardown: del() the event, then schedule
// fn to run once no callback of the event
// can be concurrently executing. If free is true the finalizer kind is
// finalize-free, signaling the dispatcher it may release the Event after
// invocation (Go's GC makes this advisory only; it exists for parity and
// to run any user cleanup deterministically).
func (e *Event) Finalize(free bool, fn FinalizeCallback) error {
	r := e.reactor
	if r == nil {
		return ErrNoReactor
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.flags&flagFinalizing != 0 {
		return ErrFinalizing
	}
	e.flags |= flagFinalizing
	r.delLocked(e)
	e.finalize = fn
	if free {
		e.kind = closureFinalizeFree
	} else {
		e.kind = closureFinalize
	}
	r.activateLocked(e, 0, 1, false)
	r.maybeNotifyLocked()
	return nil
}
