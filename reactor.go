package evcore

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// DispatchFlags control a single call to Reactor.Dispatch.
type DispatchFlags uint8

const (
	// DispatchOnce runs at most one pass through the active queues (at
	// most one round of ready callbacks) before returning, still blocking
	// for the first readiness/timeout wait.
	DispatchOnce DispatchFlags = 1 << iota
	// DispatchNonBlocking polls the backend without waiting, even if no
	// event is immediately ready, runs one pass through the active queues,
	// and returns.
	DispatchNonBlocking
	// DispatchNoExitOnEmpty keeps Dispatch running even when no event is
	// registered and none is active, surfaced explicitly here rather than
	// only as an implicit default.
	DispatchNoExitOnEmpty
)

// fdEntry aggregates every Event registered against a single descriptor,
// so the reactor can compute the OR-of-interest mask the backend needs.
type fdEntry struct {
	mask   EventMask
	events []*Event
}

// Reactor is a single event loop: one backend, one timer heap, one set of
// priority-ordered active queues, and the registration maps tying Events
// to all of the above. A Reactor is safe for concurrent use; exactly one
// goroutine may be inside Dispatch at a time.
type Reactor struct {
	mu sync.Mutex

	cfg    *Config
	logger Logger

	backend backend
	clock   monoClock

	cachedTime time.Time

	timers         timerHeap
	commonTimeouts []*commonTimeoutQueue

	activeQueues []*activeQueue
	activeLater  *activeQueue
	nPriorities  int
	continueFlag bool
	currentCB    *Event

	fds map[int]*fdEntry

	sig  *signalState
	wake *wakeupChannel

	ownerGoroutine int64
	haveOwner      bool
	continueNow    bool

	running  bool
	gotBreak bool
	gotExit  bool
	freed    bool
	broken   bool
}

// New constructs a Reactor and selects its backend.
func New(opts ...Option) (*Reactor, error) {
	cfg := resolveConfig(opts)

	b, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	wake, err := newWakeupChannel()
	if err != nil {
		_ = b.dealloc()
		return nil, err
	}

	r := &Reactor{
		cfg:          cfg,
		logger:       cfg.logger,
		backend:      b,
		clock:        newMonoClock(cfg.preciseTimer),
		timers:       nil,
		activeQueues: []*activeQueue{newActiveQueue()},
		activeLater:  newActiveQueue(),
		nPriorities:  1,
		fds:          make(map[int]*fdEntry),
		wake:         wake,
	}

	if err := r.backend.add(wake.fd(), 0, EvRead); err != nil {
		_ = wake.close()
		_ = b.dealloc()
		return nil, err
	}

	return r, nil
}

// defaultPriority returns the priority newly-created events receive,
// matching the C original's "middle of the configured range" default.
func (r *Reactor) defaultPriority() int {
	return (r.nPriorities - 1) / 2
}

// invalidMask rejects nonsensical masks: an empty mask, or a signal
// combined with I/O/persist bits (signals and I/O are mutually exclusive
// closure kinds).
func (r *Reactor) invalidMask(mask EventMask) bool {
	if mask == 0 {
		return true
	}
	if mask&EvSignal != 0 && mask&(ioMask|EvPersist) != 0 {
		return true
	}
	return false
}

// PriorityInit sets the number of dispatch priority queues.
// It must be called before any event is created or activated.
func (r *Reactor) PriorityInit(n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n >= 256 {
		return ErrTooManyPriorities
	}
	if r.hasActiveLocked() {
		return ErrPriorityAfterActivate
	}
	queues := make([]*activeQueue, n)
	for i := range queues {
		queues[i] = newActiveQueue()
	}
	r.activeQueues = queues
	r.nPriorities = n
	return nil
}

func (r *Reactor) hasActiveLocked() bool {
	if !r.activeLater.empty() {
		return true
	}
	for _, q := range r.activeQueues {
		if !q.empty() {
			return true
		}
	}
	return false
}

// addIOLocked registers ev's I/O interest, updating the shared fdEntry for
// its descriptor and calling the backend only when the aggregate interest
// mask actually changes.
func (r *Reactor) addIOLocked(ev *Event) error {
	want := ev.mask & ioMask
	entry := r.fds[ev.fd]
	if entry == nil {
		entry = &fdEntry{}
		r.fds[ev.fd] = entry
	}
	old := entry.mask
	entry.events = append(entry.events, ev)
	entry.mask |= want
	if entry.mask != old {
		if err := r.backend.add(ev.fd, old, entry.mask); err != nil {
			entry.events = entry.events[:len(entry.events)-1]
			entry.mask = old
			if len(entry.events) == 0 {
				delete(r.fds, ev.fd)
			}
			return err
		}
	}
	return nil
}

// delIOLocked unregisters ev's I/O interest, recomputing the aggregate
// mask for its descriptor from the events that remain.
func (r *Reactor) delIOLocked(ev *Event) {
	entry := r.fds[ev.fd]
	if entry == nil {
		return
	}
	for i, e := range entry.events {
		if e == ev {
			entry.events = append(entry.events[:i], entry.events[i+1:]...)
			break
		}
	}
	old := entry.mask
	var next EventMask
	for _, e := range entry.events {
		next |= e.mask & ioMask
	}
	entry.mask = next
	if len(entry.events) == 0 {
		delete(r.fds, ev.fd)
	}
	if next != old {
		_ = r.backend.del(ev.fd, old, next)
	}
}

// evmapIOActiveLocked turns one backend-reported (fd, mask) pair into
// activations of every matching registered event.
// fds belonging to the wake channel or the signal trampoline are drained
// internally rather than surfaced to user callbacks.
func (r *Reactor) evmapIOActiveLocked(fd int, res EventMask) {
	if r.wake != nil && fd == r.wake.fd() {
		r.wake.drain()
		return
	}
	if r.sig != nil && fd == r.sig.pipeFD() {
		r.sig.drainAndDispatchLocked(r)
		return
	}
	entry := r.fds[fd]
	if entry == nil {
		return
	}
	for _, ev := range entry.events {
		fired := ev.mask & res & ioMask
		if res&EvClosed != 0 && ev.mask&EvClosed != 0 {
			fired |= EvClosed
		}
		if fired != 0 {
			r.activateLocked(ev, fired, 1, false)
		}
	}
}

// maybeNotifyLocked wakes a blocked Dispatch call when the mutation that
// just happened came from a goroutine other than the one running the loop:
// the owner never needs to interrupt its own blocking wait, since it will
// recompute the wait duration on its next iteration regardless.
func (r *Reactor) maybeNotifyLocked() {
	if r.wake == nil {
		return
	}
	if r.cfg.nolock {
		// WithNoLock asserts the caller never touches this Reactor from
		// more than one goroutine; skip the cross-thread wake-up entirely.
		return
	}
	if r.running && r.isOwnerGoroutine() {
		return
	}
	r.wake.notify()
}

func (r *Reactor) isOwnerGoroutine() bool {
	return r.haveOwner && getGoroutineID() == r.ownerGoroutine
}

// getGoroutineID extracts the calling goroutine's numeric id by parsing
// the header line of runtime.Stack's output. It exists purely to answer
// "is the caller the goroutine currently inside Dispatch", used to decide
// whether Del/Active must defer to a wake-and-retry versus acting inline;
// it is not used for anything safety-critical, since a wrong answer only
// costs an extra wake-up or an avoidable block, never a data race.
func getGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		if id, err := strconv.ParseInt(string(b[:i]), 10, 64); err == nil {
			return id
		}
	}
	return -1
}

// Dispatch runs the event loop until LoopBreak, LoopExit, a registration
// table goes empty (unless DispatchNoExitOnEmpty is set), or flags
// requests a single pass.
func (r *Reactor) Dispatch(flags DispatchFlags) error {
	r.mu.Lock()
	if r.freed {
		r.mu.Unlock()
		return ErrReactorFreed
	}
	if r.broken {
		r.mu.Unlock()
		return ErrReactorBroken
	}
	if r.running {
		r.mu.Unlock()
		return ErrReentrantDispatch
	}
	r.running = true
	r.gotBreak = false
	r.gotExit = false
	r.ownerGoroutine = getGoroutineID()
	r.haveOwner = true
	r.refreshCachedTime()
	defer func() {
		r.running = false
		r.haveOwner = false
		r.mu.Unlock()
	}()

	for {
		if r.gotBreak || r.gotExit {
			break
		}

		r.promoteActiveLaterLocked()

		noExitOnEmpty := flags&DispatchNoExitOnEmpty != 0 || r.cfg.noExitOnEmptyDef
		// A registered-but-empty common-timeout queue (InitCommonTimeout
		// called but never used, or fully drained) carries no sentinel in
		// r.timers, so len(r.commonTimeouts) must not gate emptiness: that
		// array never shrinks back to zero once any duration has ever been
		// registered. A queue with events still waiting always keeps its
		// sentinel in r.timers, so r.timers.Len() already covers it.
		empty := len(r.fds) == 0 && r.timers.Len() == 0 && (r.sig == nil || !r.sig.active())
		if empty && !r.hasActiveLocked() && !noExitOnEmpty {
			break
		}

		wait := r.nextWaitLocked(r.cachedNowOrFresh())
		if r.hasActiveLocked() {
			wait = 0
		}
		if flags&DispatchNonBlocking != 0 {
			wait = 0
		}
		if r.continueNow {
			wait = 0
			r.continueNow = false
		}

		r.clearCachedTime()
		r.mu.Unlock()
		ready, derr := r.backend.dispatch(wait)
		r.mu.Lock()
		r.refreshCachedTime()
		if derr != nil {
			r.logf(LevelError, "dispatch", "backend dispatch failed", derr, nil)
			r.broken = true
			return derr
		}

		now := r.cachedTime
		r.timeoutProcessLocked(now)
		for _, rf := range ready {
			r.evmapIOActiveLocked(rf.fd, rf.mask)
		}

		r.processActiveLocked()

		if flags&(DispatchOnce|DispatchNonBlocking) != 0 {
			break
		}
	}

	return nil
}

// LoopBreak asks the running Dispatch call to stop immediately, abandoning
// any events still queued as active.
func (r *Reactor) LoopBreak() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.freed {
		return ErrReactorFreed
	}
	r.gotBreak = true
	r.maybeNotifyLocked()
	return nil
}

// LoopExit asks Dispatch to stop once after has elapsed (or immediately,
// if after <= 0). As with LoopBreak, callbacks still queued as active when
// the exit takes effect are not run by that Dispatch call.
func (r *Reactor) LoopExit(after time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.freed {
		return ErrReactorFreed
	}
	if after <= 0 {
		r.gotExit = true
		r.maybeNotifyLocked()
		return nil
	}
	ev := r.newSelfEvent(func(any) {
		r.mu.Lock()
		r.gotExit = true
		r.mu.Unlock()
	}, nil)
	if err := r.addLocked(ev, after); err != nil {
		return err
	}
	r.maybeNotifyLocked()
	return nil
}

// LoopContinue makes the next Dispatch iteration skip its blocking wait,
// re-scanning immediately; useful after a batch of programmatic Add/Active
// calls made from within a callback that should be observed this tick.
func (r *Reactor) LoopContinue() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.freed {
		return ErrReactorFreed
	}
	r.continueNow = true
	r.maybeNotifyLocked()
	return nil
}

// GotBreak reports whether the most recent Dispatch call ended via
// LoopBreak, as a separate query from GotExit.
func (r *Reactor) GotBreak() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gotBreak
}

// GotExit reports whether the most recent Dispatch call ended via
// LoopExit, as a separate query from GotBreak.
func (r *Reactor) GotExit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gotExit
}

// Reinit recovers the reactor after a fork: the backend is
// swapped for a no-op while the old one is torn down and a fresh one is
// initialized, the wake channel and signal trampoline are detached and
// reopened, and every still-registered fd is re-added to the new backend.
func (r *Reactor) Reinit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.freed {
		return ErrReactorFreed
	}

	old := r.backend
	r.backend = noopBackend{}
	if err := old.dealloc(); err != nil {
		r.logf(LevelWarn, "reinit", "old backend dealloc failed", err, nil)
	}

	if err := r.wake.reinit(); err != nil {
		return err
	}
	if r.sig != nil {
		if err := r.sig.reinit(r); err != nil {
			return err
		}
	}

	nb, err := newBackend(r.cfg)
	if err != nil {
		return err
	}
	r.backend = nb

	if err := r.backend.add(r.wake.fd(), 0, EvRead); err != nil {
		return err
	}
	if r.sig != nil {
		if err := r.backend.add(r.sig.pipeFD(), 0, EvRead); err != nil {
			return err
		}
	}
	for fd, entry := range r.fds {
		if entry.mask == 0 {
			continue
		}
		if err := r.backend.add(fd, 0, entry.mask); err != nil {
			return err
		}
	}
	return nil
}

// Free releases the reactor's backend and wake-channel resources. The
// reactor must not be in Dispatch when Free is called.
func (r *Reactor) Free() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.freed {
		return nil
	}
	r.freed = true
	if r.sig != nil {
		r.sig.close()
	}
	_ = r.wake.close()
	return r.backend.dealloc()
}

// noopBackend is the inert placeholder Reinit swaps in while the real
// backend is being torn down and rebuilt, so a concurrent reader of
// r.backend (there are none today, but Reinit's critical section holds
// r.mu throughout) never observes a nil interface value.
type noopBackend struct{}

func (noopBackend) name() string                                { return "noop" }
func (noopBackend) init() error                                 { return nil }
func (noopBackend) add(int, EventMask, EventMask) error         { return nil }
func (noopBackend) del(int, EventMask, EventMask) error         { return nil }
func (noopBackend) dispatch(time.Duration) ([]readyFD, error)   { return nil, nil }
func (noopBackend) dealloc() error                              { return nil }
func (noopBackend) needReinit() bool                            { return false }
func (noopBackend) features() backendFeature                    { return 0 }
