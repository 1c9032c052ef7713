package evcore

// wakeupChannel is the cross-thread wake-up primitive: a non-owner
// goroutine calls notify() after changing state the dispatch
// loop should notice (a new timeout, a newly-registered fd, LoopBreak),
// and the blocked backend.dispatch call returns early because the wake
// descriptor becomes readable. readFD/writeFD are platform-specific: one
// eventfd on Linux (wakeup_linux.go), a self-pipe elsewhere
// (wakeup_unix.go), grounded on eventloop's createWakeFd/closeWakeFd/
// drainWakeUpPipe split (eventloop/wakeup_linux.go, wakeup_darwin.go).
type wakeupChannel struct {
	readFD  int
	writeFD int

	// pending dedups notify() writes: once a wake byte is in flight there's
	// no need to write another until drain() empties the descriptor, since
	// one byte is enough to unblock any number of queued state changes.
	// Every call to notify()/drain() is made with Reactor.mu held, so a
	// plain bool suffices.
	pending bool
}

func (w *wakeupChannel) fd() int { return w.readFD }

func (w *wakeupChannel) notify() {
	if w.pending {
		return
	}
	w.pending = true
	writeWakeByte(w.writeFD)
}

func (w *wakeupChannel) drain() {
	w.pending = false
	drainWakeFD(w.readFD)
}

func (w *wakeupChannel) close() error {
	return closeWakeFD(w.readFD, w.writeFD)
}

// reinit closes and recreates the wake descriptor(s), used by
// Reactor.Reinit after a fork: descriptors inherited across fork remain
// open in the child but may be in a confused state if the parent's
// dispatch loop was mid-wait, so the safest recovery is a fresh pair.
func (w *wakeupChannel) reinit() error {
	_ = closeWakeFD(w.readFD, w.writeFD)
	r, wr, err := createWakeFD()
	if err != nil {
		return WrapBackendError("wake", "reinit", err)
	}
	w.readFD = r
	w.writeFD = wr
	return nil
}

func newWakeupChannel() (*wakeupChannel, error) {
	r, w, err := createWakeFD()
	if err != nil {
		return nil, WrapBackendError("wake", "create", err)
	}
	return &wakeupChannel{readFD: r, writeFD: w}, nil
}
