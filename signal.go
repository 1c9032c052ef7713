package evcore

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// globalSignalMu and globalSignalOwner implement a "last reactor to
// attach for a given signal wins" rule. Go's os/signal package
// fans a signal out to every channel that calls Notify for it, with no
// notion of ownership, so evcore layers ownership on top: claiming a
// signal number calls signal.Stop on whichever signalState previously
// held it, then re-derives that state's Notify set from what it still
// legitimately owns.
var (
	globalSignalMu    sync.Mutex
	globalSignalOwner = map[int]*signalState{}
)

func claimSignal(signum int, owner *signalState) {
	globalSignalMu.Lock()
	prev := globalSignalOwner[signum]
	globalSignalOwner[signum] = owner
	globalSignalMu.Unlock()
	if prev != nil && prev != owner {
		prev.resyncNotify()
	}
}

func releaseSignal(signum int, owner *signalState) {
	globalSignalMu.Lock()
	if globalSignalOwner[signum] == owner {
		delete(globalSignalOwner, signum)
	}
	globalSignalMu.Unlock()
}

func ownsSignal(signum int, owner *signalState) bool {
	globalSignalMu.Lock()
	defer globalSignalMu.Unlock()
	return globalSignalOwner[signum] == owner
}

// signalState is a reactor's signal trampoline: a self-pipe
// woken by a relay goroutine that receives from an os/signal.Notify
// channel. The relay goroutine is ordinary Go code, not a restricted
// signal handler — the Go runtime's own (already async-signal-safe)
// handler is what os/signal registers at the OS level — so it is free to
// take locks and touch Go maps directly; the self-pipe write still routes
// wake-up through the same backend.dispatch() readiness path every other
// event uses, keeping Dispatch's wait/cache logic uniform.
type signalState struct {
	pipeR         int
	pipeWriteFD   atomic.Int32
	sigCh         chan os.Signal
	stopCh        chan struct{}
	events        map[int][]*Event // signum -> registered events
	pendingMu     sync.Mutex
	pending       map[int]int32 // signum -> coalesced occurrences awaiting dispatch
}

func newSignalState() (*signalState, error) {
	r, w, err := createWakeFD()
	if err != nil {
		return nil, WrapBackendError("signal", "create", err)
	}
	s := &signalState{
		pipeR:   r,
		sigCh:   make(chan os.Signal, 16),
		stopCh:  make(chan struct{}),
		events:  make(map[int][]*Event),
		pending: make(map[int]int32),
	}
	s.pipeWriteFD.Store(int32(w))
	go s.relay()
	return s, nil
}

func (s *signalState) relay() {
	for {
		select {
		case sig, ok := <-s.sigCh:
			if !ok {
				return
			}
			signum := int(sig.(syscall.Signal))
			s.pendingMu.Lock()
			s.pending[signum]++
			s.pendingMu.Unlock()
			writeWakeByte(int(s.pipeWriteFD.Load()))
		case <-s.stopCh:
			return
		}
	}
}

func (s *signalState) pipeFD() int { return s.pipeR }

func (s *signalState) active() bool { return len(s.events) > 0 }

// resyncNotify recomputes the Notify set for sigCh from the signal numbers
// s.events still holds AND currently owns (per globalSignalOwner).
func (s *signalState) resyncNotify() {
	globalSignalMu.Lock()
	var sigs []os.Signal
	for signum := range s.events {
		if globalSignalOwner[signum] == s {
			sigs = append(sigs, syscall.Signal(signum))
		}
	}
	globalSignalMu.Unlock()
	signal.Stop(s.sigCh)
	if len(sigs) > 0 {
		signal.Notify(s.sigCh, sigs...)
	}
}

// drainAndDispatchLocked is called from Reactor.evmapIOActiveLocked when
// the signal pipe becomes readable: it empties the pipe, snapshots and
// clears the coalesced per-signal counters, and activates every event
// registered for each signal number that fired.
func (s *signalState) drainAndDispatchLocked(r *Reactor) {
	drainWakeFD(s.pipeR)
	s.pendingMu.Lock()
	pend := s.pending
	s.pending = make(map[int]int32)
	s.pendingMu.Unlock()
	for signum, n := range pend {
		for _, ev := range s.events[signum] {
			r.activateLocked(ev, EvSignal, int(n), false)
		}
	}
}

func (s *signalState) reinit(r *Reactor) error {
	_ = closeWakeFD(s.pipeR, int(s.pipeWriteFD.Load()))
	rfd, wfd, err := createWakeFD()
	if err != nil {
		return WrapBackendError("signal", "reinit", err)
	}
	s.pipeR = rfd
	s.pipeWriteFD.Store(int32(wfd))
	s.resyncNotify()
	return nil
}

func (s *signalState) close() {
	close(s.stopCh)
	signal.Stop(s.sigCh)
	_ = closeWakeFD(s.pipeR, int(s.pipeWriteFD.Load()))
}

// addSignalLocked registers ev (whose fd field holds a signal number) for
// delivery, lazily creating the reactor's signal trampoline on first use.
func (r *Reactor) addSignalLocked(ev *Event) error {
	if ev.fd < 0 {
		return ErrInvalidMask
	}
	if r.sig == nil {
		s, err := newSignalState()
		if err != nil {
			return err
		}
		if err := r.backend.add(s.pipeR, 0, EvRead); err != nil {
			s.close()
			return err
		}
		r.sig = s
	}
	signum := ev.fd
	r.sig.events[signum] = append(r.sig.events[signum], ev)
	claimSignal(signum, r.sig)
	r.sig.resyncNotify()
	return nil
}

func (r *Reactor) delSignalLocked(ev *Event) {
	s := r.sig
	if s == nil {
		return
	}
	signum := ev.fd
	list := s.events[signum]
	for i, e := range list {
		if e == ev {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.events, signum)
		if ownsSignal(signum, s) {
			releaseSignal(signum, s)
		}
	} else {
		s.events[signum] = list
	}
	s.resyncNotify()
}
