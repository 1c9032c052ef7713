package evcore

import (
	"container/list"
	"time"
)

// activeQueue is a per-priority FIFO of callbacks ready to run this tick.
// container/list gives O(1) enqueue/dequeue/remove-by-element, which
// Event.queueElem exploits for O(1) Del-while-active: list.Element
// pointers instead of a hand-rolled intrusive list, since container/list
// already provides the same O(1) characteristics without unsafe pointer
// arithmetic.
type activeQueue struct {
	l *list.List
}

func newActiveQueue() *activeQueue {
	return &activeQueue{l: list.New()}
}

func (q *activeQueue) empty() bool { return q.l.Len() == 0 }

func (q *activeQueue) pushBack(e *Event) {
	e.queueElem = q.l.PushBack(e)
}

func (q *activeQueue) popFront() *Event {
	elem := q.l.Front()
	if elem == nil {
		return nil
	}
	q.l.Remove(elem)
	ev := elem.Value.(*Event)
	ev.queueElem = nil
	return ev
}

func (q *activeQueue) remove(e *Event) {
	if e.queueElem == nil {
		return
	}
	q.l.Remove(e.queueElem)
	e.queueElem = nil
}

// activateLocked places ev on the appropriate priority queue (or the
// active-later queue), accumulating res into its activeRes and ncalls
// into its coalesced counter.
func (r *Reactor) activateLocked(ev *Event, res EventMask, ncalls int, later bool) {
	if ev.flags&(flagActive|flagActiveLater) != 0 {
		// Already queued: accumulate results/ncalls in place. Required for
		// signal coalescing, and harmless for repeated Active() calls on
		// I/O events.
		ev.activeRes |= res
		ev.ncalls += int32(ncalls)
		return
	}
	ev.activeRes = res
	ev.ncalls = int32(ncalls)
	if later {
		ev.flags |= flagActiveLater
		r.activeLater.pushBack(ev)
	} else {
		ev.flags |= flagActive
		r.activeQueues[ev.priority].pushBack(ev)
		if ev.priority == 0 {
			// A priority-0 activation should cause the currently
			// draining lower-priority queue to abandon its batch and
			// restart at the top.
			r.continueFlag = true
		}
	}
}

func (r *Reactor) dequeueActiveLocked(e *Event) {
	if e.flags&flagActive != 0 {
		r.activeQueues[e.priority].remove(e)
	}
	if e.flags&flagActiveLater != 0 {
		r.activeLater.remove(e)
	}
	e.flags &^= flagActive | flagActiveLater
}

// promoteActiveLaterLocked moves every event on the active-later queue
// onto its proper priority queue, run once per
// dispatch iteration before the kernel wait.
func (r *Reactor) promoteActiveLaterLocked() {
	for {
		ev := r.activeLater.popFront()
		if ev == nil {
			break
		}
		ev.flags &^= flagActiveLater
		ev.flags |= flagActive
		r.activeQueues[ev.priority].pushBack(ev)
	}
}

// processActiveLocked drains the active queues from priority 0 upward,
// fully draining each non-empty queue before moving to the next.
// The reactor lock is released around each user callback body and
// reacquired before the next dequeue.
func (r *Reactor) processActiveLocked() int {
	fired := 0
	tickStart := r.clock.now()
restart:
	for pri := 0; pri < r.nPriorities; pri++ {
		q := r.activeQueues[pri]
		paced := r.cfg.limitAfterPrio >= 0 && pri >= r.cfg.limitAfterPrio
		for !q.empty() {
			if r.gotBreak || r.gotExit {
				return fired
			}
			ev := q.popFront()
			ev.flags &^= flagActive
			r.continueFlag = false
			r.dispatchOneLocked(ev)
			fired++
			if r.continueFlag {
				// a priority-0 activation happened inside the callback:
				// abandon this queue and restart the scan at priority 0.
				goto restart
			}
			if paced {
				if r.cfg.maxDispatchCB > 0 && fired >= r.cfg.maxDispatchCB {
					return fired
				}
				if r.cfg.maxDispatchTime > 0 && r.clock.now().Sub(tickStart) >= r.cfg.maxDispatchTime {
					return fired
				}
			}
		}
	}
	return fired
}

// dispatchOneLocked invokes a single event's callback per its closure
// kind, releasing the reactor lock around user code.
func (r *Reactor) dispatchOneLocked(ev *Event) {
	switch ev.kind {
	case closurePlain:
		fd, res, cb, arg := ev.fd, ev.activeRes, ev.cb, ev.arg
		// Non-persistent: "add is undone" — tear
		// down I/O registration and any still-armed timeout before the
		// callback runs, returning the event to the bare {INIT} state.
		r.delLocked(ev)
		ev.inCallback = true
		prevCur := r.currentCB
		r.currentCB = ev
		r.mu.Unlock()
		safeCall(func() { cb(fd, res, arg) })
		r.mu.Lock()
		r.currentCB = prevCur
		ev.inCallback = false
		if ev.delCond != nil {
			ev.delCond.Broadcast()
		}

	case closurePersistent:
		now := r.clock.now()
		if ev.duration > 0 {
			var next time.Time
			if ev.activeRes&EvTimeout != 0 {
				// fired via timeout expiry: next deadline is relative to
				// the prior scheduled deadline, unless that's already
				// past due to a clock jump or a slow callback.
				if ev.deadline.IsZero() {
					next = now.Add(ev.duration)
				} else {
					next = ev.deadline.Add(ev.duration)
					if next.Before(now) {
						next = now.Add(ev.duration)
					}
				}
			} else {
				// fired via I/O readiness: the timer entry (if any) is
				// still armed and must be pulled before rescheduling.
				if ev.flags&flagTimeout != 0 {
					r.unscheduleTimeoutLocked(ev)
				}
				next = now.Add(ev.duration)
			}
			ev.deadline = next
			if ev.ctID >= 0 {
				q := r.commonTimeouts[ev.ctID]
				ev.ctElem = q.queue.PushBack(ev)
				q.rearmSentinel(r)
				ev.flags |= flagTimeout
			} else {
				r.pushTimerLocked(ev)
			}
		}
		fd, res, cb, arg := ev.fd, ev.activeRes, ev.cb, ev.arg
		ev.inCallback = true
		prevCur := r.currentCB
		r.currentCB = ev
		r.mu.Unlock()
		safeCall(func() { cb(fd, res, arg) })
		r.mu.Lock()
		r.currentCB = prevCur
		ev.inCallback = false
		if ev.delCond != nil {
			ev.delCond.Broadcast()
		}

	case closureSignal:
		n := int(ev.ncalls)
		ev.ncalls = 0
		fd, cb, arg := ev.fd, ev.cb, ev.arg
		ev.inCallback = true
		ev.flags &^= flagSigCanceled
		prevCur := r.currentCB
		r.currentCB = ev
		r.mu.Unlock()
		for i := 0; i < n; i++ {
			r.mu.Lock()
			canceled := r.gotBreak || ev.flags&flagSigCanceled != 0
			r.mu.Unlock()
			if canceled {
				break
			}
			safeCall(func() { cb(fd, EvSignal, arg) })
		}
		r.mu.Lock()
		ev.flags &^= flagSigCanceled
		r.currentCB = prevCur
		ev.inCallback = false
		if ev.delCond != nil {
			ev.delCond.Broadcast()
		}

	case closureSelf:
		cb, arg := ev.selfCB, ev.arg
		r.mu.Unlock()
		safeCall(func() { cb(arg) })
		r.mu.Lock()

	case closureFinalize, closureFinalizeFree:
		// The finalizing flag is cleared here, before fn runs, rather than
		// after: a finalize-free callback is free to return ev to a pool
		// (once.go does), and nothing may touch ev once that happens.
		fn := ev.finalize
		ev.flags &^= flagFinalizing
		r.mu.Unlock()
		if fn != nil {
			safeCall(func() { fn(ev) })
		}
		r.mu.Lock()
	}
}

// safeCall runs a user callback directly. A callback's own returned
// error, if any, is never observed by the core. A panic is not recovered:
// it propagates to the goroutine running Dispatch, and the reactor's
// per-callback bookkeeping (inCallback, currentCB) is not restored.
func safeCall(fn func()) { fn() }
