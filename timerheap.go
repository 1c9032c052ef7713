package evcore

import (
	"container/heap"
	"time"
)

// timerHeap is a binary min-heap keyed on absolute deadline,
// holding both ordinary per-event timers and common-timeout sentinels.
// Each Event records its own heap index for O(log n) erase-by-index
// delete of a known event" —
// here O(log n), since container/heap's Remove must sift after swapping
// with the last element).
type timerHeap []*Event

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *timerHeap) Push(x any) {
	ev := x.(*Event)
	ev.heapIdx = len(*h)
	*h = append(*h, ev)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.heapIdx = -1
	*h = old[:n-1]
	return ev
}

// pushTimerLocked inserts ev (with ev.deadline already set) into the heap.
func (r *Reactor) pushTimerLocked(ev *Event) {
	heap.Push(&r.timers, ev)
	ev.flags |= flagTimeout
}

// removeTimerLocked erases ev from the heap via its stored index.
func (r *Reactor) removeTimerLocked(ev *Event) {
	if ev.heapIdx < 0 || ev.heapIdx >= len(r.timers) {
		return
	}
	heap.Remove(&r.timers, ev.heapIdx)
	ev.heapIdx = -1
}

// scheduleTimeoutLocked arms a standalone (non-common) timeout at
// cachedNow+d, detaching any previous timeout registration first.
func (r *Reactor) scheduleTimeoutLocked(ev *Event, d time.Duration) {
	if ev.flags&flagTimeout != 0 {
		r.unscheduleTimeoutLocked(ev)
	}
	ev.duration = d
	ev.ctID = -1
	ev.deadline = r.cachedNowOrFresh().Add(d)
	r.pushTimerLocked(ev)
}

// unscheduleTimeoutLocked detaches ev from whichever timer structure
// currently holds it: the heap xor exactly one common-timeout queue,
// never both.
func (r *Reactor) unscheduleTimeoutLocked(ev *Event) {
	if ev.ctID >= 0 && int(ev.ctID) < len(r.commonTimeouts) {
		r.commonTimeouts[ev.ctID].remove(r, ev)
	} else {
		r.removeTimerLocked(ev)
	}
	ev.flags &^= flagTimeout
}

// timeoutProcessLocked pops every heap root whose deadline has passed,
// activating ordinary events with EvTimeout and draining any expired
// common-timeout sentinel via its queue.
func (r *Reactor) timeoutProcessLocked(now time.Time) {
	for len(r.timers) > 0 {
		ev := r.timers[0]
		if ev.deadline.After(now) {
			break
		}
		heap.Pop(&r.timers)
		ev.heapIdx = -1
		ev.flags &^= flagTimeout

		if ev.kind == closureSentinel {
			ev.sentinelQueue.drain(r, now)
			continue
		}

		if ev.kind != closurePersistent && ev.flags&flagInserted != 0 && ev.mask&ioMask != 0 {
			r.delIOLocked(ev)
			ev.flags &^= flagInserted
		}
		r.activateLocked(ev, EvTimeout, 1, false)
	}
}

// nextWaitLocked returns how long the owner should block in
// backend.dispatch based on timers alone: the time until the earliest
// timer deadline (clamped at 0), or a negative value meaning "block
// indefinitely". Dispatch itself forces 0 when callbacks are pending.
func (r *Reactor) nextWaitLocked(now time.Time) time.Duration {
	if len(r.timers) == 0 {
		return -1
	}
	d := r.timers[0].deadline.Sub(now)
	if d < 0 {
		d = 0
	}
	return d
}
