// Package evcore provides a single-threaded-by-contract, multi-backend
// event notification core: a reactor loop that multiplexes file
// descriptor readiness, OS signal delivery, and timers onto a priority-
// ordered callback dispatcher.
//
// # Architecture
//
// A [Reactor] owns one backend (epoll on Linux, kqueue on BSD/Darwin),
// selected at construction time in a fixed preference order, a binary
// min-heap of pending timeouts (with an optional common-timeout
// fast path for large numbers of events sharing one duration), and N
// FIFO queues of callbacks ready to run this tick, drained from priority
// 0 upward. [Reactor.Dispatch] runs this loop until told to stop via
// [Reactor.LoopBreak] or [Reactor.LoopExit], or until nothing is left
// registered.
//
// Events are created with [Reactor.NewEvent], armed with [Event.Add], and
// torn down with [Event.Del]; [Reactor.Once] wraps that pair for
// one-shot, non-persistent use. A Reactor is safe to mutate from any
// goroutine; exactly one goroutine may be inside Dispatch at a time, and
// cross-thread mutations wake a blocked Dispatch call automatically.
package evcore
