package evcore

import "time"

// monoClock wraps time.Now, exposing a non-decreasing time for internal
// deadline arithmetic plus the wall-clock offset needed to report
// human-readable times to users. Go's time.Time
// already carries a monotonic reading internally, so this wrapper exists
// mainly to give the reactor's cached-time contract a single named seam,
// mirroring eventloop's tickAnchor/tickElapsedTime split (loop.go)
// without needing a synthetic anchor: time.Now() is itself
// monotonic-safe for subtraction in Go.
type monoClock struct {
	precise bool
}

func newMonoClock(precise bool) monoClock {
	return monoClock{precise: precise}
}

// now returns the current monotonic-backed time. On platforms where a
// higher-resolution clock matters, a precise clock implementation would
// hook in here; time.Now() already uses CLOCK_MONOTONIC wherever
// available on the target OS, so WithPreciseTimer is currently a no-op
// flag retained for interface parity with the option's documented intent.
func (c monoClock) now() time.Time {
	return time.Now()
}

// cachedNowOrFresh returns the Reactor's cached "now" if valid, else
// computes and does NOT cache a fresh value (callers inside the lock that
// want to refresh the cache call refreshCachedTime explicitly). This function
// implements DESIGN.md's Open Question resolution: the cache is valid
// only between re-establishment after backend.dispatch and the next
// clearCachedTime call.
func (r *Reactor) cachedNowOrFresh() time.Time {
	if r.cfg.noCacheTime || r.cachedTime.IsZero() {
		return r.clock.now()
	}
	return r.cachedTime
}

func (r *Reactor) clearCachedTime() {
	r.cachedTime = time.Time{}
}

func (r *Reactor) refreshCachedTime() {
	r.cachedTime = r.clock.now()
}
