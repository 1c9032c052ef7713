package evcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// A Reactor whose only registration is a 10s timer blocks in
// backend.dispatch for that long. Adding an event from another goroutine
// must wake that blocked wait promptly rather than waiting out the prior
// deadline, proving the cross-thread notify path is wired into Add.
func TestReactor_CrossThreadAddWakesBlockedDispatch(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	idle := r.NewEvent(-1, EvTimeout, func(int, EventMask, any) {}, nil)
	require.NoError(t, idle.Add(10 * time.Second))

	fired := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		ev := r.NewEvent(-1, EvTimeout, func(int, EventMask, any) {
			close(fired)
			r.LoopBreak()
		}, nil)
		_ = ev.Add(5 * time.Millisecond)
	}()

	done := make(chan error, 1)
	go func() { done <- r.Dispatch(0) }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("cross-thread event never fired: wake-up notify is not working")
	}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return")
	}
}

func TestWakeupChannel_NotifyDrain(t *testing.T) {
	w, err := newWakeupChannel()
	require.NoError(t, err)
	defer w.close()

	w.notify()
	w.notify()
	w.notify()
	w.drain() // must not block or error regardless of how many notifies coalesced
}
