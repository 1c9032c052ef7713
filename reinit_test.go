package evcore

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReactor_ReinitPreservesRegisteredTimers(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	var fired atomic.Bool
	ev := r.NewEvent(-1, EvTimeout, func(int, EventMask, any) {
		fired.Store(true)
		r.LoopBreak()
	}, nil)
	require.NoError(t, ev.Add(30 * time.Millisecond))

	require.NoError(t, r.Reinit())

	done := make(chan error, 1)
	go func() { done <- r.Dispatch(0) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return after Reinit")
	}
	require.True(t, fired.Load())
}

func TestReactor_ReinitRebuildsWakeChannel(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	require.NoError(t, r.Reinit())
	require.GreaterOrEqual(t, r.wake.fd(), 0, "reinit should leave a valid wake descriptor behind")

	fired := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		ev := r.NewEvent(-1, EvTimeout, func(int, EventMask, any) {
			close(fired)
			r.LoopBreak()
		}, nil)
		_ = ev.Add(time.Millisecond)
	}()

	idle := r.NewEvent(-1, EvTimeout, func(int, EventMask, any) {}, nil)
	require.NoError(t, idle.Add(10 * time.Second))

	done := make(chan error, 1)
	go func() { done <- r.Dispatch(0) }()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("wake channel did not wake dispatch after Reinit")
	}
	<-done
}
