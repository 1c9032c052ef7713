package evcore

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReactor_OneShotTimerFires(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	var fired atomic.Bool
	ev := r.NewEvent(-1, EvTimeout, func(fd int, res EventMask, arg any) {
		fired.Store(true)
		require.Equal(t, EvTimeout, res)
		r.LoopBreak()
	}, nil)
	require.NoError(t, ev.Add(10 * time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- r.Dispatch(0) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return")
	}
	require.True(t, fired.Load())
}

func TestReactor_PersistentTimerReArms(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	var count atomic.Int32
	ev := r.NewEvent(-1, EvTimeout|EvPersist, func(fd int, res EventMask, arg any) {
		if count.Add(1) >= 3 {
			r.LoopBreak()
		}
	}, nil)
	require.NoError(t, ev.Add(5 * time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- r.Dispatch(0) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return")
	}
	require.GreaterOrEqual(t, count.Load(), int32(3))
}

func TestReactor_TimerHeapOrdersByDeadline(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	var order []int
	record := func(n int) Callback {
		return func(fd int, res EventMask, arg any) {
			order = append(order, n)
			if len(order) == 3 {
				r.LoopBreak()
			}
		}
	}
	ev1 := r.NewEvent(-1, EvTimeout, record(1), nil)
	ev2 := r.NewEvent(-1, EvTimeout, record(2), nil)
	ev3 := r.NewEvent(-1, EvTimeout, record(3), nil)
	require.NoError(t, ev3.Add(30*time.Millisecond))
	require.NoError(t, ev1.Add(10*time.Millisecond))
	require.NoError(t, ev2.Add(20*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- r.Dispatch(0) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return")
	}
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestReactor_DelCancelsPendingTimeout(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	fired := false
	ev := r.NewEvent(-1, EvTimeout, func(fd int, res EventMask, arg any) {
		fired = true
	}, nil)
	require.NoError(t, ev.Add(50*time.Millisecond))
	require.NoError(t, ev.Del())

	guard := r.NewEvent(-1, EvTimeout, func(fd int, res EventMask, arg any) {
		r.LoopBreak()
	}, nil)
	require.NoError(t, guard.Add(80*time.Millisecond))

	require.NoError(t, r.Dispatch(0))
	require.False(t, fired)
}
