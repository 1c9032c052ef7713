package evcore

import (
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReactor_SignalDelivery(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	var ncalls int32
	ev := r.NewEvent(int(syscall.SIGUSR1), EvSignal, func(fd int, res EventMask, arg any) {
		require.Equal(t, EvSignal, res)
		atomic.AddInt32(&ncalls, 1)
		r.LoopBreak()
	}, nil)
	require.NoError(t, ev.Add(-1))

	done := make(chan error, 1)
	go func() { done <- r.Dispatch(0) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return after signal")
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&ncalls))
}

func TestReactor_SignalOwnershipTransfersToSecondReactor(t *testing.T) {
	r1, err := New()
	require.NoError(t, err)
	defer r1.Free()
	r2, err := New()
	require.NoError(t, err)
	defer r2.Free()

	var r1Fired, r2Fired atomic.Bool
	ev1 := r1.NewEvent(int(syscall.SIGUSR2), EvSignal, func(int, EventMask, any) {
		r1Fired.Store(true)
	}, nil)
	require.NoError(t, ev1.Add(-1))

	ev2 := r2.NewEvent(int(syscall.SIGUSR2), EvSignal, func(int, EventMask, any) {
		r2Fired.Store(true)
		r2.LoopBreak()
	}, nil)
	require.NoError(t, ev2.Add(-1))

	done := make(chan error, 1)
	go func() { done <- r2.Dispatch(0) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return after signal")
	}
	require.True(t, r2Fired.Load(), "the last reactor to register should own delivery")
	require.False(t, r1Fired.Load(), "the displaced reactor should not also receive it")
}
