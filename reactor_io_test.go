package evcore

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReactor_IOReadinessFires(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	gotRead := make(chan EventMask, 1)
	ev := r.NewEvent(int(pr.Fd()), EvRead, func(fd int, res EventMask, arg any) {
		gotRead <- res
		r.LoopBreak()
	}, nil)
	require.NoError(t, ev.Add(-1))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = pw.Write([]byte("x"))
	}()

	done := make(chan error, 1)
	go func() { done <- r.Dispatch(0) }()

	select {
	case res := <-gotRead:
		require.NotZero(t, res&EvRead)
	case <-time.After(2 * time.Second):
		t.Fatal("read readiness never fired")
	}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return")
	}
}

func TestReactor_PersistentIOStaysRegisteredAcrossFires(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	var buf [1]byte
	n := 0
	ev := r.NewEvent(int(pr.Fd()), EvRead|EvPersist, func(fd int, res EventMask, arg any) {
		_, _ = pr.Read(buf[:])
		n++
		if n == 3 {
			r.LoopBreak()
		}
	}, nil)
	require.NoError(t, ev.Add(-1))

	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(10 * time.Millisecond)
			_, _ = pw.Write([]byte{'x'})
		}
	}()

	require.NoError(t, r.Dispatch(0))
	require.Equal(t, 3, n)
}
