package evcore

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommonTimeout_DedupesByDuration(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	id1, err := r.InitCommonTimeout(100 * time.Millisecond)
	require.NoError(t, err)
	id2, err := r.InitCommonTimeout(100 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, err := r.InitCommonTimeout(200 * time.Millisecond)
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestCommonTimeout_FiresManyEventsOffOneSentinel(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	id, err := r.InitCommonTimeout(10 * time.Millisecond)
	require.NoError(t, err)

	const n = 50
	var fired atomic.Int32
	for i := 0; i < n; i++ {
		ev := r.NewEvent(-1, EvTimeout, func(fd int, res EventMask, arg any) {
			if fired.Add(1) == n {
				r.LoopBreak()
			}
		}, nil)
		require.NoError(t, ev.AddCommonTimeout(id))
	}

	queue := r.commonTimeouts[id]
	require.NotNil(t, queue.sentinel, "a single sentinel should represent the whole queue")
	require.Equal(t, n, queue.queue.Len())

	done := make(chan error, 1)
	go func() { done <- r.Dispatch(0) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return")
	}
	require.EqualValues(t, n, fired.Load())
}

func TestCommonTimeout_TooManyDurationsRejected(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	for i := 0; i < maxCommonTimeouts; i++ {
		_, err := r.InitCommonTimeout(time.Duration(i+1) * time.Millisecond)
		require.NoError(t, err)
	}
	_, err = r.InitCommonTimeout(time.Duration(maxCommonTimeouts+1) * time.Millisecond)
	require.ErrorIs(t, err, ErrTooManyCommonTimeouts)
}
