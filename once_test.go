package evcore

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReactor_OnceFires(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	var fired atomic.Bool
	_, err = r.Once(-1, EvTimeout, 5*time.Millisecond, func(int, EventMask, any) {
		fired.Store(true)
		r.LoopBreak()
	}, nil)
	require.NoError(t, err)

	require.NoError(t, r.Dispatch(0))
	require.True(t, fired.Load())
}

func TestReactor_OnceRejectsPersistentAndSignal(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	_, err = r.Once(-1, EvTimeout|EvPersist, time.Millisecond, func(int, EventMask, any) {}, nil)
	require.ErrorIs(t, err, ErrPersistentOnce)

	_, err = r.Once(1, EvSignal, -1, func(int, EventMask, any) {}, nil)
	require.ErrorIs(t, err, ErrPersistentOnce)
}
