package evcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvent_InvalidMaskRejected(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	ev := r.NewEvent(int(^uint(0)>>1), EvSignal|EvRead, func(int, EventMask, any) {}, nil)
	require.ErrorIs(t, ev.Add(-1), ErrInvalidMask)

	empty := r.NewEvent(-1, 0, func(int, EventMask, any) {}, nil)
	require.ErrorIs(t, empty.Add(-1), ErrInvalidMask)
}

func TestEvent_DoubleAddIsIdempotentForIORegistration(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	pipe, err := newWakeupChannel()
	require.NoError(t, err)
	defer pipe.close()

	ev := r.NewEvent(pipe.fd(), EvRead, func(int, EventMask, any) {}, nil)
	require.NoError(t, ev.Add(-1))
	require.NoError(t, ev.Add(-1))
	pending, _ := ev.Pending(EvRead)
	require.True(t, pending)
}

func TestEvent_DelReturnsToInitState(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	ev := r.NewEvent(-1, EvTimeout, func(int, EventMask, any) {}, nil)
	require.NoError(t, ev.Add(time.Minute))
	pending, _ := ev.Pending(EvTimeout)
	require.True(t, pending)

	require.NoError(t, ev.Del())
	pending, _ = ev.Pending(EvTimeout)
	require.False(t, pending)
	require.Zero(t, ev.flags&(flagInserted|flagTimeout|flagActive|flagActiveLater))
}

func TestEvent_NonPersistentTornDownAfterFiring(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()

	ev := r.NewEvent(-1, EvTimeout, func(int, EventMask, any) {
		r.LoopBreak()
	}, nil)
	require.NoError(t, ev.Add(5 * time.Millisecond))

	require.NoError(t, r.Dispatch(0))
	pending, _ := ev.Pending(EvTimeout | EvRead | EvWrite)
	require.False(t, pending, "a fired non-persistent event must return to the INIT state")
}

func TestEvent_PrioritySetRejectsOutOfRange(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()
	require.NoError(t, r.PriorityInit(3))

	ev := r.NewEvent(-1, EvTimeout, func(int, EventMask, any) {}, nil)
	require.ErrorIs(t, ev.PrioritySet(5), ErrPriorityOutOfRange)
	require.NoError(t, ev.PrioritySet(2))
}
