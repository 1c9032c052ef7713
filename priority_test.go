package evcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Priority 0 callbacks must fully drain before priority 1 ones run, and a
// priority-0 activation raised from inside a lower-priority callback must
// restart the scan at the top rather than letting the lower-priority batch
// keep running.
func TestReactor_PriorityOrderingDrainsHighestFirst(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Free()
	require.NoError(t, r.PriorityInit(3))

	var order []string
	lowDone := 0
	low := r.NewEvent(-1, EvTimeout, nil, nil)
	low.cb = func(int, EventMask, any) {
		order = append(order, "low")
		lowDone++
		if lowDone == 1 {
			// Raised from within a priority-2 callback: must preempt the
			// rest of this priority-2 batch and run before "low2".
			hi := r.NewEvent(-1, EvTimeout, func(int, EventMask, any) {
				order = append(order, "hi")
			}, nil)
			require.NoError(t, hi.PrioritySet(0))
			hi.Active(EvTimeout, 1)
		}
	}
	require.NoError(t, low.PrioritySet(2))
	low.Active(EvTimeout, 1)

	low2 := r.NewEvent(-1, EvTimeout, func(int, EventMask, any) {
		order = append(order, "low2")
	}, nil)
	require.NoError(t, low2.PrioritySet(2))
	low2.Active(EvTimeout, 1)

	require.NoError(t, r.Dispatch(DispatchNonBlocking))

	require.Contains(t, order, "hi")
	require.Contains(t, order, "low")
	hiIdx, lowIdx := -1, -1
	for i, name := range order {
		if name == "hi" && hiIdx == -1 {
			hiIdx = i
		}
		if name == "low2" && lowIdx == -1 {
			lowIdx = i
		}
	}
	if lowIdx != -1 {
		require.Less(t, hiIdx, lowIdx, "priority 0 activation must preempt the remaining priority 2 batch")
	}
}

func TestReactor_PacingLimitsStopsBatchEarly(t *testing.T) {
	r, err := New(WithMaxDispatchInterval(time.Hour, 2, 0))
	require.NoError(t, err)
	defer r.Free()

	fired := 0
	for i := 0; i < 5; i++ {
		ev := r.NewEvent(-1, EvTimeout, func(int, EventMask, any) {
			fired++
		}, nil)
		ev.Active(EvTimeout, 1)
	}

	require.NoError(t, r.Dispatch(DispatchNonBlocking))
	require.Equal(t, 2, fired, "pacing should cap callbacks per tick once the threshold priority is reached")
}
