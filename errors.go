package evcore

import (
	"errors"
	"fmt"
)

// Sentinel errors for the invalid-argument and resource-exhausted error
// classes. Each is returned synchronously; none of these are ever
// deferred into a callback.
var (
	// ErrNoReactor is returned when an event operation is attempted on an
	// Event that was never assigned to a Reactor.
	ErrNoReactor = errors.New("evcore: event has no reactor")

	// ErrInvalidMask is returned for mask combinations the model forbids,
	// e.g. EvSignal combined with EvRead/EvWrite.
	ErrInvalidMask = errors.New("evcore: invalid event mask combination")

	// ErrAlreadyAdded is returned by Assign when the event is still
	// inserted, active or has a timeout armed, and by PrioritySet when the
	// event is active. Add never returns it: adding an already-added event
	// is idempotent for its registration.
	ErrAlreadyAdded = errors.New("evcore: event already added")

	// ErrFinalizing is returned by Add and Finalize when the event has
	// already been handed to Finalize.
	ErrFinalizing = errors.New("evcore: event is finalizing")

	// ErrTooManyCommonTimeouts is returned by InitCommonTimeout once 256
	// distinct durations are already registered.
	ErrTooManyCommonTimeouts = errors.New("evcore: too many common-timeout queues (max 256)")

	// ErrTooManyPriorities is returned by PriorityInit for n <= 0 or
	// n >= 256.
	ErrTooManyPriorities = errors.New("evcore: invalid priority count")

	// ErrPriorityAfterActivate is returned when PriorityInit is called
	// after any event has been activated on the reactor.
	ErrPriorityAfterActivate = errors.New("evcore: priority_init called after activation")

	// ErrPriorityOutOfRange is returned by PrioritySet for a priority
	// outside [0, nPriorities).
	ErrPriorityOutOfRange = errors.New("evcore: priority out of range")

	// ErrReentrantDispatch is returned when Dispatch is called while the
	// same Reactor is already dispatching, on this or any other goroutine.
	ErrReentrantDispatch = errors.New("evcore: reactor is already dispatching")

	// ErrReactorFreed is returned by any operation on a Reactor after Free.
	ErrReactorFreed = errors.New("evcore: reactor has been freed")

	// ErrReactorBroken is returned by Dispatch when a prior call already
	// observed a fatal backend error: the backend is presumed to be in an
	// unusable state (e.g. EBADF after its underlying fd was closed out
	// from under it), so the reactor refuses to spin on it again. The
	// caller must Free the reactor.
	ErrReactorBroken = errors.New("evcore: reactor backend is broken, call Free")

	// ErrPersistentOnce is returned by Once when the caller requests
	// persistent or signal semantics, both disallowed.
	ErrPersistentOnce = errors.New("evcore: once does not support persistent or signal events")
)

// BackendError wraps an unexpected error returned by a kernel readiness
// primitive. The underlying syscall error
// is reachable via errors.Unwrap/errors.Is/errors.As.
type BackendError struct {
	Backend string
	Op      string
	Cause   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("evcore: backend %q: %s: %v", e.Backend, e.Op, e.Cause)
}

func (e *BackendError) Unwrap() error { return e.Cause }

// WrapBackendError is a convenience constructor mirroring eventloop's own
// WrapError helper, used whenever a backend method surfaces a raw
// syscall error.
func WrapBackendError(backend, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &BackendError{Backend: backend, Op: op, Cause: cause}
}
