package equipment

import "errors"

var (
	// ErrIllegalTransition is returned when an event is not legal in the current
	// equipment state. The state is left unchanged; this is a local validation error
	// and never escalates to the error state.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrReentrantTransition is returned when a state observer attempts to mutate the
	// state machine from within its own callback.
	ErrReentrantTransition = errors.New("reentrant state transition from observer callback")

	// ErrInvalidState indicates a coordinator operation invoked in a state where it is
	// not legal. The state is left unchanged.
	ErrInvalidState = errors.New("operation not legal in current state")

	// ErrNoPlanLoaded indicates a run request with no test plan loaded.
	ErrNoPlanLoaded = errors.New("no test plan loaded")

	// ErrOperationInProgress indicates that another operation already holds the
	// instrument; concurrent operations are refused, never queued.
	ErrOperationInProgress = errors.New("operation already in progress")
)
