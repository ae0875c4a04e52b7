package equipment

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vulturelab/visavulture/logger"
)

// ChangeHandler is invoked when the equipment state changes.
//
// It receives the previous state, the new state, and an optional error detail (set for
// connect failures and faults, nil otherwise).
//
// The handler is invoked synchronously on whatever goroutine triggered the transition;
// handlers that need affinity with a particular thread must re-marshal themselves.
// A handler must not mutate the state machine from within its callback; a transition
// attempted there fails with ErrReentrantTransition.
type ChangeHandler func(prev State, next State, detail error)

// transitionKey pairs a source state with an event for table lookup.
type transitionKey struct {
	from  State
	event Event
}

// transitionTable holds every legal (state, event) pair except FaultEvent, which is
// legal from every state and handled separately.
var transitionTable = map[transitionKey]State{
	{UnknownState, ConnectOKEvent}:      IdleState,
	{UnknownState, ConnectFailEvent}:    ErrorState,
	{IdleState, RunRequestedEvent}:      RunningState,
	{IdleState, DisconnectedEvent}:      UnknownState,
	{RunningState, CompleteEvent}:       IdleState,
	{RunningState, PauseRequestedEvent}: PausedState,
	{RunningState, StopRequestedEvent}:  IdleState,
	{PausedState, ResumeRequestedEvent}: RunningState,
	{PausedState, StopRequestedEvent}:   IdleState,
	{ErrorState, DisconnectedEvent}:     UnknownState,
	{ErrorState, ResetAckEvent}:         UnknownState,
}

// lookupTransition returns the target state for (from, event) and whether the
// transition is legal.
func lookupTransition(from State, event Event) (State, bool) {
	if event == FaultEvent {
		return ErrorState, true
	}
	next, ok := transitionTable[transitionKey{from, event}]
	return next, ok
}

// StateMachine holds the current equipment lifecycle state, validates transitions
// against the transition table, and notifies registered observers synchronously on
// whichever goroutine triggers the change.
//
// The current state is stored atomically so the consumer thread can snapshot it
// without taking the transition lock.
type StateMachine struct {
	mu       sync.Mutex
	state    atomic.Uint32
	logger   logger.Logger
	handlers []ChangeHandler

	// notifier holds the goroutine ID currently dispatching observer callbacks, or 0.
	notifier atomic.Uint64
}

// NewStateMachine creates a StateMachine in UnknownState.
func NewStateMachine(l logger.Logger, handlers ...ChangeHandler) *StateMachine {
	if l == nil {
		l = logger.GetLogger()
	}
	sm := &StateMachine{
		logger:   l,
		handlers: make([]ChangeHandler, 0, len(handlers)),
	}
	sm.handlers = append(sm.handlers, handlers...)
	sm.state.Store(uint32(UnknownState))

	return sm
}

// State returns an atomic snapshot of the current state.
func (sm *StateMachine) State() State {
	return State(sm.state.Load())
}

// OnChange registers one or more ChangeHandler functions to be invoked on state
// changes. Registration is append-only for the lifetime of the machine.
func (sm *StateMachine) OnChange(handlers ...ChangeHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.handlers = append(sm.handlers, handlers...)
}

// CanTransition reports whether event is legal in the current state.
func (sm *StateMachine) CanTransition(event Event) bool {
	_, ok := lookupTransition(sm.State(), event)
	return ok
}

// Transition applies event to the current state.
//
// On success it returns the new state after notifying every registered observer with
// (previous, next, detail). An event not legal in the current state fails with
// ErrIllegalTransition and leaves the state unchanged. A call made from within an
// observer callback fails with ErrReentrantTransition.
func (sm *StateMachine) Transition(event Event, detail error) (State, error) {
	if sm.notifier.Load() == curGoroutineID() {
		return sm.State(), ErrReentrantTransition
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	cur := sm.State()
	next, ok := lookupTransition(cur, event)
	if !ok {
		sm.logger.Debug("illegal transition rejected", "state", cur, "event", event)
		return cur, fmt.Errorf("%w: event %s in state %s", ErrIllegalTransition, event, cur)
	}

	sm.logger.Info("state transition", "prev", cur, "next", next, "event", event, "detail", detail)
	sm.state.Store(uint32(next))

	sm.notifier.Store(curGoroutineID())
	defer sm.notifier.Store(0)
	for _, handler := range sm.handlers {
		if handler != nil {
			handler(cur, next, detail)
		}
	}

	return next, nil
}
