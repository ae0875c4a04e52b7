package equipment

// State represents the equipment lifecycle state.
type State uint32

// Equipment lifecycle states.
const (
	// UnknownState indicates that the instrument identity and state are not yet
	// established. This is the initial state.
	UnknownState State = iota
	// IdleState indicates that the instrument is connected and ready, with no plan
	// executing.
	IdleState
	// RunningState indicates that a test plan is actively executing.
	RunningState
	// PausedState indicates that plan execution is suspended mid-run and resumable.
	PausedState
	// ErrorState is terminal until an explicit reset acknowledgement.
	ErrorState
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case UnknownState:
		return "unknown"
	case IdleState:
		return "idle"
	case RunningState:
		return "running"
	case PausedState:
		return "paused"
	case ErrorState:
		return "error"
	default:
		return "invalid"
	}
}

// IsIdle returns if the state is IdleState.
func (s State) IsIdle() bool { return s == IdleState }

// IsRunning returns if the state is RunningState.
func (s State) IsRunning() bool { return s == RunningState }

// IsPaused returns if the state is PausedState.
func (s State) IsPaused() bool { return s == PausedState }

// IsError returns if the state is ErrorState.
func (s State) IsError() bool { return s == ErrorState }

// Event triggers an equipment state transition.
type Event uint8

// Equipment state machine events.
const (
	// ConnectOKEvent fires when a connect task opens the instrument and establishes
	// its identity.
	ConnectOKEvent Event = iota + 1
	// ConnectFailEvent fires when a connect task fails to reach the instrument.
	ConnectFailEvent
	// RunRequestedEvent fires when plan execution is requested.
	RunRequestedEvent
	// CompleteEvent fires when the executor finishes the final step of a plan.
	CompleteEvent
	// PauseRequestedEvent fires when a pause is requested during a run.
	PauseRequestedEvent
	// ResumeRequestedEvent fires when a paused run is resumed.
	ResumeRequestedEvent
	// StopRequestedEvent fires when the executor acknowledges a stop request.
	StopRequestedEvent
	// DisconnectedEvent fires when the instrument handle has been torn down.
	DisconnectedEvent
	// FaultEvent fires on any fault: connection loss, command failure, unexpected
	// disconnect. Legal from every state.
	FaultEvent
	// ResetAckEvent fires when the caller acknowledges an error, returning the
	// equipment to UnknownState for a fresh connect.
	ResetAckEvent
)

// String returns the string representation of the event.
func (e Event) String() string {
	switch e {
	case ConnectOKEvent:
		return "connect_ok"
	case ConnectFailEvent:
		return "connect_fail"
	case RunRequestedEvent:
		return "run_requested"
	case CompleteEvent:
		return "complete"
	case PauseRequestedEvent:
		return "pause_requested"
	case ResumeRequestedEvent:
		return "resume_requested"
	case StopRequestedEvent:
		return "stop_requested"
	case DisconnectedEvent:
		return "disconnected"
	case FaultEvent:
		return "fault"
	case ResetAckEvent:
		return "reset_ack"
	default:
		return "invalid"
	}
}
