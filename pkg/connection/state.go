package connection

// State represents the connection state.
type State uint8

const (
	// StateNone is the initial state before Connect.
	StateNone State = iota

	// StateConnecting indicates a dial is in progress.
	StateConnecting

	// StateConnected indicates an open transport.
	StateConnected

	// StateDisconnected indicates the transport closed and the close code is
	// being evaluated. It is transient.
	StateDisconnected

	// StateClosed indicates the owner closed the connection. Terminal.
	StateClosed

	// StateTerminated indicates the connection gave up. Terminal.
	StateTerminated

	// StateReconnecting indicates a retry is scheduled.
	StateReconnecting

	// StateError indicates an unrecoverable internal fault. It is followed
	// by StateTerminated.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateClosed:
		return "CLOSED"
	case StateTerminated:
		return "TERMINATED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transitions are permitted.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateTerminated
}

// StateEvent represents a state change.
type StateEvent struct {
	OldState State
	NewState State
	Reason   string
}

// transitions lists the permitted state changes.
var transitions = map[State][]State{
	StateNone:         {StateConnecting, StateClosed},
	StateConnecting:   {StateConnected, StateReconnecting, StateTerminated, StateClosed, StateError},
	StateConnected:    {StateDisconnected, StateClosed, StateError},
	StateDisconnected: {StateReconnecting, StateTerminated, StateClosed, StateError},
	StateReconnecting: {StateConnecting, StateClosed, StateError},
	StateError:        {StateTerminated},
}

// canTransition reports whether from -> to is a permitted change.
func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
