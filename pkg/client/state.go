package client

// State is the lifecycle state of a Session.
//
//	Idle → Connecting → AwaitingHandshakeAck → Ready → Closing → Closed
//
// An unsolicited close returns the session to Idle, from where the reconnect
// policy may start Connecting again.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingHandshakeAck
	StateReady
	StateClosing
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateAwaitingHandshakeAck:
		return "AwaitingHandshakeAck"
	case StateReady:
		return "Ready"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// acceptsFrames reports whether inbound frames are dispatched in this state.
func (s State) acceptsFrames() bool {
	return s == StateAwaitingHandshakeAck || s == StateReady
}
