package session

// State is the lifecycle state of a broker session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}
