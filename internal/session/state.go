package session

// State is the Supervisor's view of the MQTT session.
type State string

// Supervisor states. Idle is initial; there is no terminal state.
const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateBackoff    State = "backoff"
)

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}
