package session

import "time"

// EventKind classifies lifecycle events.
type EventKind string

// Lifecycle event kinds.
const (
	EventAttempt         EventKind = "attempt"
	EventConnected       EventKind = "connected"
	EventDisconnected    EventKind = "disconnected"
	EventPublishRejected EventKind = "publish_rejected"
	EventShutdown        EventKind = "shutdown"
)

// Event describes one lifecycle step of the Supervisor.
type Event struct {
	Kind EventKind
	From State
	To   State

	// AtMillis is the Clock reading when the event happened.
	AtMillis uint32
	Time     time.Time

	// DelayMillis is the backoff delay in force after the event.
	DelayMillis uint32

	Reason         DisconnectReason
	SessionPresent bool

	// Topic is set for EventPublishRejected.
	Topic string
}

// Observer receives lifecycle events.
//
// Observe is called from the goroutine that drives the Supervisor, outside any
// Supervisor lock. Implementations must not block.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}

// Stats is a snapshot of Supervisor counters.
type Stats struct {
	State             State            `json:"state"`
	DelayMillis       uint32           `json:"delay_ms"`
	InitialMillis     uint32           `json:"initial_delay_ms"`
	MaxMillis         uint32           `json:"max_delay_ms"`
	LastAttemptMillis uint32           `json:"last_attempt_ms"`
	Attempts          uint64           `json:"attempts"`
	Connects          uint64           `json:"connects"`
	Disconnects       uint64           `json:"disconnects"`
	RejectedPublishes uint64           `json:"rejected_publishes"`
	LastReason        DisconnectReason `json:"-"`
	LastReasonName    string           `json:"last_reason"`
}
