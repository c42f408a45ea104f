package session

// Wire constants used for every frame this package emits.
const (
	// KeepAliveSeconds bounds detection of silent link failures.
	KeepAliveSeconds uint16 = 60

	// QoS0 is the only QoS level the session publishes with.
	QoS0 byte = 0
)

// Transport is the asynchronous MQTT client the Supervisor drives.
//
// Connect and Publish must not block on the network. Connect resolves later
// through the handlers registered with OnConnect and OnDisconnect, and every
// initiated attempt must resolve exactly once, if need be by reporting a
// timeout as a disconnect. Handlers may be invoked synchronously from inside
// Connect.
//
// The Supervisor owns its Transport exclusively; only the Supervisor and the
// Publisher built on it may call these methods.
type Transport interface {
	SetEndpoint(host string, port uint16)
	SetKeepAlive(seconds uint16)
	SetWill(topic string, qos byte, retain bool, payload []byte)

	// Connect starts a connection attempt. A non-nil error means the attempt
	// could not be initiated at all.
	Connect() error

	// Publish hands one frame to the transport.
	Publish(topic string, qos byte, retain bool, payload []byte) error

	// Connected reports whether a session is currently established.
	Connected() bool

	OnConnect(handler func(sessionPresent bool))
	OnDisconnect(handler func(reason DisconnectReason))
}

// Disconnector is implemented by transports that support a graceful close.
type Disconnector interface {
	Disconnect()
}

// DisconnectReason says why a session ended or an attempt failed.
type DisconnectReason int

// Disconnect reasons. The CONNACK refusals map one-to-one onto MQTT 3.1.1
// return codes 1 through 5.
const (
	ReasonNone DisconnectReason = iota
	ReasonTCPDisconnected
	ReasonUnacceptableProtocolVersion
	ReasonIdentifierRejected
	ReasonServerUnavailable
	ReasonMalformedCredentials
	ReasonNotAuthorized
	ReasonConnectFailed
	ReasonUnknown
)

var reasonNames = map[DisconnectReason]string{
	ReasonNone:                        "none",
	ReasonTCPDisconnected:             "tcp_disconnected",
	ReasonUnacceptableProtocolVersion: "unacceptable_protocol_version",
	ReasonIdentifierRejected:          "identifier_rejected",
	ReasonServerUnavailable:           "server_unavailable",
	ReasonMalformedCredentials:        "malformed_credentials",
	ReasonNotAuthorized:               "not_authorized",
	ReasonConnectFailed:               "connect_failed",
	ReasonUnknown:                     "unknown",
}

// String implements fmt.Stringer.
func (r DisconnectReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return reasonNames[ReasonUnknown]
}
