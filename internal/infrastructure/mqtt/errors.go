package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when publishing without an open session.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrNoEndpoint is returned by Connect before SetEndpoint was called.
	ErrNoEndpoint = errors.New("mqtt: broker endpoint not set")

	// ErrPublishFailed is returned when paho rejects or times out a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")
)
