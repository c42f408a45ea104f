package session

import "errors"

// Configuration errors are returned synchronously by the Configure* calls.
// Transport errors are never returned; they only drive backoff.
var (
	// ErrHostEmpty is returned when the broker host is empty.
	ErrHostEmpty = errors.New("session: broker host cannot be empty")

	// ErrHostTooLong is returned when the broker host exceeds MaxHostLen.
	ErrHostTooLong = errors.New("session: broker host too long")

	// ErrInvalidPort is returned for port 0.
	ErrInvalidPort = errors.New("session: broker port must be greater than zero")

	// ErrInvalidTopic is returned for an empty topic or one containing wildcards.
	ErrInvalidTopic = errors.New("session: topic must be non-empty and contain no wildcards")

	// ErrTopicTooLong is returned when the presence topic exceeds MaxTopicLen.
	ErrTopicTooLong = errors.New("session: presence topic too long")

	// ErrPayloadTooLong is returned when a presence payload exceeds MaxPresencePayloadLen.
	ErrPayloadTooLong = errors.New("session: presence payload too long")

	// ErrPayloadTooLarge is returned when a published payload exceeds MaxPublishPayload.
	ErrPayloadTooLarge = errors.New("session: payload too large")

	// ErrInvalidBackoff is returned when the backoff bounds are inconsistent.
	ErrInvalidBackoff = errors.New("session: backoff delays must satisfy 0 < initial <= max")

	// ErrBackoffTooLong is returned when a delay does not fit the millisecond clock.
	ErrBackoffTooLong = errors.New("session: backoff delay exceeds clock range")

	// ErrNotConfigured is returned by Start when no endpoint has been configured.
	ErrNotConfigured = errors.New("session: endpoint not configured")

	// ErrAlreadyStarted is returned by configuration calls made after Start.
	ErrAlreadyStarted = errors.New("session: supervisor already started")

	// ErrNotDelivered is returned by Publisher when the link is down.
	// The message is dropped; callers may retry once IsConnected reports true.
	ErrNotDelivered = errors.New("session: not delivered, link is down")

	// ErrPublishFailed is returned when the transport refuses a frame.
	ErrPublishFailed = errors.New("session: publish failed")

	// ErrNotConnected is returned by HealthCheck while the link is down.
	ErrNotConnected = errors.New("session: not connected")
)
