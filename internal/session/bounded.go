package session

import "strings"

// Field bounds. The host bound is wide enough for any DNS name; the topic and
// payload bounds keep presence data small enough to live inline.
const (
	MaxHostLen            = 253
	MaxTopicLen           = 63
	MaxPresencePayloadLen = 19

	// MaxPublishPayload caps application payloads (1MB).
	MaxPublishPayload = 1 << 20
)

// boundedCap is the inline capacity shared by every bounded field.
const boundedCap = 256

// bounded is a fixed-capacity string stored inline in its owner, so
// configuration never touches the heap after construction.
type bounded struct {
	buf [boundedCap]byte
	n   uint16
}

// set stores s if it fits within limit bytes and reports whether it did.
func (b *bounded) set(s string, limit int) bool {
	if len(s) > limit || len(s) > boundedCap {
		return false
	}
	b.n = uint16(copy(b.buf[:], s)) //nolint:gosec // bounded by boundedCap
	return true
}

func (b *bounded) String() string {
	return string(b.buf[:b.n])
}

func (b *bounded) empty() bool {
	return b.n == 0
}

// ValidateTopic checks that topic is usable for PUBLISH: non-empty and free of
// the + and # wildcards.
func ValidateTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	return nil
}
