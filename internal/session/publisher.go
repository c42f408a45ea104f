package session

import "fmt"

// Publisher is the stateless publish facade over a Supervisor.
//
// Messages go out at QoS 0. They are never queued: while the link is down a
// publish is dropped, the Supervisor is asked to reconnect, and the caller
// gets ErrNotDelivered.
type Publisher struct {
	sup *Supervisor
}

// NewPublisher creates a Publisher that shares sup's transport.
func NewPublisher(sup *Supervisor) *Publisher {
	return &Publisher{sup: sup}
}

// Publish sends payload to topic, retained, at QoS 0.
//
// Returns:
//   - nil once the transport has accepted the frame
//   - ErrNotDelivered (wrapped) when the link is down
//   - ErrInvalidTopic / ErrPayloadTooLarge for bad input
//   - ErrPublishFailed (wrapped) when the transport refuses the frame
func (p *Publisher) Publish(topic string, payload []byte) error {
	return p.publish(topic, payload, true)
}

// PublishString is Publish for string payloads.
func (p *Publisher) PublishString(topic, payload string) error {
	return p.publish(topic, []byte(payload), true)
}

// PublishTransient is Publish without the retain flag, for events that late
// subscribers should not see.
func (p *Publisher) PublishTransient(topic string, payload []byte) error {
	return p.publish(topic, payload, false)
}

func (p *Publisher) publish(topic string, payload []byte, retain bool) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if len(payload) > MaxPublishPayload {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), MaxPublishPayload)
	}

	if !p.sup.IsConnected() {
		p.sup.rejectPublish(topic)
		return fmt.Errorf("%w: %s", ErrNotDelivered, topic)
	}

	if err := p.sup.transport.Publish(topic, QoS0, retain, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	p.sup.log().Debug("MQTT message sent", "topic", topic, "bytes", len(payload))
	return nil
}
