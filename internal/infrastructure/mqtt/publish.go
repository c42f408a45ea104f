package mqtt

import "fmt"

// Publish hands one PUBLISH frame to paho and waits until paho has accepted
// it, at most publishTimeout (250ms by default). For QoS 0 that is when the
// frame has been queued for the socket; no broker acknowledgement exists.
// Publish runs on the host loop, including from inside Dispatch for the
// online presence, so the wait must stay short.
//
// Returns:
//   - ErrNotConnected when no dispatched session is open
//   - ErrPublishFailed (wrapped) on paho error or timeout
func (t *Transport) Publish(topic string, qos byte, retain bool, payload []byte) error {
	t.mu.Lock()
	client := t.client
	up := t.up
	timeout := t.publishTimeout
	t.mu.Unlock()

	if client == nil || !up {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
