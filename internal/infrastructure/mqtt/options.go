package mqtt

import (
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single CONNECT/CONNACK exchange.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds how long Publish, and so the host loop,
	// waits for paho to take a QoS 0 frame.
	defaultPublishTimeout = 250 * time.Millisecond

	// defaultDisconnectQuiesce is the time paho may spend flushing on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// clientIDPrefix is used when no client ID is configured.
	clientIDPrefix = "mqttlink-"
)

// will is the Last Will installed on the next CONNECT.
type will struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

// brokerURL builds the paho server URL. Plain TCP only.
func brokerURL(host string, port uint16) string {
	return "tcp://" + net.JoinHostPort(host, strconv.Itoa(int(port)))
}

// buildClientOptions creates paho options for one connection attempt.
//
// Caller must hold t.mu. The connection-lost handler is bound to gen so a
// late notification from a replaced client is dropped by Dispatch.
func (t *Transport) buildClientOptions(gen uint64) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(t.host, t.port))
	opts.SetClientID(t.clientID)

	if t.username != "" {
		opts.SetUsername(t.username)
		opts.SetPassword(t.password)
	}

	// No persistent session on the broker.
	opts.SetCleanSession(true)

	// The Supervisor drives every reconnect.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(t.connectTimeout)
	opts.SetKeepAlive(time.Duration(t.keepAlive) * time.Second)

	if w := t.will; w != nil {
		opts.SetBinaryWill(w.topic, w.payload, w.qos, w.retain)
	}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.connectionLost(gen, err)
	})

	return opts
}
