package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/config"
	"github.com/nerrad567/graylogic-mqttlink/internal/session"
)

// pahoClient is the subset of pahomqtt.Client the transport drives.
type pahoClient interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	IsConnectionOpen() bool
}

// sessionPresenter is implemented by *pahomqtt.ConnectToken.
type sessionPresenter interface {
	SessionPresent() bool
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// event is a connect result or connection loss waiting for Dispatch.
type event struct {
	gen            uint64
	connected      bool
	sessionPresent bool
	reason         session.DisconnectReason
}

// Transport implements session.Transport on top of paho.mqtt.golang.
//
// Every Connect builds a fresh paho client. Results arrive asynchronously
// and are handed to the registered handlers by Dispatch, on the caller's
// goroutine.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Handlers run only inside Dispatch, never on paho goroutines.
type Transport struct {
	mu sync.Mutex

	clientID       string
	username       string
	password       string
	connectTimeout time.Duration
	publishTimeout time.Duration

	host      string
	port      uint16
	keepAlive uint16
	will      *will

	newClient func(*pahomqtt.ClientOptions) pahoClient

	client  pahoClient
	gen     uint64
	up      bool
	pending []event

	onConnect    func(bool)
	onDisconnect func(session.DisconnectReason)

	logger Logger
}

// New creates an unconnected Transport from the broker settings in cfg.
// The endpoint itself is installed later through SetEndpoint.
func New(cfg config.MQTTConfig) *Transport {
	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = clientIDPrefix + uuid.NewString()[:8]
	}
	return &Transport{
		clientID:       clientID,
		username:       cfg.Auth.Username,
		password:       cfg.Auth.Password,
		connectTimeout: defaultConnectTimeout,
		publishTimeout: defaultPublishTimeout,
		newClient: func(opts *pahomqtt.ClientOptions) pahoClient {
			return pahomqtt.NewClient(opts)
		},
		logger: noopLogger{},
	}
}

// ClientID returns the MQTT client identifier sent in CONNECT.
func (t *Transport) ClientID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clientID
}

// SetLogger sets a logger for connection diagnostics.
func (t *Transport) SetLogger(logger Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	t.logger = logger
}

// SetEndpoint sets the broker used by the next Connect.
func (t *Transport) SetEndpoint(host string, port uint16) {
	t.mu.Lock()
	t.host, t.port = host, port
	t.mu.Unlock()
}

// SetKeepAlive sets the keep-alive interval used by the next Connect.
func (t *Transport) SetKeepAlive(seconds uint16) {
	t.mu.Lock()
	t.keepAlive = seconds
	t.mu.Unlock()
}

// SetWill sets the Last Will used by the next Connect.
func (t *Transport) SetWill(topic string, qos byte, retain bool, payload []byte) {
	t.mu.Lock()
	t.will = &will{
		topic:   topic,
		qos:     qos,
		retain:  retain,
		payload: append([]byte(nil), payload...),
	}
	t.mu.Unlock()
}

// OnConnect registers the handler for accepted CONNACKs.
func (t *Transport) OnConnect(handler func(sessionPresent bool)) {
	t.mu.Lock()
	t.onConnect = handler
	t.mu.Unlock()
}

// OnDisconnect registers the handler for lost sessions and failed attempts.
func (t *Transport) OnDisconnect(handler func(session.DisconnectReason)) {
	t.mu.Lock()
	t.onDisconnect = handler
	t.mu.Unlock()
}

// Connect starts a new connection attempt and returns without waiting for
// the CONNACK. Any previous client is closed and its pending events dropped.
func (t *Transport) Connect() error {
	t.mu.Lock()
	if t.host == "" {
		t.mu.Unlock()
		return ErrNoEndpoint
	}

	old := t.client
	t.gen++
	gen := t.gen
	t.up = false
	client := t.newClient(t.buildClientOptions(gen))
	t.client = client
	wait := t.connectTimeout * 2
	logger := t.logger
	t.mu.Unlock()

	if old != nil {
		old.Disconnect(0)
	}

	logger.Debug("MQTT connect issued", "generation", gen)
	token := client.Connect()
	go t.awaitConnect(gen, token, wait)
	return nil
}

// awaitConnect turns the connect token's outcome into a queued event.
func (t *Transport) awaitConnect(gen uint64, token pahomqtt.Token, wait time.Duration) {
	if !token.WaitTimeout(wait) {
		t.enqueue(event{gen: gen, reason: session.ReasonConnectFailed})
		return
	}
	if err := token.Error(); err != nil {
		t.enqueue(event{gen: gen, reason: reasonFromError(err)})
		return
	}

	var sessionPresent bool
	if sp, ok := token.(sessionPresenter); ok {
		sessionPresent = sp.SessionPresent()
	}
	t.enqueue(event{gen: gen, connected: true, sessionPresent: sessionPresent})
}

// connectionLost is paho's connection-lost handler for generation gen.
func (t *Transport) connectionLost(gen uint64, err error) {
	t.mu.Lock()
	logger := t.logger
	t.mu.Unlock()

	logger.Warn("MQTT connection lost", "generation", gen, "error", err)
	t.enqueue(event{gen: gen, reason: reasonFromError(err)})
}

func (t *Transport) enqueue(ev event) {
	t.mu.Lock()
	t.pending = append(t.pending, ev)
	t.mu.Unlock()
}

// Dispatch delivers queued transport events to the registered handlers on
// the calling goroutine and returns how many were delivered. Events from a
// replaced client are discarded.
func (t *Transport) Dispatch() int {
	t.mu.Lock()
	queue := t.pending
	t.pending = nil
	t.mu.Unlock()

	delivered := 0
	for _, ev := range queue {
		t.mu.Lock()
		if ev.gen != t.gen {
			t.mu.Unlock()
			continue
		}
		// A loss can race ahead of the connect result; trust the socket.
		if ev.connected && (t.client == nil || !t.client.IsConnectionOpen()) {
			ev = event{gen: ev.gen, reason: session.ReasonTCPDisconnected}
		}
		t.up = ev.connected
		onConnect, onDisconnect := t.onConnect, t.onDisconnect
		t.mu.Unlock()

		if ev.connected {
			if onConnect != nil {
				onConnect(ev.sessionPresent)
			}
		} else if onDisconnect != nil {
			onDisconnect(ev.reason)
		}
		delivered++
	}
	return delivered
}

// Connected reports whether a dispatched CONNACK is still backed by an open
// socket.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.up && t.client != nil && t.client.IsConnectionOpen()
}

// Disconnect closes the current client and drops pending events. No handler
// is invoked for the closed session.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.gen++
	t.up = false
	t.pending = nil
	t.mu.Unlock()

	if client != nil {
		client.Disconnect(defaultDisconnectQuiesce)
	}
}

// HealthCheck verifies the MQTT connection is alive.
func (t *Transport) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !t.Connected() {
		return ErrNotConnected
	}
	return nil
}

var _ session.Transport = (*Transport)(nil)
var _ session.Disconnector = (*Transport)(nil)
