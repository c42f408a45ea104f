package mqtt

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/config"
	"github.com/nerrad567/graylogic-mqttlink/internal/session"
)

// =============================================================================
// Options
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	tr, f := newTestTransport()
	tr.username = "user"
	tr.password = "secret"
	tr.SetKeepAlive(60)
	tr.SetWill("dev/status", 0, true, []byte("off"))

	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	opts := f.last(t).opts

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.local:1883" {
		t.Errorf("Servers = %v, want [tcp://broker.local:1883]", opts.Servers)
	}
	if opts.ClientID != "mqttlink-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "mqttlink-test")
	}
	if opts.Username != "user" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want user/secret", opts.Username, opts.Password)
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if opts.AutoReconnect || opts.ConnectRetry {
		t.Errorf("AutoReconnect = %v, ConnectRetry = %v, want both false", opts.AutoReconnect, opts.ConnectRetry)
	}
	if opts.KeepAlive != 60 {
		t.Errorf("KeepAlive = %d, want 60", opts.KeepAlive)
	}
	if !opts.WillEnabled || opts.WillTopic != "dev/status" || string(opts.WillPayload) != "off" {
		t.Errorf("will = %v %q %q, want enabled dev/status off", opts.WillEnabled, opts.WillTopic, opts.WillPayload)
	}
	if opts.WillQos != 0 || !opts.WillRetained {
		t.Errorf("will qos/retain = %d/%v, want 0/true", opts.WillQos, opts.WillRetained)
	}
}

func TestBuildClientOptions_NoWillNoAuth(t *testing.T) {
	tr, f := newTestTransport()

	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	opts := f.last(t).opts

	if opts.WillEnabled {
		t.Error("WillEnabled = true, want false without SetWill")
	}
	if opts.Username != "" {
		t.Errorf("Username = %q, want empty", opts.Username)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		host string
		port uint16
		want string
	}{
		{"192.168.1.10", 1883, "tcp://192.168.1.10:1883"},
		{"broker.example.com", 8883, "tcp://broker.example.com:8883"},
		{"::1", 1883, "tcp://[::1]:1883"},
	}

	for _, tt := range tests {
		if got := brokerURL(tt.host, tt.port); got != tt.want {
			t.Errorf("brokerURL(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestNew_GeneratesClientID(t *testing.T) {
	a := New(config.MQTTConfig{})
	b := New(config.MQTTConfig{})

	if len(a.ClientID()) != len(clientIDPrefix)+8 {
		t.Errorf("ClientID() = %q, want prefix plus 8 characters", a.ClientID())
	}
	if a.ClientID() == b.ClientID() {
		t.Errorf("generated client IDs collide: %q", a.ClientID())
	}
}

// =============================================================================
// Connect and Dispatch
// =============================================================================

func TestConnect_NoEndpoint(t *testing.T) {
	tr := New(config.MQTTConfig{})

	if err := tr.Connect(); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("Connect() error = %v, want ErrNoEndpoint", err)
	}
}

func TestConnect_DeliveredOnlyByDispatch(t *testing.T) {
	tr, f := newTestTransport()

	var connects []bool
	tr.OnConnect(func(sp bool) { connects = append(connects, sp) })

	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if tr.Connected() {
		t.Error("Connected() = true before CONNACK")
	}

	f.last(t).succeed(true)
	time.Sleep(20 * time.Millisecond)

	if len(connects) != 0 {
		t.Fatal("connect handler ran outside Dispatch")
	}
	if tr.Connected() {
		t.Error("Connected() = true before Dispatch")
	}

	dispatchUntil(t, tr, 1)

	if len(connects) != 1 || !connects[0] {
		t.Errorf("connect handler calls = %v, want [true]", connects)
	}
	if !tr.Connected() {
		t.Error("Connected() = false after dispatched CONNACK")
	}
}

func TestConnect_Refused(t *testing.T) {
	tr, f := newTestTransport()

	var reasons []session.DisconnectReason
	tr.OnDisconnect(func(r session.DisconnectReason) { reasons = append(reasons, r) })

	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	f.last(t).connectToken.complete(packets.ErrorRefusedNotAuthorised)

	dispatchUntil(t, tr, 1)

	if len(reasons) != 1 || reasons[0] != session.ReasonNotAuthorized {
		t.Errorf("disconnect reasons = %v, want [not_authorized]", reasons)
	}
	if tr.Connected() {
		t.Error("Connected() = true after refusal")
	}
}

func TestConnect_TokenTimeout(t *testing.T) {
	tr, _ := newTestTransport()

	var reasons []session.DisconnectReason
	tr.OnDisconnect(func(r session.DisconnectReason) { reasons = append(reasons, r) })

	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	// The token never completes.
	dispatchUntil(t, tr, 1)

	if len(reasons) != 1 || reasons[0] != session.ReasonConnectFailed {
		t.Errorf("disconnect reasons = %v, want [connect_failed]", reasons)
	}
}

func TestConnect_AcceptedButSocketGone(t *testing.T) {
	tr, f := newTestTransport()

	var reasons []session.DisconnectReason
	connected := false
	tr.OnConnect(func(bool) { connected = true })
	tr.OnDisconnect(func(r session.DisconnectReason) { reasons = append(reasons, r) })

	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	f.last(t).connectToken.complete(nil) // accepted, socket already closed

	dispatchUntil(t, tr, 1)

	if connected {
		t.Error("connect handler ran for a closed socket")
	}
	if len(reasons) != 1 || reasons[0] != session.ReasonTCPDisconnected {
		t.Errorf("disconnect reasons = %v, want [tcp_disconnected]", reasons)
	}
}

func TestConnect_StaleGenerationDropped(t *testing.T) {
	tr, f := newTestTransport()

	var connects int
	tr.OnConnect(func(bool) { connects++ })

	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	first := f.last(t)

	if err := tr.Connect(); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	second := f.last(t)

	if first.disconnects != 1 {
		t.Errorf("replaced client disconnects = %d, want 1", first.disconnects)
	}

	// The first client's result arrives late and must be ignored.
	first.succeed(false)
	time.Sleep(20 * time.Millisecond)
	if got := tr.Dispatch(); got != 0 {
		t.Errorf("Dispatch() = %d for stale generation, want 0", got)
	}

	second.succeed(false)
	dispatchUntil(t, tr, 1)
	if connects != 1 {
		t.Errorf("connect handler calls = %d, want 1", connects)
	}
}

func TestConnectionLost(t *testing.T) {
	tr, f := newTestTransport()

	var reasons []session.DisconnectReason
	tr.OnDisconnect(func(r session.DisconnectReason) { reasons = append(reasons, r) })

	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c := f.last(t)
	c.succeed(false)
	dispatchUntil(t, tr, 1)

	c.setOpen(false)
	c.opts.OnConnectionLost(nil, &net.OpError{Op: "read", Err: errors.New("connection reset")})

	if tr.Connected() {
		t.Error("Connected() = true after socket closed")
	}
	dispatchUntil(t, tr, 1)

	if len(reasons) != 1 || reasons[0] != session.ReasonTCPDisconnected {
		t.Errorf("disconnect reasons = %v, want [tcp_disconnected]", reasons)
	}
}

func TestDisconnect(t *testing.T) {
	tr, f := newTestTransport()

	var reasons []session.DisconnectReason
	tr.OnDisconnect(func(r session.DisconnectReason) { reasons = append(reasons, r) })

	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c := f.last(t)
	c.succeed(false)
	dispatchUntil(t, tr, 1)

	tr.Disconnect()
	c.opts.OnConnectionLost(nil, errors.New("closed"))

	if c.disconnects != 1 {
		t.Errorf("paho Disconnect calls = %d, want 1", c.disconnects)
	}
	if tr.Connected() {
		t.Error("Connected() = true after Disconnect")
	}
	if got := tr.Dispatch(); got != 0 || len(reasons) != 0 {
		t.Errorf("Dispatch() = %d, reasons = %v after Disconnect, want none", got, reasons)
	}

	tr.Disconnect() // no client, no panic
}

func TestHealthCheck(t *testing.T) {
	tr, f := newTestTransport()

	if err := tr.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	if err := tr.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	f.last(t).succeed(false)
	dispatchUntil(t, tr, 1)

	if err := tr.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestReasonFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want session.DisconnectReason
	}{
		{"bad protocol", packets.ErrorRefusedBadProtocolVersion, session.ReasonUnacceptableProtocolVersion},
		{"id rejected", packets.ErrorRefusedIDRejected, session.ReasonIdentifierRejected},
		{"server unavailable", packets.ErrorRefusedServerUnavailable, session.ReasonServerUnavailable},
		{"bad credentials", packets.ErrorRefusedBadUsernameOrPassword, session.ReasonMalformedCredentials},
		{"not authorised", packets.ErrorRefusedNotAuthorised, session.ReasonNotAuthorized},
		{"wrapped refusal", errors.Join(errors.New("connect"), packets.ErrorRefusedIDRejected), session.ReasonIdentifierRejected},
		{"network", errors.New("dial tcp: connection refused"), session.ReasonTCPDisconnected},
		{"nil", nil, session.ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reasonFromError(tt.err); got != tt.want {
				t.Errorf("reasonFromError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
