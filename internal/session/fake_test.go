package session

import (
	"fmt"
	"sync"
)

// fakeClock is a settable virtual clock.
type fakeClock struct {
	mu  sync.Mutex
	now uint32
}

func (c *fakeClock) Millis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(ms uint32) {
	c.mu.Lock()
	c.now = ms
	c.mu.Unlock()
}

// frame is one PUBLISH handed to the fake transport.
type frame struct {
	topic   string
	qos     byte
	retain  bool
	payload string
}

// fakeTransport records every call and lets tests fire transport events.
type fakeTransport struct {
	mu sync.Mutex

	calls     []string
	frames    []frame
	connects  int
	connected bool

	connectErr error
	publishErr error

	// duringConnect runs synchronously inside Connect.
	duringConnect func()
	// duringSetup runs synchronously inside SetEndpoint.
	duringSetup func()

	onConnect    func(bool)
	onDisconnect func(DisconnectReason)
	disconnected int
}

func (f *fakeTransport) SetEndpoint(host string, port uint16) {
	f.record(fmt.Sprintf("set_endpoint %s %d", host, port))
	f.mu.Lock()
	hook := f.duringSetup
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (f *fakeTransport) SetKeepAlive(seconds uint16) {
	f.record(fmt.Sprintf("set_keep_alive %d", seconds))
}

func (f *fakeTransport) SetWill(topic string, qos byte, retain bool, payload []byte) {
	f.record(fmt.Sprintf("set_will %s %d %t %s", topic, qos, retain, payload))
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	f.calls = append(f.calls, "connect")
	f.connects++
	err := f.connectErr
	hook := f.duringConnect
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeTransport) Publish(topic string, qos byte, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.calls = append(f.calls, fmt.Sprintf("publish %s %d %t %s", topic, qos, retain, payload))
	f.frames = append(f.frames, frame{topic: topic, qos: qos, retain: retain, payload: string(payload)})
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) OnConnect(handler func(bool)) {
	f.onConnect = handler
}

func (f *fakeTransport) OnDisconnect(handler func(DisconnectReason)) {
	f.onDisconnect = handler
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.disconnected++
	f.mu.Unlock()
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// fireConnect simulates an accepted CONNACK.
func (f *fakeTransport) fireConnect(sessionPresent bool) {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.onConnect(sessionPresent)
}

// fireDisconnect simulates a lost session or failed attempt.
func (f *fakeTransport) fireDisconnect(reason DisconnectReason) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.onDisconnect(reason)
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTransport) published() []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]frame(nil), f.frames...)
}

func (f *fakeTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// eventLog collects observed lifecycle events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) ofKind(kind EventKind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// newTestSupervisor returns a configured, not yet started Supervisor.
func newTestSupervisor(t interface{ Fatalf(string, ...any) }) (*Supervisor, *fakeTransport, *fakeClock) {
	tr := &fakeTransport{}
	clock := &fakeClock{}
	s := NewSupervisor(tr, clock)
	if err := s.ConfigureEndpoint("broker", 1883); err != nil {
		t.Fatalf("ConfigureEndpoint() error = %v", err)
	}
	if err := s.ConfigurePresence("dev/status", "", ""); err != nil {
		t.Fatalf("ConfigurePresence() error = %v", err)
	}
	return s, tr, clock
}
