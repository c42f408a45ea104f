package mqtt

import (
	"fmt"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/config"
)

// fakeToken is a pahomqtt.Token completed by the test.
type fakeToken struct {
	done           chan struct{}
	once           sync.Once
	err            error
	sessionPresent bool
}

func newToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func doneToken(err error) *fakeToken {
	tok := newToken()
	tok.complete(err)
	return tok
}

func (t *fakeToken) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }
func (t *fakeToken) SessionPresent() bool  { return t.sessionPresent }

// fakeClient stands in for pahomqtt.Client.
type fakeClient struct {
	mu sync.Mutex

	opts         *pahomqtt.ClientOptions
	connectToken *fakeToken
	open         bool

	publishToken func() *fakeToken
	published    []string
	disconnects  int
}

func (c *fakeClient) Connect() pahomqtt.Token {
	return c.connectToken
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnects++
	c.open = false
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, fmt.Sprintf("%s %d %t %s", topic, qos, retained, payload))
	if c.publishToken != nil {
		return c.publishToken()
	}
	return doneToken(nil)
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) setOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

func (c *fakeClient) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.published...)
}

// succeed opens the socket and completes the CONNACK.
func (c *fakeClient) succeed(sessionPresent bool) {
	c.setOpen(true)
	c.connectToken.sessionPresent = sessionPresent
	c.connectToken.complete(nil)
}

// clientFactory hands out one fakeClient per Connect.
type clientFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
}

func (f *clientFactory) build(opts *pahomqtt.ClientOptions) pahoClient {
	c := &fakeClient{opts: opts, connectToken: newToken()}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c
}

func (f *clientFactory) last(t *testing.T) *fakeClient {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		t.Fatal("no paho client created")
	}
	return f.clients[len(f.clients)-1]
}

func (f *clientFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// newTestTransport returns a Transport wired to a clientFactory with short
// timeouts, endpoint already set.
func newTestTransport() (*Transport, *clientFactory) {
	f := &clientFactory{}
	tr := New(config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{ClientID: "mqttlink-test"},
	})
	tr.newClient = f.build
	tr.connectTimeout = 100 * time.Millisecond
	tr.publishTimeout = 50 * time.Millisecond
	tr.SetEndpoint("broker.local", 1883)
	return tr, f
}

// dispatchUntil calls Dispatch until at least want events were delivered.
func dispatchUntil(t *testing.T, tr *Transport, want int) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	got := 0
	for time.Now().Before(deadline) {
		got += tr.Dispatch()
		if got >= want {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Dispatch() delivered %d events, want %d", got, want)
	return got
}
