package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Default presence payloads.
const (
	DefaultOfflinePayload = "off"
	DefaultOnlinePayload  = "on"
)

// Logger defines the logging interface for the Supervisor.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor owns the MQTT session state machine.
//
//	Idle --Start--> Connecting --connect--> Connected
//	                    |                       |
//	                    +------disconnect-------+--> Backoff --Tick--> Connecting
//
// Thread Safety:
//   - All methods are safe for concurrent use, but the intended model is a
//     single host goroutine calling Tick and dispatching transport events.
//   - The internal lock is never held while calling the Transport, observers
//     or OnConnected hooks.
type Supervisor struct {
	transport Transport
	clock     Clock
	logger    Logger

	mu sync.Mutex

	state       State
	lastAttempt uint32
	backoff     Backoff

	// attemptSeq identifies the most recent attempt; a late synchronous
	// refusal for an older attempt must not move the state.
	attemptSeq uint64

	host        bounded
	port        uint16
	endpointSet bool

	topic   bounded
	offline bounded
	online  bounded

	attempts    uint64
	connects    uint64
	disconnects uint64
	rejected    uint64
	lastReason  DisconnectReason

	observers   []Observer
	onConnected []func()
}

// NewSupervisor creates an Idle Supervisor bound to tr and registers its
// event handlers on tr. A nil clock selects NewSystemClock.
func NewSupervisor(tr Transport, clock Clock) *Supervisor {
	if clock == nil {
		clock = NewSystemClock()
	}

	s := &Supervisor{
		transport: tr,
		clock:     clock,
		logger:    noopLogger{},
		state:     StateIdle,
		backoff:   DefaultBackoff(),
	}
	s.offline.set(DefaultOfflinePayload, MaxPresencePayloadLen)
	s.online.set(DefaultOnlinePayload, MaxPresencePayloadLen)

	tr.OnConnect(s.handleConnect)
	tr.OnDisconnect(s.handleDisconnect)

	return s
}

// SetLogger sets the logger for the Supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// AddObserver registers an observer for lifecycle events.
func (s *Supervisor) AddObserver(o Observer) {
	if o == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// OnConnected registers a hook run after every successful connect, once the
// online presence message has been handed to the transport. Publishes made
// from the hook therefore follow the presence message on the wire.
func (s *Supervisor) OnConnected(hook func()) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	s.onConnected = append(s.onConnected, hook)
	s.mu.Unlock()
}

// ConfigureEndpoint stores the broker address. No network I/O is performed.
func (s *Supervisor) ConfigureEndpoint(host string, port uint16) error {
	if host == "" {
		return ErrHostEmpty
	}
	if len(host) > MaxHostLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrHostTooLong, len(host), MaxHostLen)
	}
	if port == 0 {
		return ErrInvalidPort
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyStarted
	}
	s.host.set(host, MaxHostLen)
	s.port = port
	s.endpointSet = true
	return nil
}

// ConfigurePresence stores the presence contract. Empty payloads select the
// defaults ("off" and "on"). No network I/O is performed.
func (s *Supervisor) ConfigurePresence(topic, offline, online string) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if len(topic) > MaxTopicLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTopicTooLong, len(topic), MaxTopicLen)
	}
	if offline == "" {
		offline = DefaultOfflinePayload
	}
	if online == "" {
		online = DefaultOnlinePayload
	}
	if len(offline) > MaxPresencePayloadLen || len(online) > MaxPresencePayloadLen {
		return fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLong, MaxPresencePayloadLen)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyStarted
	}
	s.topic.set(topic, MaxTopicLen)
	s.offline.set(offline, MaxPresencePayloadLen)
	s.online.set(online, MaxPresencePayloadLen)
	return nil
}

// SetBackoff replaces the reconnect delay bounds. Only valid before Start.
// Delays must fit the uint32 millisecond clock (about 49.7 days).
func (s *Supervisor) SetBackoff(initial, maxDelay time.Duration) error {
	if initial <= 0 || maxDelay <= 0 {
		return ErrInvalidBackoff
	}
	if initial > MaxBackoffDelay || maxDelay > MaxBackoffDelay {
		return fmt.Errorf("%w: limit is %v", ErrBackoffTooLong, MaxBackoffDelay)
	}
	b, err := NewBackoff(uint32(initial.Milliseconds()), uint32(maxDelay.Milliseconds())) //nolint:gosec // range checked above
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyStarted
	}
	s.backoff = b
	return nil
}

// Start installs endpoint, keep-alive and will on the transport and issues the
// first connect. Calls made while not Idle are ignored.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if !s.endpointSet {
		s.mu.Unlock()
		return ErrNotConfigured
	}
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		s.log().Debug("start ignored", "state", state)
		return nil
	}

	host := s.host.String()
	port := s.port
	willTopic := s.topic.String()
	willPayload := []byte(s.offline.String())

	now := s.clock.Millis()
	s.state = StateConnecting
	s.lastAttempt = now
	s.attemptSeq++
	seq := s.attemptSeq
	s.attempts++
	ev := Event{
		Kind:        EventAttempt,
		From:        StateIdle,
		To:          StateConnecting,
		AtMillis:    now,
		DelayMillis: s.backoff.Current(),
	}
	logger := s.logger
	s.mu.Unlock()

	s.transport.SetEndpoint(host, port)
	s.transport.SetKeepAlive(KeepAliveSeconds)
	if willTopic != "" {
		s.transport.SetWill(willTopic, QoS0, true, willPayload)
	}

	logger.Info("connecting to MQTT broker", "host", host, "port", port)
	s.emit(ev)
	s.issueConnect(seq)
	return nil
}

// Tick must be called from the host loop. In Backoff, once the current delay
// has elapsed since the last attempt, it issues a new attempt and doubles the
// delay. It does nothing in any other state.
func (s *Supervisor) Tick() {
	s.retry("tick")
}

// Reconnect asks for a reconnect attempt. It is gated by the same backoff as
// Tick, so calling it repeatedly cannot flood the broker.
func (s *Supervisor) Reconnect() {
	s.retry("request")
}

// retry is the shared body of Tick and Reconnect. Only Backoff retries; an
// attempt in flight is left to finish, since the Transport always reports
// its outcome.
func (s *Supervisor) retry(trigger string) {
	s.mu.Lock()
	if s.state != StateBackoff {
		s.mu.Unlock()
		return
	}

	now := s.clock.Millis()
	waited := s.backoff.Current()
	if elapsed(now, s.lastAttempt) < waited {
		s.mu.Unlock()
		return
	}

	s.state = StateConnecting
	s.lastAttempt = now
	s.backoff.Advance()
	s.attemptSeq++
	seq := s.attemptSeq
	s.attempts++
	ev := Event{
		Kind:        EventAttempt,
		From:        StateBackoff,
		To:          StateConnecting,
		AtMillis:    now,
		DelayMillis: s.backoff.Current(),
	}
	logger := s.logger
	s.mu.Unlock()

	logger.Info("attempting MQTT reconnect",
		"trigger", trigger,
		"waited_ms", waited,
		"next_delay_ms", ev.DelayMillis,
	)
	s.emit(ev)
	s.issueConnect(seq)
}

// issueConnect calls the transport outside the lock. If the attempt cannot
// even be initiated the Supervisor falls back to Backoff; lastAttempt keeps
// the issuance time so the next try still honours the delay.
func (s *Supervisor) issueConnect(seq uint64) {
	err := s.transport.Connect()
	if err == nil {
		return
	}

	s.mu.Lock()
	if s.attemptSeq != seq || s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateBackoff
	s.lastReason = ReasonConnectFailed
	ev := Event{
		Kind:        EventDisconnected,
		From:        StateConnecting,
		To:          StateBackoff,
		AtMillis:    s.clock.Millis(),
		DelayMillis: s.backoff.Current(),
		Reason:      ReasonConnectFailed,
	}
	logger := s.logger
	s.mu.Unlock()

	logger.Warn("MQTT connect could not be initiated", "error", err, "retry_in_ms", ev.DelayMillis)
	s.emit(ev)
}

// handleConnect runs when the transport reports an accepted CONNACK.
func (s *Supervisor) handleConnect(sessionPresent bool) {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateConnected {
		state := s.state
		s.mu.Unlock()
		s.log().Debug("connect event ignored", "state", state)
		return
	}

	from := s.state
	s.state = StateConnected
	s.backoff.Reset()
	s.connects++

	var topic string
	var online []byte
	if !s.topic.empty() {
		topic = s.topic.String()
		online = []byte(s.online.String())
	}
	ev := Event{
		Kind:           EventConnected,
		From:           from,
		To:             StateConnected,
		AtMillis:       s.clock.Millis(),
		DelayMillis:    s.backoff.Current(),
		SessionPresent: sessionPresent,
	}
	hooks := append([]func(){}, s.onConnected...)
	logger := s.logger
	s.mu.Unlock()

	logger.Info("connected to MQTT broker", "session_present", sessionPresent)

	if topic != "" {
		if err := s.transport.Publish(topic, QoS0, true, online); err != nil {
			logger.Warn("failed to publish online presence", "topic", topic, "error", err)
		}
	}

	s.emit(ev)
	for _, hook := range hooks {
		hook()
	}
}

// handleDisconnect runs when the transport loses the session or an attempt
// fails. It only records the transition; Tick issues the next attempt.
func (s *Supervisor) handleDisconnect(reason DisconnectReason) {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		s.log().Debug("disconnect event ignored while idle", "reason", reason)
		return
	}

	from := s.state
	s.state = StateBackoff
	s.lastAttempt = s.clock.Millis()
	s.disconnects++
	s.lastReason = reason
	ev := Event{
		Kind:        EventDisconnected,
		From:        from,
		To:          StateBackoff,
		AtMillis:    s.lastAttempt,
		DelayMillis: s.backoff.Current(),
		Reason:      reason,
	}
	logger := s.logger
	s.mu.Unlock()

	if from == StateBackoff {
		logger.Debug("spurious disconnect while in backoff", "reason", reason)
	} else {
		logger.Warn("disconnected from MQTT broker", "reason", reason, "retry_in_ms", ev.DelayMillis)
	}
	s.emit(ev)
}

// rejectPublish records a publish refused because the link is down and asks
// for a reconnect.
func (s *Supervisor) rejectPublish(topic string) {
	s.mu.Lock()
	s.rejected++
	ev := Event{
		Kind:        EventPublishRejected,
		From:        s.state,
		To:          s.state,
		AtMillis:    s.clock.Millis(),
		DelayMillis: s.backoff.Current(),
		Topic:       topic,
	}
	logger := s.logger
	s.mu.Unlock()

	logger.Warn("MQTT not connected, message dropped", "topic", topic, "state", ev.From)
	s.emit(ev)
	s.Reconnect()
}

// Shutdown publishes the offline presence (when connected), closes the
// transport if it supports it and returns to Idle. Start may be called again.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	from := s.state
	s.state = StateIdle
	s.attemptSeq++
	s.backoff.Reset()

	var topic string
	var offline []byte
	if from == StateConnected && !s.topic.empty() {
		topic = s.topic.String()
		offline = []byte(s.offline.String())
	}
	ev := Event{
		Kind:        EventShutdown,
		From:        from,
		To:          StateIdle,
		AtMillis:    s.clock.Millis(),
		DelayMillis: s.backoff.Current(),
	}
	logger := s.logger
	s.mu.Unlock()

	if topic != "" && s.transport.Connected() {
		if err := s.transport.Publish(topic, QoS0, true, offline); err != nil {
			logger.Warn("failed to publish offline presence", "topic", topic, "error", err)
		}
	}
	if d, ok := s.transport.(Disconnector); ok {
		d.Disconnect()
	}

	logger.Info("MQTT session shut down", "previous_state", from)
	s.emit(ev)
}

// IsConnected mirrors the transport's connectivity.
func (s *Supervisor) IsConnected() bool {
	return s.transport.Connected()
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentDelay returns the delay the next retry will wait for.
func (s *Supervisor) CurrentDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.backoff.Current()) * time.Millisecond
}

// Endpoint returns the configured broker host and port.
func (s *Supervisor) Endpoint() (string, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host.String(), s.port
}

// PresenceTopic returns the configured presence topic, or "" when unset.
func (s *Supervisor) PresenceTopic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topic.String()
}

// Stats returns a snapshot of the Supervisor's counters.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:             s.state,
		DelayMillis:       s.backoff.Current(),
		InitialMillis:     s.backoff.Initial(),
		MaxMillis:         s.backoff.Max(),
		LastAttemptMillis: s.lastAttempt,
		Attempts:          s.attempts,
		Connects:          s.connects,
		Disconnects:       s.disconnects,
		RejectedPublishes: s.rejected,
		LastReason:        s.lastReason,
		LastReasonName:    s.lastReason.String(),
	}
}

// healthChecker is implemented by transports with their own liveness probe.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheck reports ErrNotConnected while the link is down. Transports that
// implement HealthCheck are consulted as well and their error is wrapped.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("session health check: %w", ctx.Err())
	default:
	}

	if hc, ok := s.transport.(healthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		return nil
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (s *Supervisor) log() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// emit stamps ev with wall time and fans it out to observers.
func (s *Supervisor) emit(ev Event) {
	ev.Time = time.Now()

	s.mu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o.Observe(ev)
	}
}
