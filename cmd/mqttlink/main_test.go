package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/graylogic-mqttlink/internal/api"
	"github.com/nerrad567/graylogic-mqttlink/internal/auth"
	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/config"
	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("MQTTLINK_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidSettings verifies validation errors stop start-up.
func TestRun_InvalidSettings(t *testing.T) {
	t.Setenv("MQTTLINK_CONFIG", writeConfig(t, `
mqtt:
  broker:
    host: ""
    port: 1883
`))

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "validating config") {
		t.Fatalf("run() error = %v, want validation failure", err)
	}
}

// TestRun_UnreachableBrokerJournalsAttempts starts the daemon against a port
// nothing listens on. Start-up must still succeed, and the journal must record
// the connection attempt.
func TestRun_UnreachableBrokerJournalsAttempts(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "link.db")
	t.Setenv("MQTTLINK_CONFIG", writeConfig(t, `
device:
  id: test-device
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
    client_id: "test-unreachable"
  presence:
    topic: "test/status"
loop:
  tick_interval_ms: 10
database:
  enabled: true
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5
influxdb:
  enabled: false
api:
  enabled: false
logging:
  level: error
  format: text
`))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()

	var attempts int
	if err := db.QueryRow(`SELECT COUNT(*) FROM connection_events WHERE kind = 'attempt'`).Scan(&attempts); err != nil {
		t.Fatalf("counting attempts: %v", err)
	}
	if attempts < 1 {
		t.Errorf("journaled attempts = %d, want >= 1", attempts)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("MQTTLINK_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("MQTTLINK_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestHealthCheck_NilBackends(t *testing.T) {
	if err := healthCheck(context.Background(), nil, nil); err != nil {
		t.Errorf("healthCheck() error = %v", err)
	}
}

// ============================================================================
// Token minting
// ============================================================================

func TestPrintToken(t *testing.T) {
	path := writeConfig(t, `
security:
  jwt:
    secret: "`+testSecret+`"
    access_token_ttl: 5
`)

	var out bytes.Buffer
	if err := printToken(&out, path, "ops", auth.RoleViewer); err != nil {
		t.Fatalf("printToken() error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "ops" || claims.Role != auth.RoleViewer {
		t.Errorf("claims = %s/%s, want ops/viewer", claims.Subject, claims.Role)
	}
}

func TestPrintToken_NoSecret(t *testing.T) {
	path := writeConfig(t, "device:\n  id: test-device\n")
	var out bytes.Buffer
	if err := printToken(&out, path, "ops", auth.RoleOperator); err == nil {
		t.Error("printToken() without a secret should fail")
	}
	if out.Len() != 0 {
		t.Errorf("printToken() wrote %q on failure", out.String())
	}
}

func TestPrintToken_BadRole(t *testing.T) {
	path := writeConfig(t, "security:\n  jwt:\n    secret: \""+testSecret+"\"\n")
	err := printToken(&bytes.Buffer{}, path, "ops", auth.Role("root"))
	if !errors.Is(err, auth.ErrInvalidRole) {
		t.Errorf("printToken() error = %v, want ErrInvalidRole", err)
	}
}

// ============================================================================
// Host loop
// ============================================================================

type stepRecorder struct {
	calls     []string
	connected bool
}

func (r *stepRecorder) Dispatch() int {
	r.calls = append(r.calls, "dispatch")
	return 0
}

func (r *stepRecorder) Tick() {
	r.calls = append(r.calls, "tick")
}

func (r *stepRecorder) IsConnected() bool {
	return r.connected
}

func (r *stepRecorder) Drain(api.Publishing) int {
	r.calls = append(r.calls, "drain")
	return 0
}

type heartbeatPublisher struct {
	topics   []string
	payloads []string
	err      error
}

func (p *heartbeatPublisher) Publish(topic string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, string(payload))
	return nil
}

func (p *heartbeatPublisher) PublishTransient(topic string, payload []byte) error {
	return p.Publish(topic, payload)
}

func testHost(heartbeatTopic string, interval int) (*host, *stepRecorder, *heartbeatPublisher) {
	cfg := &config.Config{
		Loop:      config.LoopConfig{TickIntervalMS: 10},
		Heartbeat: config.HeartbeatConfig{Topic: heartbeatTopic, Interval: interval},
	}
	rec := &stepRecorder{connected: true}
	pub := &heartbeatPublisher{}
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", &bytes.Buffer{})
	h := newHost(cfg, log, rec, rec, pub)
	return h, rec, pub
}

func TestHost_StepOrder(t *testing.T) {
	h, rec, _ := testHost("", 0)
	h.drain = rec

	h.step(time.Now())

	want := []string{"dispatch", "tick", "drain"}
	if strings.Join(rec.calls, ",") != strings.Join(want, ",") {
		t.Errorf("step calls = %v, want %v", rec.calls, want)
	}
}

func TestHost_StepWithoutAPI(t *testing.T) {
	h, rec, _ := testHost("", 0)
	h.step(time.Now())
	if len(rec.calls) != 2 {
		t.Errorf("step calls = %v, want dispatch and tick only", rec.calls)
	}
}

func TestHost_Heartbeat(t *testing.T) {
	h, _, pub := testHost("dev/uptime", 60)
	start := h.started

	h.step(start.Add(5 * time.Second))
	if len(pub.payloads) != 1 || pub.payloads[0] != "5" {
		t.Fatalf("first heartbeat = %v, want [5]", pub.payloads)
	}
	if pub.topics[0] != "dev/uptime" {
		t.Errorf("topic = %q, want dev/uptime", pub.topics[0])
	}

	h.step(start.Add(30 * time.Second))
	if len(pub.payloads) != 1 {
		t.Errorf("heartbeat sent before interval elapsed: %v", pub.payloads)
	}

	h.step(start.Add(65 * time.Second))
	if len(pub.payloads) != 2 || pub.payloads[1] != "65" {
		t.Errorf("second heartbeat = %v, want [5 65]", pub.payloads)
	}
}

func TestHost_HeartbeatResetOnConnect(t *testing.T) {
	h, _, pub := testHost("dev/uptime", 60)
	start := h.started

	h.step(start.Add(time.Second))
	h.onConnected()
	h.step(start.Add(2 * time.Second))

	if len(pub.payloads) != 2 {
		t.Errorf("heartbeats = %v, want one per connect", pub.payloads)
	}
}

func TestHost_HeartbeatSkippedWhileDown(t *testing.T) {
	h, rec, pub := testHost("dev/uptime", 60)
	rec.connected = false

	h.step(h.started.Add(time.Minute))
	if len(pub.payloads) != 0 {
		t.Errorf("heartbeat sent while disconnected: %v", pub.payloads)
	}
}

func TestHost_HeartbeatDisabled(t *testing.T) {
	h, _, pub := testHost("", 60)
	h.step(h.started.Add(time.Hour))
	if len(pub.payloads) != 0 {
		t.Errorf("heartbeat sent with no topic: %v", pub.payloads)
	}
}

func TestHost_LoopStopsOnCancel(t *testing.T) {
	h, _, _ := testHost("", 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.loop(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not return after cancel")
	}
}
