// mqttlink keeps one device connected to an MQTT broker.
//
// It supervises the broker session (exponential reconnect backoff, Last Will
// and online presence), records every lifecycle step in a local journal,
// optionally mirrors link telemetry to InfluxDB and exposes an operator API.
//
// Usage:
//
//	mqttlink                      run the daemon
//	mqttlink -token SUBJECT       print a signed operator token and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nerrad567/graylogic-mqttlink/internal/api"
	"github.com/nerrad567/graylogic-mqttlink/internal/auth"
	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/config"
	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/database"
	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/logging"
	"github.com/nerrad567/graylogic-mqttlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/graylogic-mqttlink/internal/journal"
	"github.com/nerrad567/graylogic-mqttlink/internal/session"
	"github.com/nerrad567/graylogic-mqttlink/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	tokenSubject := flag.String("token", "", "print a signed operator token for `SUBJECT` and exit")
	tokenRole := flag.String("role", string(auth.RoleOperator), "role carried by the -token output (viewer or operator)")
	flag.Parse()

	if *tokenSubject != "" {
		if err := printToken(os.Stdout, getConfigPath(), *tokenSubject, auth.Role(*tokenRole)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// printToken signs a token with the configured JWT secret and writes it to w.
func printToken(w io.Writer, configPath, subject string, role auth.Role) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is not set; the API is unauthenticated")
	}

	ttl := time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	token, err := auth.GenerateToken(subject, role, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// run is the daemon, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear start-up wiring
	log := logging.Default()
	log.Info("starting mqttlink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).With("device_id", cfg.Device.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Journal (optional)
	var db *database.DB
	var events *journal.Journal
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", db.Path())

		if migrateErr := db.Migrate(ctx, migrations.FS, migrations.Dir); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		events = journal.New(db.DB, cfg.Database.QueueCapacity)
		events.SetLogger(log)
		defer func() {
			events.Close()
			log.Info("journal closed", "written", events.Written(), "dropped", events.Dropped())
		}()
	} else {
		log.Info("journal disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Device.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// MQTT link
	transport := mqtt.New(cfg.MQTT)
	transport.SetLogger(log)

	sup, err := newSupervisor(cfg, transport, log)
	if err != nil {
		return err
	}
	pub := session.NewPublisher(sup)

	if events != nil {
		sup.AddObserver(events)
	}
	if influxClient != nil {
		sup.AddObserver(influxClient)
	}

	// Operator API (optional)
	var srv *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			Security: cfg.Security,
			Logger:   log,
			Link:     sup,
			Version:  version,
		}
		if events != nil {
			deps.Events = events
		}
		srv, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		sup.AddObserver(srv.Hub())
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		if err := srv.HealthCheck(ctx); err != nil {
			return fmt.Errorf("API server health check: %w", err)
		}
		if cfg.Security.JWT.Secret == "" {
			log.Warn("API authentication disabled: security.jwt.secret is empty")
		}
	} else {
		log.Info("API disabled")
	}

	h := newHost(cfg, log, transport, sup, pub)
	if srv != nil {
		h.drain = srv
	}
	sup.OnConnected(h.onConnected)

	if err := sup.Start(); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", transport.ClientID(),
	)

	h.loop(ctx)

	log.Info("shutdown signal received, cleaning up")
	sup.Shutdown()

	// Deferred Close() calls run in reverse order:
	// API, InfluxDB, journal, database.
	log.Info("mqttlink stopped")
	return nil
}

// newSupervisor applies the link settings from cfg.
func newSupervisor(cfg *config.Config, tr session.Transport, log *logging.Logger) (*session.Supervisor, error) {
	sup := session.NewSupervisor(tr, session.NewSystemClock())
	sup.SetLogger(log)

	initial, maxDelay := cfg.ReconnectDelays()
	if err := sup.SetBackoff(initial, maxDelay); err != nil {
		return nil, fmt.Errorf("configuring backoff: %w", err)
	}
	// #nosec G115 -- port range checked by config.Validate
	if err := sup.ConfigureEndpoint(cfg.MQTT.Broker.Host, uint16(cfg.MQTT.Broker.Port)); err != nil {
		return nil, fmt.Errorf("configuring endpoint: %w", err)
	}
	if p := cfg.MQTT.Presence; p.Topic != "" {
		if err := sup.ConfigurePresence(p.Topic, p.Offline, p.Online); err != nil {
			return nil, fmt.Errorf("configuring presence: %w", err)
		}
	}
	return sup, nil
}

// getConfigPath returns the configuration file path.
// Uses MQTTLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MQTTLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the storage backends are reachable before the link
// starts. The broker is deliberately absent: an unreachable broker is handled
// by backoff, not by refusing to start.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// ============================================================================
// Host loop
// ============================================================================

type dispatcher interface {
	Dispatch() int
}

type ticker interface {
	Tick()
	IsConnected() bool
}

type drainer interface {
	Drain(p api.Publishing) int
}

// host drives the link from a single goroutine.
type host struct {
	log      *logging.Logger
	interval time.Duration

	transport dispatcher
	sup       ticker
	pub       api.Publishing
	drain     drainer // nil when the API is disabled

	heartbeatTopic    string
	heartbeatInterval time.Duration
	started           time.Time
	lastBeat          time.Time
}

func newHost(cfg *config.Config, log *logging.Logger, tr dispatcher, sup ticker, pub api.Publishing) *host {
	return &host{
		log:               log,
		interval:          cfg.TickInterval(),
		transport:         tr,
		sup:               sup,
		pub:               pub,
		heartbeatTopic:    cfg.Heartbeat.Topic,
		heartbeatInterval: cfg.HeartbeatInterval(),
		started:           time.Now(),
	}
}

// loop steps the host every interval until ctx is cancelled.
func (h *host) loop(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			h.step(now)
		}
	}
}

// step is one pass of the cooperative loop. Transport events are delivered
// before the supervisor is ticked so a fresh CONNACK is seen before any retry
// decision.
func (h *host) step(now time.Time) {
	h.transport.Dispatch()
	h.sup.Tick()
	h.heartbeat(now)
	if h.drain != nil {
		h.drain.Drain(h.pub)
	}
}

// onConnected runs after the online presence publish; the first heartbeat
// goes out immediately rather than one interval later.
func (h *host) onConnected() {
	h.lastBeat = time.Time{}
}

// heartbeat publishes process uptime in seconds, retained, while connected.
func (h *host) heartbeat(now time.Time) {
	if h.heartbeatTopic == "" || h.heartbeatInterval <= 0 || !h.sup.IsConnected() {
		return
	}
	if !h.lastBeat.IsZero() && now.Sub(h.lastBeat) < h.heartbeatInterval {
		return
	}
	h.lastBeat = now

	uptime := strconv.FormatInt(int64(now.Sub(h.started)/time.Second), 10)
	if err := h.pub.Publish(h.heartbeatTopic, []byte(uptime)); err != nil {
		h.log.Debug("heartbeat not sent", "topic", h.heartbeatTopic, "error", err)
	}
}
