package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits mirrored from the session package. Duplicated here so config has no
// dependency on the domain packages.
const (
	maxHostLen            = 253
	maxTopicLen           = 63
	maxPresencePayloadLen = 19
	minJWTSecretLength    = 32
)

// Config is the root configuration structure for mqttlink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Loop      LoopConfig      `yaml:"loop"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies this device.
type DeviceConfig struct {
	ID string `yaml:"id"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	Presence  MQTTPresenceConfig  `yaml:"presence"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTPresenceConfig is the Last Will / online presence contract.
// An empty topic disables presence.
type MQTTPresenceConfig struct {
	Topic   string `yaml:"topic"`
	Offline string `yaml:"offline"`
	Online  string `yaml:"online"`
}

// MQTTReconnectConfig contains reconnection backoff bounds in milliseconds.
type MQTTReconnectConfig struct {
	InitialDelayMS int `yaml:"initial_delay_ms"`
	MaxDelayMS     int `yaml:"max_delay_ms"`
}

// LoopConfig controls the cooperative host loop.
type LoopConfig struct {
	// TickIntervalMS is how often transport events are dispatched and the
	// supervisor is ticked.
	TickIntervalMS int `yaml:"tick_interval_ms"`
}

// HeartbeatConfig configures the optional uptime publish.
type HeartbeatConfig struct {
	Topic    string `yaml:"topic"`
	Interval int    `yaml:"interval"` // seconds
}

// DatabaseConfig contains SQLite settings for the lifecycle journal.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	QueueCapacity int    `yaml:"queue_capacity"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the operator HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains operator token settings.
// An empty secret leaves the publish endpoint unauthenticated.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MQTTLINK_SECTION_KEY
// For example: MQTTLINK_MQTT_HOST, MQTTLINK_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID: "device-001",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			Presence: MQTTPresenceConfig{
				Offline: "off",
				Online:  "on",
			},
			Reconnect: MQTTReconnectConfig{
				InitialDelayMS: 1000,
				MaxDelayMS:     32000,
			},
		},
		Loop: LoopConfig{
			TickIntervalMS: 100,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 60,
		},
		Database: DatabaseConfig{
			Enabled:       true,
			Path:          "./data/mqttlink.db",
			WALMode:       true,
			BusyTimeout:   5,
			QueueCapacity: 256,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTTLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MQTTLINK_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// MQTT
	if v := os.Getenv("MQTTLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MQTTLINK_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MQTTLINK_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("MQTTLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTTLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("MQTTLINK_MQTT_PRESENCE_TOPIC"); v != "" {
		cfg.MQTT.Presence.Topic = v
	}

	// Storage
	if v := os.Getenv("MQTTLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MQTTLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("MQTTLINK_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	// MQTT validation
	switch {
	case c.MQTT.Broker.Host == "":
		errs = append(errs, "mqtt.broker.host is required")
	case len(c.MQTT.Broker.Host) > maxHostLen:
		errs = append(errs, fmt.Sprintf("mqtt.broker.host must be at most %d characters", maxHostLen))
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if p := c.MQTT.Presence; p.Topic != "" {
		if len(p.Topic) > maxTopicLen {
			errs = append(errs, fmt.Sprintf("mqtt.presence.topic must be at most %d characters", maxTopicLen))
		}
		if strings.ContainsAny(p.Topic, "+#") {
			errs = append(errs, "mqtt.presence.topic must not contain wildcards")
		}
		if len(p.Offline) > maxPresencePayloadLen || len(p.Online) > maxPresencePayloadLen {
			errs = append(errs, fmt.Sprintf("mqtt.presence payloads must be at most %d characters", maxPresencePayloadLen))
		}
	}
	if r := c.MQTT.Reconnect; r.InitialDelayMS <= 0 || r.MaxDelayMS < r.InitialDelayMS {
		errs = append(errs, "mqtt.reconnect requires 0 < initial_delay_ms <= max_delay_ms")
	} else if int64(r.MaxDelayMS) > math.MaxUint32 {
		errs = append(errs, fmt.Sprintf("mqtt.reconnect.max_delay_ms must be at most %d", uint32(math.MaxUint32)))
	}

	if c.Loop.TickIntervalMS <= 0 {
		errs = append(errs, "loop.tick_interval_ms must be positive")
	}
	if c.Heartbeat.Topic != "" && c.Heartbeat.Interval <= 0 {
		errs = append(errs, "heartbeat.interval must be positive when heartbeat.topic is set")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A short secret is worse than none: it looks protected but can be brute forced.
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("security.jwt.secret must be at least %d characters", minJWTSecretLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TickInterval returns the host loop period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Loop.TickIntervalMS) * time.Millisecond
}

// HeartbeatInterval returns the heartbeat publish period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Heartbeat.Interval) * time.Second
}

// ReconnectDelays returns the backoff bounds.
func (c *Config) ReconnectDelays() (initial, maxDelay time.Duration) {
	return time.Duration(c.MQTT.Reconnect.InitialDelayMS) * time.Millisecond,
		time.Duration(c.MQTT.Reconnect.MaxDelayMS) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
