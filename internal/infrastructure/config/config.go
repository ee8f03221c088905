package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for PowerMirror.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Journal  JournalConfig  `yaml:"journal"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// UpstreamConfig contains the backend endpoints the mirror synchronizes against.
type UpstreamConfig struct {
	// WebSocketURL is the device state stream endpoint (ws:// or wss://).
	WebSocketURL string `yaml:"websocket_url"`

	// BaseURL is the backend REST base (control, health, history).
	BaseURL string `yaml:"base_url"`

	// Auth carries optional credentials for the backend REST API.
	Auth UpstreamAuthConfig `yaml:"auth"`

	// ReconnectDelayMS is the fixed delay before a reconnect attempt.
	// The mirror never gives up; it retries at this interval indefinitely.
	ReconnectDelayMS int `yaml:"reconnect_delay_ms"`

	// PingIntervalSec is how often a keepalive ping frame is sent.
	// Zero disables client-initiated pings.
	PingIntervalSec int `yaml:"ping_interval_sec"`

	// RequestTimeoutSec bounds individual REST calls to the backend.
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

// UpstreamAuthConfig contains backend REST credentials.
type UpstreamAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// APIConfig contains the local HTTP API server settings.
type APIConfig struct {
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

// DatabaseConfig contains SQLite database settings for position persistence.
type DatabaseConfig struct {
	// Path is the SQLite file path. Empty disables persistence; outlet
	// positions then live only in memory for the session.
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains the optional direct broker source settings.
// When enabled, device deltas are consumed straight from the broker in
// addition to the backend's WebSocket relay.
type MQTTConfig struct {
	Enabled bool             `yaml:"enabled"`
	Broker  MQTTBrokerConfig `yaml:"broker"`
	Auth    MQTTAuthConfig   `yaml:"auth"`
	Topic   string           `yaml:"topic"`
	QoS     int              `yaml:"qos"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains the telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MonitorConfig contains periodic poll schedules (robfig/cron specs).
type MonitorConfig struct {
	// HealthSchedule is the health-poll cadence, e.g. "@every 30s".
	HealthSchedule string `yaml:"health_schedule"`

	// EnergySchedule is the aggregate/daily-series refresh cadence.
	EnergySchedule string `yaml:"energy_schedule"`
}

// JournalConfig contains the system journal settings.
type JournalConfig struct {
	// MaxEntries bounds the in-memory journal ring. Oldest entries are
	// evicted beyond this count.
	MaxEntries int `yaml:"max_entries"`
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
// Environment variables follow the pattern: POWERMIRROR_SECTION_KEY
// For example: POWERMIRROR_UPSTREAM_WEBSOCKET_URL, POWERMIRROR_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default reconnect and journal values; the 3000 ms delay matches the
// backend's expectation of a low-churn local network client.
const (
	defaultReconnectDelayMS = 3000
	defaultJournalEntries   = 500
)

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			WebSocketURL:      "ws://localhost:8000/ws/devices",
			BaseURL:           "http://localhost:8000",
			ReconnectDelayMS:  defaultReconnectDelayMS,
			PingIntervalSec:   30,
			RequestTimeoutSec: 10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "data/powermirror.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "powermirror",
			},
			Topic: "iotcoss/device/+",
			QoS:   1,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Org:           "iotcoss",
			Bucket:        "powermirror",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Monitor: MonitorConfig{
			HealthSchedule: "@every 30s",
			EnergySchedule: "@every 10m",
		},
		Journal: JournalConfig{
			MaxEntries: defaultJournalEntries,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides overrides config values from POWERMIRROR_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POWERMIRROR_UPSTREAM_WEBSOCKET_URL"); v != "" {
		cfg.Upstream.WebSocketURL = v
	}
	if v := os.Getenv("POWERMIRROR_UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("POWERMIRROR_UPSTREAM_USERNAME"); v != "" {
		cfg.Upstream.Auth.Username = v
	}
	if v := os.Getenv("POWERMIRROR_UPSTREAM_PASSWORD"); v != "" {
		cfg.Upstream.Auth.Password = v
	}
	if v := os.Getenv("POWERMIRROR_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("POWERMIRROR_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("POWERMIRROR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("POWERMIRROR_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("POWERMIRROR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("POWERMIRROR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("POWERMIRROR_INFLUXDB_ENABLED"); v != "" {
		cfg.InfluxDB.Enabled = parseBool(v)
	}
	if v := os.Getenv("POWERMIRROR_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("POWERMIRROR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("POWERMIRROR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// parseBool interprets common truthy strings ("true", "1", "yes").
func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// Maximum valid TCP port number.
const maxPort = 65535

// Validate checks the configuration for missing or inconsistent values.
//
// Returns:
//   - error: Describing the first validation failure, or nil
func (c *Config) Validate() error {
	if c.Upstream.WebSocketURL == "" {
		return fmt.Errorf("upstream.websocket_url is required")
	}
	if !strings.HasPrefix(c.Upstream.WebSocketURL, "ws://") && !strings.HasPrefix(c.Upstream.WebSocketURL, "wss://") {
		return fmt.Errorf("upstream.websocket_url must start with ws:// or wss://")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.ReconnectDelayMS <= 0 {
		return fmt.Errorf("upstream.reconnect_delay_ms must be positive")
	}
	if c.API.Port <= 0 || c.API.Port > maxPort {
		return fmt.Errorf("api.port must be between 1 and %d", maxPort)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			return fmt.Errorf("mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1, or 2")
		}
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}
	if c.Journal.MaxEntries <= 0 {
		return fmt.Errorf("journal.max_entries must be positive")
	}
	return nil
}
