// PowerMirror - live-state mirror for an IoT energy-monitoring backend.
//
// PowerMirror maintains a WebSocket connection to the backend's device
// stream, mirrors pushed state into a local registry, journals
// synchronization events, polls backend health and energy aggregates,
// and serves the mirrored view over a local HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iotcoss/powermirror/internal/api"
	"github.com/iotcoss/powermirror/internal/backend"
	"github.com/iotcoss/powermirror/internal/device"
	"github.com/iotcoss/powermirror/internal/eventlog"
	"github.com/iotcoss/powermirror/internal/infrastructure/config"
	"github.com/iotcoss/powermirror/internal/infrastructure/database"
	"github.com/iotcoss/powermirror/internal/infrastructure/logging"
	"github.com/iotcoss/powermirror/internal/infrastructure/mqtt"
	"github.com/iotcoss/powermirror/internal/infrastructure/tsdb"
	"github.com/iotcoss/powermirror/internal/monitor"
	"github.com/iotcoss/powermirror/internal/stream"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting PowerMirror",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database (outlet position persistence). An empty path keeps
	// positions in memory for the session.
	var positionRepo device.PositionRepository
	if cfg.Database.Path != "" {
		db, dbErr := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		positionRepo, err = device.NewSQLitePositionRepository(ctx, db.DB)
		if err != nil {
			return fmt.Errorf("initialising position repository: %w", err)
		}
	} else {
		log.Info("position persistence disabled")
	}

	// Device registry and system journal
	registry := device.NewRegistry(positionRepo)
	registry.SetLogger(log)
	if loadErr := registry.LoadPositions(ctx); loadErr != nil {
		return fmt.Errorf("loading outlet positions: %w", loadErr)
	}
	journal := eventlog.New(cfg.Journal.MaxEntries)
	journal.Append(eventlog.TypeSystem, eventlog.LevelInfo, "main",
		fmt.Sprintf("PowerMirror %s starting", version), "")

	// Connect to InfluxDB telemetry sink (optional)
	var influxClient *tsdb.Client
	var metrics stream.MetricSink
	if cfg.InfluxDB.Enabled {
		influxClient, err = tsdb.Connect(cfg.InfluxDB)
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
		metrics = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Live stream client
	streamClient := stream.New(stream.Config{
		URL:            cfg.Upstream.WebSocketURL,
		ReconnectDelay: time.Duration(cfg.Upstream.ReconnectDelayMS) * time.Millisecond,
		PingInterval:   time.Duration(cfg.Upstream.PingIntervalSec) * time.Second,
	}, registry, journal, log, metrics)
	defer func() {
		log.Info("closing stream client")
		if closeErr := streamClient.Close(); closeErr != nil {
			log.Error("error closing stream client", "error", closeErr)
		}
	}()

	// Initial connect failures are not fatal: the fixed-delay reconnect
	// cycle keeps retrying until the backend appears.
	if connErr := streamClient.Connect(ctx); connErr != nil {
		log.Warn("initial stream connect failed, retrying", "error", connErr)
	}

	// Optional direct MQTT source: feeds broker payloads through the same
	// dispatch path as the WebSocket relay.
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		// #nosec G115 -- QoS validated to 0-2 by config
		subErr := mqttClient.Subscribe(cfg.MQTT.Topic, byte(cfg.MQTT.QoS), func(_ string, payload []byte) error {
			streamClient.HandleMessage(payload)
			return nil
		})
		if subErr != nil {
			return fmt.Errorf("subscribing to device topic: %w", subErr)
		}
		log.Info("MQTT source connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic", cfg.MQTT.Topic,
		)
	} else {
		log.Info("direct MQTT source disabled")
	}

	// Backend REST client and monitor
	backendClient := backend.New(backend.Config{
		BaseURL:  cfg.Upstream.BaseURL,
		Username: cfg.Upstream.Auth.Username,
		Password: cfg.Upstream.Auth.Password,
		Timeout:  time.Duration(cfg.Upstream.RequestTimeoutSec) * time.Second,
	})

	mon := monitor.New(monitor.Config{
		HealthSchedule: cfg.Monitor.HealthSchedule,
		EnergySchedule: cfg.Monitor.EnergySchedule,
	}, backendClient, registry, journal, log)
	if startErr := mon.Start(); startErr != nil {
		return fmt.Errorf("starting monitor: %w", startErr)
	}
	defer func() {
		log.Info("stopping monitor")
		mon.Stop()
	}()
	log.Info("monitor started",
		"health_schedule", cfg.Monitor.HealthSchedule,
		"energy_schedule", cfg.Monitor.EnergySchedule,
	)

	// Local HTTP API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Registry: registry,
		Journal:  journal,
		Stream:   streamClient,
		Backend:  backendClient,
		Monitor:  mon,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	journal.Append(eventlog.TypeSystem, eventlog.LevelInfo, "main",
		"PowerMirror shutting down", "")

	// Deferred Close() calls run in reverse order:
	// API server, monitor, MQTT (if enabled), stream, InfluxDB (if
	// enabled), database.

	log.Info("PowerMirror stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses POWERMIRROR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("POWERMIRROR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
