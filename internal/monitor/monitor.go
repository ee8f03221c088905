package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iotcoss/powermirror/internal/backend"
	"github.com/iotcoss/powermirror/internal/device"
	"github.com/iotcoss/powermirror/internal/eventlog"
)

// pollTimeout bounds each scheduled backend call.
const pollTimeout = 15 * time.Second

// Backend is the subset of the REST client the monitor uses.
type Backend interface {
	Health(ctx context.Context) (backend.HealthStatus, error)
	PowerSummary(ctx context.Context) (device.EnergyAggregates, error)
	DailyPower(ctx context.Context, mac string) ([]device.DailyPowerPoint, error)
}

// Logger is the logging interface used by the monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the monitor's cron schedules.
type Config struct {
	// HealthSchedule is the health-poll cadence, e.g. "@every 30s".
	HealthSchedule string

	// EnergySchedule is the aggregate-refresh cadence, e.g. "@every 10m".
	EnergySchedule string
}

// Status is a snapshot of the monitor's view of the backend.
type Status struct {
	Online      bool          `json:"online"`
	Latency     time.Duration `json:"latency_ns"`
	ClockOffset time.Duration `json:"clock_offset_ns"`
	MQTTBroker  string        `json:"mqtt_broker,omitempty"`
	MQTTTopic   string        `json:"mqtt_topic,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
}

// Monitor polls the backend on cron schedules: a frequent health poll
// (online/offline, latency, clock offset) and a slower energy refresh
// that feeds server-computed aggregates into the registry. It also keeps
// an on-demand cache of daily energy series.
type Monitor struct {
	cfg      Config
	backend  Backend
	registry *device.Registry
	journal  *eventlog.Journal
	logger   Logger

	cron *cron.Cron

	mu     sync.RWMutex
	status Status
	// polled distinguishes "never polled" from "first poll said offline",
	// so the first result is always journalled.
	polled bool

	seriesMu sync.RWMutex
	series   map[string][]device.DailyPowerPoint
}

// New creates a monitor. Call Start to begin polling.
func New(cfg Config, be Backend, registry *device.Registry, journal *eventlog.Journal, logger Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		backend:  be,
		registry: registry,
		journal:  journal,
		logger:   logger,
		cron:     cron.New(),
		series:   make(map[string][]device.DailyPowerPoint),
	}
}

// Start registers the schedules and begins polling. Both polls also run
// once immediately so status and aggregates are populated at startup.
func (m *Monitor) Start() error {
	if _, err := m.cron.AddFunc(m.cfg.HealthSchedule, m.pollHealth); err != nil {
		return fmt.Errorf("registering health schedule %q: %w", m.cfg.HealthSchedule, err)
	}
	if _, err := m.cron.AddFunc(m.cfg.EnergySchedule, m.refreshEnergy); err != nil {
		return fmt.Errorf("registering energy schedule %q: %w", m.cfg.EnergySchedule, err)
	}

	go func() {
		m.pollHealth()
		m.refreshEnergy()
	}()

	m.cron.Start()
	return nil
}

// Stop halts the schedules. Running polls finish on their own.
func (m *Monitor) Stop() {
	m.cron.Stop()
}

// pollHealth queries the backend health endpoint and records the result.
// Transitions between online and offline are journalled; steady states
// are not, to keep the journal readable.
func (m *Monitor) pollHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	hs, err := m.backend.Health(ctx)
	now := time.Now()

	m.mu.Lock()
	wasOnline := m.status.Online
	hadPolled := m.polled
	m.polled = true

	if err != nil {
		m.status.Online = false
		m.status.LastChecked = now
	} else {
		m.status = Status{
			Online:      true,
			Latency:     hs.Latency,
			ClockOffset: hs.ClockOffset,
			MQTTBroker:  hs.MQTTBroker,
			MQTTTopic:   hs.MQTTTopic,
			LastChecked: now,
		}
	}
	m.mu.Unlock()

	switch {
	case err != nil && (wasOnline || !hadPolled):
		m.logger.Warn("backend health poll failed", "error", err)
		m.journal.Append(eventlog.TypeConnection, eventlog.LevelWarn, "monitor",
			"backend offline", "")
	case err == nil && (!wasOnline || !hadPolled):
		m.logger.Info("backend online", "latency", hs.Latency)
		m.journal.Append(eventlog.TypeConnection, eventlog.LevelInfo, "monitor",
			"backend online", "")
	}
}

// refreshEnergy fetches the server-computed aggregates into the registry
// and refreshes the daily-series cache: per-device entries are dropped so
// the next read re-fetches, and the total series is re-primed.
func (m *Monitor) refreshEnergy() {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	agg, err := m.backend.PowerSummary(ctx)
	if err != nil {
		m.logger.Warn("energy aggregate refresh failed", "error", err)
		m.journal.Append(eventlog.TypeError, eventlog.LevelWarn, "monitor",
			"energy aggregate refresh failed", "")
		return
	}
	m.registry.SetAggregates(agg)

	m.InvalidateSeries()
	points, err := m.backend.DailyPower(ctx, "")
	if err != nil {
		m.logger.Warn("daily series refresh failed", "error", err)
		return
	}
	m.seriesMu.Lock()
	m.series[""] = points
	m.seriesMu.Unlock()
}

// Status returns the last health poll result.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// SyncedNow returns the local time adjusted by the backend clock offset.
func (m *Monitor) SyncedNow() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Now().Add(m.status.ClockOffset)
}

// DailySeries returns the daily energy series for a device MAC (empty for
// the total). Served from cache when present; fetched and cached otherwise.
func (m *Monitor) DailySeries(ctx context.Context, mac string) ([]device.DailyPowerPoint, error) {
	m.seriesMu.RLock()
	cached, ok := m.series[mac]
	m.seriesMu.RUnlock()
	if ok {
		return cached, nil
	}

	points, err := m.backend.DailyPower(ctx, mac)
	if err != nil {
		return nil, err
	}

	m.seriesMu.Lock()
	m.series[mac] = points
	m.seriesMu.Unlock()
	return points, nil
}

// InvalidateSeries drops the cached series so the next read re-fetches.
func (m *Monitor) InvalidateSeries() {
	m.seriesMu.Lock()
	m.series = make(map[string][]device.DailyPowerPoint)
	m.seriesMu.Unlock()
}
