package device

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// roomDefaults maps lowercased room names to deterministic floor-plan
// coordinates for first-seen devices.
var roomDefaults = map[string]OutletPosition{
	"living room": {X: 25, Y: 30},
	"kitchen":     {X: 60, Y: 25},
	"bedroom":     {X: 30, Y: 65},
	"bathroom":    {X: 70, Y: 60},
	"office":      {X: 45, Y: 40},
	"garage":      {X: 80, Y: 75},
}

// Fallback position assignment for rooms without a default coordinate.
const (
	fallbackStep = 15
	fallbackSpan = 80
	fallbackBase = 10
	fallbackY    = 50
)

// Registry is the single source of truth for mirrored device state.
//
// Devices are keyed by backend identifier with a secondary MAC index for
// partial updates. Outlet positions live alongside the devices and follow
// their lifecycle: assigned when a device first appears, removed when a
// roster omits it. All methods are safe for concurrent use; mutations from
// the stream arrive serialized, but the local API reads concurrently.
//
// Registry operations are total: unknown identifiers and MACs degrade to
// no-ops, never errors or panics.
type Registry struct {
	mu         sync.RWMutex
	devices    map[int64]*Device
	macIndex   map[string]int64
	positions  map[int64]OutletPosition
	aggregates EnergyAggregates

	// nextFallbackX is instance state for round-robin position assignment.
	nextFallbackX float64

	repo   PositionRepository
	logger Logger
}

// NewRegistry creates an empty registry.
// The position repository is optional; pass nil to keep positions in
// memory only.
func NewRegistry(repo PositionRepository) *Registry {
	return &Registry{
		devices:   make(map[int64]*Device),
		macIndex:  make(map[string]int64),
		positions: make(map[int64]OutletPosition),
		repo:      repo,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// LoadPositions hydrates saved outlet positions from the repository.
// Call once on startup, before the first roster arrives. Positions for
// devices not yet known are kept; the roster reconciliation prunes any
// that never reappear.
func (r *Registry) LoadPositions(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}

	saved, err := r.repo.List(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range saved {
		r.positions[p.DeviceID] = clampPosition(p)
	}
	return nil
}

// ReplaceAll reconciles the registry against a full roster push.
//
// The registry afterwards contains exactly the devices in the roster.
// Devices keep nothing from their previous incarnation; the roster is
// authoritative for every field it carries. Positions are assigned for
// first-seen devices and removed for devices the roster omits.
func (r *Registry) ReplaceAll(roster []Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := make(map[int64]*Device, len(roster))
	macIndex := make(map[string]int64, len(roster))
	for i := range roster {
		d := roster[i]
		devices[d.ID] = &d
		if d.MAC != "" {
			macIndex[d.MAC] = d.ID
		}
	}

	// Prune positions whose device disappeared.
	for id := range r.positions {
		if _, ok := devices[id]; !ok {
			delete(r.positions, id)
			r.deletePosition(id)
		}
	}

	// Assign positions for first-seen devices in roster order, so
	// round-robin fallback slots land deterministically.
	for i := range roster {
		id := roster[i].ID
		if _, ok := r.positions[id]; !ok {
			pos := r.assignPosition(id, roster[i].Location)
			r.positions[id] = pos
			r.savePosition(pos)
		}
	}

	r.devices = devices
	r.macIndex = macIndex
}

// assignPosition picks a deterministic coordinate for the room, or the
// next round-robin fallback slot. Caller holds the write lock.
func (r *Registry) assignPosition(deviceID int64, location string) OutletPosition {
	if def, ok := roomDefaults[normaliseRoom(location)]; ok {
		return OutletPosition{DeviceID: deviceID, X: def.X, Y: def.Y}
	}

	r.nextFallbackX = float64(int(r.nextFallbackX+fallbackStep)%fallbackSpan + fallbackBase)
	return OutletPosition{DeviceID: deviceID, X: r.nextFallbackX, Y: fallbackY}
}

// ApplyPartial updates the device matching the MAC with the fields present
// in the update. Unknown MACs are dropped silently; a partial update never
// creates a device.
//
// Returns the matched device's ID and whether the update was applied.
func (r *Registry) ApplyPartial(mac string, fu FieldUpdate) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.macIndex[mac]
	if !ok {
		return 0, false
	}
	d := r.devices[id]

	if fu.Name != nil {
		d.Name = *fu.Name
	}
	if fu.Location != nil {
		d.Location = *fu.Location
	}
	if fu.RelayStatus != nil {
		d.IsActive = *fu.RelayStatus == RelayOn
		// Authoritative state supersedes any optimistic toggle.
		d.DesiredState = nil
	}
	if fu.CurrentPower != nil {
		d.CurrentPower = *fu.CurrentPower
	}
	if fu.Temperature != nil {
		d.Temperature = *fu.Temperature
	}
	if fu.Humidity != nil {
		d.Humidity = *fu.Humidity
	}
	if fu.TodayEnergyKWh != nil {
		d.TodayEnergyKWh = *fu.TodayEnergyKWh
	}
	if fu.IsOnline != nil {
		d.IsOnline = *fu.IsOnline
	}
	if fu.Timestamp != nil {
		d.UpdatedAt = *fu.Timestamp
	} else {
		d.UpdatedAt = time.Now()
	}

	return id, true
}

// SetDesiredState records the optimistic toggle value for a device.
// It does not touch IsActive; the stream remains authoritative.
// Unknown MACs are a no-op and return false.
func (r *Registry) SetDesiredState(mac, state string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.macIndex[mac]
	if !ok {
		return false
	}
	s := state
	r.devices[id].DesiredState = &s
	return true
}

// SetPosition moves a device marker, clamping both axes to [0,100].
// Unknown device IDs are a no-op and return false.
func (r *Registry) SetPosition(deviceID int64, x, y float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[deviceID]; !ok {
		return false
	}

	pos := clampPosition(OutletPosition{DeviceID: deviceID, X: x, Y: y})
	r.positions[deviceID] = pos
	r.savePosition(pos)
	return true
}

// SetAggregates replaces the server-supplied energy figures used by Summary.
func (r *Registry) SetAggregates(agg EnergyAggregates) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregates = agg
}

// Summary recomputes the derived power summary from the current device set.
//
// Total power sums each device's effective power (offline devices count as
// zero). Averages over an empty set are defined as 0, never NaN.
func (r *Registry) Summary() PowerSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := PowerSummary{
		TotalDevices:     len(r.devices),
		EnergyAggregates: r.aggregates,
	}

	if len(r.devices) == 0 {
		return s
	}

	var tempSum, humSum float64
	for _, d := range r.devices {
		if d.IsActive {
			s.ActiveDevices++
		}
		if d.IsOnline {
			s.OnlineDevices++
		}
		s.TotalPower += d.EffectivePower()
		tempSum += d.Temperature
		humSum += d.Humidity
	}
	s.AverageTemperature = tempSum / float64(len(r.devices))
	s.AverageHumidity = humSum / float64(len(r.devices))

	return s
}

// Devices returns a copy of all devices, ordered by ID.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeviceByMAC returns a copy of the device with the given MAC.
func (r *Registry) DeviceByMAC(mac string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.macIndex[mac]
	if !ok {
		return Device{}, ErrNotFound
	}
	return *r.devices[id], nil
}

// DeviceByID returns a copy of the device with the given ID.
func (r *Registry) DeviceByID(id int64) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return Device{}, ErrNotFound
	}
	return *d, nil
}

// Positions returns a copy of all outlet positions, ordered by device ID.
func (r *Registry) Positions() []OutletPosition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]OutletPosition, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Count returns the number of devices currently mirrored.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// savePosition persists a position when a repository is configured.
// Persistence failures are logged, never surfaced; positions are
// reconstructible. Caller holds the write lock.
func (r *Registry) savePosition(pos OutletPosition) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Save(context.Background(), pos); err != nil {
		r.logger.Warn("failed to persist outlet position",
			"device_id", pos.DeviceID, "error", err)
	}
}

// deletePosition removes a persisted position. Caller holds the write lock.
func (r *Registry) deletePosition(deviceID int64) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Delete(context.Background(), deviceID); err != nil {
		r.logger.Warn("failed to delete outlet position",
			"device_id", deviceID, "error", err)
	}
}

// normaliseRoom canonicalises a room name for the defaults lookup.
func normaliseRoom(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}

// clampPosition bounds both axes to [0,100].
func clampPosition(p OutletPosition) OutletPosition {
	p.X = clamp(p.X, 0, 100)
	p.Y = clamp(p.Y, 0, 100)
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
