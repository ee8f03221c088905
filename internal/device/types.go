package device

import "time"

// Relay state tokens as reported by the stream and accepted by control calls.
const (
	RelayOn  = "on"
	RelayOff = "off"
)

// Device is a monitored outlet/appliance mirrored from the backend.
//
// IsActive is authoritative and set only from streamed state. DesiredState
// is the locally optimistic toggle value recorded when the user requests a
// change; it is cleared as soon as the next authoritative relay_status
// arrives, whether or not it matches.
type Device struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	MAC            string    `json:"device_mac"`
	Location       string    `json:"location"`
	IsActive       bool      `json:"is_active"`
	DesiredState   *string   `json:"desired_state,omitempty"`
	CurrentPower   float64   `json:"current_power"`
	Temperature    float64   `json:"temperature"`
	Humidity       float64   `json:"humidity"`
	IsOnline       bool      `json:"is_online"`
	TodayEnergyKWh float64   `json:"today_energy_kwh"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EffectivePower returns the power draw to use in aggregates.
// Readings from offline devices are never trusted.
func (d *Device) EffectivePower() float64 {
	if !d.IsOnline {
		return 0
	}
	return d.CurrentPower
}

// FieldUpdate carries a partial update for one device. Nil fields are left
// untouched; only fields present in the inbound payload are set.
type FieldUpdate struct {
	Name           *string
	Location       *string
	RelayStatus    *string
	CurrentPower   *float64
	Temperature    *float64
	Humidity       *float64
	TodayEnergyKWh *float64
	IsOnline       *bool
	Timestamp      *time.Time
}

// OutletPosition places a device marker on the floor-plan coordinate space.
// Both axes are clamped to [0,100].
type OutletPosition struct {
	DeviceID int64   `json:"device_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// EnergyAggregates are server-supplied figures passed through into the
// summary; they are never recomputed locally.
type EnergyAggregates struct {
	MonthlyEnergyKWh   float64 `json:"monthly_energy_kwh"`
	YesterdayEnergyKWh float64 `json:"yesterday_energy_kwh"`
	TodayEnergyKWh     float64 `json:"today_energy_kwh"`
	EstimatedCost      float64 `json:"estimated_cost"`
}

// PowerSummary is the derived view over the current device set plus the
// last server-supplied aggregates.
type PowerSummary struct {
	TotalDevices       int     `json:"total_devices"`
	ActiveDevices      int     `json:"active_devices"`
	OnlineDevices      int     `json:"online_devices"`
	TotalPower         float64 `json:"total_power"`
	AverageTemperature float64 `json:"average_temperature"`
	AverageHumidity    float64 `json:"average_humidity"`
	EnergyAggregates
}

// DailyPowerPoint is one (date, energy) sample in a daily series.
type DailyPowerPoint struct {
	Date      string  `json:"date"`
	EnergyKWh float64 `json:"energy_kwh"`
}
