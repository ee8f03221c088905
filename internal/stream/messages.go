package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iotcoss/powermirror/internal/device"
)

// Frame type discriminators used by the backend.
const (
	frameTypePong      = "pong"
	frameTypeRoster    = "device_status"
	frameTypeMQTTRelay = "mqtt_message"
)

// Message is one decoded inbound frame. Decode produces exactly one of the
// closed set of variants below; dispatch switches exhaustively over them so
// no ad hoc field probing happens past the stream boundary.
type Message interface {
	isMessage()
}

// Heartbeat is a keepalive pong. Ignored without logging.
type Heartbeat struct{}

// RosterSnapshot carries the full device roster. It replaces the registry
// contents wholesale.
type RosterSnapshot struct {
	Devices []device.Device
}

// PartialUpdate is a single-device delta keyed by MAC. Only the fields
// present in the payload are set.
type PartialUpdate struct {
	MAC    string
	Fields device.FieldUpdate
	Raw    []byte
}

// RelayedMessage is broker relay metadata. It never mutates the registry;
// the paired delta frame, if any, performs the mutation.
type RelayedMessage struct {
	Topic           string
	Broker          string
	SubscribeFilter string
	Payload         json.RawMessage
	Raw             []byte
}

// Unparseable is a frame that failed to decode: invalid JSON, an unknown
// shape, or a recognised type with a malformed body.
type Unparseable struct {
	Raw []byte
	Err error
}

func (Heartbeat) isMessage()      {}
func (RosterSnapshot) isMessage() {}
func (PartialUpdate) isMessage()  {}
func (RelayedMessage) isMessage() {}
func (Unparseable) isMessage()    {}

// envelope is the superset of fields used to discriminate frame shapes.
type envelope struct {
	Type            string          `json:"type"`
	Data            json.RawMessage `json:"data"`
	Topic           string          `json:"topic"`
	Broker          string          `json:"broker"`
	SubscribeFilter string          `json:"subscribe_filter"`
	Payload         json.RawMessage `json:"payload"`
	DeviceMAC       *string         `json:"device_mac"`
}

// rosterItem is one device as serialised in a full roster push.
// The backend has used both device_name and name, and both energy_amp and
// current_power, across versions; both spellings are accepted.
type rosterItem struct {
	ID           int64    `json:"id"`
	DeviceName   string   `json:"device_name"`
	Name         string   `json:"name"`
	DeviceMAC    string   `json:"device_mac"`
	Location     string   `json:"location"`
	RelayStatus  string   `json:"relay_status"`
	EnergyAmp    *float64 `json:"energy_amp"`
	CurrentPower *float64 `json:"current_power"`
	Temperature  float64  `json:"temperature"`
	Humidity     float64  `json:"humidity"`
	IsOnline     bool     `json:"is_online"`
	Timestamp    string   `json:"timestamp"`
}

// deltaFrame is a partial update as sent on the wire. Pointer fields
// distinguish "absent" from zero values.
type deltaFrame struct {
	DeviceMAC      string   `json:"device_mac"`
	Name           *string  `json:"name"`
	Location       *string  `json:"location"`
	RelayStatus    *string  `json:"relay_status"`
	EnergyAmp      *float64 `json:"energy_amp"`
	CurrentPower   *float64 `json:"current_power"`
	Temperature    *float64 `json:"temperature"`
	Humidity       *float64 `json:"humidity"`
	TodayEnergyKWh *float64 `json:"today_energy_kwh"`
	IsOnline       *bool    `json:"is_online"`
	Timestamp      *string  `json:"timestamp"`
}

// Decode parses one raw frame into a Message variant. It never fails:
// anything that cannot be decoded comes back as Unparseable.
func Decode(raw []byte) Message {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Unparseable{Raw: raw, Err: fmt.Errorf("invalid json: %w", err)}
	}

	switch env.Type {
	case frameTypePong:
		return Heartbeat{}

	case frameTypeRoster:
		return decodeRoster(raw, env.Data)

	case frameTypeMQTTRelay:
		return RelayedMessage{
			Topic:           env.Topic,
			Broker:          env.Broker,
			SubscribeFilter: env.SubscribeFilter,
			Payload:         env.Payload,
			Raw:             raw,
		}
	}

	// No type wrapper: a delta frame keyed by MAC.
	if env.DeviceMAC != nil && *env.DeviceMAC != "" {
		return decodeDelta(raw)
	}

	return Unparseable{Raw: raw, Err: fmt.Errorf("unrecognised frame shape")}
}

// decodeRoster parses the data array of a full roster push.
func decodeRoster(raw []byte, data json.RawMessage) Message {
	var items []rosterItem
	if err := json.Unmarshal(data, &items); err != nil {
		return Unparseable{Raw: raw, Err: fmt.Errorf("invalid roster data: %w", err)}
	}

	devices := make([]device.Device, 0, len(items))
	for _, it := range items {
		devices = append(devices, it.toDevice())
	}
	return RosterSnapshot{Devices: devices}
}

// toDevice converts a wire roster item to the registry model.
func (it rosterItem) toDevice() device.Device {
	name := it.DeviceName
	if name == "" {
		name = it.Name
	}

	var power float64
	switch {
	case it.EnergyAmp != nil:
		power = *it.EnergyAmp
	case it.CurrentPower != nil:
		power = *it.CurrentPower
	}

	return device.Device{
		ID:           it.ID,
		Name:         name,
		MAC:          it.DeviceMAC,
		Location:     it.Location,
		IsActive:     it.RelayStatus == device.RelayOn,
		CurrentPower: power,
		Temperature:  it.Temperature,
		Humidity:     it.Humidity,
		IsOnline:     it.IsOnline,
		UpdatedAt:    parseTimestamp(it.Timestamp),
	}
}

// decodeDelta parses a partial update frame into a FieldUpdate.
func decodeDelta(raw []byte) Message {
	var df deltaFrame
	if err := json.Unmarshal(raw, &df); err != nil {
		return Unparseable{Raw: raw, Err: fmt.Errorf("invalid delta: %w", err)}
	}

	fu := device.FieldUpdate{
		Name:           df.Name,
		Location:       df.Location,
		RelayStatus:    df.RelayStatus,
		Temperature:    df.Temperature,
		Humidity:       df.Humidity,
		TodayEnergyKWh: df.TodayEnergyKWh,
		IsOnline:       df.IsOnline,
	}

	// energy_amp is the preferred power field; current_power is the
	// older spelling.
	switch {
	case df.EnergyAmp != nil:
		fu.CurrentPower = df.EnergyAmp
	case df.CurrentPower != nil:
		fu.CurrentPower = df.CurrentPower
	}

	if df.Timestamp != nil {
		if ts := parseTimestamp(*df.Timestamp); !ts.IsZero() {
			fu.Timestamp = &ts
		}
	}

	return PartialUpdate{MAC: df.DeviceMAC, Fields: fu, Raw: raw}
}

// parseTimestamp accepts RFC 3339 with or without sub-second precision.
// Unparseable timestamps return the zero time; callers fall back to "now".
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
