package tsdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceMetric writes a single device measurement to InfluxDB.
//
// This is the primary method for recording live-stream telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceMAC: MAC address identifying the outlet (e.g., "AA:BB:CC:DD:EE:01")
//   - measurement: The metric name (e.g., "current_power", "temperature")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteDeviceMetric("AA:BB:CC:DD:EE:01", "current_power", 42.5)
func (c *Client) WriteDeviceMetric(deviceMAC string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_mac":  deviceMAC,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEnergyMetric writes a power/energy reading for an outlet.
//
// Parameters:
//   - deviceMAC: MAC address identifying the outlet
//   - powerWatts: Current power draw in watts
//   - energyKWh: Cumulative energy for the day in kWh (0 if not reported)
func (c *Client) WriteEnergyMetric(deviceMAC string, powerWatts float64, energyKWh float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"power_watts": powerWatts,
	}
	if energyKWh > 0 {
		fields["energy_kwh"] = energyKWh
	}

	point := write.NewPoint(
		"energy",
		map[string]string{
			"device_mac": deviceMAC,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
