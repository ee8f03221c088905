// Package tsdb provides the InfluxDB v2 telemetry sink for PowerMirror.
//
// The device registry holds only the latest mirrored value per outlet.
// Every sensor or power delta applied from the live stream is also
// written here as a timestamped point, giving the deployment a
// queryable history of power, temperature, and humidity readings.
//
// Writes are non-blocking and batched; the sink degrades to a no-op
// when disabled or disconnected so the mirror never stalls on
// telemetry.
package tsdb
