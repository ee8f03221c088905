package tsdb

import "errors"

// Sentinel errors for telemetry sink operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, tsdb.ErrDisabled) {
//	    // Run without a telemetry sink
//	}
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("tsdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("tsdb: connection failed")

	// ErrDisabled indicates the telemetry sink is disabled in config.
	ErrDisabled = errors.New("tsdb: disabled in configuration")
)
