package mqtt

import "errors"

// Sentinel errors for MQTT operations.
//
// These errors can be checked using errors.Is() for specific handling.
var (
	// ErrNotConnected indicates the client is not connected to the broker.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrSubscribeFailed indicates a subscription was rejected or timed out.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS indicates an unsupported QoS level was requested.
	ErrInvalidQoS = errors.New("mqtt: invalid qos level")

	// ErrDisabled indicates the direct broker source is disabled in config.
	ErrDisabled = errors.New("mqtt: disabled in configuration")
)
