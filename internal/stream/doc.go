// Package stream implements the live-state synchronization client.
//
// The client owns one logical WebSocket connection to the backend's
// device stream. Inbound frames are decoded at the boundary into a closed
// set of variants (heartbeat, roster snapshot, partial delta, relayed
// broker message, unparseable) and dispatched into the device registry
// and the system journal. Malformed frames are journalled and dropped;
// they never terminate the connection.
//
// Disconnects schedule exactly one fixed-delay reconnect, retried without
// limit until Close. Close is terminal: it cancels the pending timer,
// closes the socket, and discards any frame still in flight.
package stream
