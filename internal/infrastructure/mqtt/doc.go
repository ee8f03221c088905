// Package mqtt provides the optional direct broker source for PowerMirror.
//
// In the usual deployment the backend subscribes to the broker and relays
// device frames over its WebSocket, which internal/stream consumes. When
// PowerMirror runs next to the broker without that relay, this package
// subscribes to the device topic directly and feeds the same raw payloads
// into the stream dispatcher.
//
// Subscriptions survive reconnects; handlers run with panic recovery so a
// malformed payload can never take down the client.
package mqtt
