// Package backend is PowerMirror's client for the upstream REST API.
//
// The live stream is the authoritative source of device state; this
// package covers everything else the backend offers: relay control
// requests, the periodic health poll (with round-trip latency and clock
// offset), paginated system-log history, and energy aggregates and daily
// series. Control failures are surfaced to the caller because they
// represent a user action that did not take effect; history and
// aggregate fetches are plain request/response calls.
package backend
