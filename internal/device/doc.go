// Package device holds the mirrored device registry for PowerMirror.
//
// The registry is the single source of truth for device state as pushed by
// the backend: full roster snapshots replace its contents, partial deltas
// keyed by MAC mutate single devices in place, and the derived PowerSummary
// is recomputed from the live set on demand. Outlet positions on the floor
// plan follow device lifecycle and are the only locally-originated state,
// optionally persisted through a PositionRepository.
//
// All registry operations are total functions: unknown identifiers and
// MACs degrade to no-ops rather than errors, because partial updates race
// naturally with roster replacement.
package device
