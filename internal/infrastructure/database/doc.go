// Package database provides the SQLite connection wrapper for PowerMirror.
//
// PowerMirror persists only small amounts of local state (outlet positions
// on the floor plan); device state itself is mirrored from the backend and
// never written here. The wrapper configures WAL mode, busy timeout, and a
// single-writer connection pool suitable for SQLite.
package database
