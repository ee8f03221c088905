// Package logging provides structured logging for PowerMirror.
//
// It wraps log/slog with configuration-driven format and level selection,
// and stamps every record with the service name and version.
package logging
