// Package eventlog provides the bounded system journal for PowerMirror.
//
// The journal records connection lifecycle events, applied and rejected
// stream messages, and periodic monitor findings. It keeps at most a fixed
// number of entries (500 by default), newest first; older entries are
// evicted silently. Entries can be filtered by type and by a
// case-insensitive search over message, source, and detail.
package eventlog
