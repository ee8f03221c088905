// Package monitor runs PowerMirror's periodic backend polls.
//
// Two cron schedules drive it: a frequent health poll that tracks
// backend reachability, request latency, and the server clock offset,
// and a slower energy refresh that pulls server-computed aggregates into
// the device registry. Daily energy series are fetched on demand and
// cached until invalidated or refreshed.
package monitor
