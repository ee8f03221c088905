package eventlog

import (
	"strings"
	"sync"
	"time"
)

// DefaultMaxEntries is the journal capacity when none is configured.
const DefaultMaxEntries = 500

// Entry types categorise journal entries for filtering.
const (
	TypeConnection = "CONNECTION"
	TypeMessage    = "MESSAGE"
	TypeError      = "ERROR"
	TypeSystem     = "SYSTEM"
)

// Entry levels indicate severity.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Entry is a single journal record.
type Entry struct {
	// ID is a monotonically increasing identifier, unique per journal instance.
	ID int64 `json:"id"`

	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Type is one of the Type* constants.
	Type string `json:"type"`

	// Level is one of the Level* constants.
	Level string `json:"level"`

	// Source names the component that produced the entry (e.g. "stream", "monitor").
	Source string `json:"source"`

	// Message is the human-readable summary.
	Message string `json:"message"`

	// Detail carries optional supporting data, such as a raw frame.
	Detail string `json:"detail,omitempty"`
}

// Journal is a bounded, newest-first record of operational events.
//
// Appending beyond capacity evicts the oldest entries; the newest entry is
// always at index 0. All methods are safe for concurrent use.
type Journal struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
	nextID  int64
}

// New creates a journal holding at most max entries.
// A max of zero or less falls back to DefaultMaxEntries.
func New(max int) *Journal {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Journal{
		entries: make([]Entry, 0, max),
		max:     max,
	}
}

// Append records an entry at the head of the journal, evicting the oldest
// entry if the journal is full. The entry's ID and Timestamp are assigned
// here; callers supply type, level, source, message, and optional detail.
func (j *Journal) Append(entryType, level, source, message, detail string) Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.nextID++
	e := Entry{
		ID:        j.nextID,
		Timestamp: time.Now(),
		Type:      entryType,
		Level:     level,
		Source:    source,
		Message:   message,
		Detail:    detail,
	}

	j.entries = append([]Entry{e}, j.entries...)
	if len(j.entries) > j.max {
		j.entries = j.entries[:j.max]
	}

	return e
}

// Entries returns a copy of all entries, newest first.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Filter returns entries matching the given type and search term, newest
// first. An empty entryType matches all types. The search term is matched
// case-insensitively against Message, Source, and Detail; empty matches all.
func (j *Journal) Filter(entryType, search string) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	needle := strings.ToLower(search)
	out := make([]Entry, 0, len(j.entries))
	for _, e := range j.entries {
		if entryType != "" && e.Type != entryType {
			continue
		}
		if needle != "" && !matchesSearch(e, needle) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// matchesSearch reports whether the lowercased needle appears in the
// entry's message, source, or detail.
func matchesSearch(e Entry, needle string) bool {
	return strings.Contains(strings.ToLower(e.Message), needle) ||
		strings.Contains(strings.ToLower(e.Source), needle) ||
		strings.Contains(strings.ToLower(e.Detail), needle)
}

// Clear removes all entries. Entry IDs continue from where they left off.
func (j *Journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = j.entries[:0]
}

// Len returns the current number of entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Cap returns the configured maximum number of entries.
func (j *Journal) Cap() int {
	return j.max
}
