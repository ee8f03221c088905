package eventlog

import (
	"fmt"
	"testing"
)

func TestJournal_AppendNewestFirst(t *testing.T) {
	j := New(10)
	j.Append(TypeConnection, LevelInfo, "stream", "first", "")
	j.Append(TypeMessage, LevelInfo, "stream", "second", "")
	j.Append(TypeError, LevelError, "stream", "third", "")

	entries := j.Entries()
	if len(entries) != 3 {
		t.Fatalf("Len = %d, want 3", len(entries))
	}
	if entries[0].Message != "third" || entries[2].Message != "first" {
		t.Errorf("order = [%s, %s, %s], want newest first",
			entries[0].Message, entries[1].Message, entries[2].Message)
	}
}

func TestJournal_EvictsOldestAtCapacity(t *testing.T) {
	j := New(500)
	for i := 0; i < 501; i++ {
		j.Append(TypeMessage, LevelInfo, "stream", fmt.Sprintf("entry-%d", i), "")
	}

	if j.Len() != 500 {
		t.Fatalf("Len = %d, want 500", j.Len())
	}
	entries := j.Entries()
	if entries[0].Message != "entry-500" {
		t.Errorf("newest = %q, want entry-500", entries[0].Message)
	}
	if entries[499].Message != "entry-1" {
		t.Errorf("oldest = %q, want entry-1 (entry-0 evicted)", entries[499].Message)
	}
}

func TestJournal_IDsMonotonic(t *testing.T) {
	j := New(2)
	a := j.Append(TypeSystem, LevelInfo, "main", "a", "")
	b := j.Append(TypeSystem, LevelInfo, "main", "b", "")
	j.Clear()
	c := j.Append(TypeSystem, LevelInfo, "main", "c", "")

	if !(a.ID < b.ID && b.ID < c.ID) {
		t.Errorf("IDs not monotonic: %d, %d, %d", a.ID, b.ID, c.ID)
	}
}

func TestJournal_Filter(t *testing.T) {
	j := New(10)
	j.Append(TypeConnection, LevelInfo, "stream", "connected to backend", "")
	j.Append(TypeMessage, LevelInfo, "stream", "delta applied", "AA:BB:CC:DD:EE:01")
	j.Append(TypeError, LevelError, "monitor", "health poll failed", "")

	tests := []struct {
		name      string
		entryType string
		search    string
		want      int
	}{
		{"no filter", "", "", 3},
		{"by type", TypeMessage, "", 1},
		{"by search in message", "", "CONNECTED", 1},
		{"by search in source", "", "monitor", 1},
		{"by search in detail", "", "aa:bb", 1},
		{"type and search", TypeConnection, "backend", 1},
		{"type excludes search match", TypeError, "backend", 0},
		{"no match", "", "zzz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := j.Filter(tt.entryType, tt.search)
			if len(got) != tt.want {
				t.Errorf("Filter(%q, %q) returned %d entries, want %d",
					tt.entryType, tt.search, len(got), tt.want)
			}
		})
	}
}

func TestJournal_ZeroMaxUsesDefault(t *testing.T) {
	j := New(0)
	if j.Cap() != DefaultMaxEntries {
		t.Errorf("Cap() = %d, want %d", j.Cap(), DefaultMaxEntries)
	}
}

func TestJournal_Clear(t *testing.T) {
	j := New(10)
	j.Append(TypeSystem, LevelInfo, "main", "x", "")
	j.Clear()
	if j.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", j.Len())
	}
}
