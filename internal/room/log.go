package room

import (
	"sync"
	"time"

	"github.com/voxroom/voxroom/pkg/types"
)

const defaultLogCap = 1000

// LogEntry is one utterance in a room's conversation history.
type LogEntry struct {
	Origin string
	Kind   types.ParticipantKind
	Text   string
	// Confidence is the recognizer's score for human entries; agent entries
	// carry 1.
	Confidence float64
	Timestamp  time.Time
}

// Log is a bounded in-memory conversation history. Oldest entries are evicted
// once the capacity is reached. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	cap     int
	entries []LogEntry
}

// NewLog creates a log holding at most capacity entries. Non-positive
// capacity uses the default of 1000.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = defaultLogCap
	}
	return &Log{cap: capacity}
}

// Append records an entry, evicting the oldest when full.
func (l *Log) Append(e LogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
}

// Recent returns up to n most recent entries, oldest first. n <= 0 returns
// everything retained.
func (l *Log) Recent(n int) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]LogEntry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
