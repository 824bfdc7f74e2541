package preview

import (
	"sync"
	"time"
)

// Log stream tags
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamSystem = "system"
)

// LogEntry is one captured output line
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"`
	Line      string    `json:"line"`
}

// LogBuffer is a bounded, append-only ring of log entries. Appends from
// the stream drain goroutines and reads from status callers may happen
// concurrently. Once capacity is reached the oldest entries are dropped.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	start   int
	count   int
	total   int
}

// NewLogBuffer creates a buffer retaining at most capacity entries
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &LogBuffer{entries: make([]LogEntry, capacity)}
}

// Append records one line under the given stream tag
func (b *LogBuffer) Append(stream, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.count) % len(b.entries)
	b.entries[idx] = LogEntry{Timestamp: time.Now(), Stream: stream, Line: line}
	if b.count < len(b.entries) {
		b.count++
	} else {
		b.start = (b.start + 1) % len(b.entries)
	}
	b.total++
}

// Snapshot returns all retained entries in order
func (b *LogBuffer) Snapshot() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]LogEntry, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.entries[(b.start+i)%len(b.entries)]
	}
	return out
}

// Tail returns the most recent n entries
func (b *LogBuffer) Tail(n int) []LogEntry {
	all := b.Snapshot()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Reset drops all retained entries and rewinds the sequence counter.
// Streaming readers holding a cursor from before the reset resume from
// the current position.
func (b *LogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.count = 0
	b.total = 0
}

// Since returns entries appended at or after the given sequence number
// together with the next sequence number to poll from. Entries that were
// already evicted are silently skipped; a cursor past the end (the
// buffer was reset) is clamped to the current position.
func (b *LogBuffer) Since(seq int) ([]LogEntry, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldest := b.total - b.count
	if seq < oldest {
		seq = oldest
	}
	if seq > b.total {
		seq = b.total
	}
	out := make([]LogEntry, 0, b.total-seq)
	for s := seq; s < b.total; s++ {
		out = append(out, b.entries[(b.start+(s-oldest))%len(b.entries)])
	}
	return out, b.total
}

// Len returns the number of retained entries
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
