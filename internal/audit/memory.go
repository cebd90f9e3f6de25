package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryLog is an in-memory Recorder used in tests and as the fallback when
// no database is attached (e.g. inside the sandboxed child process, which
// reports entries back over IPC instead of writing the store directly).
type MemoryLog struct {
	mu      sync.Mutex
	entries []*Entry
	nextID  int64
}

// NewMemoryLog creates an empty in-memory audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{nextID: 1}
}

// Record implements the Recorder interface.
func (m *MemoryLog) Record(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.ID = m.nextID
	m.nextID++

	m.entries = append(m.entries, entry)

	return nil
}

// Entries returns a snapshot copy of the recorded entries.
func (m *MemoryLog) Entries() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)

	return out
}
