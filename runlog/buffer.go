// Package runlog holds the operator-facing log of the active and past runs.
package runlog

import (
	"sync"
	"time"

	"github.com/bennhub/playwright-command-center/model"
)

// DefaultCapacity is the number of log lines retained when none is configured.
const DefaultCapacity = 1500

// Buffer is a bounded, append-only sequence of log entries. Oldest entries are
// dropped once capacity is reached.
type Buffer struct {
	capacity int
	now      func() time.Time

	mu      sync.RWMutex
	entries []model.LogEntry
	start   int
	size    int
	nextID  int64
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		now:      time.Now,
		entries:  make([]model.LogEntry, capacity),
		nextID:   1,
	}
}

// Append stores a new line and returns it with its id and timestamp assigned.
func (b *Buffer) Append(level model.LogLevel, message string) model.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := model.LogEntry{
		ID:      b.nextID,
		TS:      b.now(),
		Level:   level,
		Message: message,
	}
	b.nextID++

	if b.size < b.capacity {
		b.entries[(b.start+b.size)%b.capacity] = entry
		b.size++
	} else {
		b.entries[b.start] = entry
		b.start = (b.start + 1) % b.capacity
	}
	return entry
}

// Snapshot returns the retained entries, oldest first.
func (b *Buffer) Snapshot() []model.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.LogEntry, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.entries[(b.start+i)%b.capacity]
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Buffer) Capacity() int {
	return b.capacity
}
