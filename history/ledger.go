// Package history keeps the bounded, most-recent-first log of run attempts.
package history

import (
	"sync"
	"time"

	"github.com/bennhub/playwright-command-center/model"
	"github.com/rs/zerolog"
)

// DefaultCapacity is the number of attempts retained when no capacity is configured.
const DefaultCapacity = 300

// Store persists attempts beyond the lifetime of the process.
type Store interface {
	Save(attempt model.RunAttempt) error
	Prune(keep int) error
}

// Ledger is a bounded ring of RunAttempts, newest first.
//
// Only the supervisor mutates it; everything else reads snapshots.
type Ledger struct {
	logger   zerolog.Logger
	store    Store
	capacity int

	mu      sync.RWMutex
	entries []model.RunAttempt
	nextID  int64
}

// NewLedger creates an empty ledger. store may be nil for memory-only history.
func NewLedger(logger zerolog.Logger, capacity int, store Store) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		logger:   logger,
		store:    store,
		capacity: capacity,
		nextID:   1,
	}
}

// Restore seeds the ledger with previously persisted attempts (newest first).
// Attempts still marked running belonged to a process that no longer exists;
// they are resolved as failed at now and returned.
func (l *Ledger) Restore(entries []model.RunAttempt, now time.Time) []model.RunAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(entries) > l.capacity {
		entries = entries[:l.capacity]
	}

	var orphaned []model.RunAttempt
	l.entries = make([]model.RunAttempt, 0, len(entries))
	for _, e := range entries {
		if e.Status == model.RunStatusRunning {
			e.Resolve(model.Resolution{EndedAt: now})
			orphaned = append(orphaned, e)
			l.persist(e)
		}
		if e.ID >= l.nextID {
			l.nextID = e.ID + 1
		}
		l.entries = append(l.entries, e)
	}
	return orphaned
}

// Add assigns the next id to entry, inserts it at the head and evicts the
// oldest entries past capacity. The stored entry is returned.
func (l *Ledger) Add(entry model.RunAttempt) model.RunAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.ID = l.nextID
	l.nextID++

	l.entries = append(l.entries, model.RunAttempt{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = entry

	evicted := len(l.entries) > l.capacity
	if evicted {
		l.entries = l.entries[:l.capacity]
	}

	l.persist(entry)
	if evicted && l.store != nil {
		if err := l.store.Prune(l.capacity); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to prune history store")
		}
	}
	return entry
}

// Update applies patch to the entry with the given id in place. It reports
// whether the entry was found; an evicted id is silently ignored.
func (l *Ledger) Update(id int64, patch func(*model.RunAttempt)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].ID == id {
			patch(&l.entries[i])
			l.entries[i].ID = id
			l.persist(l.entries[i])
			return true
		}
	}
	return false
}

// Get returns the entry with the given id.
func (l *Ledger) Get(id int64) (model.RunAttempt, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries {
		if e.ID == id {
			return e, true
		}
	}
	return model.RunAttempt{}, false
}

// LastFailed returns the most recent failed attempt, or nil.
func (l *Ledger) LastFailed() *model.RunAttempt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastFailedLocked()
}

func (l *Ledger) lastFailedLocked() *model.RunAttempt {
	for _, e := range l.entries {
		if e.Status == model.RunStatusFailed {
			found := e
			return &found
		}
	}
	return nil
}

// Snapshot returns a copy of the full history together with the last failure.
func (l *Ledger) Snapshot() model.HistorySnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]model.RunAttempt, len(l.entries))
	copy(entries, l.entries)
	return model.HistorySnapshot{
		History:    entries,
		LastFailed: l.lastFailedLocked(),
	}
}

// Len returns the number of retained entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Capacity returns the maximum number of retained entries.
func (l *Ledger) Capacity() int {
	return l.capacity
}

func (l *Ledger) persist(entry model.RunAttempt) {
	if l.store == nil {
		return
	}
	// Non-fatal: the in-memory ledger stays authoritative.
	if err := l.store.Save(entry); err != nil {
		l.logger.Warn().Err(err).Int64("id", entry.ID).Msg("Failed to persist run attempt")
	}
}
