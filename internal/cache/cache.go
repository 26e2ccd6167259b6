// Package cache provides the in-memory optimistic projection of todos.
//
// The cache is what the UI layer reads: confirmed state from the durable
// store plus not-yet-confirmed ("optimistic") local mutations. It is never
// durable; after a restart it is rebuilt by reloading the store and
// replaying pending intents.
//
// All mutation entry points serialize on one mutex (single-writer
// contract); reads take snapshots. Aggregate counters are maintained
// incrementally and must always equal a full recomputation over the
// visible set.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/driftsync/drift/internal/store"
)

// Entry is a todo as seen by the UI, with transient optimistic fields.
// These fields exist only in memory and are stripped on confirmation.
type Entry struct {
	Todo *store.Todo

	// IsOptimistic is true while the mutation behind this entry awaits
	// remote confirmation.
	IsOptimistic bool

	// OriginalID is the temp ID the entry was created under, kept through
	// re-updates so confirmations can still find it.
	OriginalID string
}

// Stats aggregates the visible set.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	Overdue   int `json:"overdue"`
}

// Cache is the optimistic state cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// priors holds pre-optimistic snapshots for updates, keyed by entity
	// ID, so Revert can roll back to the last confirmed value.
	priors map[string]*store.Todo

	// tombstones holds entities removed by an optimistic delete, so
	// Revert can restore them if the delete never confirms.
	tombstones map[string]*store.Todo

	stats Stats
	now   func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return NewWithClock(time.Now)
}

// NewWithClock creates a cache using the given time source for overdue
// classification. Tests pass a fixed clock.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{
		entries:    make(map[string]*Entry),
		priors:     make(map[string]*store.Todo),
		tombstones: make(map[string]*store.Todo),
		now:        now,
	}
}

// Reload replaces the visible set with confirmed state from the store.
// All optimistic bookkeeping is discarded; callers replay pending intents
// afterwards to restore the optimistic view.
func (c *Cache) Reload(todos []*store.Todo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry, len(todos))
	c.priors = make(map[string]*store.Todo)
	c.tombstones = make(map[string]*store.Todo)
	for _, todo := range todos {
		c.entries[todo.ID] = &Entry{Todo: todo.Clone()}
	}
	c.stats = c.recomputeLocked()
	c.stats.Overdue = 0
}

// ApplyCreate inserts an optimistic entity under its temp ID. The counters
// are updated as if the create were already real. Never blocks on network.
func (c *Cache) ApplyCreate(todo *store.Todo) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &Entry{
		Todo:         todo.Clone(),
		IsOptimistic: true,
		OriginalID:   todo.ID,
	}
	c.entries[todo.ID] = entry
	c.addToStats(entry.Todo, 1)
	return todo.ID
}

// ApplyUpdate merges a partial update into the entity in place and marks
// it optimistic. The pre-optimistic value is retained for Revert; a
// re-update of an already-optimistic entry keeps the original pre-image
// and OriginalID.
func (c *Cache) ApplyUpdate(id string, patch *store.TodoPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("todo %s: %w", id, store.ErrNotFound)
	}

	if _, kept := c.priors[id]; !kept && !entry.IsOptimistic {
		c.priors[id] = entry.Todo.Clone()
	}

	c.addToStats(entry.Todo, -1)
	patch.Apply(entry.Todo, c.now())
	c.addToStats(entry.Todo, 1)

	entry.IsOptimistic = true
	if entry.OriginalID == "" {
		entry.OriginalID = id
	}
	return nil
}

// ApplyDelete removes the entity from the visible set immediately. The
// removed value is kept as a tombstone so Revert can restore it.
func (c *Cache) ApplyDelete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("todo %s: %w", id, store.ErrNotFound)
	}

	c.addToStats(entry.Todo, -1)
	delete(c.entries, id)

	if prior, kept := c.priors[id]; kept {
		c.tombstones[id] = prior
		delete(c.priors, id)
	} else {
		c.tombstones[id] = entry.Todo
	}
	return nil
}

// Confirm replaces the entry keyed by id (typically a temp ID) with the
// authoritative entity, clearing optimistic bookkeeping. Confirming an id
// that is no longer tracked is a no-op, not an error.
func (c *Cache) Confirm(id string, authoritative *store.Todo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		// The entry may have been deleted locally while the confirmation
		// was in flight, or confirmed already.
		return
	}

	c.addToStats(entry.Todo, -1)
	delete(c.entries, id)
	delete(c.priors, id)

	confirmed := authoritative.Clone()
	confirmed.Synced = true
	c.entries[confirmed.ID] = &Entry{Todo: confirmed}
	c.addToStats(confirmed, 1)
}

// MarkOptimistic flags an existing entry as awaiting remote confirmation
// without recording a pre-image. Used when rebuilding after a restart,
// where the pre-optimistic value is no longer recoverable. Unknown IDs
// are ignored.
func (c *Cache) MarkOptimistic(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return
	}
	entry.IsOptimistic = true
	if entry.OriginalID == "" {
		entry.OriginalID = id
	}
}

// ConfirmDelete drops the tombstone for a remotely confirmed delete.
// Idempotent.
func (c *Cache) ConfirmDelete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tombstones, id)
}

// Revert undoes the optimistic mutation tracked under id: an unconfirmed
// create disappears, an unconfirmed update rolls back to its pre-image,
// and an unconfirmed delete restores the tombstoned value. An update
// whose pre-image did not survive (the cache was rebuilt after a restart)
// keeps its current value and merely stops being optimistic. Safe to call
// after the entry was already confirmed or reverted (no-op).
func (c *Cache) Revert(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prior, ok := c.tombstones[id]; ok {
		delete(c.tombstones, id)
		c.entries[id] = &Entry{Todo: prior.Clone()}
		c.addToStats(prior, 1)
		return
	}

	entry, ok := c.entries[id]
	if !ok || !entry.IsOptimistic {
		return
	}

	if prior, kept := c.priors[id]; kept {
		delete(c.priors, id)
		c.addToStats(entry.Todo, -1)
		c.entries[id] = &Entry{Todo: prior.Clone()}
		c.addToStats(prior, 1)
		return
	}

	if strings.HasPrefix(id, store.TempIDPrefix) {
		// Unconfirmed create: the entity never existed outside this cache.
		c.addToStats(entry.Todo, -1)
		delete(c.entries, id)
		return
	}

	// A confirmed entity with no recoverable pre-image. The optimistic
	// value is the only value left, so it stays.
	entry.IsOptimistic = false
	entry.OriginalID = ""
}

// RestoreEntry reinstates a previously captured entry, discarding whatever
// mutation replaced it since. Write-through callers use it to unwind an
// optimistic apply whose intent could not be queued.
func (c *Cache) RestoreEntry(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := e.Todo.ID
	if cur, ok := c.entries[id]; ok {
		c.addToStats(cur.Todo, -1)
	}
	restored := &Entry{
		Todo:         e.Todo.Clone(),
		IsOptimistic: e.IsOptimistic,
		OriginalID:   e.OriginalID,
	}
	c.entries[id] = restored
	c.addToStats(restored.Todo, 1)
	if !e.IsOptimistic {
		delete(c.priors, id)
	}
	delete(c.tombstones, id)
}

// Get returns a copy of the entry for id, or false if not visible.
func (c *Cache) Get(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Todo:         entry.Todo.Clone(),
		IsOptimistic: entry.IsOptimistic,
		OriginalID:   entry.OriginalID,
	}, true
}

// Snapshot returns a copy of the visible set, oldest first.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, Entry{
			Todo:         entry.Todo.Clone(),
			IsOptimistic: entry.IsOptimistic,
			OriginalID:   entry.OriginalID,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Todo.CreatedAt != entries[j].Todo.CreatedAt {
			return entries[i].Todo.CreatedAt < entries[j].Todo.CreatedAt
		}
		return entries[i].Todo.ID < entries[j].Todo.ID
	})
	return entries
}

// Len returns the number of visible entities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the aggregate counters. Total, Completed and Pending are
// maintained incrementally; Overdue is evaluated against the clock at
// read time, so it moves when a due date passes with no mutation in
// between.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Overdue = 0
	now := c.now()
	for _, entry := range c.entries {
		if entry.Todo.Overdue(now) {
			stats.Overdue++
		}
	}
	return stats
}

// RecomputeStats walks the visible set and returns fresh counters. The
// result must always equal Stats(); tests assert this after arbitrary
// operation sequences.
func (c *Cache) RecomputeStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recomputeLocked()
}

func (c *Cache) recomputeLocked() Stats {
	var stats Stats
	now := c.now()
	for _, entry := range c.entries {
		stats.Total++
		if entry.Todo.Completed {
			stats.Completed++
		} else {
			stats.Pending++
		}
		if entry.Todo.Overdue(now) {
			stats.Overdue++
		}
	}
	return stats
}

// addToStats applies one todo's contribution to the incremental counters
// with the given sign (+1 on insert, -1 on removal). Overdue is excluded:
// it depends on the clock, not just the mutation history.
func (c *Cache) addToStats(todo *store.Todo, sign int) {
	c.stats.Total += sign
	if todo.Completed {
		c.stats.Completed += sign
	} else {
		c.stats.Pending += sign
	}
}
