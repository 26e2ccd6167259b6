// Package todo exposes the local-first mutation surface. Every write
// lands in the durable store first, then the optimistic cache, then the
// intent queue; reads never touch the network.
package todo

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/driftsync/drift/internal/cache"
	"github.com/driftsync/drift/internal/intent"
	"github.com/driftsync/drift/internal/store"
)

// Config holds service configuration.
type Config struct {
	// Table is the entity collection name (default: "todos")
	Table string

	// UserID owns every todo created through this service
	UserID string

	// Clock supplies timestamps; tests substitute a fixed one
	Clock func() time.Time

	// Logger for service activity
	Logger *log.Logger
}

// Service coordinates the store, the optimistic cache and the intent
// queue for user-facing mutations.
//
// Write order matters: a store failure aborts the whole mutation before
// anything optimistic becomes visible, so the cache never shows state the
// store could lose.
type Service struct {
	db     *store.DB
	queue  *intent.Queue
	cache  *cache.Cache
	table  string
	userID string
	now    func() time.Time
	logger *log.Logger
}

// NewService creates a todo service over the given collaborators.
func NewService(db *store.DB, queue *intent.Queue, stateCache *cache.Cache, config *Config) (*Service, error) {
	if config == nil {
		config = &Config{}
	}
	if config.UserID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	table := config.Table
	if table == "" {
		table = "todos"
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[todo] ", log.LstdFlags)
	}

	return &Service{
		db:     db,
		queue:  queue,
		cache:  stateCache,
		table:  table,
		userID: config.UserID,
		now:    now,
		logger: logger,
	}, nil
}

// Create makes a new todo under a temporary ID, visible immediately and
// queued for sync.
func (s *Service) Create(ctx context.Context, title, description string, dueAt *time.Time) (*store.Todo, error) {
	now := s.now().UnixMilli()
	todo := &store.Todo{
		ID:          intent.NewTempID(),
		UserID:      s.userID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if dueAt != nil {
		due := dueAt.UnixMilli()
		todo.DueAt = &due
	}
	if err := todo.Validate(); err != nil {
		return nil, err
	}

	if err := s.db.InsertTodoContext(ctx, todo); err != nil {
		return nil, fmt.Errorf("failed to save todo: %w", err)
	}
	s.cache.ApplyCreate(todo)

	if _, err := s.queue.EnqueueCreate(ctx, s.table, todo); err != nil {
		// Unwind: an unqueued optimistic entry would never sync.
		s.cache.Revert(todo.ID)
		if delErr := s.db.DeleteTodoContext(ctx, todo.ID); delErr != nil {
			s.logger.Printf("WARNING: failed to unwind create of %s: %v", todo.ID, delErr)
		}
		return nil, err
	}

	s.logger.Printf("Created todo %s (%q)", todo.ID, todo.Title)
	return todo.Clone(), nil
}

// Update applies a partial update to an existing todo.
func (s *Service) Update(ctx context.Context, id string, patch *store.TodoPatch) (*store.Todo, error) {
	if patch == nil || patch.IsZero() {
		return nil, fmt.Errorf("nothing to update")
	}
	before, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("todo %s: %w", id, store.ErrNotFound)
	}

	if err := s.db.UpdateTodoContext(ctx, id, patch, s.now().UnixMilli()); err != nil {
		return nil, err
	}
	if err := s.cache.ApplyUpdate(id, patch); err != nil {
		return nil, err
	}

	if _, err := s.queue.EnqueueUpdate(ctx, s.table, id, patch); err != nil {
		// Unwind: an unqueued change would never sync and never revert.
		s.cache.RestoreEntry(before)
		if putErr := s.db.PutTodoContext(ctx, before.Todo); putErr != nil {
			s.logger.Printf("WARNING: failed to unwind update of %s: %v", id, putErr)
		}
		return nil, err
	}

	entry, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("todo %s: %w", id, store.ErrNotFound)
	}
	s.logger.Printf("Updated todo %s", id)
	return entry.Todo, nil
}

// Complete marks a todo done.
func (s *Service) Complete(ctx context.Context, id string) (*store.Todo, error) {
	done := true
	return s.Update(ctx, id, &store.TodoPatch{Completed: &done})
}

// Delete removes a todo locally and queues the remote delete. Deleting a
// todo whose create has not yet synced still queues the delete; the sync
// engine holds it back until the create confirms.
func (s *Service) Delete(ctx context.Context, id string) error {
	before, ok := s.cache.Get(id)
	if !ok {
		return fmt.Errorf("todo %s: %w", id, store.ErrNotFound)
	}
	if err := s.cache.ApplyDelete(id); err != nil {
		return err
	}
	if err := s.db.DeleteTodoContext(ctx, id); err != nil {
		s.cache.RestoreEntry(before)
		return err
	}

	if _, err := s.queue.EnqueueDelete(ctx, s.table, id); err != nil {
		// Unwind: with no queued intent the delete would never reach the
		// remote, leaving the entity gone locally but alive remotely.
		s.cache.RestoreEntry(before)
		if putErr := s.db.PutTodoContext(ctx, before.Todo); putErr != nil {
			s.logger.Printf("WARNING: failed to unwind delete of %s: %v", id, putErr)
		}
		return err
	}
	s.logger.Printf("Deleted todo %s", id)
	return nil
}

// Get returns a single todo from the optimistic view.
func (s *Service) Get(id string) (*store.Todo, error) {
	entry, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("todo %s: %w", id, store.ErrNotFound)
	}
	return entry.Todo, nil
}

// List returns the optimistic view of all todos, oldest first.
func (s *Service) List() []cache.Entry {
	return s.cache.Snapshot()
}

// Stats returns the maintained counters for the optimistic view.
func (s *Service) Stats() cache.Stats {
	return s.cache.Stats()
}

// Restore rebuilds the optimistic cache from the durable store after a
// restart. Store rows already reflect optimistic writes (the store is
// written through before the cache), so reloading them restores the
// user's view; pending intents then re-flag their entries as awaiting
// confirmation.
//
// Pre-images of unconfirmed updates do not survive a restart. If such an
// update is later abandoned, the optimistic value stays in place instead
// of rolling back.
func (s *Service) Restore(ctx context.Context) error {
	todos, err := s.db.ListTodosContext(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("failed to load todos: %w", err)
	}
	s.cache.Reload(todos)

	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending intents: %w", err)
	}
	for _, in := range pending {
		if in.Op == intent.OpDelete {
			// The row is already gone from the store; nothing to flag.
			continue
		}
		s.cache.MarkOptimistic(in.EntityID())
	}

	s.logger.Printf("Restored %d todos, %d pending intents", len(todos), len(pending))
	return nil
}
