package todo

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftsync/drift/internal/cache"
	"github.com/driftsync/drift/internal/intent"
	"github.com/driftsync/drift/internal/store"
)

func testService(t *testing.T) (*Service, *store.DB, *intent.Queue, *cache.Cache) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "drift.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}

	discard := log.New(io.Discard, "", 0)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	queue := intent.NewQueue(db, &intent.Config{MaxRetries: 3, Logger: discard})
	stateCache := cache.NewWithClock(func() time.Time { return fixed })

	svc, err := NewService(db, queue, stateCache, &Config{
		UserID: "user-1",
		Clock:  func() time.Time { return fixed },
		Logger: discard,
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return svc, db, queue, stateCache
}

// TestService_CreateWritesThrough verifies a create lands in all three
// layers: store row, optimistic cache entry, queued intent.
func TestService_CreateWritesThrough(t *testing.T) {
	svc, db, queue, stateCache := testService(t)
	ctx := context.Background()

	todo, err := svc.Create(ctx, "Buy milk", "2% if they have it", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !todo.IsTemp() {
		t.Errorf("Expected temp ID, got %q", todo.ID)
	}

	if _, err := db.GetTodo(todo.ID); err != nil {
		t.Errorf("Expected store row: %v", err)
	}

	entry, ok := stateCache.Get(todo.ID)
	if !ok {
		t.Fatal("Expected cache entry")
	}
	if !entry.IsOptimistic {
		t.Error("Expected entry to be optimistic")
	}

	pending, err := queue.Pending(ctx)
	if err != nil {
		t.Fatalf("Failed to read queue: %v", err)
	}
	if len(pending) != 1 || pending[0].Op != intent.OpCreate {
		t.Errorf("Expected one queued create, got %v", pending)
	}
}

// TestService_CreateValidation verifies an invalid create leaves nothing
// behind.
func TestService_CreateValidation(t *testing.T) {
	svc, db, queue, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "", "", nil); err == nil {
		t.Fatal("Expected error for empty title")
	}
	if _, err := svc.Create(ctx, "   ", "", nil); err == nil {
		t.Fatal("Expected error for whitespace title")
	}

	if n, _ := db.CountTodos("user-1"); n != 0 {
		t.Errorf("Expected no store rows, got %d", n)
	}
	if n, _ := queue.Len(ctx); n != 0 {
		t.Errorf("Expected empty queue, got %d", n)
	}
}

// TestService_CreateWithDueDate verifies the optional due date is carried
// through as Unix milliseconds.
func TestService_CreateWithDueDate(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	due := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	todo, err := svc.Create(ctx, "Dentist", "", &due)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if todo.DueAt == nil || *todo.DueAt != due.UnixMilli() {
		t.Errorf("DueAt = %v, want %d", todo.DueAt, due.UnixMilli())
	}
}

// TestService_UpdateWritesThrough verifies an update reaches store, cache
// and queue, and the returned todo reflects the patch.
func TestService_UpdateWritesThrough(t *testing.T) {
	svc, db, queue, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "Buy milk", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	title := "Buy oat milk"
	updated, err := svc.Update(ctx, created.ID, &store.TodoPatch{Title: &title})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Title != title {
		t.Errorf("Title = %q, want %q", updated.Title, title)
	}

	stored, err := db.GetTodo(created.ID)
	if err != nil {
		t.Fatalf("Failed to read store: %v", err)
	}
	if stored.Title != title {
		t.Errorf("Store title = %q, want %q", stored.Title, title)
	}
	if stored.Synced {
		t.Error("Expected updated row to be unsynced")
	}

	if n, _ := queue.Len(ctx); n != 2 {
		t.Errorf("Expected create + update queued, got %d", n)
	}
}

// TestService_UpdateMissing verifies updating an unknown ID fails cleanly.
func TestService_UpdateMissing(t *testing.T) {
	svc, _, _, _ := testService(t)

	title := "nope"
	_, err := svc.Update(context.Background(), "missing", &store.TodoPatch{Title: &title})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestService_UpdateEmptyPatch verifies a no-op patch is rejected before
// touching any layer.
func TestService_UpdateEmptyPatch(t *testing.T) {
	svc, _, queue, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "Buy milk", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := svc.Update(ctx, created.ID, &store.TodoPatch{}); err == nil {
		t.Error("Expected error for empty patch")
	}
	if _, err := svc.Update(ctx, created.ID, nil); err == nil {
		t.Error("Expected error for nil patch")
	}
	if n, _ := queue.Len(ctx); n != 1 {
		t.Errorf("Expected only the create queued, got %d", n)
	}
}

// flakyStorage wraps the real queue storage and fails intent inserts on
// demand.
type flakyStorage struct {
	intent.Storage
	failInserts bool
}

func (s *flakyStorage) InsertIntentContext(ctx context.Context, row *store.IntentRow) error {
	if s.failInserts {
		return errors.New("storage unavailable")
	}
	return s.Storage.InsertIntentContext(ctx, row)
}

func testServiceWithFlakyQueue(t *testing.T) (*Service, *store.DB, *intent.Queue, *cache.Cache, *flakyStorage) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "drift.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}

	discard := log.New(io.Discard, "", 0)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	flaky := &flakyStorage{Storage: db}
	queue := intent.NewQueue(flaky, &intent.Config{MaxRetries: 3, Logger: discard})
	stateCache := cache.NewWithClock(func() time.Time { return fixed })

	svc, err := NewService(db, queue, stateCache, &Config{
		UserID: "user-1",
		Clock:  func() time.Time { return fixed },
		Logger: discard,
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return svc, db, queue, stateCache, flaky
}

// TestService_UpdateEnqueueFailureUnwinds verifies a failed enqueue rolls
// the update back out of the store and the cache; a change with no intent
// behind it would otherwise never sync and never revert.
func TestService_UpdateEnqueueFailureUnwinds(t *testing.T) {
	svc, db, queue, stateCache, flaky := testServiceWithFlakyQueue(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "Buy milk", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	flaky.failInserts = true
	title := "Buy oat milk"
	if _, err := svc.Update(ctx, created.ID, &store.TodoPatch{Title: &title}); err == nil {
		t.Fatal("Expected update to fail when the intent cannot be queued")
	}

	entry, ok := stateCache.Get(created.ID)
	if !ok {
		t.Fatal("Expected cache entry to survive the unwind")
	}
	if entry.Todo.Title != "Buy milk" {
		t.Errorf("Cache title = %q, want the pre-update value", entry.Todo.Title)
	}
	if !entry.IsOptimistic {
		t.Error("Expected entry to stay optimistic: its create is still queued")
	}

	stored, err := db.GetTodo(created.ID)
	if err != nil {
		t.Fatalf("Failed to read store: %v", err)
	}
	if stored.Title != "Buy milk" {
		t.Errorf("Store title = %q, want the pre-update value", stored.Title)
	}

	if n, _ := queue.Len(ctx); n != 1 {
		t.Errorf("Expected only the create queued, got %d", n)
	}
}

// TestService_DeleteEnqueueFailureUnwinds verifies a failed enqueue
// re-inserts the deleted todo in both the store and the cache.
func TestService_DeleteEnqueueFailureUnwinds(t *testing.T) {
	svc, db, queue, stateCache, flaky := testServiceWithFlakyQueue(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "Buy milk", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	flaky.failInserts = true
	if err := svc.Delete(ctx, created.ID); err == nil {
		t.Fatal("Expected delete to fail when the intent cannot be queued")
	}

	if _, ok := stateCache.Get(created.ID); !ok {
		t.Error("Expected todo restored in cache after the unwind")
	}
	if _, err := db.GetTodo(created.ID); err != nil {
		t.Errorf("Expected todo restored in store: %v", err)
	}
	if n, _ := queue.Len(ctx); n != 1 {
		t.Errorf("Expected only the create queued, got %d", n)
	}
}

// TestService_Complete verifies the completion shortcut flips the flag and
// the stats counter.
func TestService_Complete(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "Buy milk", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	done, err := svc.Complete(ctx, created.ID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !done.Completed {
		t.Error("Expected todo to be completed")
	}

	stats := svc.Stats()
	if stats.Completed != 1 || stats.Pending != 0 {
		t.Errorf("Stats = %+v, want 1 completed, 0 pending", stats)
	}
}

// TestService_DeleteWritesThrough verifies a delete hides the todo
// immediately and queues the remote delete.
func TestService_DeleteWritesThrough(t *testing.T) {
	svc, db, queue, stateCache := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "Buy milk", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, ok := stateCache.Get(created.ID); ok {
		t.Error("Expected todo hidden from cache")
	}
	if _, err := db.GetTodo(created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected store row gone, got err=%v", err)
	}

	pending, err := queue.Pending(ctx)
	if err != nil {
		t.Fatalf("Failed to read queue: %v", err)
	}
	if len(pending) != 2 || pending[1].Op != intent.OpDelete {
		t.Errorf("Expected create + delete queued, got %v", pending)
	}
}

// TestService_DeleteMissing verifies deleting an unknown ID fails cleanly.
func TestService_DeleteMissing(t *testing.T) {
	svc, _, _, _ := testService(t)

	if err := svc.Delete(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestService_ListOrder verifies List returns the optimistic view oldest
// first.
func TestService_ListOrder(t *testing.T) {
	svc, _, _, _ := testService(t)
	ctx := context.Background()

	first, _ := svc.Create(ctx, "first", "", nil)
	second, _ := svc.Create(ctx, "second", "", nil)

	entries := svc.List()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	// Same fixed-clock timestamp: ties break on ID.
	wantFirst, wantSecond := first.ID, second.ID
	if wantSecond < wantFirst {
		wantFirst, wantSecond = wantSecond, wantFirst
	}
	if entries[0].Todo.ID != wantFirst || entries[1].Todo.ID != wantSecond {
		t.Errorf("Order = [%s %s], want [%s %s]",
			entries[0].Todo.ID, entries[1].Todo.ID, wantFirst, wantSecond)
	}
}

// TestService_RestoreRebuildsView verifies a fresh cache over the same
// store reproduces the optimistic view, with pending intents re-flagged.
func TestService_RestoreRebuildsView(t *testing.T) {
	svc, db, queue, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "Buy milk", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	title := "Buy oat milk"
	if _, err := svc.Update(ctx, created.ID, &store.TodoPatch{Title: &title}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Simulate a restart: new cache and service over the same store.
	discard := log.New(io.Discard, "", 0)
	freshCache := cache.New()
	restored, err := NewService(db, queue, freshCache, &Config{UserID: "user-1", Logger: discard})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	entry, ok := freshCache.Get(created.ID)
	if !ok {
		t.Fatal("Expected restored cache entry")
	}
	if entry.Todo.Title != title {
		t.Errorf("Restored title = %q, want %q", entry.Todo.Title, title)
	}
	if !entry.IsOptimistic {
		t.Error("Expected restored entry to be re-flagged optimistic")
	}

	stats := freshCache.Stats()
	if stats.Total != 1 || stats.Pending != 1 {
		t.Errorf("Restored stats = %+v, want 1 total, 1 pending", stats)
	}
}
