package store

import (
	"path/filepath"
	"testing"
	"time"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	tmpDir := t.TempDir()
	return filepath.Join(tmpDir, "test.db")
}

// openTestDB opens an initialized database for tests
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func testTodo(id string) *Todo {
	now := time.Now().UnixMilli()
	return &Todo{
		ID:        id,
		UserID:    "user-1",
		Title:     "Buy milk",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestOpen_Success tests successful database creation
func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

// TestInitSchema_Idempotent tests that schema initialization is idempotent
func TestInitSchema_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}

	tables := []string{"todos", "intents"}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

// TestInsertTodo_Invalid tests validation on insert
func TestInsertTodo_Invalid(t *testing.T) {
	db := openTestDB(t)

	if err := db.InsertTodo(&Todo{ID: "x"}); err == nil {
		t.Error("InsertTodo() with missing fields should fail")
	}
}

// TestInsertTodo_RoundTrip tests insert and read back
func TestInsertTodo_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	due := time.Now().Add(24 * time.Hour).UnixMilli()
	todo := testTodo("todo-1")
	todo.Description = "2% if they have it"
	todo.DueAt = &due

	if err := db.InsertTodo(todo); err != nil {
		t.Fatalf("InsertTodo() failed: %v", err)
	}

	got, err := db.GetTodo("todo-1")
	if err != nil {
		t.Fatalf("GetTodo() failed: %v", err)
	}

	if got.Title != todo.Title {
		t.Errorf("Title = %q, want %q", got.Title, todo.Title)
	}
	if got.Description != todo.Description {
		t.Errorf("Description = %q, want %q", got.Description, todo.Description)
	}
	if got.DueAt == nil || *got.DueAt != due {
		t.Errorf("DueAt = %v, want %d", got.DueAt, due)
	}
	if got.Synced {
		t.Error("new todo should not be synced")
	}
}

// TestGetTodo_NotFound tests the missing-row sentinel
func TestGetTodo_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetTodo("nope")
	if err == nil {
		t.Fatal("GetTodo() should fail for missing row")
	}
}

// TestUpdateTodo_PatchAndResetSynced tests partial update semantics
func TestUpdateTodo_PatchAndResetSynced(t *testing.T) {
	db := openTestDB(t)

	todo := testTodo("todo-1")
	todo.Synced = true
	if err := db.InsertTodo(todo); err != nil {
		t.Fatalf("InsertTodo() failed: %v", err)
	}

	title := "Buy oat milk"
	completed := true
	updatedAt := time.Now().UnixMilli()
	patch := &TodoPatch{Title: &title, Completed: &completed}

	if err := db.UpdateTodo("todo-1", patch, updatedAt); err != nil {
		t.Fatalf("UpdateTodo() failed: %v", err)
	}

	got, err := db.GetTodo("todo-1")
	if err != nil {
		t.Fatalf("GetTodo() failed: %v", err)
	}
	if got.Title != title {
		t.Errorf("Title = %q, want %q", got.Title, title)
	}
	if !got.Completed {
		t.Error("Completed should be true")
	}
	if got.Synced {
		t.Error("local update must reset synced")
	}
	if got.UpdatedAt != updatedAt {
		t.Errorf("UpdatedAt = %d, want %d", got.UpdatedAt, updatedAt)
	}
}

// TestReplaceTodoID tests the temp ID to authoritative ID swap
func TestReplaceTodoID(t *testing.T) {
	db := openTestDB(t)

	todo := testTodo(TempIDPrefix + "abc")
	if err := db.InsertTodo(todo); err != nil {
		t.Fatalf("InsertTodo() failed: %v", err)
	}

	if err := db.ReplaceTodoID(TempIDPrefix+"abc", "srv-42"); err != nil {
		t.Fatalf("ReplaceTodoID() failed: %v", err)
	}

	got, err := db.GetTodo("srv-42")
	if err != nil {
		t.Fatalf("GetTodo() after replace failed: %v", err)
	}
	if !got.Synced {
		t.Error("replaced todo should be synced")
	}

	if _, err := db.GetTodo(TempIDPrefix + "abc"); err == nil {
		t.Error("temp ID should be gone after replace")
	}
}

// TestGetUnsynced tests filtering by the synced flag
func TestGetUnsynced(t *testing.T) {
	db := openTestDB(t)

	a := testTodo("a")
	b := testTodo("b")
	b.Synced = true
	for _, todo := range []*Todo{a, b} {
		if err := db.InsertTodo(todo); err != nil {
			t.Fatalf("InsertTodo(%s) failed: %v", todo.ID, err)
		}
	}

	unsynced, err := db.GetUnsynced()
	if err != nil {
		t.Fatalf("GetUnsynced() failed: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].ID != "a" {
		t.Errorf("GetUnsynced() = %v, want [a]", unsynced)
	}

	if err := db.MarkSynced("a"); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}
	unsynced, err = db.GetUnsynced()
	if err != nil {
		t.Fatalf("GetUnsynced() failed: %v", err)
	}
	if len(unsynced) != 0 {
		t.Errorf("GetUnsynced() after MarkSynced = %v, want empty", unsynced)
	}
}

// TestListTodos_Order tests that listing is oldest first
func TestListTodos_Order(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().UnixMilli()
	for i, id := range []string{"c", "a", "b"} {
		todo := testTodo(id)
		todo.CreatedAt = base + int64(i)
		todo.UpdatedAt = todo.CreatedAt
		if err := db.InsertTodo(todo); err != nil {
			t.Fatalf("InsertTodo(%s) failed: %v", id, err)
		}
	}

	todos, err := db.ListTodos("user-1")
	if err != nil {
		t.Fatalf("ListTodos() failed: %v", err)
	}
	want := []string{"c", "a", "b"}
	if len(todos) != len(want) {
		t.Fatalf("ListTodos() returned %d todos, want %d", len(todos), len(want))
	}
	for i, todo := range todos {
		if todo.ID != want[i] {
			t.Errorf("todos[%d].ID = %q, want %q", i, todo.ID, want[i])
		}
	}
}
