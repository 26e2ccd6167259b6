package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested row doesn't exist.
var ErrNotFound = errors.New("not found")

const todoColumns = `id, user_id, title, description, completed, due_at, created_at, updated_at, synced`

// InsertTodo persists a new todo.
func (db *DB) InsertTodo(todo *Todo) error {
	return db.InsertTodoContext(context.Background(), todo)
}

// InsertTodoContext persists a new todo.
//
// The todo is validated before insert. Inserting an ID that already exists
// is an error; use UpdateTodo for existing rows.
func (db *DB) InsertTodoContext(ctx context.Context, todo *Todo) error {
	if err := todo.Validate(); err != nil {
		return fmt.Errorf("invalid todo: %w", err)
	}

	query := `INSERT INTO todos (` + todoColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, query,
		todo.ID, todo.UserID, todo.Title, todo.Description,
		boolToInt(todo.Completed), nullableInt64(todo.DueAt),
		todo.CreatedAt, todo.UpdatedAt, boolToInt(todo.Synced))
	if err != nil {
		return fmt.Errorf("failed to insert todo: %w", err)
	}
	return nil
}

// UpdateTodo applies a patch to an existing todo.
func (db *DB) UpdateTodo(id string, patch *TodoPatch, updatedAt int64) error {
	return db.UpdateTodoContext(context.Background(), id, patch, updatedAt)
}

// UpdateTodoContext applies a patch to an existing todo.
//
// A local mutation always resets synced to false; the row becomes synced
// again only when the sync engine confirms it remotely.
func (db *DB) UpdateTodoContext(ctx context.Context, id string, patch *TodoPatch, updatedAt int64) error {
	todo, err := db.GetTodoContext(ctx, id)
	if err != nil {
		return err
	}

	if patch.Title != nil {
		todo.Title = *patch.Title
	}
	if patch.Description != nil {
		todo.Description = *patch.Description
	}
	if patch.Completed != nil {
		todo.Completed = *patch.Completed
	}
	if patch.DueAt != nil {
		due := *patch.DueAt
		todo.DueAt = &due
	}
	todo.UpdatedAt = updatedAt

	query := `UPDATE todos
		SET title = ?, description = ?, completed = ?, due_at = ?, updated_at = ?, synced = 0
		WHERE id = ?`
	res, err := db.conn.ExecContext(ctx, query,
		todo.Title, todo.Description, boolToInt(todo.Completed),
		nullableInt64(todo.DueAt), todo.UpdatedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update todo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("todo %s: %w", id, ErrNotFound)
	}
	return nil
}

// PutTodo inserts or replaces a todo wholesale. The sync engine uses this
// to write reverted values back after an intent exhausts its retries.
func (db *DB) PutTodo(todo *Todo) error {
	return db.PutTodoContext(context.Background(), todo)
}

// PutTodoContext inserts or replaces a todo wholesale.
func (db *DB) PutTodoContext(ctx context.Context, todo *Todo) error {
	if err := todo.Validate(); err != nil {
		return fmt.Errorf("invalid todo: %w", err)
	}

	query := `INSERT OR REPLACE INTO todos (` + todoColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, query,
		todo.ID, todo.UserID, todo.Title, todo.Description,
		boolToInt(todo.Completed), nullableInt64(todo.DueAt),
		todo.CreatedAt, todo.UpdatedAt, boolToInt(todo.Synced))
	if err != nil {
		return fmt.Errorf("failed to put todo: %w", err)
	}
	return nil
}

// DeleteTodo removes a todo.
// Deleting a todo that doesn't exist is a no-op (idempotent).
func (db *DB) DeleteTodo(id string) error {
	return db.DeleteTodoContext(context.Background(), id)
}

// DeleteTodoContext removes a todo.
func (db *DB) DeleteTodoContext(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	return nil
}

// GetTodo fetches a single todo by ID.
func (db *DB) GetTodo(id string) (*Todo, error) {
	return db.GetTodoContext(context.Background(), id)
}

// GetTodoContext fetches a single todo by ID.
// Returns ErrNotFound if no row matches.
func (db *DB) GetTodoContext(ctx context.Context, id string) (*Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE id = ?`
	row := db.conn.QueryRowContext(ctx, query, id)

	todo, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("todo %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get todo: %w", err)
	}
	return todo, nil
}

// ListTodos returns all todos for a user, oldest first.
func (db *DB) ListTodos(userID string) ([]*Todo, error) {
	return db.ListTodosContext(context.Background(), userID)
}

// ListTodosContext returns all todos for a user, oldest first.
func (db *DB) ListTodosContext(ctx context.Context, userID string) ([]*Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE user_id = ? ORDER BY created_at, id`
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	return scanTodos(rows)
}

// GetUnsynced returns all todos not yet confirmed by the remote authority.
func (db *DB) GetUnsynced() ([]*Todo, error) {
	return db.GetUnsyncedContext(context.Background())
}

// GetUnsyncedContext returns all todos not yet confirmed by the remote authority.
func (db *DB) GetUnsyncedContext(ctx context.Context) ([]*Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE synced = 0 ORDER BY created_at, id`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced todos: %w", err)
	}
	defer rows.Close()

	return scanTodos(rows)
}

// MarkSynced flips the synced flag after remote confirmation.
func (db *DB) MarkSynced(id string) error {
	return db.MarkSyncedContext(context.Background(), id)
}

// MarkSyncedContext flips the synced flag after remote confirmation.
// Marking a missing row is a no-op; the todo may have been deleted locally
// while its confirmation was in flight.
func (db *DB) MarkSyncedContext(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `UPDATE todos SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark todo synced: %w", err)
	}
	return nil
}

// ReplaceTodoID swaps a temp ID for the authoritative ID assigned by the
// remote, marking the row synced in the same statement.
func (db *DB) ReplaceTodoID(tempID, authoritativeID string) error {
	return db.ReplaceTodoIDContext(context.Background(), tempID, authoritativeID)
}

// ReplaceTodoIDContext swaps a temp ID for the authoritative ID.
func (db *DB) ReplaceTodoIDContext(ctx context.Context, tempID, authoritativeID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE todos SET id = ?, synced = 1 WHERE id = ?`, authoritativeID, tempID)
	if err != nil {
		return fmt.Errorf("failed to replace todo id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("todo %s: %w", tempID, ErrNotFound)
	}
	return nil
}

// CountTodos returns the number of todos for a user.
func (db *DB) CountTodos(userID string) (int, error) {
	return db.CountTodosContext(context.Background(), userID)
}

// CountTodosContext returns the number of todos for a user.
func (db *DB) CountTodosContext(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM todos WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count todos: %w", err)
	}
	return count, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (*Todo, error) {
	var (
		todo      Todo
		completed int
		synced    int
		dueAt     sql.NullInt64
	)
	err := row.Scan(&todo.ID, &todo.UserID, &todo.Title, &todo.Description,
		&completed, &dueAt, &todo.CreatedAt, &todo.UpdatedAt, &synced)
	if err != nil {
		return nil, err
	}

	todo.Completed = completed != 0
	todo.Synced = synced != 0
	if dueAt.Valid {
		due := dueAt.Int64
		todo.DueAt = &due
	}
	return &todo, nil
}

func scanTodos(rows *sql.Rows) ([]*Todo, error) {
	var todos []*Todo
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}
	return todos, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
