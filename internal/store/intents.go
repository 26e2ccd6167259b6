package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// IntentRow is the persisted shape of a queue entry. The op payload stays
// serialized here; internal/intent owns the typed representation.
type IntentRow struct {
	ID         string
	Op         string
	TableName  string
	Data       []byte
	EnqueuedAt int64
	Retries    int
}

const intentColumns = `id, op, table_name, data, enqueued_at, retries`

// InsertIntent appends an intent to the durable queue.
func (db *DB) InsertIntent(row *IntentRow) error {
	return db.InsertIntentContext(context.Background(), row)
}

// InsertIntentContext appends an intent to the durable queue.
func (db *DB) InsertIntentContext(ctx context.Context, row *IntentRow) error {
	if row.ID == "" {
		return fmt.Errorf("intent id is required")
	}
	query := `INSERT INTO intents (` + intentColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, query,
		row.ID, row.Op, row.TableName, string(row.Data), row.EnqueuedAt, row.Retries)
	if err != nil {
		return fmt.Errorf("failed to insert intent: %w", err)
	}
	return nil
}

// ListIntents returns intents with retries below maxRetries, oldest first.
func (db *DB) ListIntents(maxRetries int) ([]*IntentRow, error) {
	return db.ListIntentsContext(context.Background(), maxRetries)
}

// ListIntentsContext returns intents with retries below maxRetries, oldest
// first. Enqueue order is (enqueued_at, id); the id tiebreak keeps the
// order stable when two intents land in the same millisecond.
func (db *DB) ListIntentsContext(ctx context.Context, maxRetries int) ([]*IntentRow, error) {
	query := `SELECT ` + intentColumns + ` FROM intents WHERE retries < ? ORDER BY enqueued_at, id`
	rows, err := db.conn.QueryContext(ctx, query, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}
	defer rows.Close()

	var result []*IntentRow
	for rows.Next() {
		var (
			row  IntentRow
			data string
		)
		if err := rows.Scan(&row.ID, &row.Op, &row.TableName, &data, &row.EnqueuedAt, &row.Retries); err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		row.Data = []byte(data)
		result = append(result, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intents: %w", err)
	}
	return result, nil
}

// BumpIntentRetries increments the retry counter and returns the new value.
func (db *DB) BumpIntentRetries(id string) (int, error) {
	return db.BumpIntentRetriesContext(context.Background(), id)
}

// BumpIntentRetriesContext increments the retry counter and returns the
// new value. Returns ErrNotFound if the intent was already removed.
func (db *DB) BumpIntentRetriesContext(ctx context.Context, id string) (int, error) {
	res, err := db.conn.ExecContext(ctx, `UPDATE intents SET retries = retries + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to bump intent retries: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("intent %s: %w", id, ErrNotFound)
	}

	var retries int
	err = db.conn.QueryRowContext(ctx, `SELECT retries FROM intents WHERE id = ?`, id).Scan(&retries)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("intent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read intent retries: %w", err)
	}
	return retries, nil
}

// UpdateIntentData replaces the serialized payload of a queued intent.
// Used when a confirmed create renames the temp ID that later intents in
// the queue still reference.
func (db *DB) UpdateIntentData(id string, data []byte) error {
	return db.UpdateIntentDataContext(context.Background(), id, data)
}

// UpdateIntentDataContext replaces the serialized payload of a queued intent.
func (db *DB) UpdateIntentDataContext(ctx context.Context, id string, data []byte) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE intents SET data = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("failed to update intent data: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("intent %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteIntent removes an intent from the queue.
// Deleting a missing intent is a no-op (idempotent).
func (db *DB) DeleteIntent(id string) error {
	return db.DeleteIntentContext(context.Background(), id)
}

// DeleteIntentContext removes an intent from the queue.
func (db *DB) DeleteIntentContext(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM intents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete intent: %w", err)
	}
	return nil
}

// CountIntents returns the total number of queued intents.
func (db *DB) CountIntents() (int, error) {
	return db.CountIntentsContext(context.Background())
}

// CountIntentsContext returns the total number of queued intents.
func (db *DB) CountIntentsContext(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM intents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count intents: %w", err)
	}
	return count, nil
}

// IntentRetryCounts returns a retries -> count histogram for the queue.
// The intent package turns this into pending/retrying/failed stats.
func (db *DB) IntentRetryCounts(ctx context.Context) (map[int]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT retries, COUNT(*) FROM intents GROUP BY retries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query intent retry counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var retries, count int
		if err := rows.Scan(&retries, &count); err != nil {
			return nil, fmt.Errorf("failed to scan retry count: %w", err)
		}
		counts[retries] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate retry counts: %w", err)
	}
	return counts, nil
}
