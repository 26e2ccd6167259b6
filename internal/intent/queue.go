package intent

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/driftsync/drift/internal/store"
)

// Storage is the durable backing the queue writes through. *store.DB
// satisfies it; tests may substitute an in-memory fake.
type Storage interface {
	InsertIntentContext(ctx context.Context, row *store.IntentRow) error
	ListIntentsContext(ctx context.Context, maxRetries int) ([]*store.IntentRow, error)
	BumpIntentRetriesContext(ctx context.Context, id string) (int, error)
	UpdateIntentDataContext(ctx context.Context, id string, data []byte) error
	DeleteIntentContext(ctx context.Context, id string) error
	CountIntentsContext(ctx context.Context) (int, error)
	IntentRetryCounts(ctx context.Context) (map[int]int, error)
}

// Stats summarizes the queue by retry state.
//
// Pending intents have never failed; retrying intents have failed at least
// once but still have budget. Failed counts rows at or past the budget,
// which are only transiently visible before the engine purges them.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Retrying int `json:"retrying"`
	Failed   int `json:"failed"`
}

// Config holds queue configuration.
type Config struct {
	// MaxRetries is the per-intent retry budget (default: 3)
	MaxRetries int

	// Logger for queue activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries: 3,
		Logger:     log.New(os.Stderr, "[queue] ", log.LstdFlags),
	}
}

// Queue is the durable, ordered record of mutations awaiting remote
// confirmation. Every operation writes through Storage before returning,
// so the queue holds no state that a restart could lose.
type Queue struct {
	storage    Storage
	maxRetries int
	logger     *log.Logger

	mu             sync.Mutex
	lastEnqueuedAt int64
}

// NewQueue creates a queue over the given storage.
func NewQueue(storage Storage, config *Config) *Queue {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{
		storage:    storage,
		maxRetries: config.MaxRetries,
		logger:     config.Logger,
	}
}

// MaxRetries returns the per-intent retry budget.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// EnqueueCreate appends a create intent for the given todo.
func (q *Queue) EnqueueCreate(ctx context.Context, table string, todo *store.Todo) (string, error) {
	return q.enqueue(ctx, &Intent{
		ID:     NewID(),
		Op:     OpCreate,
		Table:  table,
		Create: &CreatePayload{Todo: todo.Clone()},
	})
}

// EnqueueUpdate appends an update intent for the given entity.
func (q *Queue) EnqueueUpdate(ctx context.Context, table, id string, patch *store.TodoPatch) (string, error) {
	return q.enqueue(ctx, &Intent{
		ID:     NewID(),
		Op:     OpUpdate,
		Table:  table,
		Update: &UpdatePayload{ID: id, Patch: patch},
	})
}

// EnqueueDelete appends a delete intent for the given entity.
func (q *Queue) EnqueueDelete(ctx context.Context, table, id string) (string, error) {
	return q.enqueue(ctx, &Intent{
		ID:     NewID(),
		Op:     OpDelete,
		Table:  table,
		Delete: &DeletePayload{ID: id},
	})
}

func (q *Queue) enqueue(ctx context.Context, in *Intent) (string, error) {
	// Strictly increasing timestamps keep FIFO order well-defined even
	// when two enqueues land in the same millisecond.
	q.mu.Lock()
	now := time.Now().UnixMilli()
	if now <= q.lastEnqueuedAt {
		now = q.lastEnqueuedAt + 1
	}
	q.lastEnqueuedAt = now
	q.mu.Unlock()

	in.EnqueuedAt = now
	in.Retries = 0

	if err := in.Validate(); err != nil {
		return "", fmt.Errorf("refusing to enqueue invalid intent: %w", err)
	}

	row, err := in.ToRow()
	if err != nil {
		return "", err
	}
	if err := q.storage.InsertIntentContext(ctx, row); err != nil {
		return "", fmt.Errorf("failed to enqueue intent: %w", err)
	}

	q.logger.Printf("Enqueued %s intent %s for %s", in.Op, in.ID, in.EntityID())
	return in.ID, nil
}

// Pending returns all intents with retries below the budget, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]*Intent, error) {
	rows, err := q.storage.ListIntentsContext(ctx, q.maxRetries)
	if err != nil {
		return nil, err
	}

	intents := make([]*Intent, 0, len(rows))
	for _, row := range rows {
		in, err := FromRow(row)
		if err != nil {
			// A corrupt row can't be retried; drop it rather than wedging
			// the queue behind it.
			q.logger.Printf("WARNING: dropping unreadable intent %s: %v", row.ID, err)
			if delErr := q.storage.DeleteIntentContext(ctx, row.ID); delErr != nil {
				return nil, delErr
			}
			continue
		}
		intents = append(intents, in)
	}
	return intents, nil
}

// MarkFailed increments the retry counter for an intent. When the counter
// reaches the budget the intent is removed and exhausted is true; the
// caller must then revert the corresponding optimistic state.
func (q *Queue) MarkFailed(ctx context.Context, id string) (exhausted bool, err error) {
	retries, err := q.storage.BumpIntentRetriesContext(ctx, id)
	if err != nil {
		return false, err
	}

	if retries >= q.maxRetries {
		if err := q.storage.DeleteIntentContext(ctx, id); err != nil {
			return false, fmt.Errorf("failed to purge exhausted intent: %w", err)
		}
		q.logger.Printf("Intent %s exhausted retry budget (%d)", id, q.maxRetries)
		return true, nil
	}

	q.logger.Printf("Intent %s failed, retry %d/%d", id, retries, q.maxRetries)
	return false, nil
}

// RewriteEntityID retargets queued update/delete intents from a temp ID
// to the authoritative ID assigned by the remote. Called when a create
// confirms so that dependent intents enqueued behind it stay dispatchable,
// including across restarts.
func (q *Queue) RewriteEntityID(ctx context.Context, tempID, authoritativeID string) error {
	// Scan the whole queue, not just rows under the retry budget.
	rows, err := q.storage.ListIntentsContext(ctx, 1<<30)
	if err != nil {
		return err
	}

	for _, row := range rows {
		in, err := FromRow(row)
		if err != nil {
			continue
		}
		if in.Op == OpCreate || in.EntityID() != tempID {
			continue
		}

		switch in.Op {
		case OpUpdate:
			in.Update.ID = authoritativeID
		case OpDelete:
			in.Delete.ID = authoritativeID
		}

		updated, err := in.ToRow()
		if err != nil {
			return err
		}
		if err := q.storage.UpdateIntentDataContext(ctx, in.ID, updated.Data); err != nil {
			return fmt.Errorf("failed to retarget intent %s: %w", in.ID, err)
		}
		q.logger.Printf("Retargeted %s intent %s: %s -> %s", in.Op, in.ID, tempID, authoritativeID)
	}
	return nil
}

// PurgeEntity removes every queued intent targeting the given entity.
// Called when a create is abandoned: updates and deletes chained behind a
// temp ID that will never exist remotely are unsendable.
func (q *Queue) PurgeEntity(ctx context.Context, entityID string) (int, error) {
	rows, err := q.storage.ListIntentsContext(ctx, 1<<30)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, row := range rows {
		in, err := FromRow(row)
		if err != nil {
			continue
		}
		if in.EntityID() != entityID {
			continue
		}
		if err := q.storage.DeleteIntentContext(ctx, in.ID); err != nil {
			return purged, err
		}
		purged++
	}
	if purged > 0 {
		q.logger.Printf("Purged %d intents for abandoned entity %s", purged, entityID)
	}
	return purged, nil
}

// Remove deletes an intent after the remote confirmed it.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.storage.DeleteIntentContext(ctx, id)
}

// Len returns the total number of queued intents.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.storage.CountIntentsContext(ctx)
}

// Stats summarizes the queue by retry state.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	counts, err := q.storage.IntentRetryCounts(ctx)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for retries, count := range counts {
		stats.Total += count
		switch {
		case retries == 0:
			stats.Pending += count
		case retries < q.maxRetries:
			stats.Retrying += count
		default:
			stats.Failed += count
		}
	}
	return stats, nil
}
