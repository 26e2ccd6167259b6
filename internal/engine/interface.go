package engine

import (
	"context"
	"time"

	"github.com/driftsync/drift/internal/netmon"
	"github.com/driftsync/drift/internal/store"
)

// Outcome classifies a remote call.
type Outcome int

const (
	// OutcomeSuccess means the remote accepted the mutation.
	OutcomeSuccess Outcome = iota

	// OutcomeTransient means the call failed in a way that may succeed on
	// retry: 5xx, timeout, no response.
	OutcomeTransient

	// OutcomePermanent means the remote rejected the mutation outright
	// (4xx client error); retrying will not help.
	OutcomePermanent
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	}
	return "unknown"
}

// Result is the classified response to a dispatched intent.
type Result struct {
	Outcome Outcome

	// Todo is the authoritative entity body, when the remote returned
	// one. For creates it carries the server-assigned ID.
	Todo *store.Todo

	// StatusCode is the HTTP-level status, zero for transport failures.
	StatusCode int

	// Err holds the transport error, if any.
	Err error
}

// Remote is the authority that ultimately accepts or rejects mutations.
//
// Implementations classify their own failures into the Result outcome;
// the engine never inspects transport details. Calls must honor ctx
// cancellation and deadlines.
type Remote interface {
	// Create submits a new entity. On success the result carries the
	// authoritative entity with its server-assigned ID.
	Create(ctx context.Context, table string, todo *store.Todo) Result

	// Update submits a partial update to an existing entity.
	Update(ctx context.Context, table, id string, patch *store.TodoPatch) Result

	// Delete removes an entity.
	Delete(ctx context.Context, table, id string) Result
}

// Monitor is the connectivity view the engine consumes.
// *netmon.Monitor satisfies it.
type Monitor interface {
	State() netmon.NetworkState
	OptimalForSync() bool
	Subscribe(fn func(netmon.NetworkState)) func()
}

// EntityStore is the slice of the durable store the engine writes to when
// reconciling outcomes. *store.DB satisfies it.
type EntityStore interface {
	MarkSyncedContext(ctx context.Context, id string) error
	ReplaceTodoIDContext(ctx context.Context, tempID, authoritativeID string) error
	PutTodoContext(ctx context.Context, todo *store.Todo) error
	DeleteTodoContext(ctx context.Context, id string) error
}

// Clock abstracts time so tests can drive the auto-sync and backoff waits
// deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns a Clock backed by the wall clock.
func RealClock() Clock {
	return realClock{}
}
