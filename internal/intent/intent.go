// Package intent provides the durable queue of pending mutations.
//
// Each queue entry is an Intent: a record of a single local mutation
// (create, update, or delete) that has not yet been confirmed by the
// remote authority. Intents are persisted through the store before the
// enqueue call returns, so a process crash between enqueue and remote
// confirmation never loses the mutation.
//
// The queue is strictly FIFO. An intent leaves the queue in exactly two
// ways: the remote confirms it, or its retry budget is exhausted and the
// caller is told to revert the corresponding optimistic state.
package intent

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/driftsync/drift/internal/store"
)

// Op identifies the mutation kind carried by an intent.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Valid reports whether the op is one of the known kinds.
func (o Op) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// CreatePayload carries the full entity for a pending create.
// The todo still has its temp ID; the remote assigns the authoritative one.
type CreatePayload struct {
	Todo *store.Todo `json:"todo"`
}

// UpdatePayload carries a partial update for a pending update.
type UpdatePayload struct {
	ID    string           `json:"id"`
	Patch *store.TodoPatch `json:"patch"`
}

// DeletePayload carries the target ID for a pending delete.
type DeletePayload struct {
	ID string `json:"id"`
}

// Intent is a durable record of a single pending mutation.
//
// Exactly one of Create, Update, Delete is non-nil, matching Op. The
// payload is validated when the intent is built, not at dispatch time.
type Intent struct {
	ID         string `json:"id"`
	Op         Op     `json:"op"`
	Table      string `json:"table"`
	EnqueuedAt int64  `json:"enqueued_at"`
	Retries    int    `json:"retries"`

	Create *CreatePayload `json:"create,omitempty"`
	Update *UpdatePayload `json:"update,omitempty"`
	Delete *DeletePayload `json:"delete,omitempty"`
}

// EntityID returns the ID of the entity this intent mutates. For creates
// this is the temp ID; readers use it to chain dependent intents.
func (in *Intent) EntityID() string {
	switch in.Op {
	case OpCreate:
		if in.Create != nil && in.Create.Todo != nil {
			return in.Create.Todo.ID
		}
	case OpUpdate:
		if in.Update != nil {
			return in.Update.ID
		}
	case OpDelete:
		if in.Delete != nil {
			return in.Delete.ID
		}
	}
	return ""
}

// Validate checks that the intent is well-formed: a known op, a target
// table, and exactly the payload that op requires.
func (in *Intent) Validate() error {
	if in.ID == "" {
		return fmt.Errorf("intent id is required")
	}
	if !in.Op.Valid() {
		return fmt.Errorf("unknown op %q", in.Op)
	}
	if in.Table == "" {
		return fmt.Errorf("table is required")
	}

	set := 0
	if in.Create != nil {
		set++
	}
	if in.Update != nil {
		set++
	}
	if in.Delete != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("intent must carry exactly one payload (got %d)", set)
	}

	switch in.Op {
	case OpCreate:
		if in.Create == nil || in.Create.Todo == nil {
			return fmt.Errorf("create intent requires a todo payload")
		}
		if err := in.Create.Todo.Validate(); err != nil {
			return fmt.Errorf("create intent payload: %w", err)
		}
	case OpUpdate:
		if in.Update == nil || in.Update.ID == "" {
			return fmt.Errorf("update intent requires a target id")
		}
		if in.Update.Patch.IsZero() {
			return fmt.Errorf("update intent requires a non-empty patch")
		}
	case OpDelete:
		if in.Delete == nil || in.Delete.ID == "" {
			return fmt.Errorf("delete intent requires a target id")
		}
	}
	return nil
}

// payloadEnvelope is the serialized form of the op-specific payload stored
// in the intents data column.
type payloadEnvelope struct {
	Create *CreatePayload `json:"create,omitempty"`
	Update *UpdatePayload `json:"update,omitempty"`
	Delete *DeletePayload `json:"delete,omitempty"`
}

// ToRow converts an intent to its persisted shape.
func (in *Intent) ToRow() (*store.IntentRow, error) {
	data, err := json.Marshal(payloadEnvelope{
		Create: in.Create,
		Update: in.Update,
		Delete: in.Delete,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intent payload: %w", err)
	}
	return &store.IntentRow{
		ID:         in.ID,
		Op:         string(in.Op),
		TableName:  in.Table,
		Data:       data,
		EnqueuedAt: in.EnqueuedAt,
		Retries:    in.Retries,
	}, nil
}

// FromRow rebuilds an intent from its persisted shape.
func FromRow(row *store.IntentRow) (*Intent, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(row.Data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intent payload: %w", err)
	}

	in := &Intent{
		ID:         row.ID,
		Op:         Op(row.Op),
		Table:      row.TableName,
		EnqueuedAt: row.EnqueuedAt,
		Retries:    row.Retries,
		Create:     env.Create,
		Update:     env.Update,
		Delete:     env.Delete,
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("persisted intent %s is invalid: %w", row.ID, err)
	}
	return in, nil
}

// NewID returns a fresh queue-local intent ID.
func NewID() string {
	return uuid.NewString()
}

// NewTempID returns a temp entity ID, distinguishable from authoritative
// IDs by its reserved prefix and unique within the process lifetime.
func NewTempID() string {
	return store.TempIDPrefix + uuid.NewString()
}
