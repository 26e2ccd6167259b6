package store

import (
	"fmt"
	"strings"
	"time"
)

// TempIDPrefix marks locally assigned IDs that have not been confirmed by
// the remote authority. Authoritative IDs never carry this prefix.
const TempIDPrefix = "tmp_"

// Todo represents a single todo item.
//
// Timestamps are Unix milliseconds so ordering survives serialization
// without timezone ambiguity. Synced flips from false to true only on a
// confirmed remote acknowledgment.
type Todo struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`

	// DueAt is optional; Unix milliseconds.
	DueAt *int64 `json:"due_at,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`

	Synced bool `json:"synced"`
}

// Validate checks if the Todo has valid field values.
func (t *Todo) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.CreatedAt == 0 {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt == 0 {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// IsTemp reports whether the todo still carries a locally assigned ID.
func (t *Todo) IsTemp() bool {
	return strings.HasPrefix(t.ID, TempIDPrefix)
}

// CreatedTime returns CreatedAt as time.Time.
func (t *Todo) CreatedTime() time.Time {
	return time.UnixMilli(t.CreatedAt)
}

// UpdatedTime returns UpdatedAt as time.Time.
func (t *Todo) UpdatedTime() time.Time {
	return time.UnixMilli(t.UpdatedAt)
}

// DueTime returns DueAt as time.Time, or the zero time if unset.
func (t *Todo) DueTime() time.Time {
	if t.DueAt == nil {
		return time.Time{}
	}
	return time.UnixMilli(*t.DueAt)
}

// Overdue reports whether the todo is past due and not completed.
func (t *Todo) Overdue(now time.Time) bool {
	if t.Completed || t.DueAt == nil {
		return false
	}
	return now.UnixMilli() > *t.DueAt
}

// Clone returns a deep copy of the todo.
func (t *Todo) Clone() *Todo {
	c := *t
	if t.DueAt != nil {
		due := *t.DueAt
		c.DueAt = &due
	}
	return &c
}

// TodoPatch is a partial update. Nil fields are left unchanged.
type TodoPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
	DueAt       *int64  `json:"due_at,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p *TodoPatch) IsZero() bool {
	return p == nil || (p.Title == nil && p.Description == nil && p.Completed == nil && p.DueAt == nil)
}

// Apply merges the patch into the todo and bumps UpdatedAt.
func (p *TodoPatch) Apply(t *Todo, now time.Time) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.DueAt != nil {
		due := *p.DueAt
		t.DueAt = &due
	}
	t.UpdatedAt = now.UnixMilli()
}
