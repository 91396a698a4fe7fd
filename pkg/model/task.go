package model

import (
	"fmt"
	"strings"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority returns PriorityMedium for an empty string.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q (want low, medium or high)", ErrValidation, s)
	}
	return p, nil
}

// Task is a persisted to-do record. The JSON field names are the on-disk format
// and must not change.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatedAt   Timestamp  `json:"created_at"`
	DueDate     *Timestamp `json:"due_date"`
	Priority    Priority   `json:"priority"`
	Completed   bool       `json:"completed"`
	CompletedAt *Timestamp `json:"completed_at,omitempty"`
	UpdatedAt   *Timestamp `json:"updated_at,omitempty"`
}

// Clone returns a deep copy so callers can't reach back into store state.
func (t Task) Clone() Task {
	c := t
	c.DueDate = t.DueDate.clone()
	c.CompletedAt = t.CompletedAt.clone()
	c.UpdatedAt = t.UpdatedAt.clone()
	return c
}

// HasDueDate reports whether the task carries a real due date. Older files store
// a missing one as "".
func (t Task) HasDueDate() bool {
	return t.DueDate != nil && !t.DueDate.IsZero()
}

// Normalize drops timestamps that decoded to the zero time, so an empty string on
// disk reads the same as null.
func (t *Task) Normalize() {
	if t.DueDate != nil && t.DueDate.IsZero() {
		t.DueDate = nil
	}
	if t.CompletedAt != nil && t.CompletedAt.IsZero() {
		t.CompletedAt = nil
	}
	if t.UpdatedAt != nil && t.UpdatedAt.IsZero() {
		t.UpdatedAt = nil
	}
}

// NewTask holds the caller-supplied fields of a task to create.
type NewTask struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *Timestamp `json:"due_date"`
	Priority    Priority   `json:"priority"`
}

// Validate normalizes the priority and checks the title.
func (n *NewTask) Validate() error {
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return fmt.Errorf("%w: task title is required", ErrValidation)
	}
	p, err := ParsePriority(string(n.Priority))
	if err != nil {
		return err
	}
	n.Priority = p
	return nil
}

// TaskPatch is a partial update. Fields left unset are not touched; fields set to
// null are cleared to their zero value (see Task store docs for per-field rules).
type TaskPatch struct {
	Title       Optional[string]    `json:"title"`
	Description Optional[string]    `json:"description"`
	DueDate     Optional[Timestamp] `json:"due_date"`
	Priority    Optional[Priority]  `json:"priority"`
	Completed   Optional[bool]      `json:"completed"`
}

// Empty reports whether the patch carries no field at all.
func (p TaskPatch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.DueDate.Set && !p.Priority.Set && !p.Completed.Set
}
