package domain

import (
	"strings"
	"time"
)

// TasksTable is the relational table holding task rows.
const TasksTable = "tasks"

// Task represents a persisted to-do record. ID and CreatedAt are assigned by the store.
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    *string   `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	OwnerEmail  string    `json:"email"`
}

// HasImage reports whether an uploaded image is attached.
func (t Task) HasImage() bool {
	return t.ImageURL != nil && *t.ImageURL != ""
}

// Before orders tasks by creation time, falling back to id for equal timestamps.
func (t Task) Before(other Task) bool {
	if t.CreatedAt.Equal(other.CreatedAt) {
		return t.ID < other.ID
	}
	return t.CreatedAt.Before(other.CreatedAt)
}

// NewTask is the insert payload for a task row.
type NewTask struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ImageURL    *string `json:"image_url"`
	OwnerEmail  string  `json:"email"`
}

// Validate checks the fields the store cannot default.
func (n NewTask) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return NewError(ErrCodeInvalid, "title is required")
	}
	if n.OwnerEmail == "" {
		return NewError(ErrCodeInvalid, "owner email is required")
	}
	return nil
}

// TaskPatch carries the mutable subset of a task. Nil fields are left untouched.
type TaskPatch struct {
	Description *string `json:"description,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p TaskPatch) Empty() bool {
	return p.Description == nil
}

// Apply copies the patched fields onto the task.
func (p TaskPatch) Apply(t *Task) {
	if t == nil {
		return
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
}

// TaskQuery describes a list request against the task table.
type TaskQuery struct {
	OwnerEmail string
	Descending bool
}
