// Package model defines data structures for the task platform.
package model

import (
	"time"
)

// TaskStatus is the canonical mutable state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

// ValidStatus reports whether s is one of the known task statuses.
func ValidStatus(s TaskStatus) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Task represents a task owned by a single user.
//
// Status is the canonical state field. Completed is a denormalized view of
// Status kept in sync by SetStatus so the CRUD surface can keep exposing a
// boolean flag. Priority and DueDate belong to the CRUD surface only; the
// agent tools never touch them.
type Task struct {
	ID          string     `gorm:"primarykey;size:36" json:"id"`
	UserID      string     `gorm:"size:36;not null;index" json:"user_id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"size:1000" json:"description"`
	Status      TaskStatus `gorm:"size:20;not null;default:pending" json:"status"`
	Completed   bool       `gorm:"not null;default:false;index" json:"completed"`
	Priority    string     `gorm:"size:20;not null;default:medium" json:"priority"`
	DueDate     string     `gorm:"size:20" json:"due_date,omitempty"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the table name for the Task model.
func (Task) TableName() string {
	return "tasks"
}

// SetStatus updates the status and keeps the completed flag in sync.
func (t *Task) SetStatus(s TaskStatus) {
	t.Status = s
	t.Completed = s == StatusCompleted
}

// SetCompleted maps the boolean CRUD flag onto the canonical status.
func (t *Task) SetCompleted(completed bool) {
	if completed {
		t.SetStatus(StatusCompleted)
	} else {
		t.SetStatus(StatusPending)
	}
}

// CreateTaskRequest is the request to create a task via the REST surface.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// UpdateTaskRequest is the request to update a task via the REST surface.
// Pointer fields distinguish "absent" from zero values.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

// ListTasksResponse is the response for listing tasks.
type ListTasksResponse struct {
	Tasks []Task `json:"tasks"`
	Total int    `json:"total"`
}
