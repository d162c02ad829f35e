package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "NEW"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusCanceled   TaskStatus = "CANCELED"
)

// TaskStatuses lists every status in lifecycle order.
var TaskStatuses = []TaskStatus{
	TaskStatusNew,
	TaskStatusInProgress,
	TaskStatusDone,
	TaskStatusCanceled,
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusNew, TaskStatusInProgress, TaskStatusDone, TaskStatusCanceled:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is DONE or CANCELED.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusCanceled
}

// ValidTransition checks if a task state transition is allowed.
// Allowed: new->in_progress, new->canceled, in_progress->done,
// in_progress->canceled, and the reopen edges done->in_progress and
// canceled->in_progress.
func (s TaskStatus) ValidTransition(to TaskStatus) bool {
	switch s {
	case TaskStatusNew:
		return to == TaskStatusInProgress || to == TaskStatusCanceled
	case TaskStatusInProgress:
		return to == TaskStatusDone || to == TaskStatusCanceled
	case TaskStatusDone, TaskStatusCanceled:
		return to == TaskStatusInProgress
	default:
		return false
	}
}

// IsReopen reports whether s->to moves a terminal task back into progress.
func (s TaskStatus) IsReopen(to TaskStatus) bool {
	return s.Terminal() && to == TaskStatusInProgress
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

// MaxTitleLength bounds Task.Title in runes.
const MaxTitleLength = 500

// Task is the current-state projection of a task. The event log is the
// audit trail; Task is rewritten in place on every mutation.
type Task struct {
	ID          uuid.UUID
	Title       string
	Description string
	Status      TaskStatus
	Priority    Priority
	DueDate     *time.Time
	AssigneeID  *uuid.UUID // nullable
	CreatorID   uuid.UUID
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsCreator reports whether userID created the task.
func (t *Task) IsCreator(userID uuid.UUID) bool {
	return t.CreatorID == userID
}

// IsAssignee reports whether userID is the current assignee.
func (t *Task) IsAssignee(userID uuid.UUID) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// Clone returns a deep copy so callers cannot alias stored state.
func (t *Task) Clone() *Task {
	c := *t
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		c.AssigneeID = &id
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	return &c
}

// TaskFilter narrows ListAll. Nil fields do not filter.
type TaskFilter struct {
	Status         *TaskStatus
	Priority       *Priority
	AssigneeID     *uuid.UUID
	CreatorID      *uuid.UUID
	IncludeDeleted bool
}

// Match reports whether t passes every set field of f.
func (f TaskFilter) Match(t *Task) bool {
	if t.Deleted && !f.IncludeDeleted {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.AssigneeID != nil && !t.IsAssignee(*f.AssigneeID) {
		return false
	}
	if f.CreatorID != nil && t.CreatorID != *f.CreatorID {
		return false
	}
	return true
}

// TaskRepository persists tasks and their event history.
//
// ListAll returns tasks in insertion order. ListEvents returns events ordered
// by timestamp, ties broken by insertion order. Atomically runs fn against a
// repository whose writes are committed together when fn returns nil and
// discarded otherwise.
type TaskRepository interface {
	Save(ctx context.Context, t *Task) error
	FindByID(ctx context.Context, id uuid.UUID) (*Task, error)
	ListAll(ctx context.Context, f TaskFilter) ([]*Task, error)
	AppendEvent(ctx context.Context, e *TaskEvent) error
	ListEvents(ctx context.Context, taskID uuid.UUID) ([]*TaskEvent, error)
	Atomically(ctx context.Context, fn func(ctx context.Context, repo TaskRepository) error) error
}
