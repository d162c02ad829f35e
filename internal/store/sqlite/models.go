package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/tasktrack/internal/domain"
)

// Rows use an autoincrement Seq as primary key so that insertion order is
// recoverable; the domain id is a unique text column.

type userRow struct {
	Seq       int64     `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"size:36;uniqueIndex;not null"`
	Email     string    `gorm:"not null"`
	EmailKey  string    `gorm:"uniqueIndex;not null"`
	Role      string    `gorm:"not null"`
	Status    string    `gorm:"not null;default:ACTIVE"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (userRow) TableName() string { return "users" }

type taskRow struct {
	Seq         int64  `gorm:"primaryKey;autoIncrement"`
	ID          string `gorm:"size:36;uniqueIndex;not null"`
	Title       string `gorm:"not null"`
	Description string
	Status      string `gorm:"not null;index"`
	Priority    string `gorm:"not null;default:NORMAL"`
	DueDate     *time.Time
	AssigneeID  *string   `gorm:"size:36;index"`
	CreatorID   string    `gorm:"size:36;index;not null"`
	Deleted     bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (taskRow) TableName() string { return "tasks" }

// eventRow stores the timestamp as unix nanoseconds so ordering is numeric.
type eventRow struct {
	Seq      int64  `gorm:"primaryKey;autoIncrement"`
	ID       string `gorm:"size:36;uniqueIndex;not null"`
	TaskID   string `gorm:"size:36;index:idx_events_task_ts,priority:1;not null"`
	Type     string `gorm:"not null"`
	ActorID  string `gorm:"size:36;not null"`
	UnixNano int64  `gorm:"index:idx_events_task_ts,priority:2;not null"`
	Payload  []byte
}

func (eventRow) TableName() string { return "task_events" }

func toUserRow(u *domain.User) *userRow {
	return &userRow{
		ID:        u.ID.String(),
		Email:     u.Email,
		EmailKey:  strings.ToLower(u.Email),
		Role:      string(u.Role),
		Status:    string(u.Status),
		CreatedAt: u.CreatedAt.UTC(),
	}
}

func (r *userRow) toDomain() (*domain.User, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	return &domain.User{
		ID:        id,
		Email:     r.Email,
		Role:      domain.Role(r.Role),
		Status:    domain.UserStatus(r.Status),
		CreatedAt: r.CreatedAt.UTC(),
	}, nil
}

func toTaskRow(t *domain.Task) *taskRow {
	row := &taskRow{
		ID:          t.ID.String(),
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		CreatorID:   t.CreatorID.String(),
		Deleted:     t.Deleted,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
	if t.DueDate != nil {
		d := t.DueDate.UTC()
		row.DueDate = &d
	}
	if t.AssigneeID != nil {
		a := t.AssigneeID.String()
		row.AssigneeID = &a
	}
	return row
}

func (r *taskRow) toDomain() (*domain.Task, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse task id: %w", err)
	}
	creator, err := uuid.Parse(r.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("parse creator id: %w", err)
	}

	t := &domain.Task{
		ID:          id,
		Title:       r.Title,
		Description: r.Description,
		Status:      domain.TaskStatus(r.Status),
		Priority:    domain.Priority(r.Priority),
		CreatorID:   creator,
		Deleted:     r.Deleted,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.DueDate != nil {
		d := r.DueDate.UTC()
		t.DueDate = &d
	}
	if r.AssigneeID != nil {
		a, err := uuid.Parse(*r.AssigneeID)
		if err != nil {
			return nil, fmt.Errorf("parse assignee id: %w", err)
		}
		t.AssigneeID = &a
	}
	return t, nil
}

func toEventRow(e *domain.TaskEvent) (*eventRow, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &eventRow{
		ID:       e.ID.String(),
		TaskID:   e.TaskID.String(),
		Type:     string(e.Type),
		ActorID:  e.ActorID.String(),
		UnixNano: e.Timestamp.UnixNano(),
		Payload:  payload,
	}, nil
}

func (r *eventRow) toDomain() (*domain.TaskEvent, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event id: %w", err)
	}
	taskID, err := uuid.Parse(r.TaskID)
	if err != nil {
		return nil, fmt.Errorf("parse task id: %w", err)
	}
	actorID, err := uuid.Parse(r.ActorID)
	if err != nil {
		return nil, fmt.Errorf("parse actor id: %w", err)
	}

	e := &domain.TaskEvent{
		ID:        id,
		TaskID:    taskID,
		Type:      domain.EventType(r.Type),
		ActorID:   actorID,
		Timestamp: time.Unix(0, r.UnixNano).UTC(),
		Seq:       r.Seq,
	}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return e, nil
}
