package v1

import (
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/tasktrack/internal/domain"
)

// TaskView is the wire form of a task.
type TaskView struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status" enum:"NEW,IN_PROGRESS,DONE,CANCELED"`
	Priority    string     `json:"priority" enum:"LOW,NORMAL,HIGH"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
	CreatorID   uuid.UUID  `json:"creator_id"`
	Deleted     bool       `json:"deleted"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toTaskView(t *domain.Task) TaskView {
	return TaskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		AssigneeID:  t.AssigneeID,
		CreatorID:   t.CreatorID,
		Deleted:     t.Deleted,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTaskViews(tasks []*domain.Task) []TaskView {
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskView(t))
	}
	return out
}

// EventView is the wire form of a history entry.
type EventView struct {
	ID        uuid.UUID      `json:"id"`
	TaskID    uuid.UUID      `json:"task_id"`
	Type      string         `json:"type" enum:"CREATED,UPDATED,ASSIGNED,STATUS_CHANGED,DELETED"`
	ActorID   uuid.UUID      `json:"actor_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func toEventViews(events []*domain.TaskEvent) []EventView {
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, EventView{
			ID:        e.ID,
			TaskID:    e.TaskID,
			Type:      string(e.Type),
			ActorID:   e.ActorID,
			Timestamp: e.Timestamp,
			Payload:   e.Payload,
		})
	}
	return out
}

type UserView struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role" enum:"USER,MANAGER"`
	Status    string    `json:"status" enum:"ACTIVE,BLOCKED"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserView(u *domain.User) UserView {
	return UserView{
		ID:        u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
		Status:    string(u.Status),
		CreatedAt: u.CreatedAt,
	}
}
