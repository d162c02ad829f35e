package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeCreated       EventType = "CREATED"
	EventTypeUpdated       EventType = "UPDATED"
	EventTypeAssigned      EventType = "ASSIGNED"
	EventTypeStatusChanged EventType = "STATUS_CHANGED"
	EventTypeDeleted       EventType = "DELETED"
)

// TaskEvent is an immutable history record. Seq is assigned by the
// repository on append and orders events that share a timestamp.
type TaskEvent struct {
	ID        uuid.UUID
	TaskID    uuid.UUID
	Type      EventType
	ActorID   uuid.UUID
	Timestamp time.Time
	Payload   map[string]any
	Seq       int64
}

// Clone returns a copy whose payload shares no maps or slices with e.
func (e *TaskEvent) Clone() *TaskEvent {
	c := *e
	if e.Payload != nil {
		c.Payload = clonePayload(e.Payload)
	}
	return &c
}

func clonePayload(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return clonePayload(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}
