package v1

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/tasktrack/internal/domain"
	"github.com/gosuda/tasktrack/internal/service"
)

type CreateTaskInput struct {
	Body struct {
		Title       string     `json:"title" doc:"Task title"`
		Description string     `json:"description,omitempty" doc:"Task description"`
		Priority    string     `json:"priority,omitempty" doc:"LOW, NORMAL or HIGH (default NORMAL)"`
		DueDate     *time.Time `json:"due_date,omitempty" doc:"Optional due date"`
	}
}

type TaskOutput struct {
	Body TaskView
}

type ListTasksInput struct {
	Status         string `query:"status" doc:"Filter by status"`
	Priority       string `query:"priority" doc:"Filter by priority"`
	AssigneeID     string `query:"assignee_id" doc:"Filter by assignee"`
	CreatorID      string `query:"creator_id" doc:"Filter by creator"`
	IncludeDeleted bool   `query:"include_deleted" doc:"Include soft-deleted tasks (managers only)"`
}

type ListTasksOutput struct {
	Body []TaskView
}

type TaskIDInput struct {
	ID uuid.UUID `path:"id" doc:"Task ID"`
}

type UpdateTaskInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		Title        *string    `json:"title,omitempty" doc:"Task title"`
		Description  *string    `json:"description,omitempty" doc:"Task description"`
		Priority     *string    `json:"priority,omitempty" doc:"Task priority"`
		DueDate      *time.Time `json:"due_date,omitempty" doc:"Due date"`
		ClearDueDate bool       `json:"clear_due_date,omitempty" doc:"Remove the due date; not allowed together with due_date"`
	}
}

type AssignTaskInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		AssigneeID uuid.UUID `json:"assignee_id" doc:"User to assign"`
	}
}

type ChangeStatusInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		Status string `json:"status" doc:"Target status"`
	}
}

type ListEventsOutput struct {
	Body []EventView
}

func RegisterTaskRoutes(api huma.API, svc TaskService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a new task",
		Tags:          []string{"Tasks"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateTaskInput) (*TaskOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		t, err := svc.Create(ctx, actor, service.CreateInput{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Priority:    domain.Priority(strings.ToUpper(input.Body.Priority)),
			DueDate:     input.Body.DueDate,
		})
		if err != nil {
			return nil, toHTTPError("create-task", err)
		}

		return &TaskOutput{Body: toTaskView(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List visible tasks",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		filter, err := input.filter()
		if err != nil {
			return nil, toHTTPError("list-tasks", err)
		}

		tasks, err := svc.List(ctx, actor, filter)
		if err != nil {
			return nil, toHTTPError("list-tasks", err)
		}

		return &ListTasksOutput{Body: toTaskViews(tasks)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task by ID",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *TaskIDInput) (*TaskOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		t, err := svc.Get(ctx, actor, input.ID)
		if err != nil {
			return nil, toHTTPError("get-task", err)
		}

		return &TaskOutput{Body: toTaskView(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task fields",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *UpdateTaskInput) (*TaskOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		in := service.UpdateInput{
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			DueDate:      input.Body.DueDate,
			ClearDueDate: input.Body.ClearDueDate,
		}
		if input.Body.Priority != nil {
			p := domain.Priority(strings.ToUpper(*input.Body.Priority))
			in.Priority = &p
		}

		t, err := svc.Update(ctx, actor, input.ID, in)
		if err != nil {
			return nil, toHTTPError("update-task", err)
		}

		return &TaskOutput{Body: toTaskView(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/assign",
		Summary:     "Assign a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *AssignTaskInput) (*TaskOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		if input.Body.AssigneeID == uuid.Nil {
			return nil, toHTTPError("assign-task", &domain.ValidationError{Field: "assignee_id", Reason: "is required"})
		}

		t, err := svc.Assign(ctx, actor, input.ID, input.Body.AssigneeID)
		if err != nil {
			return nil, toHTTPError("assign-task", err)
		}

		return &TaskOutput{Body: toTaskView(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/status",
		Summary:     "Move a task to another status",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *ChangeStatusInput) (*TaskOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		to := domain.TaskStatus(strings.ToUpper(strings.TrimSpace(input.Body.Status)))
		t, err := svc.ChangeStatus(ctx, actor, input.ID, to)
		if err != nil {
			return nil, toHTTPError("change-task-status", err)
		}

		return &TaskOutput{Body: toTaskView(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Soft-delete a task",
		Tags:          []string{"Tasks"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *TaskIDInput) (*struct{}, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		if err := svc.Delete(ctx, actor, input.ID); err != nil {
			return nil, toHTTPError("delete-task", err)
		}

		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-events",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/events",
		Summary:     "List a task's history",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *TaskIDInput) (*ListEventsOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		events, err := svc.ListEvents(ctx, actor, input.ID)
		if err != nil {
			return nil, toHTTPError("list-task-events", err)
		}

		return &ListEventsOutput{Body: toEventViews(events)}, nil
	})
}

func (in *ListTasksInput) filter() (domain.TaskFilter, error) {
	f := domain.TaskFilter{IncludeDeleted: in.IncludeDeleted}

	if in.Status != "" {
		s := domain.TaskStatus(strings.ToUpper(in.Status))
		if !s.Valid() {
			return f, &domain.ValidationError{Field: "status", Reason: "unknown status " + in.Status}
		}
		f.Status = &s
	}
	if in.Priority != "" {
		p := domain.Priority(strings.ToUpper(in.Priority))
		if !p.Valid() {
			return f, &domain.ValidationError{Field: "priority", Reason: "unknown priority " + in.Priority}
		}
		f.Priority = &p
	}
	if in.AssigneeID != "" {
		id, err := uuid.Parse(in.AssigneeID)
		if err != nil {
			return f, &domain.ValidationError{Field: "assignee_id", Reason: "must be a UUID"}
		}
		f.AssigneeID = &id
	}
	if in.CreatorID != "" {
		id, err := uuid.Parse(in.CreatorID)
		if err != nil {
			return f, &domain.ValidationError{Field: "creator_id", Reason: "must be a UUID"}
		}
		f.CreatorID = &id
	}
	return f, nil
}
