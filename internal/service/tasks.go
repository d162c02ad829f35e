package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tasktrack/internal/domain"
	"github.com/gosuda/tasktrack/internal/policy"
)

// CreateInput carries the fields of a new task. Priority defaults to NORMAL.
type CreateInput struct {
	Title       string
	Description string
	Priority    domain.Priority
	DueDate     *time.Time
}

// UpdateInput lists the fields to change. Nil fields are left alone; at
// least one must be set. ClearDueDate removes the due date and cannot be
// combined with DueDate.
type UpdateInput struct {
	Title        *string
	Description  *string
	Priority     *domain.Priority
	DueDate      *time.Time
	ClearDueDate bool
}

func (in UpdateInput) empty() bool {
	return in.Title == nil && in.Description == nil && in.Priority == nil && in.DueDate == nil && !in.ClearDueDate
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(title) > domain.MaxTitleLength {
		return "", &domain.ValidationError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", domain.MaxTitleLength)}
	}
	return title, nil
}

func taskNotFound(id uuid.UUID) error {
	return &domain.NotFoundError{Entity: "task", ID: id.String()}
}

// Create opens a new task in status NEW owned by actor.
func (s *TaskService) Create(ctx context.Context, actor domain.User, in CreateInput) (task *domain.Task, err error) {
	ctx, done := s.begin(ctx, "create")
	defer done(&err)

	if err := policy.Evaluate(policy.Request{Actor: actor, Action: policy.ActionCreate}).Err(policy.ActionCreate); err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}

	title, err := normalizeTitle(in.Title)
	if err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("service.Create: %w", &domain.ValidationError{Field: "priority", Reason: "unknown priority " + string(priority)})
	}

	now := s.timestamp(nil)
	task = &domain.Task{
		ID:          s.ids.NewID(),
		Title:       title,
		Description: in.Description,
		Status:      domain.TaskStatusNew,
		Priority:    priority,
		DueDate:     cloneTime(in.DueDate),
		CreatorID:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	event := s.newEvent(task, actor, domain.EventTypeCreated, map[string]any{
		"title":       task.Title,
		"description": task.Description,
		"priority":    string(task.Priority),
		"status":      string(task.Status),
	})
	if err := s.commit(ctx, "service.Create", task, event); err != nil {
		return nil, err
	}
	return task, nil
}

// Get returns a task the actor may view. Soft-deleted tasks are reported as
// missing to everyone but managers.
func (s *TaskService) Get(ctx context.Context, actor domain.User, id uuid.UUID) (task *domain.Task, err error) {
	ctx, done := s.begin(ctx, "get")
	defer done(&err)

	task, err = s.find(ctx, "service.Get", id)
	if err != nil {
		return nil, err
	}

	d := policy.Evaluate(policy.Request{Actor: actor, Action: policy.ActionView, Task: task})
	if task.Deleted && !d.Allowed {
		return nil, fmt.Errorf("service.Get: %w", taskNotFound(id))
	}
	if err := d.Err(policy.ActionView); err != nil {
		return nil, fmt.Errorf("service.Get: %w", err)
	}
	return task, nil
}

// List returns the tasks matching f that actor may view, oldest first.
// Deleted tasks are only listed for managers that ask for them.
func (s *TaskService) List(ctx context.Context, actor domain.User, f domain.TaskFilter) (tasks []*domain.Task, err error) {
	ctx, done := s.begin(ctx, "list")
	defer done(&err)

	if err := policy.Admit(actor).Err(policy.ActionView); err != nil {
		return nil, fmt.Errorf("service.List: %w", err)
	}
	if !actor.IsManager() {
		f.IncludeDeleted = false
	}

	all, err := s.tasks.ListAll(ctx, f)
	if err != nil {
		return nil, storageErr("service.List", err)
	}

	tasks = make([]*domain.Task, 0, len(all))
	for _, t := range all {
		if policy.CanPerform(actor, policy.ActionView, t) {
			tasks = append(tasks, t)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Update changes a task's editable fields. Supplying only the current values
// returns the task as is without writing an event.
func (s *TaskService) Update(ctx context.Context, actor domain.User, id uuid.UUID, in UpdateInput) (task *domain.Task, err error) {
	ctx, done := s.begin(ctx, "update")
	defer done(&err)

	unlock, err := s.lock(ctx, "service.Update", id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	task, err = s.findLive(ctx, "service.Update", actor, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Evaluate(policy.Request{Actor: actor, Action: policy.ActionUpdateFields, Task: task}).Err(policy.ActionUpdateFields); err != nil {
		return nil, fmt.Errorf("service.Update: %w", err)
	}

	if in.empty() {
		return nil, fmt.Errorf("service.Update: %w", &domain.ValidationError{Field: "fields", Reason: "at least one field is required"})
	}
	if in.ClearDueDate && in.DueDate != nil {
		return nil, fmt.Errorf("service.Update: %w", &domain.ValidationError{Field: "due_date", Reason: "cannot set and clear the due date together"})
	}

	before := make(map[string]any)
	after := make(map[string]any)
	next := task.Clone()

	if in.Title != nil {
		title, err := normalizeTitle(*in.Title)
		if err != nil {
			return nil, fmt.Errorf("service.Update: %w", err)
		}
		if title != task.Title {
			before["title"], after["title"] = task.Title, title
			next.Title = title
		}
	}
	if in.Description != nil && *in.Description != task.Description {
		before["description"], after["description"] = task.Description, *in.Description
		next.Description = *in.Description
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return nil, fmt.Errorf("service.Update: %w", &domain.ValidationError{Field: "priority", Reason: "unknown priority " + string(*in.Priority)})
		}
		if *in.Priority != task.Priority {
			before["priority"], after["priority"] = string(task.Priority), string(*in.Priority)
			next.Priority = *in.Priority
		}
	}
	if in.DueDate != nil && (task.DueDate == nil || !task.DueDate.Equal(*in.DueDate)) {
		before["due_date"], after["due_date"] = formatTime(task.DueDate), formatTime(in.DueDate)
		next.DueDate = cloneTime(in.DueDate)
	}
	if in.ClearDueDate && task.DueDate != nil {
		before["due_date"], after["due_date"] = formatTime(task.DueDate), nil
		next.DueDate = nil
	}

	if len(after) == 0 {
		return task, nil
	}

	next.UpdatedAt = s.timestamp(task)
	event := s.newEvent(next, actor, domain.EventTypeUpdated, map[string]any{
		"before": before,
		"after":  after,
	})
	if err := s.commit(ctx, "service.Update", next, event); err != nil {
		return nil, err
	}
	return next, nil
}

// Assign makes assigneeID the task's assignee.
func (s *TaskService) Assign(ctx context.Context, actor domain.User, id, assigneeID uuid.UUID) (task *domain.Task, err error) {
	ctx, done := s.begin(ctx, "assign")
	defer done(&err)

	unlock, err := s.lock(ctx, "service.Assign", id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	task, err = s.findLive(ctx, "service.Assign", actor, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Evaluate(policy.Request{Actor: actor, Action: policy.ActionAssign, Task: task}).Err(policy.ActionAssign); err != nil {
		return nil, fmt.Errorf("service.Assign: %w", err)
	}
	if task.IsAssignee(assigneeID) {
		return nil, fmt.Errorf("service.Assign: %w", &domain.ValidationError{Field: "assignee_id", Reason: "task is already assigned to this user"})
	}

	assignee, err := s.users.GetByID(ctx, assigneeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("service.Assign: %w", &domain.NotFoundError{Entity: "user", ID: assigneeID.String()})
	}
	if err != nil {
		return nil, storageErr("service.Assign: get assignee", err)
	}
	if !assignee.IsActive() {
		return nil, fmt.Errorf("service.Assign: %w", &domain.PermissionError{Action: string(policy.ActionAssign), Reason: "assignee_blocked"})
	}

	var from any
	if task.AssigneeID != nil {
		from = task.AssigneeID.String()
	}

	next := task.Clone()
	next.AssigneeID = &assigneeID
	next.UpdatedAt = s.timestamp(task)
	event := s.newEvent(next, actor, domain.EventTypeAssigned, map[string]any{
		"from": from,
		"to":   assigneeID.String(),
	})
	if err := s.commit(ctx, "service.Assign", next, event); err != nil {
		return nil, err
	}
	return next, nil
}

// ChangeStatus moves a task along one edge of the lifecycle. The policy is
// consulted before the state machine.
func (s *TaskService) ChangeStatus(ctx context.Context, actor domain.User, id uuid.UUID, to domain.TaskStatus) (task *domain.Task, err error) {
	ctx, done := s.begin(ctx, "change_status")
	defer done(&err)

	if !to.Valid() {
		return nil, fmt.Errorf("service.ChangeStatus: %w", &domain.ValidationError{Field: "status", Reason: "unknown status " + string(to)})
	}

	unlock, err := s.lock(ctx, "service.ChangeStatus", id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	task, err = s.findLive(ctx, "service.ChangeStatus", actor, id)
	if err != nil {
		return nil, err
	}
	req := policy.Request{Actor: actor, Action: policy.ActionChangeStatus, Task: task, Target: to}
	if err := policy.Evaluate(req).Err(policy.ActionChangeStatus); err != nil {
		return nil, fmt.Errorf("service.ChangeStatus: %w", err)
	}
	from := task.Status
	if !from.ValidTransition(to) {
		return nil, fmt.Errorf("service.ChangeStatus: %w", &domain.TransitionError{From: from, To: to})
	}

	payload := map[string]any{
		"from": string(from),
		"to":   string(to),
	}
	if from.IsReopen(to) {
		payload["reopen"] = true
	}

	next := task.Clone()
	next.Status = to
	next.UpdatedAt = s.timestamp(task)
	event := s.newEvent(next, actor, domain.EventTypeStatusChanged, payload)
	if err := s.commit(ctx, "service.ChangeStatus", next, event); err != nil {
		return nil, err
	}
	return next, nil
}

// Delete soft-deletes a task. The status is kept and the history stays
// readable. Deleting twice fails with ErrAlreadyDeleted.
func (s *TaskService) Delete(ctx context.Context, actor domain.User, id uuid.UUID) (err error) {
	ctx, done := s.begin(ctx, "delete")
	defer done(&err)

	unlock, err := s.lock(ctx, "service.Delete", id)
	if err != nil {
		return err
	}
	defer unlock()

	task, err := s.findLive(ctx, "service.Delete", actor, id)
	if err != nil {
		return err
	}
	if err := policy.Evaluate(policy.Request{Actor: actor, Action: policy.ActionDelete, Task: task}).Err(policy.ActionDelete); err != nil {
		return fmt.Errorf("service.Delete: %w", err)
	}

	next := task.Clone()
	next.Deleted = true
	next.UpdatedAt = s.timestamp(task)
	event := s.newEvent(next, actor, domain.EventTypeDeleted, map[string]any{
		"status": string(task.Status),
	})
	return s.commit(ctx, "service.Delete", next, event)
}

// ListEvents returns a task's history ordered by timestamp, ties in append order.
func (s *TaskService) ListEvents(ctx context.Context, actor domain.User, id uuid.UUID) (events []*domain.TaskEvent, err error) {
	ctx, done := s.begin(ctx, "list_events")
	defer done(&err)

	task, err := s.find(ctx, "service.ListEvents", id)
	if err != nil {
		return nil, err
	}

	d := policy.Evaluate(policy.Request{Actor: actor, Action: policy.ActionViewHistory, Task: task})
	if task.Deleted && !d.Allowed {
		return nil, fmt.Errorf("service.ListEvents: %w", taskNotFound(id))
	}
	if err := d.Err(policy.ActionViewHistory); err != nil {
		return nil, fmt.Errorf("service.ListEvents: %w", err)
	}

	events, err = s.tasks.ListEvents(ctx, id)
	if err != nil {
		return nil, storageErr("service.ListEvents", err)
	}
	return events, nil
}

func (s *TaskService) lock(ctx context.Context, op string, id uuid.UUID) (func(), error) {
	unlock, err := s.locks.lock(ctx, id)
	if err != nil {
		return nil, storageErr(op+": lock", err)
	}
	return unlock, nil
}

func (s *TaskService) find(ctx context.Context, op string, id uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, taskNotFound(id))
	}
	if err != nil {
		return nil, storageErr(op, err)
	}
	return task, nil
}

// findLive loads a task for mutation. A deleted task is reported as
// ErrAlreadyDeleted to actors who may still read its history and as missing
// to everyone else.
func (s *TaskService) findLive(ctx context.Context, op string, actor domain.User, id uuid.UUID) (*domain.Task, error) {
	task, err := s.find(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if !task.Deleted {
		return task, nil
	}
	if policy.CanPerform(actor, policy.ActionViewHistory, task) {
		return nil, fmt.Errorf("%s: task %s: %w", op, id, domain.ErrAlreadyDeleted)
	}
	return nil, fmt.Errorf("%s: %w", op, taskNotFound(id))
}

func (s *TaskService) newEvent(task *domain.Task, actor domain.User, typ domain.EventType, payload map[string]any) *domain.TaskEvent {
	return &domain.TaskEvent{
		ID:        s.ids.NewID(),
		TaskID:    task.ID,
		Type:      typ,
		ActorID:   actor.ID,
		Timestamp: task.UpdatedAt,
		Payload:   payload,
	}
}

// commit persists task and event together.
func (s *TaskService) commit(ctx context.Context, op string, task *domain.Task, event *domain.TaskEvent) error {
	err := s.tasks.Atomically(ctx, func(ctx context.Context, repo domain.TaskRepository) error {
		if err := repo.Save(ctx, task); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, event)
	})
	if err != nil {
		err = storageErr(op, err)
		log.Error().Err(err).
			Str("task_id", task.ID.String()).
			Str("event", string(event.Type)).
			Msg(op + ": commit failed")
		return err
	}

	log.Debug().
		Str("task_id", task.ID.String()).
		Str("actor_id", event.ActorID.String()).
		Str("event", string(event.Type)).
		Str("status", string(task.Status)).
		Msg(op)
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
