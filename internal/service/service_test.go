package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tasktrack/internal/clock"
	"github.com/gosuda/tasktrack/internal/domain"
	"github.com/gosuda/tasktrack/internal/idgen"
	"github.com/gosuda/tasktrack/internal/service"
	"github.com/gosuda/tasktrack/internal/store/memory"
)

var epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// counters is shared by a spyRepo and the transactional repos it hands out.
type counters struct {
	saves      atomic.Int64
	appends    atomic.Int64
	failAppend error
}

// spyRepo counts writes reaching the repository.
type spyRepo struct {
	domain.TaskRepository
	c *counters
}

func (r *spyRepo) Save(ctx context.Context, t *domain.Task) error {
	r.c.saves.Add(1)
	return r.TaskRepository.Save(ctx, t)
}

func (r *spyRepo) AppendEvent(ctx context.Context, e *domain.TaskEvent) error {
	r.c.appends.Add(1)
	if r.c.failAppend != nil {
		return r.c.failAppend
	}
	return r.TaskRepository.AppendEvent(ctx, e)
}

func (r *spyRepo) Atomically(ctx context.Context, fn func(ctx context.Context, repo domain.TaskRepository) error) error {
	return r.TaskRepository.Atomically(ctx, func(ctx context.Context, tx domain.TaskRepository) error {
		return fn(ctx, &spyRepo{TaskRepository: tx, c: r.c})
	})
}

func (r *spyRepo) writes() int64 {
	return r.c.saves.Load() + r.c.appends.Load()
}

func (r *spyRepo) reset() {
	r.c.saves.Store(0)
	r.c.appends.Store(0)
}

type fixture struct {
	svc      *service.TaskService
	repo     *spyRepo
	users    domain.UserRepository
	clock    *clock.FakeClock
	manager  domain.User
	creator  domain.User
	assignee domain.User
	outsider domain.User
	blocked  domain.User
}

func newFixture(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()

	store := memory.New()
	f := &fixture{
		repo:  &spyRepo{TaskRepository: store.Tasks(), c: &counters{}},
		users: store.Users(),
		clock: clock.Stepping(epoch, time.Second),
	}
	f.svc = service.New(f.repo, f.users, f.clock, &idgen.Sequence{}, opts...)

	mk := func(email string, role domain.Role, status domain.UserStatus) domain.User {
		u := domain.User{ID: uuid.New(), Email: email, Role: role, Status: status, CreatedAt: epoch}
		require.NoError(t, f.users.Create(context.Background(), &u))
		return u
	}
	f.manager = mk("boss@example.com", domain.RoleManager, domain.UserStatusActive)
	f.creator = mk("creator@example.com", domain.RoleUser, domain.UserStatusActive)
	f.assignee = mk("assignee@example.com", domain.RoleUser, domain.UserStatusActive)
	f.outsider = mk("outsider@example.com", domain.RoleUser, domain.UserStatusActive)
	f.blocked = mk("blocked@example.com", domain.RoleUser, domain.UserStatusBlocked)
	return f
}

// task creates a task by the creator, assigns it and walks it to status.
func (f *fixture) task(t *testing.T, status domain.TaskStatus) *domain.Task {
	t.Helper()
	ctx := context.Background()

	task, err := f.svc.Create(ctx, f.creator, service.CreateInput{Title: "Write report"})
	require.NoError(t, err)
	task, err = f.svc.Assign(ctx, f.manager, task.ID, f.assignee.ID)
	require.NoError(t, err)

	path := map[domain.TaskStatus][]domain.TaskStatus{
		domain.TaskStatusNew:        nil,
		domain.TaskStatusInProgress: {domain.TaskStatusInProgress},
		domain.TaskStatusDone:       {domain.TaskStatusInProgress, domain.TaskStatusDone},
		domain.TaskStatusCanceled:   {domain.TaskStatusCanceled},
	}
	for _, to := range path[status] {
		task, err = f.svc.ChangeStatus(ctx, f.manager, task.ID, to)
		require.NoError(t, err)
	}
	return task
}

func eventTypes(events []*domain.TaskEvent) []domain.EventType {
	out := make([]domain.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

// ---------------------------------------------------------------------------
// 1. Scenarios
// ---------------------------------------------------------------------------

func TestScenario_AssignProgressCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	task, err := f.svc.Create(ctx, f.creator, service.CreateInput{Title: "Write report"})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusNew, task.Status)
	assert.Equal(t, f.creator.ID, task.CreatorID)
	assert.Equal(t, domain.PriorityNormal, task.Priority)

	task, err = f.svc.Assign(ctx, f.manager, task.ID, f.assignee.ID)
	require.NoError(t, err)
	require.NotNil(t, task.AssigneeID)
	assert.Equal(t, f.assignee.ID, *task.AssigneeID)

	task, err = f.svc.ChangeStatus(ctx, f.assignee, task.ID, domain.TaskStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, task.Status)

	_, err = f.svc.ChangeStatus(ctx, f.assignee, task.ID, domain.TaskStatusCanceled)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	var perr *domain.PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "CHANGE_STATUS", perr.Action)
	assert.Equal(t, "manager_only", perr.Reason)

	task, err = f.svc.ChangeStatus(ctx, f.manager, task.ID, domain.TaskStatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCanceled, task.Status)

	events, err := f.svc.ListEvents(ctx, f.creator, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{
		domain.EventTypeCreated,
		domain.EventTypeAssigned,
		domain.EventTypeStatusChanged,
		domain.EventTypeStatusChanged,
	}, eventTypes(events))
	assert.Equal(t, map[string]any{"from": nil, "to": f.assignee.ID.String()}, events[1].Payload)
	assert.Equal(t, map[string]any{"from": "NEW", "to": "IN_PROGRESS"}, events[2].Payload)
	assert.Equal(t, map[string]any{"from": "IN_PROGRESS", "to": "CANCELED"}, events[3].Payload)
	assert.Equal(t, f.manager.ID, events[3].ActorID)
}

func TestScenario_CreatorDeletesNewTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	task, err := f.svc.Create(ctx, f.creator, service.CreateInput{Title: "Scratch"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.creator, task.ID))

	_, err = f.svc.Get(ctx, f.creator, task.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := f.svc.Get(ctx, f.manager, task.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, domain.TaskStatusNew, got.Status)

	// History stays readable by the creator and managers.
	events, err := f.svc.ListEvents(ctx, f.creator, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{domain.EventTypeCreated, domain.EventTypeDeleted}, eventTypes(events))
	assert.Equal(t, map[string]any{"status": "NEW"}, events[1].Payload)

	_, err = f.svc.ListEvents(ctx, f.outsider, task.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ---------------------------------------------------------------------------
// 2. Status transitions
// ---------------------------------------------------------------------------

func TestChangeStatus_TransitionMatrix(t *testing.T) {
	t.Parallel()

	for _, from := range domain.TaskStatuses {
		for _, to := range domain.TaskStatuses {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				t.Parallel()

				f := newFixture(t)
				ctx := context.Background()
				task := f.task(t, from)

				before, err := f.svc.ListEvents(ctx, f.manager, task.ID)
				require.NoError(t, err)

				got, err := f.svc.ChangeStatus(ctx, f.manager, task.ID, to)

				after, listErr := f.svc.ListEvents(ctx, f.manager, task.ID)
				require.NoError(t, listErr)

				if !from.ValidTransition(to) {
					require.ErrorIs(t, err, domain.ErrInvalidTransition)
					var terr *domain.TransitionError
					require.ErrorAs(t, err, &terr)
					assert.Equal(t, from, terr.From)
					assert.Equal(t, to, terr.To)
					assert.Len(t, after, len(before))
					return
				}

				require.NoError(t, err)
				assert.Equal(t, to, got.Status)
				require.Len(t, after, len(before)+1)
				last := after[len(after)-1]
				assert.Equal(t, domain.EventTypeStatusChanged, last.Type)
				assert.Equal(t, string(from), last.Payload["from"])
				assert.Equal(t, string(to), last.Payload["to"])
				if from.IsReopen(to) {
					assert.Equal(t, true, last.Payload["reopen"])
				} else {
					assert.NotContains(t, last.Payload, "reopen")
				}
			})
		}
	}
}

func TestChangeStatus_UnknownStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	task := f.task(t, domain.TaskStatusNew)
	f.repo.reset()

	_, err := f.svc.ChangeStatus(context.Background(), f.manager, task.ID, "ARCHIVED")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Zero(t, f.repo.writes())
}

func TestChangeStatus_PolicyBeforeLegality(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	task := f.task(t, domain.TaskStatusDone)

	// DONE->NEW is illegal, but an outsider is rejected by the policy first.
	_, err := f.svc.ChangeStatus(context.Background(), f.outsider, task.ID, domain.TaskStatusNew)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.svc.ChangeStatus(context.Background(), f.creator, task.ID, domain.TaskStatusNew)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

// ---------------------------------------------------------------------------
// 3. Denials never write
// ---------------------------------------------------------------------------

func TestDeniedActionsNeverWrite(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	newTask := f.task(t, domain.TaskStatusNew)
	progressing := f.task(t, domain.TaskStatusInProgress)
	done := f.task(t, domain.TaskStatusDone)
	f.repo.reset()

	title := "hijacked"
	denials := []struct {
		name string
		call func() error
	}{
		{"outsider updates", func() error {
			_, err := f.svc.Update(ctx, f.outsider, newTask.ID, service.UpdateInput{Title: &title})
			return err
		}},
		{"assignee updates", func() error {
			_, err := f.svc.Update(ctx, f.assignee, newTask.ID, service.UpdateInput{Title: &title})
			return err
		}},
		{"creator updates done task", func() error {
			_, err := f.svc.Update(ctx, f.creator, done.ID, service.UpdateInput{Title: &title})
			return err
		}},
		{"user assigns", func() error {
			_, err := f.svc.Assign(ctx, f.creator, newTask.ID, f.outsider.ID)
			return err
		}},
		{"manager assigns done task", func() error {
			_, err := f.svc.Assign(ctx, f.manager, done.ID, f.outsider.ID)
			return err
		}},
		{"assignee cancels", func() error {
			_, err := f.svc.ChangeStatus(ctx, f.assignee, progressing.ID, domain.TaskStatusCanceled)
			return err
		}},
		{"creator reopens", func() error {
			_, err := f.svc.ChangeStatus(ctx, f.creator, done.ID, domain.TaskStatusInProgress)
			return err
		}},
		{"outsider starts", func() error {
			_, err := f.svc.ChangeStatus(ctx, f.outsider, newTask.ID, domain.TaskStatusInProgress)
			return err
		}},
		{"creator deletes started task", func() error {
			return f.svc.Delete(ctx, f.creator, progressing.ID)
		}},
		{"assignee deletes", func() error {
			return f.svc.Delete(ctx, f.assignee, newTask.ID)
		}},
		{"blocked user creates", func() error {
			_, err := f.svc.Create(ctx, f.blocked, service.CreateInput{Title: "x"})
			return err
		}},
		{"outsider views", func() error {
			_, err := f.svc.Get(ctx, f.outsider, newTask.ID)
			return err
		}},
		{"outsider reads history", func() error {
			_, err := f.svc.ListEvents(ctx, f.outsider, newTask.ID)
			return err
		}},
	}

	for _, d := range denials {
		err := d.call()
		require.ErrorIs(t, err, domain.ErrPermissionDenied, d.name)
	}
	assert.Zero(t, f.repo.c.saves.Load())
	assert.Zero(t, f.repo.c.appends.Load())
}

// ---------------------------------------------------------------------------
// 4. Create, get and list
// ---------------------------------------------------------------------------

func TestCreate_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    service.CreateInput
		field string
	}{
		{"empty title", service.CreateInput{Title: ""}, "title"},
		{"blank title", service.CreateInput{Title: "   "}, "title"},
		{"long title", service.CreateInput{Title: string(make([]rune, domain.MaxTitleLength+1))}, "title"},
		{"bad priority", service.CreateInput{Title: "ok", Priority: "URGENT"}, "priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := f.svc.Create(ctx, f.creator, tt.in)
			require.ErrorIs(t, err, domain.ErrInvalidArgument)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCreate_RecordsEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	due := epoch.Add(72 * time.Hour)

	task, err := f.svc.Create(ctx, f.creator, service.CreateInput{
		Title:       "  Plan sprint  ",
		Description: "all hands",
		Priority:    domain.PriorityHigh,
		DueDate:     &due,
	})
	require.NoError(t, err)
	assert.Equal(t, "Plan sprint", task.Title)
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)
	require.NotNil(t, task.DueDate)
	assert.True(t, due.Equal(*task.DueDate))

	events, err := f.svc.ListEvents(ctx, f.creator, task.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeCreated, events[0].Type)
	assert.Equal(t, f.creator.ID, events[0].ActorID)
	assert.Equal(t, task.CreatedAt, events[0].Timestamp)
	assert.Equal(t, map[string]any{
		"title":       "Plan sprint",
		"description": "all hands",
		"priority":    "HIGH",
		"status":      "NEW",
	}, events[0].Payload)
}

func TestGet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, domain.TaskStatusNew)

	for _, actor := range []domain.User{f.creator, f.assignee, f.manager} {
		got, err := f.svc.Get(ctx, actor, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
	}

	_, err := f.svc.Get(ctx, f.manager, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
	var nerr *domain.NotFoundError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "task", nerr.Entity)
}

func TestList_VisibilityAndOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	first := f.task(t, domain.TaskStatusNew)
	own, err := f.svc.Create(ctx, f.outsider, service.CreateInput{Title: "mine"})
	require.NoError(t, err)
	gone := f.task(t, domain.TaskStatusNew)
	require.NoError(t, f.svc.Delete(ctx, f.manager, gone.ID))

	ids := func(tasks []*domain.Task) []uuid.UUID {
		out := make([]uuid.UUID, 0, len(tasks))
		for _, task := range tasks {
			out = append(out, task.ID)
		}
		return out
	}

	got, err := f.svc.List(ctx, f.manager, domain.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.ID, own.ID}, ids(got))

	got, err = f.svc.List(ctx, f.manager, domain.TaskFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.ID, own.ID, gone.ID}, ids(got))

	// Non-managers never see deleted tasks, even when asking.
	got, err = f.svc.List(ctx, f.creator, domain.TaskFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.ID}, ids(got))

	got, err = f.svc.List(ctx, f.outsider, domain.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{own.ID}, ids(got))

	status := domain.TaskStatusInProgress
	got, err = f.svc.List(ctx, f.manager, domain.TaskFilter{Status: &status})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.svc.List(ctx, f.blocked, domain.TaskFilter{})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestList_OrderedByCreatedAtStable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.clock.Set(epoch.Add(time.Hour))
	late, err := f.svc.Create(ctx, f.manager, service.CreateInput{Title: "late"})
	require.NoError(t, err)

	// A frozen clock gives the next two the same, earlier timestamp.
	frozen := clock.Fake(epoch)
	svc := service.New(f.repo, f.users, frozen, idgen.UUID())
	a, err := svc.Create(ctx, f.manager, service.CreateInput{Title: "a"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, f.manager, service.CreateInput{Title: "b"})
	require.NoError(t, err)

	got, err := f.svc.List(ctx, f.manager, domain.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)
	assert.Equal(t, late.ID, got[2].ID)
}

// ---------------------------------------------------------------------------
// 5. Update and assign
// ---------------------------------------------------------------------------

func TestUpdate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, domain.TaskStatusNew)

	title, desc := "Write final report", "with appendix"
	updated, err := f.svc.Update(ctx, f.creator, task.ID, service.UpdateInput{Title: &title, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, desc, updated.Description)
	assert.True(t, updated.UpdatedAt.After(task.UpdatedAt))

	events, err := f.svc.ListEvents(ctx, f.creator, task.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventTypeUpdated, last.Type)
	assert.Equal(t, map[string]any{"title": "Write report", "description": ""}, last.Payload["before"])
	assert.Equal(t, map[string]any{"title": title, "description": desc}, last.Payload["after"])

	t.Run("unchanged values write nothing", func(t *testing.T) {
		f.repo.reset()
		same, err := f.svc.Update(ctx, f.manager, task.ID, service.UpdateInput{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, updated.UpdatedAt, same.UpdatedAt)
		assert.Zero(t, f.repo.writes())
	})

	t.Run("no fields", func(t *testing.T) {
		_, err := f.svc.Update(ctx, f.creator, task.ID, service.UpdateInput{})
		require.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("blank title", func(t *testing.T) {
		blank := " "
		_, err := f.svc.Update(ctx, f.creator, task.ID, service.UpdateInput{Title: &blank})
		require.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("bad priority", func(t *testing.T) {
		p := domain.Priority("URGENT")
		_, err := f.svc.Update(ctx, f.creator, task.ID, service.UpdateInput{Priority: &p})
		require.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("missing task", func(t *testing.T) {
		_, err := f.svc.Update(ctx, f.creator, uuid.New(), service.UpdateInput{Title: &title})
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUpdate_ClearDueDate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, domain.TaskStatusNew)

	due := epoch.Add(72 * time.Hour)
	withDue, err := f.svc.Update(ctx, f.creator, task.ID, service.UpdateInput{DueDate: &due})
	require.NoError(t, err)
	require.NotNil(t, withDue.DueDate)

	cleared, err := f.svc.Update(ctx, f.creator, task.ID, service.UpdateInput{ClearDueDate: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.DueDate)

	events, err := f.svc.ListEvents(ctx, f.creator, task.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventTypeUpdated, last.Type)
	assert.Equal(t, map[string]any{"due_date": due.Format(time.RFC3339)}, last.Payload["before"])
	assert.Equal(t, map[string]any{"due_date": nil}, last.Payload["after"])

	got, err := f.svc.Get(ctx, f.creator, task.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DueDate)

	t.Run("already empty writes nothing", func(t *testing.T) {
		f.repo.reset()
		same, err := f.svc.Update(ctx, f.creator, task.ID, service.UpdateInput{ClearDueDate: true})
		require.NoError(t, err)
		assert.Nil(t, same.DueDate)
		assert.Zero(t, f.repo.writes())
	})

	t.Run("set and clear together", func(t *testing.T) {
		_, err := f.svc.Update(ctx, f.creator, task.ID, service.UpdateInput{DueDate: &due, ClearDueDate: true})
		require.ErrorIs(t, err, domain.ErrInvalidArgument)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "due_date", verr.Field)
	})
}

func TestAssign(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, domain.TaskStatusInProgress)

	reassigned, err := f.svc.Assign(ctx, f.manager, task.ID, f.outsider.ID)
	require.NoError(t, err)
	assert.Equal(t, f.outsider.ID, *reassigned.AssigneeID)

	events, err := f.svc.ListEvents(ctx, f.manager, task.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, map[string]any{"from": f.assignee.ID.String(), "to": f.outsider.ID.String()}, last.Payload)

	f.repo.reset()

	_, err = f.svc.Assign(ctx, f.manager, task.ID, f.outsider.ID)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.Assign(ctx, f.manager, task.ID, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
	var nerr *domain.NotFoundError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "user", nerr.Entity)

	_, err = f.svc.Assign(ctx, f.manager, task.ID, f.blocked.ID)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	var perr *domain.PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "assignee_blocked", perr.Reason)

	assert.Zero(t, f.repo.writes())
}

// ---------------------------------------------------------------------------
// 6. Delete
// ---------------------------------------------------------------------------

func TestDelete_Twice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, domain.TaskStatusDone)

	require.NoError(t, f.svc.Delete(ctx, f.manager, task.ID))
	err := f.svc.Delete(ctx, f.manager, task.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyDeleted)

	events, err := f.svc.ListEvents(ctx, f.manager, task.ID)
	require.NoError(t, err)
	deleted := 0
	for _, e := range events {
		if e.Type == domain.EventTypeDeleted {
			deleted++
			assert.Equal(t, "DONE", e.Payload["status"])
		}
	}
	assert.Equal(t, 1, deleted)

	got, err := f.svc.Get(ctx, f.manager, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, got.Status)
}

func TestMutatingDeletedTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, domain.TaskStatusNew)
	require.NoError(t, f.svc.Delete(ctx, f.manager, task.ID))

	_, err := f.svc.ChangeStatus(ctx, f.manager, task.ID, domain.TaskStatusInProgress)
	require.ErrorIs(t, err, domain.ErrAlreadyDeleted)

	title := "again"
	_, err = f.svc.Update(ctx, f.creator, task.ID, service.UpdateInput{Title: &title})
	require.ErrorIs(t, err, domain.ErrAlreadyDeleted)

	// The assignee can no longer see the task at all.
	_, err = f.svc.ChangeStatus(ctx, f.assignee, task.ID, domain.TaskStatusInProgress)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// ---------------------------------------------------------------------------
// 7. Event ordering and atomicity
// ---------------------------------------------------------------------------

func TestListEvents_MonotonicStartingWithCreated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, domain.TaskStatusDone)

	// A clock that jumps backwards must not reorder history.
	f.clock.Set(epoch.Add(-time.Hour))
	_, err := f.svc.ChangeStatus(ctx, f.manager, task.ID, domain.TaskStatusInProgress)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, f.manager, task.ID))

	events, err := f.svc.ListEvents(ctx, f.manager, task.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventTypeCreated, events[0].Type)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp), "event %d goes back in time", i)
	}
	assert.Equal(t, domain.EventTypeDeleted, events[len(events)-1].Type)
}

func TestCommit_RollsBackWhenAppendFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, domain.TaskStatusNew)

	boom := errors.New("disk full")
	f.repo.c.failAppend = boom

	_, err := f.svc.ChangeStatus(ctx, f.manager, task.ID, domain.TaskStatusInProgress)
	require.ErrorIs(t, err, domain.ErrStorage)
	require.ErrorIs(t, err, boom)

	_, err = f.svc.Create(ctx, f.creator, service.CreateInput{Title: "lost"})
	require.ErrorIs(t, err, domain.ErrStorage)

	f.repo.c.failAppend = nil

	got, err := f.svc.Get(ctx, f.manager, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusNew, got.Status)

	all, err := f.svc.List(ctx, f.manager, domain.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// ---------------------------------------------------------------------------
// 8. Concurrency and timeouts
// ---------------------------------------------------------------------------

func TestChangeStatus_ConcurrentCallersSerialized(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, domain.TaskStatusInProgress)

	const workers = 16
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rejected  atomic.Int64
	)
	for i := range workers {
		target := domain.TaskStatusDone
		if i%2 == 1 {
			target = domain.TaskStatusCanceled
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ChangeStatus(ctx, f.manager, task.ID, target)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInvalidTransition):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), succeeded.Load())
	assert.Equal(t, int64(workers-1), rejected.Load())

	events, err := f.svc.ListEvents(ctx, f.manager, task.ID)
	require.NoError(t, err)
	changes := 0
	for _, e := range events {
		if e.Type == domain.EventTypeStatusChanged && e.Payload["from"] == "IN_PROGRESS" {
			changes++
		}
	}
	assert.Equal(t, 1, changes)
}

// stallingRepo blocks every read until the caller's context ends.
type stallingRepo struct {
	domain.TaskRepository
}

func (stallingRepo) FindByID(ctx context.Context, _ uuid.UUID) (*domain.Task, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStorageTimeout(t *testing.T) {
	t.Parallel()

	store := memory.New()
	svc := service.New(stallingRepo{store.Tasks()}, store.Users(), clock.Fake(epoch), idgen.UUID(),
		service.WithStorageTimeout(20*time.Millisecond))

	actor := domain.User{ID: uuid.New(), Role: domain.RoleManager, Status: domain.UserStatusActive}
	_, err := svc.Get(context.Background(), actor, uuid.New())
	require.ErrorIs(t, err, domain.ErrTimeout)
	require.ErrorIs(t, err, domain.ErrStorage)
}

type recorded struct {
	op  string
	err error
}

type fakeRecorder struct {
	mu  sync.Mutex
	ops []recorded
}

func (r *fakeRecorder) ObserveOperation(op string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recorded{op, err})
}

func TestRecorderObservesOperations(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	f := newFixture(t, service.WithRecorder(rec))
	ctx := context.Background()

	task, err := f.svc.Create(ctx, f.creator, service.CreateInput{Title: "x"})
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, f.outsider, task.ID)
	require.Error(t, err)

	require.Len(t, rec.ops, 2)
	assert.Equal(t, "create", rec.ops[0].op)
	assert.NoError(t, rec.ops[0].err)
	assert.Equal(t, "get", rec.ops[1].op)
	assert.ErrorIs(t, rec.ops[1].err, domain.ErrPermissionDenied)
}
