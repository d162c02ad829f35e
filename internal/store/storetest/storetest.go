// Package storetest checks that a backend honours the repository contracts.
// Each backend's tests call Run with a constructor for a fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/tasktrack/internal/domain"
)

// Store is what every backend exposes.
type Store interface {
	Tasks() domain.TaskRepository
	Users() domain.UserRepository
}

var epoch = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

// Run exercises the contract against stores built by open.
func Run(t *testing.T, open func(t *testing.T) Store) {
	t.Helper()

	t.Run("TaskRoundTrip", func(t *testing.T) { testTaskRoundTrip(t, open(t)) })
	t.Run("ListAllInsertionOrder", func(t *testing.T) { testListAllOrder(t, open(t)) })
	t.Run("ListAllFilters", func(t *testing.T) { testListAllFilters(t, open(t)) })
	t.Run("EventOrder", func(t *testing.T) { testEventOrder(t, open(t)) })
	t.Run("AtomicallyRollback", func(t *testing.T) { testAtomicallyRollback(t, open(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, open(t)) })
}

func seedUser(t *testing.T, s Store, email string, role domain.Role) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Email: email, Role: role, Status: domain.UserStatusActive, CreatedAt: epoch}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func newTask(creator uuid.UUID, title string, created time.Time) *domain.Task {
	return &domain.Task{
		ID:        uuid.New(),
		Title:     title,
		Status:    domain.TaskStatusNew,
		Priority:  domain.PriorityNormal,
		CreatorID: creator,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func testTaskRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	creator := seedUser(t, s, "c@example.com", domain.RoleUser)
	assignee := seedUser(t, s, "a@example.com", domain.RoleUser)

	due := epoch.Add(48 * time.Hour)
	task := newTask(creator.ID, "round trip", epoch)
	task.Description = "desc"
	task.DueDate = &due
	task.AssigneeID = &assignee.ID
	require.NoError(t, s.Tasks().Save(ctx, task))

	got, err := s.Tasks().FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, task.Description, got.Description)
	assert.Equal(t, task.Status, got.Status)
	assert.Equal(t, task.Priority, got.Priority)
	assert.Equal(t, task.CreatorID, got.CreatorID)
	require.NotNil(t, got.AssigneeID)
	assert.Equal(t, assignee.ID, *got.AssigneeID)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate))
	assert.True(t, epoch.Equal(got.CreatedAt))

	task.Status = domain.TaskStatusInProgress
	task.AssigneeID = nil
	task.Deleted = true
	task.UpdatedAt = epoch.Add(time.Minute)
	require.NoError(t, s.Tasks().Save(ctx, task))

	got, err = s.Tasks().FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, got.Status)
	assert.Nil(t, got.AssigneeID)
	assert.True(t, got.Deleted)
	assert.True(t, task.UpdatedAt.Equal(got.UpdatedAt))

	_, err = s.Tasks().FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testListAllOrder(t *testing.T, s Store) {
	ctx := context.Background()
	creator := seedUser(t, s, "c@example.com", domain.RoleUser)

	first := newTask(creator.ID, "first", epoch.Add(time.Hour))
	second := newTask(creator.ID, "second", epoch)
	require.NoError(t, s.Tasks().Save(ctx, first))
	require.NoError(t, s.Tasks().Save(ctx, second))

	first.Title = "first again"
	require.NoError(t, s.Tasks().Save(ctx, first))

	got, err := s.Tasks().ListAll(ctx, domain.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, "first again", got[0].Title)
	assert.Equal(t, second.ID, got[1].ID)
}

func testListAllFilters(t *testing.T, s Store) {
	ctx := context.Background()
	creator := seedUser(t, s, "c@example.com", domain.RoleUser)
	other := seedUser(t, s, "o@example.com", domain.RoleUser)

	a := newTask(creator.ID, "a", epoch)
	a.AssigneeID = &other.ID
	b := newTask(other.ID, "b", epoch)
	b.Status = domain.TaskStatusDone
	b.Priority = domain.PriorityHigh
	c := newTask(creator.ID, "c", epoch)
	c.Deleted = true
	for _, task := range []*domain.Task{a, b, c} {
		require.NoError(t, s.Tasks().Save(ctx, task))
	}

	done := domain.TaskStatusDone
	high := domain.PriorityHigh
	tests := []struct {
		name   string
		filter domain.TaskFilter
		want   []uuid.UUID
	}{
		{"all live", domain.TaskFilter{}, []uuid.UUID{a.ID, b.ID}},
		{"with deleted", domain.TaskFilter{IncludeDeleted: true}, []uuid.UUID{a.ID, b.ID, c.ID}},
		{"status", domain.TaskFilter{Status: &done}, []uuid.UUID{b.ID}},
		{"priority", domain.TaskFilter{Priority: &high}, []uuid.UUID{b.ID}},
		{"assignee", domain.TaskFilter{AssigneeID: &other.ID}, []uuid.UUID{a.ID}},
		{"creator with deleted", domain.TaskFilter{CreatorID: &creator.ID, IncludeDeleted: true}, []uuid.UUID{a.ID, c.ID}},
	}
	for _, tt := range tests {
		got, err := s.Tasks().ListAll(ctx, tt.filter)
		require.NoError(t, err, tt.name)
		ids := make([]uuid.UUID, 0, len(got))
		for _, task := range got {
			ids = append(ids, task.ID)
		}
		assert.Equal(t, tt.want, ids, tt.name)
	}
}

func testEventOrder(t *testing.T, s Store) {
	ctx := context.Background()
	creator := seedUser(t, s, "c@example.com", domain.RoleUser)
	task := newTask(creator.ID, "events", epoch)
	require.NoError(t, s.Tasks().Save(ctx, task))

	mk := func(typ domain.EventType, at time.Time) *domain.TaskEvent {
		return &domain.TaskEvent{
			ID: uuid.New(), TaskID: task.ID, Type: typ, ActorID: creator.ID, Timestamp: at,
			Payload: map[string]any{"from": "NEW", "to": "IN_PROGRESS", "reopen": true},
		}
	}
	later := mk(domain.EventTypeStatusChanged, epoch.Add(time.Second))
	created := mk(domain.EventTypeCreated, epoch)
	tied := mk(domain.EventTypeAssigned, epoch)
	for _, e := range []*domain.TaskEvent{later, created, tied} {
		require.NoError(t, s.Tasks().AppendEvent(ctx, e))
	}
	assert.Less(t, created.Seq, tied.Seq)

	got, err := s.Tasks().ListEvents(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, created.ID, got[0].ID)
	assert.Equal(t, tied.ID, got[1].ID)
	assert.Equal(t, later.ID, got[2].ID)
	assert.Equal(t, later.Payload, got[2].Payload)
	assert.True(t, later.Timestamp.Equal(got[2].Timestamp))
}

func testAtomicallyRollback(t *testing.T, s Store) {
	ctx := context.Background()
	creator := seedUser(t, s, "c@example.com", domain.RoleUser)
	task := newTask(creator.ID, "tx", epoch)
	boom := errors.New("boom")

	err := s.Tasks().Atomically(ctx, func(ctx context.Context, repo domain.TaskRepository) error {
		require.NoError(t, repo.Save(ctx, task))
		require.NoError(t, repo.AppendEvent(ctx, &domain.TaskEvent{
			ID: uuid.New(), TaskID: task.ID, Type: domain.EventTypeCreated, ActorID: creator.ID, Timestamp: epoch,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Tasks().FindByID(ctx, task.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	events, err := s.Tasks().ListEvents(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	err = s.Tasks().Atomically(ctx, func(ctx context.Context, repo domain.TaskRepository) error {
		if err := repo.Save(ctx, task); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, &domain.TaskEvent{
			ID: uuid.New(), TaskID: task.ID, Type: domain.EventTypeCreated, ActorID: creator.ID, Timestamp: epoch,
		})
	})
	require.NoError(t, err)
	events, err = s.Tasks().ListEvents(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()
	n, err := s.Users().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	m := seedUser(t, s, "boss@example.com", domain.RoleManager)
	u := seedUser(t, s, "user@example.com", domain.RoleUser)

	dup := &domain.User{ID: uuid.New(), Email: "BOSS@example.com", Role: domain.RoleUser, Status: domain.UserStatusActive, CreatedAt: epoch}
	assert.ErrorIs(t, s.Users().Create(ctx, dup), domain.ErrConflict)

	got, err := s.Users().GetByEmail(ctx, "Boss@Example.com")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, domain.RoleManager, got.Role)

	got, err = s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", got.Email)
	assert.Equal(t, domain.UserStatusActive, got.Status)

	_, err = s.Users().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := s.Users().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, m.ID, all[0].ID)

	n, err = s.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
