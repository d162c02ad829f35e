package v1_test

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/tasktrack/internal/auth"
	"github.com/gosuda/tasktrack/internal/domain"
	"github.com/gosuda/tasktrack/internal/server/middleware"
	"github.com/gosuda/tasktrack/internal/service"
)

// ---------------------------------------------------------------------------
// Context helpers: inject the actor into context for DoCtx
// ---------------------------------------------------------------------------

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newActor(role domain.Role) *domain.User {
	return &domain.User{
		ID:        uuid.New(),
		Email:     "actor@example.com",
		Role:      role,
		Status:    domain.UserStatusActive,
		CreatedAt: epoch,
	}
}

func actorCtx(u *domain.User) context.Context {
	return middleware.WithActor(context.Background(), u)
}

func sampleTask(creator uuid.UUID) *domain.Task {
	return &domain.Task{
		ID:        uuid.New(),
		Title:     "Write report",
		Status:    domain.TaskStatusNew,
		Priority:  domain.PriorityNormal,
		CreatorID: creator,
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
}

// ---------------------------------------------------------------------------
// Mock TaskService
// ---------------------------------------------------------------------------

type mockTaskService struct {
	createFunc       func(ctx context.Context, actor domain.User, in service.CreateInput) (*domain.Task, error)
	getFunc          func(ctx context.Context, actor domain.User, id uuid.UUID) (*domain.Task, error)
	listFunc         func(ctx context.Context, actor domain.User, f domain.TaskFilter) ([]*domain.Task, error)
	updateFunc       func(ctx context.Context, actor domain.User, id uuid.UUID, in service.UpdateInput) (*domain.Task, error)
	assignFunc       func(ctx context.Context, actor domain.User, id, assigneeID uuid.UUID) (*domain.Task, error)
	changeStatusFunc func(ctx context.Context, actor domain.User, id uuid.UUID, to domain.TaskStatus) (*domain.Task, error)
	deleteFunc       func(ctx context.Context, actor domain.User, id uuid.UUID) error
	listEventsFunc   func(ctx context.Context, actor domain.User, id uuid.UUID) ([]*domain.TaskEvent, error)
}

func (m *mockTaskService) Create(ctx context.Context, actor domain.User, in service.CreateInput) (*domain.Task, error) {
	return m.createFunc(ctx, actor, in)
}

func (m *mockTaskService) Get(ctx context.Context, actor domain.User, id uuid.UUID) (*domain.Task, error) {
	return m.getFunc(ctx, actor, id)
}

func (m *mockTaskService) List(ctx context.Context, actor domain.User, f domain.TaskFilter) ([]*domain.Task, error) {
	return m.listFunc(ctx, actor, f)
}

func (m *mockTaskService) Update(ctx context.Context, actor domain.User, id uuid.UUID, in service.UpdateInput) (*domain.Task, error) {
	return m.updateFunc(ctx, actor, id, in)
}

func (m *mockTaskService) Assign(ctx context.Context, actor domain.User, id, assigneeID uuid.UUID) (*domain.Task, error) {
	return m.assignFunc(ctx, actor, id, assigneeID)
}

func (m *mockTaskService) ChangeStatus(ctx context.Context, actor domain.User, id uuid.UUID, to domain.TaskStatus) (*domain.Task, error) {
	return m.changeStatusFunc(ctx, actor, id, to)
}

func (m *mockTaskService) Delete(ctx context.Context, actor domain.User, id uuid.UUID) error {
	return m.deleteFunc(ctx, actor, id)
}

func (m *mockTaskService) ListEvents(ctx context.Context, actor domain.User, id uuid.UUID) ([]*domain.TaskEvent, error) {
	return m.listEventsFunc(ctx, actor, id)
}

// ---------------------------------------------------------------------------
// Mock UserService
// ---------------------------------------------------------------------------

type mockUserService struct {
	registerUserFunc func(ctx context.Context, actor domain.User, in service.NewUser) (*domain.User, error)
	getUserFunc      func(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

func (m *mockUserService) RegisterUser(ctx context.Context, actor domain.User, in service.NewUser) (*domain.User, error) {
	return m.registerUserFunc(ctx, actor, in)
}

func (m *mockUserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return m.getUserFunc(ctx, id)
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	issueForEmailFunc func(ctx context.Context, email string) (*auth.Tokens, *domain.User, error)
	refreshFunc       func(ctx context.Context, refreshToken string) (*auth.Tokens, error)
}

func (m *mockAuthService) IssueForEmail(ctx context.Context, email string) (*auth.Tokens, *domain.User, error) {
	return m.issueForEmailFunc(ctx, email)
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error) {
	return m.refreshFunc(ctx, refreshToken)
}
