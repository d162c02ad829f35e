package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/tasktrack/internal/auth"
	"github.com/gosuda/tasktrack/internal/domain"
	"github.com/gosuda/tasktrack/internal/service"
)

// TaskService abstracts the task use cases for handler testing.
// *service.TaskService satisfies this interface.
type TaskService interface {
	Create(ctx context.Context, actor domain.User, in service.CreateInput) (*domain.Task, error)
	Get(ctx context.Context, actor domain.User, id uuid.UUID) (*domain.Task, error)
	List(ctx context.Context, actor domain.User, f domain.TaskFilter) ([]*domain.Task, error)
	Update(ctx context.Context, actor domain.User, id uuid.UUID, in service.UpdateInput) (*domain.Task, error)
	Assign(ctx context.Context, actor domain.User, id, assigneeID uuid.UUID) (*domain.Task, error)
	ChangeStatus(ctx context.Context, actor domain.User, id uuid.UUID, to domain.TaskStatus) (*domain.Task, error)
	Delete(ctx context.Context, actor domain.User, id uuid.UUID) error
	ListEvents(ctx context.Context, actor domain.User, id uuid.UUID) ([]*domain.TaskEvent, error)
}

// UserService abstracts user management. *service.TaskService satisfies it.
type UserService interface {
	RegisterUser(ctx context.Context, actor domain.User, in service.NewUser) (*domain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// AuthService abstracts token issuance. *auth.Service satisfies it.
type AuthService interface {
	IssueForEmail(ctx context.Context, email string) (*auth.Tokens, *domain.User, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error)
}
