package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tasktrack/internal/domain"
	"github.com/gosuda/tasktrack/internal/policy"
)

// ActionRegisterUser names user registration in permission errors.
const ActionRegisterUser = "REGISTER_USER"

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", &domain.ValidationError{Field: "email", Reason: "must be a plain email address"}
	}
	return strings.ToLower(addr.Address), nil
}

// NewUser describes a user to register. An empty Role means USER and an
// empty Status means ACTIVE.
type NewUser struct {
	Email  string
	Role   domain.Role
	Status domain.UserStatus
}

// RegisterUser creates a user. Only active managers may register users.
func (s *TaskService) RegisterUser(ctx context.Context, actor domain.User, in NewUser) (user *domain.User, err error) {
	ctx, done := s.begin(ctx, "register_user")
	defer done(&err)

	if d := policy.Admit(actor); !d.Allowed {
		return nil, fmt.Errorf("service.RegisterUser: %w", d.Err(ActionRegisterUser))
	}
	if !actor.IsManager() {
		return nil, fmt.Errorf("service.RegisterUser: %w", &domain.PermissionError{Action: ActionRegisterUser, Reason: string(policy.ReasonManagerOnly)})
	}

	return s.createUser(ctx, "service.RegisterUser", in)
}

// Bootstrap returns the user registered under email, creating it as the first
// MANAGER when the user store is empty. It fails with ErrConflict when other
// users exist but none has that email.
func (s *TaskService) Bootstrap(ctx context.Context, email string) (user *domain.User, err error) {
	ctx, done := s.begin(ctx, "bootstrap")
	defer done(&err)

	email, err = normalizeEmail(email)
	if err != nil {
		return nil, fmt.Errorf("service.Bootstrap: %w", err)
	}

	user, err = s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, storageErr("service.Bootstrap", err)
	}

	n, err := s.users.Count(ctx)
	if err != nil {
		return nil, storageErr("service.Bootstrap: count", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("service.Bootstrap: %d users exist, none is %s: %w", n, email, domain.ErrConflict)
	}

	return s.createUser(ctx, "service.Bootstrap", NewUser{Email: email, Role: domain.RoleManager})
}

// GetUser resolves a user id, typically the authenticated caller.
func (s *TaskService) GetUser(ctx context.Context, id uuid.UUID) (user *domain.User, err error) {
	ctx, done := s.begin(ctx, "get_user")
	defer done(&err)

	user, err = s.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("service.GetUser: %w", &domain.NotFoundError{Entity: "user", ID: id.String()})
	}
	if err != nil {
		return nil, storageErr("service.GetUser", err)
	}
	return user, nil
}

func (s *TaskService) createUser(ctx context.Context, op string, in NewUser) (*domain.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%s: %w", op, &domain.ValidationError{Field: "role", Reason: "unknown role " + string(role)})
	}

	status := in.Status
	if status == "" {
		status = domain.UserStatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%s: %w", op, &domain.ValidationError{Field: "status", Reason: "unknown status " + string(status)})
	}

	user := &domain.User{
		ID:        s.ids.NewID(),
		Email:     email,
		Role:      role,
		Status:    status,
		CreatedAt: s.clock.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, storageErr(op, err)
	}

	log.Info().Str("user_id", user.ID.String()).Str("role", string(role)).Str("status", string(status)).Msg(op + ": user created")
	return user, nil
}
