package v1

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/tasktrack/internal/domain"
	"github.com/gosuda/tasktrack/internal/service"
)

type RegisterUserInput struct {
	Body struct {
		Email  string `json:"email" doc:"User email"`
		Role   string `json:"role,omitempty" doc:"USER or MANAGER (default USER)"`
		Status string `json:"status,omitempty" doc:"ACTIVE or BLOCKED (default ACTIVE)"`
	}
}

type UserOutput struct {
	Body UserView
}

type GetUserInput struct {
	ID uuid.UUID `path:"id" doc:"User ID"`
}

func RegisterUserRoutes(api huma.API, svc UserService) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register a user (managers only)",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *RegisterUserInput) (*UserOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		u, err := svc.RegisterUser(ctx, actor, service.NewUser{
			Email:  input.Body.Email,
			Role:   domain.Role(strings.ToUpper(strings.TrimSpace(input.Body.Role))),
			Status: domain.UserStatus(strings.ToUpper(strings.TrimSpace(input.Body.Status))),
		})
		if err != nil {
			return nil, toHTTPError("register-user", err)
		}

		return &UserOutput{Body: toUserView(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-current-user",
		Method:      http.MethodGet,
		Path:        "/users/me",
		Summary:     "Get the authenticated user",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, _ *struct{}) (*UserOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		return &UserOutput{Body: toUserView(&actor)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get a user by ID",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *GetUserInput) (*UserOutput, error) {
		if _, err := actorFrom(ctx); err != nil {
			return nil, err
		}

		u, err := svc.GetUser(ctx, input.ID)
		if err != nil {
			return nil, toHTTPError("get-user", err)
		}

		return &UserOutput{Body: toUserView(u)}, nil
	})
}
