package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/tasktrack/internal/auth"
)

type IssueTokenInput struct {
	Body struct {
		Email string `json:"email" minLength:"3" maxLength:"255" doc:"Email of an existing user"`
	}
}

type RefreshInput struct {
	Body struct {
		RefreshToken string `json:"refresh_token" minLength:"1" doc:"Refresh token"` //nolint:gosec // G117: token refresh DTO
	}
}

type TokenOutput struct {
	Body struct {
		AccessToken  string    `json:"access_token"`  //nolint:gosec // G117: auth response DTO
		RefreshToken string    `json:"refresh_token"` //nolint:gosec // G117: auth response DTO
		ExpiresAt    time.Time `json:"expires_at"`
		User         *UserView `json:"user,omitempty"`
	}
}

// RegisterTokenRoutes mounts the unauthenticated token endpoints. Issuing by
// email has no password check, so it is only mounted when allowIssue is set.
func RegisterTokenRoutes(api huma.API, authSvc AuthService, allowIssue bool) {
	if allowIssue {
		huma.Register(api, huma.Operation{
			OperationID: "issue-token",
			Method:      http.MethodPost,
			Path:        "/tokens",
			Summary:     "Issue tokens for an existing user (development only)",
			Tags:        []string{"Auth"},
		}, func(ctx context.Context, input *IssueTokenInput) (*TokenOutput, error) {
			tokens, user, err := authSvc.IssueForEmail(ctx, input.Body.Email)
			if err != nil {
				if errors.Is(err, auth.ErrUnknownUser) {
					return nil, huma.Error401Unauthorized("unknown user")
				}
				return nil, toHTTPError("issue-token", err)
			}

			out := tokenOutput(tokens)
			view := toUserView(user)
			out.Body.User = &view
			return out, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "refresh-token",
		Method:      http.MethodPost,
		Path:        "/tokens/refresh",
		Summary:     "Exchange a refresh token for a new token pair",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RefreshInput) (*TokenOutput, error) {
		tokens, err := authSvc.Refresh(ctx, input.Body.RefreshToken)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrUnknownUser) {
				return nil, huma.Error401Unauthorized("invalid or expired refresh token")
			}
			return nil, toHTTPError("refresh-token", err)
		}

		return tokenOutput(tokens), nil
	})
}

func tokenOutput(t *auth.Tokens) *TokenOutput {
	out := &TokenOutput{}
	out.Body.AccessToken = t.AccessToken
	out.Body.RefreshToken = t.RefreshToken
	out.Body.ExpiresAt = t.ExpiresAt
	return out
}
