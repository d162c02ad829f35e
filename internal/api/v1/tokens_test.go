package v1_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/tasktrack/internal/api/v1"
	"github.com/gosuda/tasktrack/internal/auth"
	"github.com/gosuda/tasktrack/internal/domain"
)

type tokenBody struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         *v1.UserView `json:"user"`
}

func TestIssueToken(t *testing.T) {
	t.Parallel()

	known := &domain.User{ID: uuid.New(), Email: "known@example.com", Role: domain.RoleUser, Status: domain.UserStatusActive, CreatedAt: epoch}
	svc := &mockAuthService{
		issueForEmailFunc: func(_ context.Context, email string) (*auth.Tokens, *domain.User, error) {
			if email != known.Email {
				return nil, nil, fmt.Errorf("auth.IssueForEmail: %w", auth.ErrUnknownUser)
			}
			return &auth.Tokens{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: epoch.Add(time.Hour)}, known, nil
		},
	}

	t.Run("mounted", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterTokenRoutes(api, svc, true)

		resp := api.Post("/tokens", map[string]any{"email": known.Email})
		require.Equal(t, http.StatusOK, resp.Code)

		var body tokenBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "access", body.AccessToken)
		assert.Equal(t, "refresh", body.RefreshToken)
		require.NotNil(t, body.User)
		assert.Equal(t, known.ID, body.User.ID)

		resp = api.Post("/tokens", map[string]any{"email": "ghost@example.com"})
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("not_mounted", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterTokenRoutes(api, svc, false)

		resp := api.Post("/tokens", map[string]any{"email": known.Email})
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestRefreshToken(t *testing.T) {
	t.Parallel()

	_, api := humatest.New(t)
	v1.RegisterTokenRoutes(api, &mockAuthService{
		refreshFunc: func(_ context.Context, tok string) (*auth.Tokens, error) {
			switch tok {
			case "good":
				return &auth.Tokens{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: epoch}, nil
			case "down":
				return nil, fmt.Errorf("auth.Refresh: %w", domain.ErrStorage)
			default:
				return nil, fmt.Errorf("auth.Refresh: %w", auth.ErrInvalidToken)
			}
		},
	}, false)

	resp := api.Post("/tokens/refresh", map[string]any{"refresh_token": "good"})
	require.Equal(t, http.StatusOK, resp.Code)

	var body tokenBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "a2", body.AccessToken)
	assert.Nil(t, body.User)

	resp = api.Post("/tokens/refresh", map[string]any{"refresh_token": "stale"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = api.Post("/tokens/refresh", map[string]any{"refresh_token": "down"})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
