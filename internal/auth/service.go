package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosuda/tasktrack/internal/domain"
)

// ErrUnknownUser is returned when a token or login names a user that does not exist.
var ErrUnknownUser = errors.New("auth: unknown user")

// Tokens is an access/refresh pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Service binds tokens to users held in a UserRepository.
type Service struct {
	users      domain.UserRepository
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewService(users domain.UserRepository, jwtSecret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		users:      users,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueForEmail mints tokens for an existing user. There is no password:
// callers expose it only in development setups.
func (s *Service) IssueForEmail(ctx context.Context, email string) (*Tokens, *domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, fmt.Errorf("auth.IssueForEmail: %w", ErrUnknownUser)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("auth.IssueForEmail: %w", err)
	}

	tokens, err := s.issue(user)
	if err != nil {
		return nil, nil, fmt.Errorf("auth.IssueForEmail: %w", err)
	}
	return tokens, user, nil
}

// Refresh validates a refresh token and issues a new pair for the same user.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	user, err := s.resolve(ctx, refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("auth.Refresh: %w", err)
	}

	tokens, err := s.issue(user)
	if err != nil {
		return nil, fmt.Errorf("auth.Refresh: %w", err)
	}
	return tokens, nil
}

// Authenticate returns the current state of the user an access token names.
// Blocked users are returned as-is; the permission policy rejects them.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	user, err := s.resolve(ctx, accessToken, tokenTypeAccess)
	if err != nil {
		return nil, fmt.Errorf("auth.Authenticate: %w", err)
	}
	return user, nil
}

func (s *Service) resolve(ctx context.Context, token, wantType string) (*domain.User, error) {
	claims, err := ValidateToken(s.jwtSecret, token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}

	id, err := claims.userID()
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) issue(user *domain.User) (*Tokens, error) {
	access, err := IssueAccessToken(s.jwtSecret, user.ID, user.Role, s.accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := IssueRefreshToken(s.jwtSecret, user.ID, user.Role, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(s.accessTTL),
	}, nil
}
