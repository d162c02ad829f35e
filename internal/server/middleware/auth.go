package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tasktrack/internal/domain"
)

// HeaderActorID carries a user id when header identification is enabled.
const HeaderActorID = "X-Actor-Id"

// TokenAuthenticator resolves a bearer token to its user.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// UserLookup resolves a user id.
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// AuthOptions selects the accepted credentials. Tokens may be nil when no
// signing secret is configured; Users is required when AllowHeader is set.
type AuthOptions struct {
	Tokens      TokenAuthenticator
	Users       UserLookup
	AllowHeader bool
}

// Auth resolves the request's actor and stores it in the context. A bearer
// token, when present, is authoritative: a bad token is rejected even if an
// X-Actor-Id header is also sent.
func Auth(opts AuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := extractBearer(r); tok != "" && opts.Tokens != nil {
				user, err := opts.Tokens.Authenticate(r.Context(), tok)
				if err != nil {
					writeAuthError(w, r, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), user)))
				return
			}

			if raw := r.Header.Get(HeaderActorID); raw != "" && opts.AllowHeader {
				id, err := uuid.Parse(strings.TrimSpace(raw))
				if err != nil {
					unauthorized(w, "malformed "+HeaderActorID)
					return
				}
				user, err := opts.Users.GetUser(r.Context(), id)
				if err != nil {
					writeAuthError(w, r, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), user)))
				return
			}

			unauthorized(w, "missing or invalid credentials")
		})
	}
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// writeAuthError keeps storage failures distinguishable from bad credentials.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("middleware.Auth: actor lookup timed out")
		writeProblem(w, http.StatusServiceUnavailable, "storage timeout")
	case errors.Is(err, domain.ErrStorage):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("middleware.Auth: actor lookup failed")
		writeProblem(w, http.StatusInternalServerError, "storage failure")
	default:
		unauthorized(w, "missing or invalid credentials")
	}
}

func unauthorized(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusUnauthorized, detail)
}

// writeProblem writes an RFC 9457 problem body. detail must not need JSON
// escaping.
func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"title":"` + http.StatusText(status) + `","status":` + strconv.Itoa(status) + `,"detail":"` + detail + `"}`))
}
