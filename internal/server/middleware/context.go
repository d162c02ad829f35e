package middleware

import (
	"context"

	"github.com/gosuda/tasktrack/internal/domain"
)

type contextKey string

const ContextKeyActor contextKey = "actor"

// WithActor stores the resolved actor in ctx.
func WithActor(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, ContextKeyActor, u)
}

func ActorFromContext(ctx context.Context) (*domain.User, bool) {
	v, ok := ctx.Value(ContextKeyActor).(*domain.User)
	return v, ok && v != nil
}
