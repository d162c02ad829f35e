package v1

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tasktrack/internal/domain"
	"github.com/gosuda/tasktrack/internal/server/middleware"
)

// actorFrom returns the authenticated caller placed in ctx by middleware.Auth.
func actorFrom(ctx context.Context) (domain.User, error) {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return domain.User{}, huma.Error401Unauthorized("authentication required")
	}
	return *actor, nil
}

// toHTTPError maps service errors to problem responses. Typed errors carry
// their stable codes in the error detail: location names the field or
// action, value the reason.
func toHTTPError(op string, err error) error {
	var (
		permErr       *domain.PermissionError
		validationErr *domain.ValidationError
		transitionErr *domain.TransitionError
		notFoundErr   *domain.NotFoundError
	)

	switch {
	case errors.As(err, &permErr):
		return huma.Error403Forbidden("permission denied", &huma.ErrorDetail{
			Message:  permErr.Error(),
			Location: "action." + permErr.Action,
			Value:    permErr.Reason,
		})
	case errors.Is(err, domain.ErrPermissionDenied):
		return huma.Error403Forbidden("permission denied")
	case errors.As(err, &validationErr):
		return huma.Error400BadRequest("invalid argument", &huma.ErrorDetail{
			Message:  validationErr.Reason,
			Location: validationErr.Field,
			Value:    validationErr.Reason,
		})
	case errors.Is(err, domain.ErrInvalidArgument):
		return huma.Error400BadRequest("invalid argument")
	case errors.As(err, &transitionErr):
		return huma.Error400BadRequest("invalid status transition", &huma.ErrorDetail{
			Message:  transitionErr.Error(),
			Location: "status",
			Value:    string(transitionErr.From) + "->" + string(transitionErr.To),
		})
	case errors.Is(err, domain.ErrInvalidTransition):
		return huma.Error400BadRequest("invalid status transition")
	case errors.As(err, &notFoundErr):
		return huma.Error404NotFound(notFoundErr.Entity + " not found")
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound("not found")
	case errors.Is(err, domain.ErrAlreadyDeleted):
		return huma.Error409Conflict("task already deleted")
	case errors.Is(err, domain.ErrConflict):
		return huma.Error409Conflict("conflict")
	case errors.Is(err, domain.ErrTimeout):
		log.Warn().Err(err).Str("op", op).Msg("api: storage timeout")
		return huma.Error503ServiceUnavailable("storage timeout")
	case errors.Is(err, domain.ErrStorage):
		log.Error().Err(err).Str("op", op).Msg("api: storage failure")
		return huma.Error500InternalServerError("storage failure")
	default:
		log.Error().Err(err).Str("op", op).Msg("api: unexpected error")
		return huma.Error500InternalServerError("internal error")
	}
}
