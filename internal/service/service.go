// Package service implements the task tracker's use cases. TaskService is the
// only place that combines the permission policy, the state machine and the
// repositories; every mutation it commits writes the task and its event in one
// unit of work.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosuda/tasktrack/internal/clock"
	"github.com/gosuda/tasktrack/internal/domain"
	"github.com/gosuda/tasktrack/internal/idgen"
)

// DefaultStorageTimeout bounds a single service operation when no timeout is configured.
const DefaultStorageTimeout = 5 * time.Second

// Recorder receives one observation per service operation.
type Recorder interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error, time.Duration) {}

// Option configures optional TaskService parameters.
type Option func(*TaskService)

// WithStorageTimeout sets the deadline applied to every operation's storage calls.
// Non-positive values disable the deadline.
func WithStorageTimeout(d time.Duration) Option {
	return func(s *TaskService) {
		s.timeout = d
	}
}

// WithRecorder installs an operation observer such as the prometheus metrics.
func WithRecorder(r Recorder) Option {
	return func(s *TaskService) {
		if r != nil {
			s.recorder = r
		}
	}
}

type TaskService struct {
	tasks    domain.TaskRepository
	users    domain.UserRepository
	clock    clock.Clock
	ids      idgen.Generator
	timeout  time.Duration
	recorder Recorder
	locks    *keyedMutex
}

func New(
	tasks domain.TaskRepository,
	users domain.UserRepository,
	clk clock.Clock,
	ids idgen.Generator,
	opts ...Option,
) *TaskService {
	s := &TaskService{
		tasks:    tasks,
		users:    users,
		clock:    clk,
		ids:      ids,
		timeout:  DefaultStorageTimeout,
		recorder: nopRecorder{},
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// begin starts an operation: it applies the storage deadline and returns a
// finish func that records the outcome.
func (s *TaskService) begin(ctx context.Context, op string) (context.Context, func(*error)) {
	start := time.Now()
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func(errp *error) {
		cancel()
		s.recorder.ObserveOperation(op, *errp, time.Since(start))
	}
}

// storageErr classifies an error returned by a repository. Domain sentinels
// the repositories use on purpose pass through; everything else becomes
// ErrStorage, and deadline expiry becomes ErrTimeout.
func storageErr(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTimeout, err)
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrStorage):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
	}
}

// timestamp returns the clock's current time, clamped so that it never
// precedes the task's last update.
func (s *TaskService) timestamp(t *domain.Task) time.Time {
	now := s.clock.Now()
	if t != nil && now.Before(t.UpdatedAt) {
		return t.UpdatedAt
	}
	return now
}
