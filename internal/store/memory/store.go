// Package memory is a process-local backend for the task and user
// repositories. Every value crossing the package boundary is copied so
// callers can never alias stored state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/tasktrack/internal/domain"
)

type Store struct {
	mu        sync.RWMutex
	tasks     map[uuid.UUID]*domain.Task
	taskOrder []uuid.UUID
	events    map[uuid.UUID][]*domain.TaskEvent
	seq       int64

	users     map[uuid.UUID]*domain.User
	userOrder []uuid.UUID
}

func New() *Store {
	return &Store{
		tasks:  make(map[uuid.UUID]*domain.Task),
		events: make(map[uuid.UUID][]*domain.TaskEvent),
		users:  make(map[uuid.UUID]*domain.User),
	}
}

func (s *Store) Tasks() domain.TaskRepository { return &TaskRepo{store: s} }
func (s *Store) Users() domain.UserRepository { return &UserRepo{store: s} }

// Close is a no-op kept for symmetry with the persistent backends.
func (s *Store) Close() {}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

type TaskRepo struct {
	store *Store
}

func (r *TaskRepo) Save(ctx context.Context, t *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory.TaskRepo.Save: %w", err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.putTask(t)
	return nil
}

func (r *TaskRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory.TaskRepo.FindByID: %w", err)
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	t, ok := r.store.tasks[id]
	if !ok {
		return nil, fmt.Errorf("memory.TaskRepo.FindByID: %w", domain.ErrNotFound)
	}
	return t.Clone(), nil
}

func (r *TaskRepo) ListAll(ctx context.Context, f domain.TaskFilter) ([]*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory.TaskRepo.ListAll: %w", err)
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Task
	for _, id := range r.store.taskOrder {
		t := r.store.tasks[id]
		if f.Match(t) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (r *TaskRepo) AppendEvent(ctx context.Context, e *domain.TaskEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory.TaskRepo.AppendEvent: %w", err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.putEvent(e)
	return nil
}

func (r *TaskRepo) ListEvents(ctx context.Context, taskID uuid.UUID) ([]*domain.TaskEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory.TaskRepo.ListEvents: %w", err)
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return sortedEvents(r.store.events[taskID]), nil
}

// Atomically buffers every write fn makes and applies them under a single
// lock acquisition once fn succeeds. Reads inside fn see the buffered writes.
func (r *TaskRepo) Atomically(ctx context.Context, fn func(ctx context.Context, repo domain.TaskRepository) error) error {
	tx := &txRepo{
		base:  r,
		tasks: make(map[uuid.UUID]*domain.Task),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory.TaskRepo.Atomically: commit: %w", err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, id := range tx.order {
		r.store.putTask(tx.tasks[id])
	}
	for _, e := range tx.events {
		r.store.putEvent(e)
	}
	return nil
}

// putTask and putEvent require s.mu held for writing.
func (s *Store) putTask(t *domain.Task) {
	if _, exists := s.tasks[t.ID]; !exists {
		s.taskOrder = append(s.taskOrder, t.ID)
	}
	s.tasks[t.ID] = t.Clone()
}

func (s *Store) putEvent(e *domain.TaskEvent) {
	s.seq++
	e.Seq = s.seq
	s.events[e.TaskID] = append(s.events[e.TaskID], e.Clone())
}

func sortedEvents(in []*domain.TaskEvent) []*domain.TaskEvent {
	out := make([]*domain.TaskEvent, 0, len(in))
	for _, e := range in {
		out = append(out, e.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// txRepo stages writes for Atomically.
type txRepo struct {
	base   *TaskRepo
	tasks  map[uuid.UUID]*domain.Task
	order  []uuid.UUID
	events []*domain.TaskEvent
}

func (tx *txRepo) Save(ctx context.Context, t *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory.txRepo.Save: %w", err)
	}
	if _, staged := tx.tasks[t.ID]; !staged {
		tx.order = append(tx.order, t.ID)
	}
	tx.tasks[t.ID] = t.Clone()
	return nil
}

func (tx *txRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if t, ok := tx.tasks[id]; ok {
		return t.Clone(), nil
	}
	return tx.base.FindByID(ctx, id)
}

func (tx *txRepo) ListAll(ctx context.Context, f domain.TaskFilter) ([]*domain.Task, error) {
	committed, err := tx.base.ListAll(ctx, domain.TaskFilter{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}

	var out []*domain.Task
	seen := make(map[uuid.UUID]struct{}, len(committed))
	for _, t := range committed {
		seen[t.ID] = struct{}{}
		if staged, ok := tx.tasks[t.ID]; ok {
			t = staged.Clone()
		}
		if f.Match(t) {
			out = append(out, t)
		}
	}
	for _, id := range tx.order {
		if _, ok := seen[id]; ok {
			continue
		}
		if t := tx.tasks[id]; f.Match(t) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (tx *txRepo) AppendEvent(ctx context.Context, e *domain.TaskEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory.txRepo.AppendEvent: %w", err)
	}
	tx.events = append(tx.events, e)
	return nil
}

func (tx *txRepo) ListEvents(ctx context.Context, taskID uuid.UUID) ([]*domain.TaskEvent, error) {
	committed, err := tx.base.ListEvents(ctx, taskID)
	if err != nil {
		return nil, err
	}
	// Staged events have no Seq yet and always follow committed ones.
	for _, e := range tx.events {
		if e.TaskID == taskID {
			committed = append(committed, e.Clone())
		}
	}
	return committed, nil
}

func (tx *txRepo) Atomically(ctx context.Context, fn func(ctx context.Context, repo domain.TaskRepository) error) error {
	return fn(ctx, tx)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type UserRepo struct {
	store *Store
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory.UserRepo.Create: %w", err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.users[u.ID]; exists {
		return fmt.Errorf("memory.UserRepo.Create: id %s: %w", u.ID, domain.ErrConflict)
	}
	for _, existing := range r.store.users {
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("memory.UserRepo.Create: email %s: %w", u.Email, domain.ErrConflict)
		}
	}

	c := *u
	r.store.users[u.ID] = &c
	r.store.userOrder = append(r.store.userOrder, u.ID)
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory.UserRepo.GetByID: %w", err)
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users[id]
	if !ok {
		return nil, fmt.Errorf("memory.UserRepo.GetByID: %w", domain.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory.UserRepo.GetByEmail: %w", err)
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, id := range r.store.userOrder {
		if u := r.store.users[id]; strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("memory.UserRepo.GetByEmail: %w", domain.ErrNotFound)
}

func (r *UserRepo) List(ctx context.Context) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory.UserRepo.List: %w", err)
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.User, 0, len(r.store.userOrder))
	for _, id := range r.store.userOrder {
		c := *r.store.users[id]
		out = append(out, &c)
	}
	return out, nil
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("memory.UserRepo.Count: %w", err)
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return len(r.store.users), nil
}
