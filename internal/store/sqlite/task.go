package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gosuda/tasktrack/internal/domain"
)

type TaskRepo struct {
	db   *gorm.DB
	inTx bool
}

// Save inserts t or overwrites the mutable columns of an existing row,
// keeping its original Seq.
func (r *TaskRepo) Save(ctx context.Context, t *domain.Task) error {
	row := toTaskRow(t)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "status", "priority", "due_date",
			"assignee_id", "deleted", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("sqlite.TaskRepo.Save: %w", err)
	}
	return nil
}

func (r *TaskRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	var row taskRow
	err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("sqlite.TaskRepo.FindByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite.TaskRepo.FindByID: %w", err)
	}

	t, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("sqlite.TaskRepo.FindByID: %w", err)
	}
	return t, nil
}

func (r *TaskRepo) ListAll(ctx context.Context, f domain.TaskFilter) ([]*domain.Task, error) {
	q := r.db.WithContext(ctx).Model(&taskRow{})
	if !f.IncludeDeleted {
		q = q.Where("deleted = ?", false)
	}
	if f.Status != nil {
		q = q.Where("status = ?", string(*f.Status))
	}
	if f.Priority != nil {
		q = q.Where("priority = ?", string(*f.Priority))
	}
	if f.AssigneeID != nil {
		q = q.Where("assignee_id = ?", f.AssigneeID.String())
	}
	if f.CreatorID != nil {
		q = q.Where("creator_id = ?", f.CreatorID.String())
	}

	var rows []taskRow
	if err := q.Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite.TaskRepo.ListAll: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("sqlite.TaskRepo.ListAll: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (r *TaskRepo) AppendEvent(ctx context.Context, e *domain.TaskEvent) error {
	row, err := toEventRow(e)
	if err != nil {
		return fmt.Errorf("sqlite.TaskRepo.AppendEvent: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("sqlite.TaskRepo.AppendEvent: %w", err)
	}
	e.Seq = row.Seq
	return nil
}

func (r *TaskRepo) ListEvents(ctx context.Context, taskID uuid.UUID) ([]*domain.TaskEvent, error) {
	var rows []eventRow
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID.String()).
		Order("unix_nano, seq").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite.TaskRepo.ListEvents: %w", err)
	}

	events := make([]*domain.TaskEvent, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("sqlite.TaskRepo.ListEvents: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Atomically runs fn in a gorm transaction. Nested calls join the outer one.
func (r *TaskRepo) Atomically(ctx context.Context, fn func(ctx context.Context, repo domain.TaskRepository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &TaskRepo{db: tx, inTx: true})
	})
}
