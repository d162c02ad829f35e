package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/tasktrack/internal/domain"
)

const taskColumns = `id, title, description, status, priority, due_date,
		        assignee_id, creator_id, deleted, created_at, updated_at`

type TaskRepo struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool, db: pool}
}

// Save inserts t or overwrites every mutable column of an existing row.
// The row's seq, and so its position in ListAll, is fixed on first insert.
func (r *TaskRepo) Save(ctx context.Context, t *domain.Task) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tasks (id, title, description, status, priority, due_date, assignee_id, creator_id, deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		        title = EXCLUDED.title, description = EXCLUDED.description,
		        status = EXCLUDED.status, priority = EXCLUDED.priority,
		        due_date = EXCLUDED.due_date, assignee_id = EXCLUDED.assignee_id,
		        deleted = EXCLUDED.deleted, updated_at = EXCLUDED.updated_at`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.DueDate,
		t.AssigneeID, t.CreatorID, t.Deleted, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("taskRepo.Save: %w", err)
	}

	return nil
}

func (r *TaskRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	var t domain.Task

	err := r.db.QueryRow(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks WHERE id = $1`,
		id,
	).Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.DueDate,
		&t.AssigneeID, &t.CreatorID, &t.Deleted, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("taskRepo.FindByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("taskRepo.FindByID: %w", err)
	}

	return &t, nil
}

func (r *TaskRepo) ListAll(ctx context.Context, f domain.TaskFilter) ([]*domain.Task, error) {
	query, args := buildTaskQuery(f)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("taskRepo.ListAll: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows, "taskRepo.ListAll")
}

// buildTaskQuery renders the ListAll statement for f. Rows come back in
// insertion order.
func buildTaskQuery(f domain.TaskFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if !f.IncludeDeleted {
		where = append(where, "NOT deleted")
	}
	if f.Status != nil {
		add("status = ?", *f.Status)
	}
	if f.Priority != nil {
		add("priority = ?", *f.Priority)
	}
	if f.AssigneeID != nil {
		add("assignee_id = ?", *f.AssigneeID)
	}
	if f.CreatorID != nil {
		add("creator_id = ?", *f.CreatorID)
	}

	var b strings.Builder
	b.WriteString("SELECT " + taskColumns + "\n\t\t FROM tasks")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY seq")
	return b.String(), args
}

func (r *TaskRepo) AppendEvent(ctx context.Context, e *domain.TaskEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("taskRepo.AppendEvent: marshal payload: %w", err)
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO task_events (id, task_id, type, actor_id, ts, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING seq`,
		e.ID, e.TaskID, e.Type, e.ActorID, e.Timestamp, payload,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("taskRepo.AppendEvent: %w", err)
	}

	return nil
}

func (r *TaskRepo) ListEvents(ctx context.Context, taskID uuid.UUID) ([]*domain.TaskEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT seq, id, task_id, type, actor_id, ts, payload
		 FROM task_events WHERE task_id = $1
		 ORDER BY ts, seq`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("taskRepo.ListEvents: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows, "taskRepo.ListEvents")
}

// Atomically runs fn inside one database transaction. Nested calls join the
// outer transaction.
func (r *TaskRepo) Atomically(ctx context.Context, fn func(ctx context.Context, repo domain.TaskRepository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &TaskRepo{pool: r.pool, db: tx, inTx: true})
	})
	if err != nil {
		return fmt.Errorf("taskRepo.Atomically: %w", err)
	}

	return nil
}

func scanTasks(rows pgx.Rows, caller string) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(
			&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.DueDate,
			&t.AssigneeID, &t.CreatorID, &t.Deleted, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return tasks, nil
}

func scanEvents(rows pgx.Rows, caller string) ([]*domain.TaskEvent, error) {
	var events []*domain.TaskEvent
	for rows.Next() {
		var e domain.TaskEvent
		var payload []byte

		if err := rows.Scan(
			&e.Seq, &e.ID, &e.TaskID, &e.Type, &e.ActorID, &e.Timestamp, &payload,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("%s: unmarshal payload: %w", caller, err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return events, nil
}
