package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gosuda/tasktrack/internal/domain"
)

type UserRepo struct {
	db *gorm.DB
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	err := r.db.WithContext(ctx).Create(toUserRow(u)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("sqlite.UserRepo.Create: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("sqlite.UserRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.first(ctx, "sqlite.UserRepo.GetByID", "id = ?", id.String())
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "sqlite.UserRepo.GetByEmail", "email_key = ?", strings.ToLower(email))
}

func (r *UserRepo) first(ctx context.Context, caller, cond string, arg any) (*domain.User, error) {
	var row userRow
	err := r.db.WithContext(ctx).Where(cond, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", caller, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", caller, err)
	}

	u, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", caller, err)
	}
	return u, nil
}

func (r *UserRepo) List(ctx context.Context) ([]*domain.User, error) {
	var rows []userRow
	if err := r.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite.UserRepo.List: %w", err)
	}

	users := make([]*domain.User, 0, len(rows))
	for i := range rows {
		u, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("sqlite.UserRepo.List: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&userRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("sqlite.UserRepo.Count: %w", err)
	}
	return int(n), nil
}
