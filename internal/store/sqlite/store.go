// Package sqlite is a single-node persistent backend built on gorm and the
// sqlite driver.
package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gosuda/tasktrack/internal/domain"
)

type Store struct {
	db    *gorm.DB
	users *UserRepo
	tasks *TaskRepo
}

// Open opens (creating if needed) the database at dsn and migrates the schema.
// sqlite serializes writers, so the pool is capped at one connection.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = "tasktrack.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(zerologWriter{}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: open db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}, &taskRow{}, &eventRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite.Open: migrate db: %w", err)
	}

	return &Store{
		db:    db,
		users: &UserRepo{db: db},
		tasks: &TaskRepo{db: db},
	}, nil
}

func (s *Store) Close() {
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error().Err(err).Msg("sqlite.Close")
	}
}

func (s *Store) Users() domain.UserRepository { return s.users }
func (s *Store) Tasks() domain.TaskRepository { return s.tasks }

// zerologWriter routes gorm's logger through the global zerolog logger.
type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...any) {
	log.Warn().Str("component", "gorm").Msgf(format, args...)
}

// ensureDirForSQLite creates the parent dir for a file-backed DSN.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
