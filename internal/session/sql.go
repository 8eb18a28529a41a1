package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feedsync/internal/observability"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// kvEntry is one persisted session value.
type kvEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (kvEntry) TableName() string { return "session_kv" }

// SQLStore keeps session keys in a SQLite database through gorm.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for a
// throwaway store.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers, and each ":memory:" connection is its own database.
	sqlDB.SetMaxOpenConns(1)
	return NewSQLStore(db)
}

// NewSQLStore migrates the session table on db.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("migrate session_kv: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var e kvEntry
	err := s.db.WithContext(ctx).First(&e, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		observability.SessionStoreErrors.WithLabelValues("sqlite", "get").Inc()
		return "", false, err
	}
	return e.Value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&kvEntry{Key: key, Value: value}).Error
	if err != nil {
		observability.SessionStoreErrors.WithLabelValues("sqlite", "set").Inc()
	}
	return err
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Delete(&kvEntry{}, "key = ?", key).Error
	if err != nil {
		observability.SessionStoreErrors.WithLabelValues("sqlite", "delete").Inc()
	}
	return err
}

func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&kvEntry{}).
		Where("key LIKE ?", prefix+"%").
		Pluck("key", &keys).Error
	return keys, err
}

func (s *SQLStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&kvEntry{}).Error
	if err != nil {
		observability.SessionStoreErrors.WithLabelValues("sqlite", "clear").Inc()
	}
	return err
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
