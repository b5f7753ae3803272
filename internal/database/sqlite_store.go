package database

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"telegram-translator/internal/database/models"
)

// SQLiteStore is the embedded ledger backend. All writes go through a single connection so
// concurrent pipelines never contend for the database lock.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the ledger database at path and migrates its schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite ledger %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
		if err := db.Exec(pragma).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.AutoMigrate(&models.ProcessedPost{}, &models.RelayLog{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate sqlite ledger: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Exists reports whether (channel, postID) is in the ledger.
func (s *SQLiteStore) Exists(ctx context.Context, channel, postID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ProcessedPost{}).
		Where("channel = ? AND msg_id = ?", channel, postID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up %s/%s: %w", channel, postID, err)
	}
	return count > 0, nil
}

// Insert records (channel, postID); duplicates are ignored.
func (s *SQLiteStore) Insert(ctx context.Context, channel, postID string, at time.Time) error {
	row := models.ProcessedPost{Channel: channel, PostID: postID, ProcessedAt: normalizeTime(at)}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to insert %s/%s: %w", channel, postID, err)
	}
	return nil
}

// DeleteOlderThan removes ledger rows processed before cutoff.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("processed_at < ?", normalizeTime(cutoff)).
		Delete(&models.ProcessedPost{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// LogRelayedPost appends a relay log row.
func (s *SQLiteStore) LogRelayedPost(ctx context.Context, entry models.RelayLog) error {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to insert relay log for %s/%s: %w", entry.Source, entry.PostID, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close(_ context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// normalizeTime stores timestamps in UTC at second precision so that text comparison in SQLite
// orders them correctly.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
