// Package history persists session lifecycle events to a local SQLite
// database. The store is an audit trail, not authoritative state: the
// registry keeps all live state in memory and a crash loses it, which
// is accepted.
package history

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jgirmay/FORGE_GO/internal/preview"
)

// SessionEvent is one recorded lifecycle transition
type SessionEvent struct {
	ID          uint   `gorm:"primaryKey"`
	SessionID   string `gorm:"index;size:64"`
	ProjectDir  string `gorm:"size:512"`
	ProjectType string `gorm:"size:32"`
	Kind        string `gorm:"size:32"`
	Port        int
	Detail      string
	CreatedAt   time.Time
}

// Store records session events via GORM
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the event database at dsn and migrates the
// schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.AutoMigrate(&SessionEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordEvent persists one session lifecycle event
func (s *Store) RecordEvent(event preview.SessionEvent) error {
	row := SessionEvent{
		SessionID:   event.SessionID,
		ProjectDir:  event.ProjectDir,
		ProjectType: string(event.ProjectType),
		Kind:        event.Kind,
		Port:        event.Port,
		Detail:      event.Detail,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record session event: %w", err)
	}
	return nil
}

// Recent returns the latest n events for a session, newest first
func (s *Store) Recent(sessionID string, n int) ([]SessionEvent, error) {
	var events []SessionEvent
	err := s.db.
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(n).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	return events, nil
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
