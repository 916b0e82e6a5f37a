// Package persistence is a best-effort, append-only log of adapter
// lifecycle events, following the same gorm.Open(postgres.Open(dsn))
// connection shape used elsewhere in this codebase for Postgres
// access. It is an observability side channel, never a dependency of
// the data plane: a write failure here must never block or fail the
// registry operation that triggered it.
package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// LifecycleEvent is one row of the append-only adapter lifecycle log.
type LifecycleEvent struct {
	ID          uint      `gorm:"primaryKey"`
	AdapterName string    `gorm:"index"`
	Event       string
	OccurredAt  time.Time `gorm:"index"`
}

func (LifecycleEvent) TableName() string { return "adapter_lifecycle_events" }

// LifecycleStore persists LifecycleEvent rows to Postgres.
type LifecycleStore struct {
	db *gorm.DB
}

// DSN options mirror a standard libpq connection string's fields.
type DSN struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

// Open connects to Postgres and migrates the lifecycle events table.
func Open(dsn DSN) (*LifecycleStore, error) {
	conn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		dsn.Host, dsn.Port, dsn.User, dsn.Password, dsn.DBName, dsn.SSLMode, dsn.TimeZone)
	db, err := gorm.Open(postgres.Open(conn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&LifecycleEvent{}); err != nil {
		return nil, err
	}
	return &LifecycleStore{db: db}, nil
}

// RecordTransition appends one lifecycle event, timestamped with wall
// time (time.Now) rather than an injected clock — persistence is a
// durability boundary, not a cooperative loop under test-clock control.
func (s *LifecycleStore) RecordTransition(ctx context.Context, adapterName, event string) error {
	row := LifecycleEvent{AdapterName: adapterName, Event: event, OccurredAt: time.Now()}
	return s.db.WithContext(ctx).Create(&row).Error
}

// RecentEvents returns the most recent events for one adapter, newest first.
func (s *LifecycleStore) RecentEvents(ctx context.Context, adapterName string, limit int) ([]LifecycleEvent, error) {
	var events []LifecycleEvent
	result := s.db.WithContext(ctx).
		Where("adapter_name = ?", adapterName).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&events)
	return events, result.Error
}
