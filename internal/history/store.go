/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/vidar_player/internal/telemetry"
)

const defaultRecentLimit = 50

// Event is one row of player history.
type Event struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Type      string    `gorm:"index" json:"type"`
	Video     string    `json:"video,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName sets the history table name.
func (Event) TableName() string {
	return "history_events"
}

// Store reads and writes history rows.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewStore migrates the schema and returns a store.
func NewStore(db *gorm.DB, logger zerolog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}, nil
}

// Record persists one event.
func (s *Store) Record(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return err
	}

	telemetry.HistoryEventsTotal.WithLabelValues(event.Type).Inc()
	s.logger.Debug().Str("type", event.Type).Str("id", event.ID).Msg("history event recorded")
	return nil
}

// Recent returns the newest events, most recent first. A non-positive limit
// falls back to the default.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	var rows []Event
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
