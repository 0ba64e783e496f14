/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package history

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/vidar_player/internal/config"
	"github.com/friendsincode/vidar_player/internal/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store, err := NewStore(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStoreRecordAssignsIDAndTime(t *testing.T) {
	store := newTestStore(t)

	event := &Event{Type: "playback.started", Video: "intro.mp4"}
	if err := store.Record(context.Background(), event); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if event.ID == "" {
		t.Error("ID not assigned")
	}
	if event.CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}
}

func TestStoreRecentOrdersAndLimits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, video := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		event := &Event{
			Type:      "playback.started",
			Video:     video,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Record(ctx, event); err != nil {
			t.Fatalf("Record %s: %v", video, err)
		}
	}

	rows, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Recent returned %d rows, want 2", len(rows))
	}
	if rows[0].Video != "c.mp4" || rows[1].Video != "b.mp4" {
		t.Errorf("Recent order = %s, %s; want c.mp4, b.mp4", rows[0].Video, rows[1].Video)
	}
}

func TestStoreRecentDefaultLimit(t *testing.T) {
	store := newTestStore(t)

	rows, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Recent on empty store = %d rows, want 0", len(rows))
	}
}

func TestConnectSQLiteAndRoundTrip(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history", "test.db")

	db, err := Connect(config.DatabaseSQLite, dsn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() {
		if err := Close(db); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	store, err := NewStore(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Record(context.Background(), &Event{Type: "playback.started"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(config.DatabaseBackend("mongodb"), "whatever"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestRecorderPersistsBusEvents(t *testing.T) {
	store := newTestStore(t)
	bus := events.NewBus()
	recorder := NewRecorder(store, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recorder.Start(ctx)

	// Give the recorder a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	bus.Publish(events.EventPlaybackStarted, events.Payload{
		"playback_id": "pb-9",
		"video":       "intro.mp4",
	})

	var rows []Event
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var err error
		rows, err = store.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(rows) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(rows) != 1 {
		t.Fatalf("recorded rows = %d, want 1", len(rows))
	}

	row := rows[0]
	if row.Type != string(events.EventPlaybackStarted) {
		t.Errorf("type = %q, want %q", row.Type, events.EventPlaybackStarted)
	}
	if row.Video != "intro.mp4" {
		t.Errorf("video = %q, want intro.mp4", row.Video)
	}

	var detail map[string]any
	if err := json.Unmarshal([]byte(row.Detail), &detail); err != nil {
		t.Fatalf("detail not valid JSON: %v", err)
	}
	if detail["playback_id"] != "pb-9" {
		t.Errorf("detail playback_id = %v, want pb-9", detail["playback_id"])
	}
}

func TestRecorderFallsBackToPath(t *testing.T) {
	store := newTestStore(t)
	bus := events.NewBus()
	recorder := NewRecorder(store, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recorder.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	bus.Publish(events.EventPlaybackFinished, events.Payload{
		"playback_id": "pb-10",
		"path":        "/videos/loop.mp4",
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rows, err := store.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(rows) == 1 {
			if rows[0].Video != "/videos/loop.mp4" {
				t.Errorf("video = %q, want the path fallback", rows[0].Video)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("event never recorded")
}
