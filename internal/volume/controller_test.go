/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package volume

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_player/internal/events"
)

// fakeMixer records applied levels in memory.
type fakeMixer struct {
	level   int
	readErr error
	setErr  error
	sets    []int
}

func (f *fakeMixer) Volume(ctx context.Context) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.level, nil
}

func (f *fakeMixer) SetVolume(ctx context.Context, percent int) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.level = percent
	f.sets = append(f.sets, percent)
	return nil
}

func newTestController(mixer Mixer, step, initial int) *Controller {
	return NewController(mixer, step, initial, nil, zerolog.Nop())
}

func TestApplyInitial(t *testing.T) {
	mixer := &fakeMixer{level: 30}
	ctrl := newTestController(mixer, 5, 80)

	if err := ctrl.ApplyInitial(context.Background()); err != nil {
		t.Fatalf("ApplyInitial: %v", err)
	}
	if mixer.level != 80 {
		t.Errorf("mixer level = %d, want 80", mixer.level)
	}
}

func TestIncreaseClampsAtMax(t *testing.T) {
	mixer := &fakeMixer{level: 95}
	ctrl := newTestController(mixer, 10, 95)

	for i := 0; i < 3; i++ {
		level, err := ctrl.Increase(context.Background())
		if err != nil {
			t.Fatalf("Increase %d: %v", i, err)
		}
		if level != 100 {
			t.Errorf("Increase %d = %d, want 100", i, level)
		}
	}
	if mixer.level != 100 {
		t.Errorf("mixer level = %d, want 100", mixer.level)
	}
}

func TestDecreaseClampsAtZero(t *testing.T) {
	mixer := &fakeMixer{level: 7}
	ctrl := newTestController(mixer, 10, 7)

	for i := 0; i < 3; i++ {
		level, err := ctrl.Decrease(context.Background())
		if err != nil {
			t.Fatalf("Decrease %d: %v", i, err)
		}
		if level != 0 {
			t.Errorf("Decrease %d = %d, want 0", i, level)
		}
	}
}

func TestRelativeOpsReadTheMixer(t *testing.T) {
	mixer := &fakeMixer{level: 50}
	ctrl := newTestController(mixer, 5, 50)

	// Something external moved the mixer; the next step must build on the
	// real level, not the cached one.
	mixer.level = 20

	level, err := ctrl.Increase(context.Background())
	if err != nil {
		t.Fatalf("Increase: %v", err)
	}
	if level != 25 {
		t.Errorf("Increase = %d, want 25", level)
	}
}

func TestRelativeOpFallsBackToCacheOnReadError(t *testing.T) {
	mixer := &fakeMixer{level: 50, readErr: errors.New("no mixer")}
	ctrl := newTestController(mixer, 5, 40)

	level, err := ctrl.Increase(context.Background())
	if err != nil {
		t.Fatalf("Increase: %v", err)
	}
	if level != 45 {
		t.Errorf("Increase = %d, want 45 (cached 40 + step 5)", level)
	}
}

func TestSetClamps(t *testing.T) {
	tests := []struct {
		name    string
		request int
		want    int
	}{
		{"in range", 60, 60},
		{"above max", 150, 100},
		{"below min", -10, 0},
		{"zero", 0, 0},
		{"max", 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mixer := &fakeMixer{level: 50}
			ctrl := newTestController(mixer, 5, 50)

			level, err := ctrl.Set(context.Background(), tt.request)
			if err != nil {
				t.Fatalf("Set(%d): %v", tt.request, err)
			}
			if level != tt.want {
				t.Errorf("Set(%d) = %d, want %d", tt.request, level, tt.want)
			}
			if ctrl.Level() != tt.want {
				t.Errorf("Level() = %d, want %d", ctrl.Level(), tt.want)
			}
		})
	}
}

func TestSetIsIdempotent(t *testing.T) {
	mixer := &fakeMixer{level: 50}
	ctrl := newTestController(mixer, 5, 50)

	for i := 0; i < 3; i++ {
		if _, err := ctrl.Set(context.Background(), 70); err != nil {
			t.Fatalf("Set %d: %v", i, err)
		}
	}
	for _, applied := range mixer.sets {
		if applied != 70 {
			t.Errorf("mixer saw level %d, want 70", applied)
		}
	}
}

func TestSetErrorLeavesCacheUnchanged(t *testing.T) {
	mixer := &fakeMixer{level: 50, setErr: errors.New("amixer exploded")}
	ctrl := newTestController(mixer, 5, 50)

	if _, err := ctrl.Set(context.Background(), 80); err == nil {
		t.Fatal("expected error from Set")
	}
	if ctrl.Level() != 50 {
		t.Errorf("Level() = %d, want 50 after failed set", ctrl.Level())
	}
}

func TestVolumeChangedEventPublished(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventVolumeChanged)

	mixer := &fakeMixer{level: 50}
	ctrl := NewController(mixer, 5, 50, bus, zerolog.Nop())

	if _, err := ctrl.Set(context.Background(), 65); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case payload := <-sub:
		if payload["level"] != 65 {
			t.Errorf("payload level = %v, want 65", payload["level"])
		}
		if payload["previous"] != 50 {
			t.Errorf("payload previous = %v, want 50", payload["previous"])
		}
	default:
		t.Fatal("no volume.changed event published")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    int
		wantErr bool
	}{
		{
			name:   "typical sget output",
			output: "Simple mixer control 'Master',0\n  Capabilities: pvolume pswitch\n  Front Left: Playback 52428 [80%] [on]\n  Front Right: Playback 52428 [80%] [on]\n",
			want:   80,
		},
		{
			name:   "mono control",
			output: "  Mono: Playback 0 [0%] [off]\n",
			want:   0,
		},
		{
			name:    "no level present",
			output:  "amixer: Unable to find simple control 'Master',0\n",
			wantErr: true,
		},
		{
			name:    "empty output",
			output:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLevel(tt.output)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLevel: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseLevel = %d, want %d", got, tt.want)
			}
		})
	}
}
