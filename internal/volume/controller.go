/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package volume

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_player/internal/events"
	"github.com/friendsincode/vidar_player/internal/telemetry"
)

// Controller owns the playback volume level. All mutations go through its
// mutex so concurrent commands cannot interleave a read-modify-write.
type Controller struct {
	mu     sync.Mutex
	mixer  Mixer
	step   int
	level  int
	bus    *events.Bus
	logger zerolog.Logger
}

// NewController creates a volume controller. The initial level is recorded
// but not applied to the mixer until ApplyInitial is called.
func NewController(mixer Mixer, step, initial int, bus *events.Bus, logger zerolog.Logger) *Controller {
	return &Controller{
		mixer:  mixer,
		step:   step,
		level:  clamp(initial),
		bus:    bus,
		logger: logger.With().Str("component", "volume").Logger(),
	}
}

// ApplyInitial pushes the configured startup level to the mixer.
func (c *Controller) ApplyInitial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.apply(ctx, c.level, c.level)
	return err
}

// Increase raises the volume by one step and returns the applied level.
func (c *Controller) Increase(ctx context.Context) (int, error) {
	return c.adjust(ctx, c.step)
}

// Decrease lowers the volume by one step and returns the applied level.
func (c *Controller) Decrease(ctx context.Context) (int, error) {
	return c.adjust(ctx, -c.step)
}

// Set applies an absolute level, clamped to [0,100], and returns it.
func (c *Controller) Set(ctx context.Context, level int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apply(ctx, c.level, clamp(level))
}

// Level returns the last level this controller applied. It can lag the real
// mixer level when something else changes it; relative operations re-read
// the mixer rather than trusting this value.
func (c *Controller) Level() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

func (c *Controller) adjust(ctx context.Context, delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.mixer.Volume(ctx)
	if err != nil {
		// The mixer can be adjusted behind our back, so prefer reading it.
		// When that fails, the last applied level is the best base we have.
		c.logger.Warn().Err(err).Int("cached", c.level).Msg("mixer read failed, using last applied level")
		current = c.level
	}
	return c.apply(ctx, current, clamp(current+delta))
}

func (c *Controller) apply(ctx context.Context, previous, target int) (int, error) {
	if err := c.mixer.SetVolume(ctx, target); err != nil {
		return previous, fmt.Errorf("set volume to %d: %w", target, err)
	}
	c.level = target
	telemetry.VolumeLevel.Set(float64(target))
	if c.bus != nil {
		c.bus.Publish(events.EventVolumeChanged, events.Payload{
			"level":    target,
			"previous": previous,
		})
	}
	c.logger.Info().Int("level", target).Int("previous", previous).Msg("volume set")
	return target, nil
}

func clamp(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
