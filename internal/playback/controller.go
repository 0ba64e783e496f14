/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback owns the Idle/Playing state machine. All state changes
// funnel through one mutex: remote commands on one side, renderer exits
// delivered off the event bus on the other.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_player/internal/events"
	"github.com/friendsincode/vidar_player/internal/library"
	"github.com/friendsincode/vidar_player/internal/renderer"
	"github.com/friendsincode/vidar_player/internal/telemetry"
)

const (
	// Crash relaunches allowed per window before a looping video is
	// declared dead. Clean loop relaunches are not counted.
	maxRestartsInWindow = 5
	restartWindow       = 5 * time.Minute
)

// Controller drives the renderer according to remote commands and
// end-of-playback events.
type Controller struct {
	renderer renderer.Renderer
	library  *library.Library
	bus      *events.Bus
	logger   zerolog.Logger
	loop     bool

	mu           sync.Mutex
	state        State
	video        string // requested root-relative name
	path         string // resolved absolute path
	playbackID   string
	startedAt    time.Time
	restartCount int
	lastRestart  time.Time
}

// NewController creates a playback controller starting in Idle.
func NewController(r renderer.Renderer, lib *library.Library, loop bool, bus *events.Bus, logger zerolog.Logger) *Controller {
	telemetry.PlaybackState.Set(0)
	return &Controller{
		renderer: r,
		library:  lib,
		bus:      bus,
		logger:   logger.With().Str("component", "playback").Logger(),
		loop:     loop,
		state:    StateIdle,
	}
}

// Play resolves name and puts it on screen, replacing any current video.
func (c *Controller) Play(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := c.library.Resolve(name)
	if err != nil {
		c.publishFailed("", name, err)
		return err
	}

	if c.state == StatePlaying {
		// The renderer stops the old process as part of Load; the old
		// playback is reported as stopped, not finished.
		c.bus.Publish(events.EventPlaybackStopped, events.Payload{
			"playback_id": c.playbackID,
			"video":       c.video,
			"reason":      "replaced",
		})
		telemetry.PlaybacksFinishedTotal.WithLabelValues("replaced").Inc()
	}

	id := uuid.NewString()
	if err := c.renderer.Load(id, path); err != nil {
		c.publishFailed(id, name, err)
		c.setIdleLocked()
		return fmt.Errorf("load %s: %w", name, err)
	}

	c.state = StatePlaying
	c.video = name
	c.path = path
	c.playbackID = id
	c.startedAt = time.Now()
	c.restartCount = 0
	c.lastRestart = time.Time{}

	telemetry.PlaybackState.Set(1)
	telemetry.PlaybacksStartedTotal.Inc()
	c.bus.Publish(events.EventPlaybackStarted, events.Payload{
		"playback_id": id,
		"video":       name,
		"path":        path,
		"loop":        c.loop,
	})
	c.logger.Info().Str("video", name).Str("playback_id", id).Bool("loop", c.loop).Msg("playback started")
	return nil
}

// Stop halts playback. It is idempotent and always leaves the controller in
// Idle, even when the renderer reports an error on the way down.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		c.logger.Debug().Msg("stop while idle, nothing to do")
		return nil
	}

	err := c.renderer.Stop()

	c.bus.Publish(events.EventPlaybackStopped, events.Payload{
		"playback_id": c.playbackID,
		"video":       c.video,
		"reason":      "commanded",
	})
	telemetry.PlaybacksFinishedTotal.WithLabelValues("stopped").Inc()
	c.logger.Info().Str("video", c.video).Msg("playback stopped")
	c.setIdleLocked()

	if err != nil {
		return fmt.Errorf("stop renderer: %w", err)
	}
	return nil
}

// HandleFinished processes an end-of-playback event from the renderer.
// Events carrying a playback ID other than the current one are stale
// leftovers of an already replaced video and are dropped.
func (c *Controller) HandleFinished(payload events.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := payload.String("playback_id")
	if c.state != StatePlaying || id != c.playbackID {
		c.logger.Debug().Str("playback_id", id).Msg("stale finished event dropped")
		return
	}
	c.finishLocked(payload.String("error"))
}

// Reconcile compares the state machine against the real renderer. A lost
// finished event would otherwise leave the player stuck in Playing forever.
func (c *Controller) Reconcile() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying || c.renderer.Playing() {
		return
	}
	c.logger.Warn().Str("video", c.video).Msg("renderer gone without notification, reconciling")
	c.finishLocked("renderer exited without notification")
}

// finishLocked ends or relaunches the current playback. Callers hold mu.
func (c *Controller) finishLocked(errDetail string) {
	crashed := errDetail != ""

	if c.loop {
		if !crashed || c.allowRestartLocked() {
			if crashed {
				c.logger.Warn().Str("video", c.video).Str("error", errDetail).Int("restart_count", c.restartCount).Msg("relaunching crashed renderer")
			} else {
				c.logger.Debug().Str("video", c.video).Msg("relaunching for loop")
			}
			err := c.renderer.Load(c.playbackID, c.path)
			if err == nil {
				if crashed {
					telemetry.RendererRestartsTotal.Inc()
				}
				return
			}
			errDetail = fmt.Sprintf("relaunch failed: %v", err)
		} else {
			errDetail = fmt.Sprintf("restart limit exceeded: %s", errDetail)
			c.logger.Error().Str("video", c.video).Int("restart_count", c.restartCount).Msg("restart rate limit exceeded, giving up")
		}
		crashed = true
	}

	if crashed {
		c.publishFailed(c.playbackID, c.video, errors.New(errDetail))
		telemetry.PlaybacksFinishedTotal.WithLabelValues("failed").Inc()
		c.logger.Error().Str("video", c.video).Str("error", errDetail).Msg("playback failed")
	} else {
		telemetry.PlaybacksFinishedTotal.WithLabelValues("completed").Inc()
		c.logger.Info().Str("video", c.video).Msg("playback finished")
	}
	c.setIdleLocked()
}

// allowRestartLocked applies the crash restart rate limit. Callers hold mu.
func (c *Controller) allowRestartLocked() bool {
	if c.restartCount >= maxRestartsInWindow {
		if time.Since(c.lastRestart) < restartWindow {
			return false
		}
		c.restartCount = 0
	}
	c.restartCount++
	c.lastRestart = time.Now()
	return true
}

func (c *Controller) setIdleLocked() {
	c.state = StateIdle
	c.video = ""
	c.path = ""
	c.playbackID = ""
	c.startedAt = time.Time{}
	telemetry.PlaybackState.Set(0)
}

func (c *Controller) publishFailed(id, video string, err error) {
	c.bus.Publish(events.EventPlaybackFailed, events.Payload{
		"playback_id": id,
		"video":       video,
		"error":       err.Error(),
	})
}

// Status returns a snapshot of the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:      c.state,
		Video:      c.video,
		Path:       c.path,
		PlaybackID: c.playbackID,
		StartedAt:  c.startedAt,
		Loop:       c.loop,
		Restarts:   c.restartCount,
	}
}

// Shutdown stops whatever is on screen. Best effort: errors are logged and
// the controller always ends up Idle.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.renderer.Stop(); err != nil {
		c.logger.Warn().Err(err).Msg("renderer stop during shutdown failed")
	}
	if c.state == StatePlaying {
		c.logger.Info().Str("video", c.video).Msg("playback stopped for shutdown")
	}
	c.setIdleLocked()
}
