/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package history

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_player/internal/events"
)

// Recorder subscribes to the event bus and persists what it hears. It is
// strictly an observer: a broken database never affects playback.
type Recorder struct {
	store  *Store
	bus    *events.Bus
	logger zerolog.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(store *Store, bus *events.Bus, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "history_recorder").Logger(),
	}
}

// Start consumes events until ctx is canceled.
func (r *Recorder) Start(ctx context.Context) {
	started := r.bus.Subscribe(events.EventPlaybackStarted)
	stopped := r.bus.Subscribe(events.EventPlaybackStopped)
	finished := r.bus.Subscribe(events.EventPlaybackFinished)
	failed := r.bus.Subscribe(events.EventPlaybackFailed)
	volumeChanged := r.bus.Subscribe(events.EventVolumeChanged)
	rejected := r.bus.Subscribe(events.EventCommandRejected)

	defer func() {
		r.bus.Unsubscribe(events.EventPlaybackStarted, started)
		r.bus.Unsubscribe(events.EventPlaybackStopped, stopped)
		r.bus.Unsubscribe(events.EventPlaybackFinished, finished)
		r.bus.Unsubscribe(events.EventPlaybackFailed, failed)
		r.bus.Unsubscribe(events.EventVolumeChanged, volumeChanged)
		r.bus.Unsubscribe(events.EventCommandRejected, rejected)
	}()

	r.logger.Info().Msg("history recorder started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("history recorder stopping")
			return

		case payload := <-started:
			r.record(ctx, events.EventPlaybackStarted, payload)

		case payload := <-stopped:
			r.record(ctx, events.EventPlaybackStopped, payload)

		case payload := <-finished:
			r.record(ctx, events.EventPlaybackFinished, payload)

		case payload := <-failed:
			r.record(ctx, events.EventPlaybackFailed, payload)

		case payload := <-volumeChanged:
			r.record(ctx, events.EventVolumeChanged, payload)

		case payload := <-rejected:
			r.record(ctx, events.EventCommandRejected, payload)
		}
	}
}

// record turns a payload into a history row.
func (r *Recorder) record(ctx context.Context, eventType events.EventType, payload events.Payload) {
	event := &Event{
		Type:  string(eventType),
		Video: payload.String("video"),
	}
	if event.Video == "" {
		event.Video = payload.String("path")
	}

	detail := make(events.Payload, len(payload))
	for k, v := range payload {
		if k == "video" {
			continue
		}
		detail[k] = v
	}
	if len(detail) > 0 {
		data, err := json.Marshal(detail)
		if err != nil {
			r.logger.Warn().Err(err).Str("type", string(eventType)).Msg("failed to encode event detail")
		} else {
			event.Detail = string(data)
		}
	}

	if err := r.store.Record(ctx, event); err != nil {
		r.logger.Error().Err(err).Str("type", string(eventType)).Msg("failed to record history event")
	}
}
