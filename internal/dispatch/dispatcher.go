/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dispatch routes validated remote commands to the playback and
// volume controllers.
package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_player/internal/command"
	"github.com/friendsincode/vidar_player/internal/events"
	"github.com/friendsincode/vidar_player/internal/playback"
	"github.com/friendsincode/vidar_player/internal/telemetry"
	"github.com/friendsincode/vidar_player/internal/volume"
)

// Dispatcher validates incoming messages and executes them. Command failures
// never propagate to the remote: control is fire-and-forget, so the error
// return exists for logs, metrics and tests only.
type Dispatcher struct {
	playback *playback.Controller
	volume   *volume.Controller
	bus      *events.Bus
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(pb *playback.Controller, vol *volume.Controller, bus *events.Bus, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		playback: pb,
		volume:   vol,
		bus:      bus,
		logger:   logger.With().Str("component", "dispatch").Logger(),
	}
}

// Handle processes one message from the control socket.
func (d *Dispatcher) Handle(ctx context.Context, address string, args []any) error {
	ctx, span := telemetry.StartSpan(ctx, "dispatch", "command")
	defer span.End()

	cmd, err := command.Parse(address, args)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.CommandsTotal.WithLabelValues(commandLabel(address), "rejected").Inc()
		d.bus.Publish(events.EventCommandRejected, events.Payload{
			"address": address,
			"error":   err.Error(),
		})
		d.logger.Warn().Str("address", address).Err(err).Msg("command rejected")
		return err
	}

	telemetry.AddSpanAttributes(span, map[string]any{
		"command": cmd.Kind.String(),
		"video":   cmd.Filename,
	})

	switch cmd.Kind {
	case command.KindPlay:
		err = d.playback.Play(cmd.Filename)
	case command.KindStop:
		err = d.playback.Stop()
	case command.KindVolumeUp:
		_, err = d.volume.Increase(ctx)
	case command.KindVolumeDown:
		_, err = d.volume.Decrease(ctx)
	case command.KindSetVolume:
		_, err = d.volume.Set(ctx, cmd.Level)
	}

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		telemetry.RecordError(span, err)
		d.logger.Warn().Str("command", cmd.Kind.String()).Err(err).Msg("command failed")
	} else {
		d.logger.Debug().Str("command", cmd.Kind.String()).Msg("command executed")
	}
	telemetry.CommandsTotal.WithLabelValues(cmd.Kind.String(), outcome).Inc()
	return err
}

// commandLabel maps an address to a bounded metric label. Arbitrary unknown
// addresses all collapse into one label value.
func commandLabel(address string) string {
	switch address {
	case command.AddressPlay:
		return command.KindPlay.String()
	case command.AddressStop:
		return command.KindStop.String()
	case command.AddressVolumeUp:
		return command.KindVolumeUp.String()
	case command.AddressVolumeDown:
		return command.KindVolumeDown.String()
	case command.AddressVolumeSet:
		return command.KindSetVolume.String()
	default:
		return command.KindUnknown.String()
	}
}
