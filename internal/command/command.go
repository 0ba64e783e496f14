/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package command defines the closed set of remote control operations and the
// validation that turns decoded OSC messages into them.
package command

import (
	"errors"
	"fmt"
)

// Kind identifies a remote control operation.
type Kind int

const (
	KindUnknown Kind = iota
	KindPlay
	KindStop
	KindVolumeUp
	KindVolumeDown
	KindSetVolume
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "play"
	case KindStop:
		return "stop"
	case KindVolumeUp:
		return "volume_up"
	case KindVolumeDown:
		return "volume_down"
	case KindSetVolume:
		return "volume_set"
	default:
		return "unknown"
	}
}

// OSC address space. Matching is case-sensitive and exact.
const (
	AddressPlay       = "/play"
	AddressStop       = "/stop"
	AddressVolumeUp   = "/volume_up"
	AddressVolumeDown = "/volume_down"
	AddressVolumeSet  = "/volume_set"
)

var (
	ErrUnknownAddress = errors.New("unknown command address")
	ErrBadArgument    = errors.New("bad command argument")
)

// Command is a validated remote control operation. Filename is set for
// KindPlay, Level for KindSetVolume; other kinds carry no payload.
type Command struct {
	Kind     Kind
	Filename string
	Level    int
}

// Parse validates a decoded (address, args) message into a Command. The level
// for volume_set is validated for type only; range enforcement belongs to the
// volume controller. Zero-argument commands tolerate trailing arguments since
// heterogeneous OSC senders pad messages, but play and volume_set demand an
// exact shape.
func Parse(address string, args []any) (Command, error) {
	switch address {
	case AddressPlay:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: %s wants exactly 1 argument, got %d", ErrBadArgument, address, len(args))
		}
		name, ok := args[0].(string)
		if !ok {
			return Command{}, fmt.Errorf("%w: %s wants a string filename, got %T", ErrBadArgument, address, args[0])
		}
		if name == "" {
			return Command{}, fmt.Errorf("%w: %s filename is empty", ErrBadArgument, address)
		}
		return Command{Kind: KindPlay, Filename: name}, nil

	case AddressStop:
		return Command{Kind: KindStop}, nil

	case AddressVolumeUp:
		return Command{Kind: KindVolumeUp}, nil

	case AddressVolumeDown:
		return Command{Kind: KindVolumeDown}, nil

	case AddressVolumeSet:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: %s wants exactly 1 argument, got %d", ErrBadArgument, address, len(args))
		}
		level, ok := intArg(args[0])
		if !ok {
			return Command{}, fmt.Errorf("%w: %s wants an integer level, got %T", ErrBadArgument, address, args[0])
		}
		return Command{Kind: KindSetVolume, Level: level}, nil

	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownAddress, address)
	}
}

// intArg accepts the integer widths OSC decoders produce. Floats are not
// integers; senders configured for float faders must be fixed at the sender.
func intArg(v any) (int, bool) {
	switch n := v.(type) {
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
