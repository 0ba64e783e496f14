/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import "time"

// State is the player's top-level state.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
)

// Status is a point-in-time snapshot of the controller for the status API.
type Status struct {
	State      State     `json:"state"`
	Video      string    `json:"video,omitempty"`
	Path       string    `json:"path,omitempty"`
	PlaybackID string    `json:"playback_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Loop       bool      `json:"loop"`
	Restarts   int       `json:"restarts"`
}
