/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package renderer supervises the external process that puts video on the
// screen. One process is spawned per video; natural exits are reported on
// the event bus while commanded stops are not.
package renderer

// State represents the lifecycle of a renderer process.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Renderer abstracts the external video player. Implementations own process
// lifetime; Stop blocks until the process is gone or a bounded timeout
// elapses.
type Renderer interface {
	// Load starts rendering path full screen, replacing any current video.
	// playbackID tags the resulting end-of-playback event.
	Load(playbackID, path string) error

	// Stop terminates the current video, if any. Stopped videos do not
	// produce end-of-playback events.
	Stop() error

	// Playing reports whether a renderer process is currently up.
	Playing() bool
}
