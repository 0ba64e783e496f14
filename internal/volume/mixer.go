/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package volume manages the system playback volume through the ALSA mixer.
package volume

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const amixerTimeout = 3 * time.Second

// amixer prints the current level as e.g. "Front Left: Playback 52428 [80%] [on]".
var levelRegex = regexp.MustCompile(`\[(\d+)%\]`)

// Mixer abstracts the system audio mixer.
type Mixer interface {
	// Volume returns the current mixer level in percent.
	Volume(ctx context.Context) (int, error)
	// SetVolume sets the mixer level in percent.
	SetVolume(ctx context.Context, percent int) error
}

// AmixerMixer drives ALSA through the amixer command line tool.
type AmixerMixer struct {
	bin     string
	control string
	logger  zerolog.Logger
}

// NewAmixerMixer creates a mixer using bin (normally "amixer"). When control
// is empty or "auto" the simple control is probed from `amixer scontrols`,
// preferring Master, then PCM, then Speaker.
func NewAmixerMixer(ctx context.Context, bin, control string, logger zerolog.Logger) *AmixerMixer {
	m := &AmixerMixer{
		bin:    bin,
		logger: logger.With().Str("component", "mixer").Logger(),
	}
	if control == "" || control == "auto" {
		m.control = m.discoverControl(ctx)
	} else {
		m.control = control
	}
	m.logger.Debug().Str("control", m.control).Msg("mixer control selected")
	return m
}

// Control returns the simple control name in use.
func (m *AmixerMixer) Control() string {
	return m.control
}

func (m *AmixerMixer) discoverControl(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, amixerTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, m.bin, "scontrols").CombinedOutput()
	if err != nil {
		m.logger.Warn().Err(err).Msg("amixer scontrols failed, assuming Master")
		return "Master"
	}
	for _, candidate := range []string{"Master", "PCM", "Speaker"} {
		if strings.Contains(string(out), "'"+candidate+"'") {
			return candidate
		}
	}
	m.logger.Warn().Msg("no known mixer control found, assuming Master")
	return "Master"
}

// Volume reads the current level via `amixer sget`.
func (m *AmixerMixer) Volume(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, amixerTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, m.bin, "sget", m.control).CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("amixer sget %s: %w", m.control, err)
	}
	level, err := parseLevel(string(out))
	if err != nil {
		return 0, fmt.Errorf("amixer sget %s: %w", m.control, err)
	}
	return level, nil
}

// SetVolume applies a level via `amixer sset`.
func (m *AmixerMixer) SetVolume(ctx context.Context, percent int) error {
	ctx, cancel := context.WithTimeout(ctx, amixerTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, m.bin, "sset", m.control, strconv.Itoa(percent)+"%").CombinedOutput()
	if err != nil {
		return fmt.Errorf("amixer sset %s: %w (%s)", m.control, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func parseLevel(out string) (int, error) {
	matches := levelRegex.FindStringSubmatch(out)
	if matches == nil {
		return 0, fmt.Errorf("no level in amixer output")
	}
	level, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("parse level %q: %w", matches[1], err)
	}
	return level, nil
}
