/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package screen keeps the display presentable while nothing is playing:
// a solid black root window, no cursor, no blanking. Everything here is
// best effort because dev machines rarely have the X tooling installed.
package screen

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

const (
	frameWidth  = 1920
	frameHeight = 1080

	toolTimeout = 5 * time.Second
)

// Config controls which X session the helper tools target.
type Config struct {
	Display    string
	XAuthority string

	// Tool binaries, overridable for tests.
	FehBin       string
	UnclutterBin string
	XSetBin      string
}

// Manager owns the idle-screen helper processes.
type Manager struct {
	ctx    context.Context
	cfg    Config
	logger zerolog.Logger

	mu            sync.Mutex
	unclutter     *exec.Cmd
	unclutterDone chan struct{}
}

// NewManager creates a manager bound to ctx; cancelling ctx kills any
// helper process still running.
func NewManager(ctx context.Context, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.FehBin == "" {
		cfg.FehBin = "feh"
	}
	if cfg.UnclutterBin == "" {
		cfg.UnclutterBin = "unclutter"
	}
	if cfg.XSetBin == "" {
		cfg.XSetBin = "xset"
	}
	return &Manager{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger.With().Str("component", "screen").Logger(),
	}
}

// Start disables blanking, paints the root window black, and hides the
// cursor. Missing tools or failed commands are logged and skipped.
func (m *Manager) Start() {
	m.disableBlanking()
	m.setBackground()
	m.hideCursor()
}

// Stop reaps the cursor-hider process if one is running.
func (m *Manager) Stop() {
	m.mu.Lock()
	cmd := m.unclutter
	done := m.unclutterDone
	m.unclutter = nil
	m.unclutterDone = nil
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil {
		m.logger.Debug().Err(err).Msg("kill cursor hider")
	}
	select {
	case <-done:
	case <-time.After(toolTimeout):
		m.logger.Warn().Msg("cursor hider did not exit in time")
	}
}

func (m *Manager) disableBlanking() {
	for _, args := range [][]string{
		{"s", "off"},
		{"s", "noblank"},
		{"-dpms"},
	} {
		m.runTool(m.cfg.XSetBin, args...)
	}
}

func (m *Manager) setBackground() {
	framePath, err := m.ensureFrame()
	if err != nil {
		m.logger.Warn().Err(err).Msg("idle frame not available, skipping background")
		return
	}
	m.runTool(m.cfg.FehBin, "--no-fehbg", "--bg-fill", framePath)
}

func (m *Manager) hideCursor() {
	if _, err := exec.LookPath(m.cfg.UnclutterBin); err != nil {
		m.logger.Debug().Str("bin", m.cfg.UnclutterBin).Msg("cursor hider not installed, skipping")
		return
	}

	cmd := exec.CommandContext(m.ctx, m.cfg.UnclutterBin, "-idle", "0", "-root")
	cmd.Env = m.buildEnv()
	if err := cmd.Start(); err != nil {
		m.logger.Warn().Err(err).Msg("start cursor hider")
		return
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.unclutter = cmd
	m.unclutterDone = done
	m.mu.Unlock()

	m.logger.Debug().Int("pid", cmd.Process.Pid).Msg("cursor hider running")

	go func() {
		defer close(done)
		if err := cmd.Wait(); err != nil && m.ctx.Err() == nil {
			m.logger.Debug().Err(err).Msg("cursor hider exited")
		}
	}()
}

// runTool executes a short-lived helper command with a timeout, logging
// rather than propagating failures.
func (m *Manager) runTool(bin string, args ...string) {
	if _, err := exec.LookPath(bin); err != nil {
		m.logger.Debug().Str("bin", bin).Msg("tool not installed, skipping")
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, toolTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = m.buildEnv()
	output, err := cmd.CombinedOutput()
	if err != nil {
		m.logger.Warn().
			Err(err).
			Str("bin", bin).
			Strs("args", args).
			Str("output", string(output)).
			Msg("screen tool failed")
		return
	}
	m.logger.Debug().Str("bin", bin).Strs("args", args).Msg("screen tool ran")
}

// ensureFrame writes the black idle frame if it does not exist yet and
// returns its path.
func (m *Manager) ensureFrame() (string, error) {
	path := filepath.Join(os.TempDir(), "vidarplayer-idle.png")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := renderIdleFrame(path); err != nil {
		return "", err
	}
	m.logger.Debug().Str("path", path).Msg("idle frame rendered")
	return path, nil
}

// renderIdleFrame generates a solid black frame at path.
func renderIdleFrame(path string) error {
	img := imaging.New(frameWidth, frameHeight, color.NRGBA{A: 255})
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save idle frame: %w", err)
	}
	return nil
}

func (m *Manager) buildEnv() []string {
	env := os.Environ()
	if m.cfg.Display != "" {
		env = append(env, "DISPLAY="+m.cfg.Display)
	}
	if m.cfg.XAuthority != "" {
		env = append(env, "XAUTHORITY="+m.cfg.XAuthority)
	}
	return env
}
