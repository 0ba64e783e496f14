/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package renderer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_player/internal/events"
)

// Config configures the VLC renderer.
type Config struct {
	Bin         string   // player binary, normally "cvlc"
	ExtraArgs   []string // appended after the built-in flags
	Display     string   // X display, e.g. ":0"
	XAuthority  string
	Loop        bool // repeat the current video until replaced or stopped
	StopTimeout time.Duration
}

// VLC renders videos by running one cvlc process per video.
type VLC struct {
	ctx    context.Context
	cfg    Config
	bus    *events.Bus
	logger zerolog.Logger

	mu   sync.Mutex
	proc *vlcProcess
}

// NewVLC creates a VLC renderer. ctx bounds the lifetime of every process it
// spawns; canceling it kills whatever is on screen.
func NewVLC(ctx context.Context, cfg Config, bus *events.Bus, logger zerolog.Logger) *VLC {
	if cfg.Bin == "" {
		cfg.Bin = "cvlc"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 3 * time.Second
	}
	return &VLC{
		ctx:    ctx,
		cfg:    cfg,
		bus:    bus,
		logger: logger.With().Str("component", "renderer").Logger(),
	}
}

// Load starts a process for path, replacing any current one. Replacement is
// a commanded stop, so the replaced video produces no finished event.
func (v *VLC) Load(playbackID, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.proc != nil {
		old := v.proc
		v.proc = nil
		if err := old.stop(); err != nil {
			v.logger.Warn().Err(err).Str("video", old.path).Msg("failed to stop previous renderer")
		}
	}

	proc := newVLCProcess(v.ctx, v.cfg, playbackID, path, v.logger)
	proc.onExit = v.handleExit
	if err := proc.start(); err != nil {
		return err
	}
	v.proc = proc
	return nil
}

// Stop terminates the current process, if any.
func (v *VLC) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.proc == nil {
		return nil
	}
	proc := v.proc
	v.proc = nil
	return proc.stop()
}

// Playing reports whether the current process is up.
func (v *VLC) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.proc != nil && v.proc.running()
}

// handleExit runs on the process monitor goroutine. Exits of processes we
// already replaced or stopped are not reported; only the current process
// ending on its own counts as end of playback.
func (v *VLC) handleExit(proc *vlcProcess, err error) {
	v.mu.Lock()
	current := v.proc == proc
	if current {
		v.proc = nil
	}
	v.mu.Unlock()

	if !current {
		return
	}

	payload := events.Payload{
		"playback_id": proc.playbackID,
		"path":        proc.path,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	v.bus.Publish(events.EventPlaybackFinished, payload)
}

// VLC reports failures on stderr as "... error: <detail>" lines.
var vlcErrorRegex = regexp.MustCompile(`(?i)error: (.+)`)

// vlcProcess manages a single cvlc invocation with monitoring.
type vlcProcess struct {
	playbackID string
	path       string
	cfg        Config
	logger     zerolog.Logger
	ctx        context.Context
	cancel     context.CancelFunc

	mu        sync.RWMutex
	state     State
	startTime time.Time
	lastError string

	cmd        *exec.Cmd
	stdout     io.ReadCloser
	stderr     io.ReadCloser
	done       chan struct{}
	outputDone chan struct{}

	onExit func(*vlcProcess, error)
}

func newVLCProcess(ctx context.Context, cfg Config, playbackID, path string, logger zerolog.Logger) *vlcProcess {
	procCtx, cancel := context.WithCancel(ctx)

	return &vlcProcess{
		playbackID: playbackID,
		path:       path,
		cfg:        cfg,
		logger:     logger.With().Str("playback_id", playbackID).Logger(),
		ctx:        procCtx,
		cancel:     cancel,
		state:      StateIdle,
		done:       make(chan struct{}),
		outputDone: make(chan struct{}),
	}
}

func buildArgs(cfg Config, path string) []string {
	args := []string{
		"--fullscreen",
		"--no-video-title-show",
		"--no-osd",
		"--video-on-top",
		"--mouse-hide-timeout=1",
		"--play-and-exit",
	}
	if cfg.Loop {
		// With --repeat the playlist never ends, so the process stays up
		// until it is replaced, stopped or crashes.
		args = append(args, "--repeat")
	}
	args = append(args, cfg.ExtraArgs...)
	args = append(args, path)
	return args
}

func buildEnv(cfg Config) []string {
	env := os.Environ()
	if cfg.Display != "" {
		env = append(env, "DISPLAY="+cfg.Display)
	}
	if cfg.XAuthority != "" {
		env = append(env, "XAUTHORITY="+cfg.XAuthority)
	}
	return env
}

// start launches the process and its monitoring goroutines.
func (p *vlcProcess) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return fmt.Errorf("process already started (state: %s)", p.state)
	}

	p.setState(StateStarting)

	p.cmd = exec.CommandContext(p.ctx, p.cfg.Bin, buildArgs(p.cfg, p.path)...)
	p.cmd.Env = buildEnv(p.cfg)

	var err error
	p.stdout, err = p.cmd.StdoutPipe()
	if err != nil {
		p.setState(StateFailed)
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	p.stderr, err = p.cmd.StderrPipe()
	if err != nil {
		p.setState(StateFailed)
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		p.setState(StateFailed)
		return fmt.Errorf("start %s: %w", p.cfg.Bin, err)
	}

	p.startTime = time.Now()
	p.setState(StateRunning)

	p.logger.Info().
		Int("pid", p.cmd.Process.Pid).
		Str("video", p.path).
		Bool("loop", p.cfg.Loop).
		Msg("renderer started")

	go p.monitorStdout()
	go p.monitorStderr()
	go p.monitorProcess()

	return nil
}

// stop terminates the process: interrupt first, kill after the timeout. It
// returns once the process is gone and output monitoring has drained.
func (p *vlcProcess) stop() error {
	p.mu.Lock()
	if p.state == StateStopped || p.state == StateFailed {
		p.mu.Unlock()
		return nil
	}
	p.setState(StateStopping)
	p.mu.Unlock()

	if p.cmd != nil && p.cmd.Process != nil {
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			p.logger.Warn().Err(err).Msg("failed to send interrupt signal")
		}

		select {
		case <-p.done:
		case <-time.After(p.cfg.StopTimeout):
			p.logger.Warn().Msg("renderer did not exit in time, killing")
			if err := p.cmd.Process.Kill(); err != nil {
				p.logger.Error().Err(err).Msg("failed to kill renderer")
			}
			<-p.done
		}
	}

	p.cancel()
	<-p.outputDone

	p.logger.Info().Str("video", p.path).Msg("renderer stopped")
	return nil
}

func (p *vlcProcess) running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == StateStarting || p.state == StateRunning
}

// setState must be called with mu held.
func (p *vlcProcess) setState(state State) {
	p.state = state
	p.logger.Debug().Str("state", string(state)).Msg("renderer state changed")
}

func (p *vlcProcess) monitorStdout() {
	scanner := bufio.NewScanner(p.stdout)
	for scanner.Scan() {
		p.parseOutputLine(scanner.Text(), "stdout")
	}
}

func (p *vlcProcess) monitorStderr() {
	defer close(p.outputDone)

	scanner := bufio.NewScanner(p.stderr)
	for scanner.Scan() {
		p.parseOutputLine(scanner.Text(), "stderr")
	}
}

// monitorProcess reaps the process. The done channel closes before onExit
// fires so a concurrent stop() never waits on the callback.
func (p *vlcProcess) monitorProcess() {
	err := p.cmd.Wait()

	p.mu.Lock()
	stopping := p.state == StateStopping
	var reportErr error
	switch {
	case stopping:
		p.setState(StateStopped)
	case err != nil:
		p.setState(StateFailed)
		reportErr = err
		if p.lastError != "" {
			reportErr = fmt.Errorf("%w: %s", err, p.lastError)
		}
		p.logger.Error().Err(err).Str("video", p.path).Str("detail", p.lastError).Msg("renderer exited with error")
	default:
		p.setState(StateStopped)
		p.logger.Info().Str("video", p.path).Msg("renderer finished playback")
	}
	p.mu.Unlock()

	close(p.done)

	if p.onExit != nil {
		p.onExit(p, reportErr)
	}
}

func (p *vlcProcess) parseOutputLine(line, source string) {
	p.logger.Trace().Str("source", source).Str("line", line).Msg("vlc output")

	if matches := vlcErrorRegex.FindStringSubmatch(line); matches != nil {
		detail := strings.TrimSpace(matches[1])
		p.mu.Lock()
		p.lastError = detail
		p.mu.Unlock()

		p.logger.Warn().Str("error", detail).Msg("vlc error output")
	}
}
