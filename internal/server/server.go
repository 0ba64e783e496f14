/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_player/internal/config"
	"github.com/friendsincode/vidar_player/internal/control"
	"github.com/friendsincode/vidar_player/internal/dispatch"
	"github.com/friendsincode/vidar_player/internal/events"
	"github.com/friendsincode/vidar_player/internal/history"
	"github.com/friendsincode/vidar_player/internal/library"
	"github.com/friendsincode/vidar_player/internal/logbuffer"
	"github.com/friendsincode/vidar_player/internal/playback"
	"github.com/friendsincode/vidar_player/internal/renderer"
	"github.com/friendsincode/vidar_player/internal/screen"
	"github.com/friendsincode/vidar_player/internal/telemetry"
	"github.com/friendsincode/vidar_player/internal/version"
	"github.com/friendsincode/vidar_player/internal/volume"
)

const (
	// watchdogInterval is how often the playback controller is asked to
	// reconcile its state against the real renderer process.
	watchdogInterval = 2 * time.Second

	libraryRefreshInterval = time.Minute

	maxHistoryLimit = 500
	maxLogLimit     = 1000
)

// Server bundles the OSC control surface, the read-only status HTTP API,
// and the supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	logBuffer  *logbuffer.Buffer
	bus        *events.Bus
	library    *library.Library
	volume     *volume.Controller
	renderer   *renderer.VLC
	playback   *playback.Controller
	dispatcher *dispatch.Dispatcher
	control    *control.Server
	screen     *screen.Manager
	history    *history.Store
	recorder   *history.Recorder

	startedAt time.Time

	// baseCtx bounds every child process the daemon spawns.
	baseCtx  context.Context
	baseStop context.CancelFunc

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. logBuf may be nil,
// which disables the /api/logs endpoint.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("vidar-player-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(15 * time.Second))

	baseCtx, baseStop := context.WithCancel(context.Background())

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
		bus:       events.NewBus(),
		startedAt: time.Now(),
		baseCtx:   baseCtx,
		baseStop:  baseStop,
	}

	if err := srv.initDependencies(); err != nil {
		baseStop()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	if cfg.HTTPEnabled {
		srv.httpServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
			Handler:           srv.router,
			ReadHeaderTimeout: 15 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		// JSON-only API, nothing is ever rendered.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	// The video root must exist before the library can index it.
	if err := os.MkdirAll(s.cfg.VideoDir, 0o755); err != nil {
		return fmt.Errorf("create video directory %s: %w", s.cfg.VideoDir, err)
	}
	lib, err := library.New(s.cfg.VideoDir, s.logger)
	if err != nil {
		return err
	}
	s.library = lib
	s.logger.Info().Str("path", lib.Root()).Msg("video directory ready")

	mixer := volume.NewAmixerMixer(s.baseCtx, s.cfg.AmixerBin, s.cfg.MixerControl, s.logger)
	s.volume = volume.NewController(mixer, s.cfg.VolumeStep, s.cfg.InitialVolume, s.bus, s.logger)

	s.renderer = renderer.NewVLC(s.baseCtx, renderer.Config{
		Bin:         s.cfg.VLCBin,
		ExtraArgs:   s.cfg.VLCArgs,
		Display:     s.cfg.Display,
		XAuthority:  s.cfg.XAuthority,
		Loop:        s.cfg.Loop,
		StopTimeout: s.cfg.StopTimeout(),
	}, s.bus, s.logger)

	s.playback = playback.NewController(s.renderer, s.library, s.cfg.Loop, s.bus, s.logger)
	s.dispatcher = dispatch.NewDispatcher(s.playback, s.volume, s.bus, s.logger)
	s.control = control.NewServer(s.cfg.OSCBind, s.cfg.OSCPort, s.dispatcher, s.logger)

	if s.cfg.ScreenManaged {
		s.screen = screen.NewManager(s.baseCtx, screen.Config{
			Display:    s.cfg.Display,
			XAuthority: s.cfg.XAuthority,
		}, s.logger)
	}

	// History is strictly supplementary: a database problem must never
	// keep the player from starting.
	if s.cfg.HistoryEnabled {
		db, err := history.Connect(s.cfg.DBBackend, s.cfg.DBDSN)
		if err != nil {
			s.logger.Warn().Err(err).Msg("history database unavailable, continuing without history")
			return nil
		}
		store, err := history.NewStore(db, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("history store init failed, continuing without history")
			_ = history.Close(db)
			return nil
		}
		s.history = store
		s.recorder = history.NewRecorder(store, s.bus, s.logger)
		s.DeferClose(func() error { return history.Close(db) })
	}

	return nil
}

// Start binds the control socket, applies the configured startup volume,
// and prepares the idle screen. The HTTP listener is owned by the caller
// via HTTPServer.
func (s *Server) Start() error {
	if err := s.control.Start(s.baseCtx); err != nil {
		return err
	}

	if err := s.volume.ApplyInitial(s.baseCtx); err != nil {
		s.logger.Warn().Err(err).Msg("initial volume not applied")
	}

	if s.screen != nil {
		s.screen.Start()
	}

	return nil
}

// HTTPServer exposes the underlying net/http server, nil when the HTTP
// API is disabled.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Router exposes the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// ControlAddr returns the bound OSC socket address, nil before Start.
func (s *Server) ControlAddr() net.Addr {
	return s.control.Addr()
}

// Close shuts everything down in dependency order: stop accepting
// commands, stop the workers, halt playback, release the screen, then run
// deferred closers in reverse.
func (s *Server) Close() error {
	if err := s.control.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("control server stop")
	}
	s.stopBackgroundWorkers()
	s.playback.Shutdown()
	if s.screen != nil {
		s.screen.Stop()
	}
	s.baseStop()

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// End-of-playback notifications funnel through one goroutine so the
	// playback controller sees commands and renderer exits one at a time.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runFinishedListener(ctx)
	}()

	// Backstop for renderer exits whose notification was lost.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runWatchdog(ctx)
	}()

	if s.recorder != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.recorder.Start(ctx)
		}()
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runLibraryGaugeRefresh(ctx)
	}()
}

func (s *Server) runFinishedListener(ctx context.Context) {
	finished := s.bus.Subscribe(events.EventPlaybackFinished)
	defer s.bus.Unsubscribe(events.EventPlaybackFinished, finished)

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-finished:
			s.playback.HandleFinished(payload)
		}
	}
}

func (s *Server) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.playback.Reconcile()
		}
	}
}

func (s *Server) runLibraryGaugeRefresh(ctx context.Context) {
	s.refreshLibraryGauge()

	ticker := time.NewTicker(libraryRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshLibraryGauge()
		}
	}
}

func (s *Server) refreshLibraryGauge() {
	videos, err := s.library.List()
	if err != nil {
		s.logger.Warn().Err(err).Msg("library scan failed")
		return
	}
	telemetry.LibraryFiles.Set(float64(len(videos)))
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/videos", s.handleVideos)
	s.router.Get("/api/history", s.handleHistory)
	s.router.Get("/api/logs", s.handleLogs)
}

type statusResponse struct {
	Playback      playback.Status `json:"playback"`
	Volume        int             `json:"volume"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Version       string          `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, statusResponse{
		Playback:      s.playback.Status(),
		Volume:        s.volume.Level(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Version:       version.Version,
	})
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.library.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("library scan failed")
		s.respondError(w, http.StatusInternalServerError, "library scan failed")
		return
	}
	telemetry.LibraryFiles.Set(float64(len(videos)))
	s.respondJSON(w, http.StatusOK, map[string]any{
		"videos": videos,
		"count":  len(videos),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("limit must be an integer between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}

	rows, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("history query failed")
		s.respondError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"events": rows,
		"count":  len(rows),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logBuffer == nil {
		s.respondError(w, http.StatusServiceUnavailable, "log buffer disabled")
		return
	}

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLogLimit {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("limit must be an integer between 1 and %d", maxLogLimit))
			return
		}
		limit = n
	}

	entries := s.logBuffer.Query(logbuffer.QueryParams{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		Search:     r.URL.Query().Get("q"),
		Limit:      limit,
		Descending: true,
	})
	s.respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
