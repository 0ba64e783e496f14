package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/vidar_player/internal/config"
	"github.com/friendsincode/vidar_player/internal/logbuffer"
	"github.com/friendsincode/vidar_player/internal/logging"
	"github.com/friendsincode/vidar_player/internal/server"
	"github.com/friendsincode/vidar_player/internal/telemetry"
	"github.com/friendsincode/vidar_player/internal/version"
)

// logBufferCapacity bounds the in-memory log tail served by /api/logs.
const logBufferCapacity = 5000

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vidarplayer",
	Short: "Vidar Player - OSC-controlled fullscreen video player",
	Long:  "Vidar Player is a kiosk video playback daemon driven over OSC/UDP. It plays one fullscreen video at a time via VLC, keeps the screen black when idle, and adjusts the system volume through ALSA.",
}

var (
	serveConfigFile string
	serveIP         string
	servePort       int
	serveVideoDir   string
	serveVolumeStep int
	serveLoop       bool
	serveLogFile    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Vidar Player daemon",
	Long:  "Start the OSC control socket, the renderer supervisor, and the read-only status HTTP API.",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("vidarplayer " + version.Version)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigFile, "config", "", "Path to YAML config file")
	serveCmd.Flags().StringVar(&serveIP, "ip", "", "UDP bind address for OSC control")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "UDP port for OSC control")
	serveCmd.Flags().StringVar(&serveVideoDir, "video-dir", "", "Directory holding the video library")
	serveCmd.Flags().IntVar(&serveVolumeStep, "volume-step", 0, "Volume change per step command (1-20)")
	serveCmd.Flags().BoolVar(&serveLoop, "loop", false, "Loop the current video until stopped")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Mirror logs to this file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig(path string) error {
	var err error
	if path != "" {
		cfg, err = config.LoadWithFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return nil
}

// setupLogging configures the global logger, returning a close func for
// the optional log file sink. When buf is non-nil every JSON log line is
// also captured there for the /api/logs endpoint.
func setupLogging(buf *logbuffer.Buffer) (func() error, error) {
	if buf == nil {
		l, closeFn, err := logging.SetupWithFile(cfg.Environment, cfg.LogFile)
		if err != nil {
			return nil, err
		}
		logger = l
		return closeFn, nil
	}

	var sink io.Writer
	closeFn := func() error { return nil }
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", cfg.LogFile, err)
		}
		sink = f
		closeFn = f.Close
	}
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(buf, sink))
	return closeFn, nil
}

func applyServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("ip") {
		cfg.OSCBind = serveIP
	}
	if flags.Changed("port") {
		cfg.OSCPort = servePort
	}
	if flags.Changed("video-dir") {
		cfg.VideoDir = serveVideoDir
	}
	if flags.Changed("volume-step") {
		cfg.VolumeStep = serveVolumeStep
	}
	if flags.Changed("loop") {
		cfg.Loop = serveLoop
	}
	if flags.Changed("log-file") {
		cfg.LogFile = serveLogFile
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(serveConfigFile); err != nil {
		return err
	}
	applyServeFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logBuf := logbuffer.New(logBufferCapacity)
	closeLog, err := setupLogging(logBuf)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer func() { _ = closeLog() }()

	logger.Info().Str("version", version.Version).Msg("Vidar Player starting")

	// Initialize OpenTelemetry tracing
	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "vidar-player",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	if httpServer := srv.HTTPServer(); httpServer != nil {
		go func() {
			logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				// The OSC surface is the product; a broken status API is not fatal.
				logger.Error().Err(err).Msg("http server error")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if httpServer := srv.HTTPServer(); httpServer != nil {
		if err := httpServer.Shutdown(timeoutCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Vidar Player stopped")
	return nil
}
