/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database backend selection for the playback history store.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Limits enforced at load time, not per call.
const (
	MinVolumeStep = 1
	MaxVolumeStep = 20
)

// Config covers process level configuration. Values are resolved in order:
// built-in defaults, then the optional YAML config file, then environment
// variables. Command-line flags are applied on top by the CLI layer.
type Config struct {
	Environment string `yaml:"environment"`

	// OSC control surface (UDP)
	OSCBind string `yaml:"osc_bind"`
	OSCPort int    `yaml:"osc_port"`

	// Playback
	VideoDir           string   `yaml:"video_dir"`
	Loop               bool     `yaml:"loop"`
	VLCBin             string   `yaml:"vlc_bin"`
	VLCArgs            []string `yaml:"vlc_args"`
	Display            string   `yaml:"display"`
	XAuthority         string   `yaml:"xauthority"`
	StopTimeoutSeconds int      `yaml:"stop_timeout_seconds"`

	// System volume (ALSA)
	VolumeStep    int    `yaml:"volume_step"`
	InitialVolume int    `yaml:"initial_volume"`
	MixerControl  string `yaml:"mixer_control"` // empty = discover at startup
	AmixerBin     string `yaml:"amixer_bin"`

	// Idle screen management (feh/unclutter/xset)
	ScreenManaged bool `yaml:"screen_managed"`

	// Logging
	LogFile string `yaml:"log_file"`

	// Read-only status HTTP API
	HTTPEnabled bool   `yaml:"http_enabled"`
	HTTPBind    string `yaml:"http_bind"`
	HTTPPort    int    `yaml:"http_port"`

	// Playback history store
	HistoryEnabled bool            `yaml:"history_enabled"`
	DBBackend      DatabaseBackend `yaml:"db_backend"`
	DBDSN          string          `yaml:"db_dsn"`

	// Tracing configuration
	TracingEnabled    bool    `yaml:"tracing_enabled"`
	OTLPEndpoint      string  `yaml:"otlp_endpoint"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`

	LegacyEnvWarnings []string `yaml:"-"`
}

// Load reads the optional config file named by VIDAR_CONFIG_FILE, applies
// environment variables, and validates the result.
func Load() (*Config, error) {
	return LoadWithFile(getEnvAny([]string{"VIDAR_CONFIG_FILE", "CONFIG_FILE"}, ""))
}

// LoadWithFile is Load with an explicit config file path ("" = no file).
func LoadWithFile(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment:        "production",
		OSCBind:            "0.0.0.0",
		OSCPort:            8000,
		VideoDir:           defaultVideoDir(),
		Loop:               false,
		VLCBin:             "cvlc",
		Display:            ":0",
		StopTimeoutSeconds: 3,
		VolumeStep:         5,
		InitialVolume:      80,
		AmixerBin:          "amixer",
		ScreenManaged:      true,
		HTTPEnabled:        true,
		HTTPBind:           "0.0.0.0",
		HTTPPort:           8080,
		HistoryEnabled:     true,
		DBBackend:          DatabaseSQLite,
		DBDSN:              "/var/lib/vidarplayer/history.db",
		TracingEnabled:     false,
		OTLPEndpoint:       "localhost:4317",
		TracingSampleRate:  1.0,
	}
}

func applyEnv(cfg *Config) {
	cfg.Environment = getEnvAny([]string{"VIDAR_ENV", "ENVIRONMENT"}, cfg.Environment)

	cfg.OSCBind = getEnvAny([]string{"VIDAR_OSC_BIND", "OSC_BIND"}, cfg.OSCBind)
	cfg.OSCPort = getEnvIntAny([]string{"VIDAR_OSC_PORT", "OSC_PORT"}, cfg.OSCPort)

	cfg.VideoDir = getEnvAny([]string{"VIDAR_VIDEO_DIR", "VIDEO_DIR"}, cfg.VideoDir)
	cfg.Loop = getEnvBoolAny([]string{"VIDAR_LOOP", "LOOP"}, cfg.Loop)
	cfg.VLCBin = getEnvAny([]string{"VIDAR_VLC_BIN", "VLC_BIN"}, cfg.VLCBin)
	if v := getEnvAny([]string{"VIDAR_VLC_ARGS", "VLC_ARGS"}, ""); v != "" {
		cfg.VLCArgs = strings.Fields(v)
	}
	cfg.Display = getEnvAny([]string{"VIDAR_DISPLAY", "DISPLAY"}, cfg.Display)
	cfg.XAuthority = getEnvAny([]string{"VIDAR_XAUTHORITY", "XAUTHORITY"}, cfg.XAuthority)
	cfg.StopTimeoutSeconds = getEnvIntAny([]string{"VIDAR_STOP_TIMEOUT_SECONDS", "STOP_TIMEOUT_SECONDS"}, cfg.StopTimeoutSeconds)

	cfg.VolumeStep = getEnvIntAny([]string{"VIDAR_VOLUME_STEP", "VOLUME_STEP"}, cfg.VolumeStep)
	cfg.InitialVolume = getEnvIntAny([]string{"VIDAR_INITIAL_VOLUME", "INITIAL_VOLUME"}, cfg.InitialVolume)
	cfg.MixerControl = getEnvAny([]string{"VIDAR_MIXER_CONTROL", "MIXER_CONTROL"}, cfg.MixerControl)
	cfg.AmixerBin = getEnvAny([]string{"VIDAR_AMIXER_BIN", "AMIXER_BIN"}, cfg.AmixerBin)

	cfg.ScreenManaged = getEnvBoolAny([]string{"VIDAR_SCREEN_MANAGED", "SCREEN_MANAGED"}, cfg.ScreenManaged)

	cfg.LogFile = getEnvAny([]string{"VIDAR_LOG_FILE", "LOG_FILE"}, cfg.LogFile)

	cfg.HTTPEnabled = getEnvBoolAny([]string{"VIDAR_HTTP_ENABLED", "HTTP_ENABLED"}, cfg.HTTPEnabled)
	cfg.HTTPBind = getEnvAny([]string{"VIDAR_HTTP_BIND", "HTTP_BIND"}, cfg.HTTPBind)
	cfg.HTTPPort = getEnvIntAny([]string{"VIDAR_HTTP_PORT", "HTTP_PORT"}, cfg.HTTPPort)

	cfg.HistoryEnabled = getEnvBoolAny([]string{"VIDAR_HISTORY_ENABLED", "HISTORY_ENABLED"}, cfg.HistoryEnabled)
	cfg.DBBackend = DatabaseBackend(getEnvAny([]string{"VIDAR_DB_BACKEND", "DB_BACKEND"}, string(cfg.DBBackend)))
	cfg.DBDSN = getEnvAny([]string{"VIDAR_DB_DSN", "DB_DSN"}, cfg.DBDSN)

	cfg.TracingEnabled = getEnvBoolAny([]string{"VIDAR_TRACING_ENABLED", "TRACING_ENABLED"}, cfg.TracingEnabled)
	cfg.OTLPEndpoint = getEnvAny([]string{"VIDAR_OTLP_ENDPOINT", "OTLP_ENDPOINT"}, cfg.OTLPEndpoint)
	cfg.TracingSampleRate = getEnvFloatAny([]string{"VIDAR_TRACING_SAMPLE_RATE", "TRACING_SAMPLE_RATE"}, cfg.TracingSampleRate)
}

// Validate enforces the invariants the controllers rely on at runtime.
func (c *Config) Validate() error {
	if c.VideoDir == "" {
		return fmt.Errorf("VIDAR_VIDEO_DIR must be provided")
	}
	if c.VolumeStep < MinVolumeStep || c.VolumeStep > MaxVolumeStep {
		return fmt.Errorf("volume step %d out of range [%d,%d]", c.VolumeStep, MinVolumeStep, MaxVolumeStep)
	}
	if c.InitialVolume < 0 || c.InitialVolume > 100 {
		return fmt.Errorf("initial volume %d out of range [0,100]", c.InitialVolume)
	}
	if c.OSCPort < 1 || c.OSCPort > 65535 {
		return fmt.Errorf("OSC port %d out of range", c.OSCPort)
	}
	if c.HTTPEnabled && (c.HTTPPort < 1 || c.HTTPPort > 65535) {
		return fmt.Errorf("HTTP port %d out of range", c.HTTPPort)
	}
	if c.StopTimeoutSeconds < 1 {
		return fmt.Errorf("stop timeout must be at least 1 second, got %d", c.StopTimeoutSeconds)
	}
	if c.HistoryEnabled {
		if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
			return fmt.Errorf("unsupported database backend %q", c.DBBackend)
		}
		if c.DBDSN == "" {
			return fmt.Errorf("VIDAR_DB_DSN must be provided when history is enabled")
		}
	}
	return nil
}

// StopTimeout returns the renderer stop grace period.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":     "use VIDAR_ENV",
		"OSC_PORT":        "use VIDAR_OSC_PORT",
		"VIDEO_DIR":       "use VIDAR_VIDEO_DIR",
		"VOLUME_STEP":     "use VIDAR_VOLUME_STEP",
		"LOG_FILE":        "use VIDAR_LOG_FILE",
		"TRACING_ENABLED": "use VIDAR_TRACING_ENABLED",
		"OTLP_ENDPOINT":   "use VIDAR_OTLP_ENDPOINT",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

func defaultVideoDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./videos"
	}
	return filepath.Join(home, "Videos")
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
