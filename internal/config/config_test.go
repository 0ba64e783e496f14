package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearPlayerEnv blanks every key Load consults so host environments cannot
// leak into assertions.
func clearPlayerEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"VIDAR_CONFIG_FILE", "CONFIG_FILE",
		"VIDAR_ENV", "ENVIRONMENT",
		"VIDAR_OSC_BIND", "OSC_BIND", "VIDAR_OSC_PORT", "OSC_PORT",
		"VIDAR_VIDEO_DIR", "VIDEO_DIR", "VIDAR_LOOP", "LOOP",
		"VIDAR_VLC_BIN", "VLC_BIN", "VIDAR_VLC_ARGS", "VLC_ARGS",
		"VIDAR_DISPLAY", "VIDAR_XAUTHORITY",
		"VIDAR_STOP_TIMEOUT_SECONDS", "STOP_TIMEOUT_SECONDS",
		"VIDAR_VOLUME_STEP", "VOLUME_STEP",
		"VIDAR_INITIAL_VOLUME", "INITIAL_VOLUME",
		"VIDAR_MIXER_CONTROL", "MIXER_CONTROL", "VIDAR_AMIXER_BIN", "AMIXER_BIN",
		"VIDAR_SCREEN_MANAGED", "SCREEN_MANAGED",
		"VIDAR_LOG_FILE", "LOG_FILE",
		"VIDAR_HTTP_ENABLED", "HTTP_ENABLED",
		"VIDAR_HTTP_BIND", "HTTP_BIND", "VIDAR_HTTP_PORT", "HTTP_PORT",
		"VIDAR_HISTORY_ENABLED", "HISTORY_ENABLED",
		"VIDAR_DB_BACKEND", "DB_BACKEND", "VIDAR_DB_DSN", "DB_DSN",
		"VIDAR_TRACING_ENABLED", "TRACING_ENABLED",
		"VIDAR_OTLP_ENDPOINT", "OTLP_ENDPOINT",
		"VIDAR_TRACING_SAMPLE_RATE", "TRACING_SAMPLE_RATE",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearPlayerEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.OSCPort != 8000 {
		t.Errorf("OSCPort = %d, want 8000", cfg.OSCPort)
	}
	if cfg.VolumeStep != 5 {
		t.Errorf("VolumeStep = %d, want 5", cfg.VolumeStep)
	}
	if cfg.InitialVolume != 80 {
		t.Errorf("InitialVolume = %d, want 80", cfg.InitialVolume)
	}
	if cfg.Loop {
		t.Error("Loop should default to false")
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Errorf("DBBackend = %q, want sqlite", cfg.DBBackend)
	}
	if cfg.VideoDir == "" {
		t.Error("VideoDir default should not be empty")
	}
}

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	clearPlayerEnv(t)
	t.Setenv("VIDAR_VIDEO_DIR", "/srv/show/videos")
	t.Setenv("VIDAR_VOLUME_STEP", "10")
	t.Setenv("VIDAR_LOOP", "true")
	t.Setenv("VIDAR_OSC_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.VideoDir != "/srv/show/videos" {
		t.Fatalf("unexpected video dir: %q", cfg.VideoDir)
	}
	if cfg.VolumeStep != 10 {
		t.Fatalf("unexpected volume step: %d", cfg.VolumeStep)
	}
	if !cfg.Loop {
		t.Fatal("expected loop to be enabled")
	}
	if cfg.OSCPort != 9000 {
		t.Fatalf("unexpected OSC port: %d", cfg.OSCPort)
	}
}

func TestLoadRejectsOutOfRangeVolumeStep(t *testing.T) {
	for _, step := range []string{"0", "21", "-3"} {
		clearPlayerEnv(t)
		t.Setenv("VIDAR_VOLUME_STEP", step)
		if _, err := Load(); err == nil {
			t.Errorf("step %s: expected load to fail", step)
		}
	}

	clearPlayerEnv(t)
	t.Setenv("VIDAR_VOLUME_STEP", "20")
	if _, err := Load(); err != nil {
		t.Fatalf("step 20 should be accepted: %v", err)
	}
}

func TestLoadRejectsBadInitialVolume(t *testing.T) {
	clearPlayerEnv(t)
	t.Setenv("VIDAR_INITIAL_VOLUME", "101")
	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail for initial volume 101")
	}
}

func TestLoadRejectsUnknownDBBackend(t *testing.T) {
	clearPlayerEnv(t)
	t.Setenv("VIDAR_DB_BACKEND", "mongodb")
	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail for unknown database backend")
	}

	// With history disabled the backend is irrelevant and must not fail the load.
	t.Setenv("VIDAR_HISTORY_ENABLED", "false")
	if _, err := Load(); err != nil {
		t.Fatalf("backend should be ignored when history is disabled: %v", err)
	}
}

func TestLoadConfigFileOverlayAndEnvPrecedence(t *testing.T) {
	clearPlayerEnv(t)

	path := filepath.Join(t.TempDir(), "vidarplayer.yml")
	body := "osc_port: 8700\nvolume_step: 8\nvideo_dir: /srv/file/videos\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("VIDAR_CONFIG_FILE", path)
	t.Setenv("VIDAR_OSC_PORT", "8800")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.VolumeStep != 8 {
		t.Errorf("file value ignored: VolumeStep = %d, want 8", cfg.VolumeStep)
	}
	if cfg.VideoDir != "/srv/file/videos" {
		t.Errorf("file value ignored: VideoDir = %q", cfg.VideoDir)
	}
	if cfg.OSCPort != 8800 {
		t.Errorf("env should win over file: OSCPort = %d, want 8800", cfg.OSCPort)
	}
}

func TestLoadRejectsUnreadableConfigFile(t *testing.T) {
	clearPlayerEnv(t)
	t.Setenv("VIDAR_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail for missing config file")
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	clearPlayerEnv(t)
	t.Setenv("VOLUME_STEP", "7")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
	// Legacy keys are warned about but still honored.
	if cfg.VolumeStep != 7 {
		t.Fatalf("legacy VOLUME_STEP not honored: %d", cfg.VolumeStep)
	}
	if !cfg.TracingEnabled {
		t.Fatal("legacy TRACING_ENABLED not honored")
	}
}

func TestStopTimeout(t *testing.T) {
	clearPlayerEnv(t)
	t.Setenv("VIDAR_STOP_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := cfg.StopTimeout(); got != 5*time.Second {
		t.Fatalf("StopTimeout = %v, want 5s", got)
	}
}
