/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry holds the Prometheus metrics, HTTP instrumentation and
// OpenTelemetry tracing used across the player.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts remote commands by command name and outcome
	// (ok, rejected, failed).
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidar_commands_total",
			Help: "Remote commands processed, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	// OSCPacketsTotal counts packets on the control socket by result
	// (message, bundle, error).
	OSCPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidar_osc_packets_total",
			Help: "OSC packets received on the control socket, by result",
		},
		[]string{"result"},
	)

	// PlaybackState is 1 while a video is playing, 0 when idle.
	PlaybackState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidar_playback_state",
			Help: "Current playback state (0 = idle, 1 = playing)",
		},
	)

	// PlaybacksStartedTotal counts successfully started playbacks.
	PlaybacksStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidar_playbacks_started_total",
			Help: "Playbacks started",
		},
	)

	// PlaybacksFinishedTotal counts ended playbacks by reason
	// (completed, stopped, replaced, failed).
	PlaybacksFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidar_playbacks_finished_total",
			Help: "Playbacks ended, by reason",
		},
		[]string{"reason"},
	)

	// RendererRestartsTotal counts crash-recovery relaunches. Clean loop
	// relaunches are the loop working and are not counted.
	RendererRestartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidar_renderer_restarts_total",
			Help: "Renderer processes relaunched after crashing mid-playback",
		},
	)

	// VolumeLevel is the last volume level applied to the mixer.
	VolumeLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidar_volume_level",
			Help: "Last volume level applied to the mixer, in percent",
		},
	)

	// LibraryFiles is the number of playable files found at the last scan.
	LibraryFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidar_library_files",
			Help: "Playable files in the video library at last scan",
		},
	)

	// HistoryEventsTotal counts events persisted to the history store.
	HistoryEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidar_history_events_total",
			Help: "Events persisted to the history store, by type",
		},
		[]string{"type"},
	)

	// APIRequestsTotal counts status API requests.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidar_api_requests_total",
			Help: "Status API requests, by method, endpoint and status code",
		},
		[]string{"method", "endpoint", "status"},
	)

	// APIRequestDuration observes status API request latency.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidar_api_request_duration_seconds",
			Help:    "Status API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// APIActiveConnections tracks in-flight status API requests.
	APIActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidar_api_active_connections",
			Help: "In-flight status API requests",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
