// Package metrics exposes Prometheus collectors for session and media
// activity. Collectors register on the default registry; the HTTP server
// serves them under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionState tracks per-camera connection state:
	// 0 disconnected, 1 connecting, 2 connected.
	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camlink",
		Subsystem: "session",
		Name:      "connection_state",
		Help:      "Connection state per camera (0 disconnected, 1 connecting, 2 connected)",
	}, []string{"camera"})

	// ConnectAttempts counts dial attempts, successful or not.
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camlink",
		Subsystem: "session",
		Name:      "connect_attempts_total",
		Help:      "Total connection attempts per camera",
	}, []string{"camera"})

	// Reconnects counts connections established after the first one.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camlink",
		Subsystem: "session",
		Name:      "reconnects_total",
		Help:      "Total reconnections per camera",
	}, []string{"camera"})

	// FramesTotal counts media frames fanned out per camera and track.
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camlink",
		Subsystem: "media",
		Name:      "frames_total",
		Help:      "Total media frames distributed per camera and track",
	}, []string{"camera", "track"})

	// SubscriberLag counts frames missed by lagging strict subscribers.
	SubscriberLag = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camlink",
		Subsystem: "media",
		Name:      "subscriber_lag_total",
		Help:      "Total frames missed by lagging subscribers per camera and track",
	}, []string{"camera", "track"})

	// ConfigReloads counts applied configuration updates per camera.
	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camlink",
		Subsystem: "session",
		Name:      "config_reloads_total",
		Help:      "Total configuration updates applied per camera",
	}, []string{"camera"})
)
