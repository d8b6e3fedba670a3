// Package server exposes Prometheus metrics describing connection,
// registry, and broadcast activity.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "presenced"

var (
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "active_connections",
		Help:      "Open WebSocket connections.",
	})

	registeredParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "registered_participants",
		Help:      "Participants currently present in the registry.",
	})

	inboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "inbound_messages_total",
		Help:      "Inbound frames accepted for processing, by message type.",
	}, []string{"type"})

	publishedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "published_messages_total",
		Help:      "Messages published to the broadcast hub, by message type.",
	}, []string{"type"})

	malformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "malformed_frames_total",
		Help:      "Inbound frames dropped because they failed to decode.",
	})

	rateLimitedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "rate_limited_frames_total",
		Help:      "Inbound frames discarded by per-session rate limiting.",
	})

	droppedBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "dropped_broadcasts_total",
		Help:      "Broadcast messages evicted from lagging subscriber buffers.",
	})
)
