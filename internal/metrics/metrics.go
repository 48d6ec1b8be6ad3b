package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wirechat_sessions_active",
			Help: "Live sessions",
		},
	)

	HeartbeatEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirechat_heartbeat_evictions_total",
			Help: "Sessions closed after missing two heartbeat probes",
		},
	)

	// Business metrics
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirechat_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	MessagesRouted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirechat_messages_routed_total",
			Help: "Chat messages accepted for delivery",
		},
	)

	FramesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_frames_delivered_total",
			Help: "Frames handed to transports by the broadcaster",
		},
		[]string{"kind"}, // "full" or "digest"
	)

	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirechat_send_failures_total",
			Help: "Frames dropped because a transport refused them",
		},
	)

	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_protocol_errors_total",
			Help: "Errors reported to clients",
		},
		[]string{"code"},
	)

	// Persistence metrics
	SnapshotFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_snapshot_failures_total",
			Help: "History snapshot operations that failed",
		},
		[]string{"op"}, // "save" or "load"
	)

	SnapshotLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wirechat_snapshot_latency_seconds",
			Help:    "History snapshot save latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
	)
)
