package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroom",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	}, []string{"session_id"})

	PersonsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroom",
		Name:      "persons_detected_total",
		Help:      "Total number of person detections",
	}, []string{"session_id"})

	StudentsIdentified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroom",
		Name:      "students_identified_total",
		Help:      "Total number of tracks matched to a known student",
	}, []string{"session_id"})

	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroom",
		Name:      "events_emitted_total",
		Help:      "Total number of domain events emitted, by type",
	}, []string{"session_id", "event_type"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classroom",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	FrameProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classroom",
		Name:      "frame_processing_duration_seconds",
		Help:      "Duration of the full per-frame pipeline sequence",
		Buckets:   prometheus.DefBuckets,
	}, []string{"session_id"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classroom",
		Name:      "queue_depth",
		Help:      "Number of pending frame tasks in queue",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classroom",
		Name:      "active_sessions",
		Help:      "Number of currently active monitoring sessions",
	})

	ActiveTracks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "classroom",
		Name:      "active_tracks",
		Help:      "Number of currently live student tracks",
	}, []string{"session_id"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classroom",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classroom",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
