// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts packet validation outcomes by packet kind.
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eeglink_packets_total",
			Help: "Total number of packets validated, by kind and result",
		},
		[]string{"kind", "result"},
	)

	// ResyncBytesTotal counts bytes discarded while searching for the next packet boundary.
	ResyncBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eeglink_resync_bytes_total",
			Help: "Total number of bytes skipped during stream resynchronisation",
		},
	)

	// FramesTotal counts frames delivered downstream.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eeglink_frames_total",
			Help: "Total number of frames decoded, by source (decoded|gapfill)",
		},
		[]string{"source"},
	)

	// ReconnectsTotal counts inline reconnect attempts.
	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eeglink_reconnects_total",
			Help: "Total number of reconnect attempts, by result",
		},
		[]string{"result"},
	)

	// ConnectionStage exposes the current session stage as its numeric value.
	ConnectionStage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eeglink_connection_stage",
			Help: "Current session stage (0=disconnected, 3=streaming)",
		},
	)

	// BatteryPercent is the last battery level reported by the device.
	BatteryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eeglink_battery_percent",
			Help: "Last reported device battery level",
		},
	)

	// RecordedFramesTotal counts frames appended to record files.
	RecordedFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eeglink_recorded_frames_total",
			Help: "Total number of frames written to record files",
		},
	)

	// RecordFlushesTotal counts write-buffer flushes to disk.
	RecordFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eeglink_record_flushes_total",
			Help: "Total number of record buffer flushes",
		},
	)

	// PublisherMessagesTotal counts messages handed to the broker.
	PublisherMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eeglink_publisher_messages_total",
			Help: "Total number of frame messages published, by result",
		},
		[]string{"result"},
	)

	// PublisherDroppedTotal counts frames dropped because the publish queue was full.
	PublisherDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eeglink_publisher_dropped_total",
			Help: "Total number of frames dropped by a full publish queue",
		},
	)

	// FilterDuration measures the filter pipeline cost per frame.
	FilterDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eeglink_filter_duration_seconds",
			Help:    "Filter pipeline processing time per frame",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		},
	)
)
