// Package metrics defines the Prometheus metrics exported by reptest-server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveRequests is the number of requests currently being served, by
	// operation.
	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reptest_active_requests",
			Help: "A gauge of requests currently being served by the reptest server.",
		},
		[]string{"operation"})

	// RequestsTotal counts completed requests by operation and status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reptest_requests_total",
			Help: "Number of requests served, by operation and status code.",
		},
		[]string{"operation", "code"})

	// PayloadBytes counts synthetic payload bytes by direction.
	PayloadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reptest_payload_bytes_total",
			Help: "Synthetic payload bytes sent (download) or received (upload).",
		},
		[]string{"direction"})

	// ConnectionBytes counts bytes read from and written to client
	// connections, including HTTP framing.
	ConnectionBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reptest_connection_bytes_total",
			Help: "Bytes read from (read) and written to (write) client connections.",
		},
		[]string{"direction"})

	// ClampedFields counts configuration values replaced or saturated during
	// normalization.
	ClampedFields = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reptest_clamped_fields_total",
			Help: "Number of client-supplied configuration values that were normalized.",
		},
		[]string{"field"})

	// StreamErrors counts aborted payload transfers.
	StreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reptest_stream_errors_total",
			Help: "Number of payload transfers aborted by an I/O error.",
		},
		[]string{"direction"})

	// TelemetryDropped counts telemetry records that were not queued.
	TelemetryDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reptest_telemetry_dropped_total",
			Help: "Number of telemetry records dropped because the queue was full or closed.",
		})

	// TelemetryErrors counts failures to encode or write telemetry records.
	TelemetryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reptest_telemetry_errors_total",
			Help: "Number of telemetry records that could not be encoded or written.",
		})
)
