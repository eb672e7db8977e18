// Package metrics exposes Prometheus counters for frame and transfer activity.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wirechat",
			Subsystem: "frames",
			Name:      "read_total",
			Help:      "Total frames decoded from the stream.",
		},
	)
	bytesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wirechat",
			Subsystem: "frames",
			Name:      "read_bytes_total",
			Help:      "Total payload bytes decoded from the stream.",
		},
	)
	framesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirechat",
			Subsystem: "frames",
			Name:      "written_total",
			Help:      "Total frames written to the stream.",
		},
		[]string{"kind"},
	)
	bytesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirechat",
			Subsystem: "frames",
			Name:      "written_bytes_total",
			Help:      "Total bytes written to the stream, prefixes included.",
		},
		[]string{"kind"},
	)
	chatRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wirechat",
			Subsystem: "chat",
			Name:      "rejected_total",
			Help:      "Chat sends dropped because a file transfer held the stream.",
		},
	)
	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirechat",
			Subsystem: "transfer",
			Name:      "total",
			Help:      "Finished file transfers by direction and outcome.",
		},
		[]string{"direction", "outcome"},
	)
	connectionsLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wirechat",
			Subsystem: "connection",
			Name:      "lost_total",
			Help:      "Reader loops terminated by a stream or frame error.",
		},
	)
)

// Write kinds.
const (
	KindChat    = "chat"
	KindControl = "control"
	KindData    = "data"
	KindName    = "name"
	KindRaw     = "raw"
)

// Transfer outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// RegisterMetrics registers the collectors with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesRead, bytesRead, framesWritten, bytesWritten,
			chatRejected, transfers, connectionsLost)
	})
}

// RecordFrameRead counts one decoded frame of n payload bytes.
func RecordFrameRead(n int) {
	framesRead.Inc()
	bytesRead.Add(float64(n))
}

// RecordWrite counts one write of n bytes on the wire.
func RecordWrite(kind string, n int) {
	framesWritten.WithLabelValues(kind).Inc()
	bytesWritten.WithLabelValues(kind).Add(float64(n))
}

// RecordChatRejected counts a chat send dropped while busy.
func RecordChatRejected() {
	chatRejected.Inc()
}

// RecordTransfer counts a finished transfer.
func RecordTransfer(direction, outcome string) {
	transfers.WithLabelValues(direction, outcome).Inc()
}

// RecordConnectionLost counts a terminated reader loop.
func RecordConnectionLost() {
	connectionsLost.Inc()
}
