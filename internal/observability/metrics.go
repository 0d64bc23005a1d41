package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stompctl"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames_total",
			Help:      "STOMP frames read or written.",
		},
		[]string{"direction", "command"},
	)
	droppedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "dropped_frames_total",
			Help:      "Outbound frames discarded before reaching the wire.",
		},
		[]string{"command", "reason"},
	)
	protocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "protocol_errors_total",
			Help:      "Inbound framing violations that forced a reconnect.",
		},
		[]string{"code"},
	)
	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reconnects_total",
			Help:      "Connection attempts after a fault.",
		},
	)
	heartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "heartbeats_total",
			Help:      "Heartbeat line terminators written.",
		},
	)
	connectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connection_state",
			Help:      "Current connection state ordinal (0 disconnected, 4 ready).",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			framesTotal, droppedFrames, protocolErrors,
			reconnects, heartbeats, connectionState,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrame counts one frame; direction is "in" or "out".
func RecordFrame(direction, command string) {
	RegisterMetrics()
	framesTotal.WithLabelValues(direction, command).Inc()
}

func RecordDroppedFrame(command, reason string) {
	RegisterMetrics()
	droppedFrames.WithLabelValues(command, reason).Inc()
}

func RecordProtocolError(code int) {
	RegisterMetrics()
	protocolErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

func RecordReconnect() {
	RegisterMetrics()
	reconnects.Inc()
}

func RecordHeartbeat() {
	RegisterMetrics()
	heartbeats.Inc()
}

func SetConnectionState(state int) {
	RegisterMetrics()
	connectionState.Set(float64(state))
}
