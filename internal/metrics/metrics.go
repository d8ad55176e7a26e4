package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mirotalk_admin_socket_connections",
		Help: "Open dashboard websocket connections",
	})

	TerminalSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mirotalk_admin_terminal_sessions",
		Help: "Running interactive terminal sessions by kind",
	}, []string{"kind"})

	LogStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mirotalk_admin_log_streams",
		Help: "Running real-time log streams",
	})

	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirotalk_admin_operations_total",
		Help: "Streamed operations by name and result",
	}, []string{"operation", "result"})

	AuthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirotalk_admin_auth_failures_total",
		Help: "Rejected tokens by inbound event",
	}, []string{"event"})

	RateLimitedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirotalk_admin_rate_limited_frames_total",
		Help: "Inbound websocket frames dropped by the per-connection rate limit",
	})

	DroppedEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirotalk_admin_dropped_events_total",
		Help: "Outbound events dropped because the connection was closed or its queue was full",
	})
)

// RecordOperation counts a finished streamed operation. Exit code 0 is "ok",
// anything else "error".
func RecordOperation(operation string, code int) {
	result := "ok"
	if code != 0 {
		result = "error"
	}
	OperationsTotal.WithLabelValues(operation, result).Inc()
}

func RecordAuthFailure(event string) {
	if event == "" {
		event = "unknown"
	}
	AuthFailuresTotal.WithLabelValues(event).Inc()
}
