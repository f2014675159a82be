package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/pomelo/internal/errors"
	"github.com/vango-dev/pomelo/pkg/protocol"
)

// metrics holds the Prometheus collectors of one session. A nil *metrics
// records nothing.
//
// Metrics collected:
//   - pomelo_client_frames_received_total: frames received by kind
//   - pomelo_client_frames_sent_total: frames sent by kind
//   - pomelo_client_requests_total: requests sent
//   - pomelo_client_request_duration_seconds: request round-trip time
//   - pomelo_client_pending_requests: requests awaiting a response
//   - pomelo_client_errors_total: session errors by code
//   - pomelo_client_reconnect_attempts_total: reconnect attempts scheduled
//   - pomelo_client_heartbeat_timeouts_total: heartbeat timeouts
type metrics struct {
	framesReceived    *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
	requestsTotal     prometheus.Counter
	requestDuration   prometheus.Histogram
	pendingRequests   prometheus.Gauge
	errorsTotal       *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	heartbeatTimeouts prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, namespace string) *metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	const subsystem = "client"

	return &metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total number of frames received by kind",
		}, []string{"kind"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Total number of frames sent by kind",
		}, []string{"kind"}),

		requestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Total number of requests sent",
		}),

		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Request round-trip time in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		pendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_requests",
			Help:      "Number of requests awaiting a response",
		}),

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of session errors by code",
		}, []string{"code"}),

		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnect attempts scheduled",
		}),

		heartbeatTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "heartbeat_timeouts_total",
			Help:      "Total number of heartbeat timeouts",
		}),
	}
}

func (m *metrics) frameReceived(kind protocol.FrameKind) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind.String()).Inc()
}

func (m *metrics) frameSent(kind protocol.FrameKind) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind.String()).Inc()
}

func (m *metrics) requestSent(pending int) {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
	m.pendingRequests.Set(float64(pending))
}

func (m *metrics) requestDone(elapsed time.Duration, pending int) {
	if m == nil {
		return
	}
	m.requestDuration.Observe(elapsed.Seconds())
	m.pendingRequests.Set(float64(pending))
}

func (m *metrics) setPending(pending int) {
	if m == nil {
		return
	}
	m.pendingRequests.Set(float64(pending))
}

func (m *metrics) sessionError(err error) {
	if m == nil {
		return
	}
	code := errors.CodeOf(err)
	if code == "" {
		code = "unknown"
	}
	m.errorsTotal.WithLabelValues(code).Inc()
}

func (m *metrics) reconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

func (m *metrics) heartbeatTimeout() {
	if m == nil {
		return
	}
	m.heartbeatTimeouts.Inc()
}
