package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the notification client metrics
type Metrics struct {
	// Connection metrics
	ConnectAttempts   prometheus.Counter
	HandshakeFailures *prometheus.CounterVec
	Disconnects       *prometheus.CounterVec
	ConnectionState   *prometheus.GaugeVec
	BackoffDelay      prometheus.Histogram

	// Frame metrics
	FramesReceived *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec

	// Log metrics
	NotificationsIngested prometheus.Counter
	DuplicatesDropped     prometheus.Counter
	LogSize               prometheus.Gauge
	UnreadCount           prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ConnectAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connect_attempts_total",
			Help:      "Total number of transport connect attempts",
		}),
		HandshakeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handshake_failures_total",
			Help:      "Total number of failed handshakes",
		}, []string{"reason"}),
		Disconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "disconnects_total",
			Help:      "Total number of established connections that were lost",
		}, []string{"reason"}),
		ConnectionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise",
		}, []string{"state"}),
		BackoffDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backoff_delay_seconds",
			Help:      "Delay applied before reconnect attempts",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 16, 32, 64},
		}),

		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total number of inbound frames",
		}, []string{"type"}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Total number of inbound frames dropped as malformed",
		}, []string{"reason"}),

		NotificationsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_ingested_total",
			Help:      "Total number of notifications added to the log",
		}),
		DuplicatesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_duplicate_total",
			Help:      "Total number of notifications ignored as duplicates",
		}),
		LogSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "log_size",
			Help:      "Current number of notifications in the log",
		}),
		UnreadCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unread_count",
			Help:      "Current number of unread notifications",
		}),
	}
}

// New creates unregistered metrics under namespace.
func New(namespace string) *Metrics {
	return NewMetrics(namespace, "", nil)
}

// SetState marks state as the only active connection state.
func (m *Metrics) SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}
