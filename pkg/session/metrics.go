package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation, grounded on pkg/dialog/metrics.go's
// promauto.New*Vec idiom (namespace "sip", subsystem "dialog"); this
// package plays the same role for the session engine, so the
// namespace/subsystem pair follows the same convention.
var (
	sessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wfd",
		Subsystem: "session",
		Name:      "created_total",
		Help:      "Sessions created by create_client_or_server, by mode.",
	}, []string{"mode"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wfd",
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions currently present in the engine's session map.",
	})

	notificationsPostedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wfd",
		Subsystem: "session",
		Name:      "notifications_posted_total",
		Help:      "Notifications posted to session sinks, by reason.",
	}, []string{"reason"})

	ioErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wfd",
		Subsystem: "session",
		Name:      "io_errors_total",
		Help:      "Read/write/connect errors surfaced as Error notifications.",
	}, []string{"direction"})

	bytesTransferredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wfd",
		Subsystem: "session",
		Name:      "bytes_total",
		Help:      "Bytes moved across all sessions.",
	}, []string{"direction"})
)

func observeSessionCreated(mode Mode) {
	sessionsCreatedTotal.WithLabelValues(mode.String()).Inc()
	sessionsActive.Inc()
}

func observeSessionDestroyed() {
	sessionsActive.Dec()
}

func observeNotificationPosted(reason NotificationReason) {
	notificationsPostedTotal.WithLabelValues(reason.String()).Inc()
}

func observeIOError(send bool) {
	direction := "recv"
	if send {
		direction = "send"
	}
	ioErrorsTotal.WithLabelValues(direction).Inc()
}

func observeBytes(send bool, n int) {
	direction := "recv"
	if send {
		direction = "send"
	}
	bytesTransferredTotal.WithLabelValues(direction).Add(float64(n))
}
