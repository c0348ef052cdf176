package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabroker_sessions_created_total",
		Help: "Total number of sessions created.",
	})
	SessionsAuthenticatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabroker_sessions_authenticated_total",
		Help: "Total number of sessions that reached AUTHENTICATED.",
	})
	SessionLaunchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabroker_session_launch_failures_total",
		Help: "Total number of automation launches that exhausted their retry budget.",
	})
	CaptureFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabroker_qr_capture_failures_total",
		Help: "Total number of QR captures that exhausted their retry budget.",
	})
	ActiveMonitorsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wabroker_active_monitors_gauge",
		Help: "Current number of running scan-detection monitors.",
	})
	NotificationsDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabroker_notifications_delivered_total",
		Help: "Total number of events delivered to client connections.",
	})
	NotificationsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabroker_notifications_dropped_total",
		Help: "Total number of events dropped after the delivery retry window.",
	})
)
