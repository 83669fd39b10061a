package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay metrics, exposed on /metrics via promhttp.
var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "connections_active",
		Help:      "Number of live websocket connections, authenticated or not.",
	})

	MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "dm_messages_relayed_total",
		Help:      "Direct messages persisted and fanned out.",
	})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "events_dropped_total",
		Help:      "Client events dropped, by reason.",
	}, []string{"reason"})

	PresenceBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "presence_broadcasts_total",
		Help:      "Presence snapshots broadcast to all connections.",
	})

	NotificationsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "notifications_forwarded_total",
		Help:      "Notification events forwarded to notification rooms.",
	})
)
