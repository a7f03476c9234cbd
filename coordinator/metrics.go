/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered on the registerer given to NewMetrics. A nil
// registerer keeps them unregistered, which is what tests want.
type Metrics struct {
	// Connections is the number of registered connections.
	Connections prometheus.Gauge

	// QueueLength is the number of queued participants.
	QueueLength prometheus.Gauge

	// ActiveSessions is the number of sessions the match runtime still owns.
	ActiveSessions prometheus.Gauge

	SessionsFormed    prometheus.Counter
	FormationsAborted prometheus.Counter

	// Messages counts chat messages. Labels: scope (public|private)
	Messages *prometheus.CounterVec

	// Rejections counts rejected inbound events. Labels: reason
	Rejections *prometheus.CounterVec

	// Evictions counts connections dropped because their outbox was full.
	Evictions prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mathlobby_connections",
			Help: "Number of registered connections",
		}),
		QueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mathlobby_queue_length",
			Help: "Number of participants waiting in the matchmaking queue",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mathlobby_active_sessions",
			Help: "Number of formed sessions that have not completed",
		}),
		SessionsFormed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mathlobby_sessions_formed_total",
			Help: "Total number of sessions formed from a full queue",
		}),
		FormationsAborted: factory.NewCounter(prometheus.CounterOpts{
			Name: "mathlobby_formations_aborted_total",
			Help: "Total number of formations aborted because a member was gone",
		}),
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mathlobby_chat_messages_total",
			Help: "Total number of chat messages delivered by scope",
		}, []string{"scope"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mathlobby_rejections_total",
			Help: "Total number of rejected inbound events by reason",
		}, []string{"reason"}),
		Evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "mathlobby_evictions_total",
			Help: "Total number of connections evicted for falling behind",
		}),
	}
}
