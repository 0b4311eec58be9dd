package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_events_processed_total",
		Help: "Push-channel events processed, by event type.",
	}, []string{"type"})

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessiond_reconnects_total",
		Help: "Transport reconnect attempts observed.",
	})

	timelineLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessiond_timeline_messages",
		Help: "Current number of messages in the merged timeline.",
	})

	actionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_actions_submitted_total",
		Help: "Player actions submitted, by transport path.",
	}, []string{"path"})
)
