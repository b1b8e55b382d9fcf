package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels events processed to completion.
	OutcomeSuccess = "success"
	// OutcomeError labels events rejected or aborted at the top level.
	OutcomeError = "error"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_noc",
			Name:      "events_total",
			Help:      "Total number of alarm events handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	eventDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_noc",
			Name:      "event_seconds",
			Help:      "End-to-end event processing latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 20},
		},
	)

	alertGroupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_noc",
			Name:      "alert_groups_total",
			Help:      "Alert groups produced by the correlator, partitioned by whether enrichment degraded.",
		},
		[]string{"degraded"},
	)

	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_noc",
			Name:      "anomalies_total",
			Help:      "Anomalous samples detected, partitioned by source.",
		},
		[]string{"source"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_noc",
			Name:      "actions_total",
			Help:      "Dispatched actions, partitioned by type and status.",
		},
		[]string{"type", "status"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_noc",
			Name:      "notifications_total",
			Help:      "Notification delivery attempts, partitioned by channel and status.",
		},
		[]string{"channel", "status"},
	)
)

// Register attaches mirador-noc collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsTotal,
		eventDurationSeconds,
		alertGroupsTotal,
		anomaliesTotal,
		actionsTotal,
		notificationsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveEvent records an event duration and outcome label.
func ObserveEvent(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	eventsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	eventDurationSeconds.Observe(duration.Seconds())
}

// ObserveGroup counts one correlated alert group.
func ObserveGroup(degraded bool) {
	label := "false"
	if degraded {
		label = "true"
	}
	alertGroupsTotal.WithLabelValues(label).Inc()
}

// ObserveAnomalies adds n detected anomalies for source.
func ObserveAnomalies(source string, n int) {
	if n <= 0 {
		return
	}
	anomaliesTotal.WithLabelValues(source).Add(float64(n))
}

// ObserveAction counts one dispatched action.
func ObserveAction(actionType, status string) {
	actionsTotal.WithLabelValues(actionType, status).Inc()
}

// ObserveNotification counts one channel delivery attempt.
func ObserveNotification(channel, status string) {
	notificationsTotal.WithLabelValues(channel, status).Inc()
}
