// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package notify

import "github.com/prometheus/client_golang/prometheus"

// Delivery outcomes.
const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
	OutcomeLogged    = "logged"
)

// Notifications counts notifications by kind and delivery outcome.
var Notifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keyward_notifications_total",
		Help: "Total number of notifications by kind and delivery outcome",
	},
	[]string{"kind", "outcome"},
)

// PublishAttempts counts broker publish attempts, including retries.
var PublishAttempts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "keyward_notification_publish_attempts_total",
		Help: "Total number of notification publish attempts",
	},
)

// QueueDepth reports notifications waiting for the publish worker.
var QueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "keyward_notification_queue_depth",
		Help: "Notifications waiting to be published",
	},
)

// RegisterMetrics registers notify package metrics with the given registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Notifications)
	reg.MustRegister(PublishAttempts)
	reg.MustRegister(QueueDepth)
}

func recordOutcome(kind, outcome string) {
	Notifications.WithLabelValues(kind, outcome).Inc()
}
