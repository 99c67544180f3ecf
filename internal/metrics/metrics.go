// Package metrics defines the service's prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "feed"

var (
	credentialChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "account",
		Name:      "credential_checks_total",
		Help:      "Password and token checks by kind and result.",
	}, []string{"kind", "result"})

	edgeChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "edge_changes_total",
		Help:      "Follow and unfollow calls by whether they changed the graph.",
	}, []string{"op", "changed"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifier",
		Name:      "notifications_total",
		Help:      "Dispatched notifications by type and result.",
	}, []string{"type", "result"})

	cdcEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "cdc_events_total",
		Help:      "Relationship change events consumed, by Debezium op and result.",
	}, []string{"op", "result"})
)

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

// CredentialCheck counts a password or token verification.
func CredentialCheck(kind string, ok bool) {
	credentialChecks.WithLabelValues(kind, result(ok)).Inc()
}

// EdgeChange counts a follow or unfollow call.
func EdgeChange(op string, changed bool) {
	edgeChanges.WithLabelValues(op, strconv.FormatBool(changed)).Inc()
}

// Notification counts a dispatched notification.
func Notification(eventType string, ok bool) {
	notifications.WithLabelValues(eventType, result(ok)).Inc()
}

// CDCEvent counts a consumed relationship change event. Undecodable
// events are counted with an empty op.
func CDCEvent(op string, ok bool) {
	cdcEvents.WithLabelValues(op, result(ok)).Inc()
}
