// Package metrics exposes Prometheus counters for the points engine.
// Collectors are registered with the default registry via promauto and
// served by the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TransfersCompleted counts successfully committed transfers.
var TransfersCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "detofa",
	Subsystem: "transfer",
	Name:      "completed_total",
	Help:      "Total transfers committed.",
})

// TransfersRejected counts rejected transfers by reason.
var TransfersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "detofa",
	Subsystem: "transfer",
	Name:      "rejected_total",
	Help:      "Total transfers rejected, by reason.",
}, []string{"reason"})

// PointsTransferred counts points moved between accounts (excluding fees).
var PointsTransferred = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "detofa",
	Subsystem: "transfer",
	Name:      "points_total",
	Help:      "Total points transferred between accounts.",
})

// FeesCollected counts fee points retained by the system.
var FeesCollected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "detofa",
	Subsystem: "transfer",
	Name:      "fees_total",
	Help:      "Total fee points retained by the system.",
})

// ClaimsGranted counts successful video reward payouts.
var ClaimsGranted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "detofa",
	Subsystem: "rewards",
	Name:      "claims_granted_total",
	Help:      "Total video reward payouts granted.",
})

// ClaimsRejected counts rejected payout claims by reason.
var ClaimsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "detofa",
	Subsystem: "rewards",
	Name:      "claims_rejected_total",
	Help:      "Total payout claims rejected, by reason.",
}, []string{"reason"})

// ScoresSubmitted counts accepted score submissions.
var ScoresSubmitted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "detofa",
	Subsystem: "scores",
	Name:      "submitted_total",
	Help:      "Total score submissions accepted.",
})
