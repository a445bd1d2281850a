package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HoldsGranted The total number of successful all-or-nothing holds (counter)
	HoldsGranted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "seats",
			Name:      "holds_granted_total",
			Help:      "The total number of holds granted",
		},
	)

	// HoldsRejected The total number of holds refused because a seat was taken (counter)
	HoldsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "seats",
			Name:      "holds_rejected_total",
			Help:      "The total number of holds rejected with seat_unavailable",
		},
	)

	// HoldsExpired The total number of holds expired by the sweeper (counter)
	HoldsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "seats",
			Name:      "holds_expired_total",
			Help:      "The total number of holds expired by the sweeper",
		},
	)

	// SweepDuration Time spent in one expiry sweep (histogram)
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "seats",
			Name:      "sweep_duration_seconds",
			Help:      "Time spent expiring holds in one sweep",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// BookingTransitions The total number of booking status changes (counter)
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "transitions_total",
			Help:      "The total number of booking status transitions",
		},
		[]string{"to"},
	)

	// ReconciliationConflicts The total number of payments that could not be matched to seats (counter)
	ReconciliationConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "reconciliation_conflicts_total",
			Help:      "The total number of payment reconciliation conflicts",
		},
		[]string{"reason"},
	)

	// ResponseCache Seat map response cache lookups by result (counter)
	ResponseCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "http",
			Name:      "response_cache_total",
			Help:      "Response cache lookups by result",
		},
		[]string{"result"},
	)

	// RateLimited The total number of requests refused by the token bucket (counter)
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "http",
			Name:      "rate_limited_total",
			Help:      "The total number of requests refused with 429",
		},
	)
)
