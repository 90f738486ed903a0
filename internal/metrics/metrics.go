// Package metrics provides Prometheus instrumentation for the matchmaking
// engine. It exposes a gauge for queue depth, counters for pairing outcomes
// and the acceptance handshake, and a histogram for scoring latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueSize tracks the current number of users in the waiting queue.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchd_queue_size",
		Help: "Current number of users in the waiting queue",
	})

	// MatchAttempts counts orchestrator runs, labeled by outcome:
	// "committed", "no_candidates", "already_matched", or "conflict_give_up".
	MatchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_match_attempts_total",
		Help: "Total number of match attempts by outcome",
	}, []string{"outcome"})

	// MatchesCommitted counts successfully committed pairings.
	MatchesCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchd_matches_committed_total",
		Help: "Total number of committed pairings",
	})

	// ClaimConflicts counts candidates lost to a concurrent pairing at
	// commit time.
	ClaimConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchd_claim_conflicts_total",
		Help: "Candidates claimed by a concurrent match attempt",
	})

	// Acceptances counts accept calls, labeled by handshake state:
	// "waiting" or "confirmed".
	Acceptances = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_acceptances_total",
		Help: "Total number of acceptances by handshake state",
	}, []string{"state"})

	// Rejections counts rejected pairings.
	Rejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchd_rejections_total",
		Help: "Total number of rejected pairings",
	})

	// Accelerations counts paid acceleration debits.
	Accelerations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchd_accelerations_total",
		Help: "Total number of paid accelerations",
	})

	// ScoringDuration records per-candidate compatibility scoring latency
	// in seconds.
	ScoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchd_scoring_duration_seconds",
		Help:    "Per-candidate compatibility scoring latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		QueueSize,
		MatchAttempts,
		MatchesCommitted,
		ClaimConflicts,
		Acceptances,
		Rejections,
		Accelerations,
		ScoringDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
