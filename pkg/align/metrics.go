package align

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// statesVisited counts states popped from the frontier
	statesVisited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptalign_search_states_visited_total",
		Help: "Total search states expanded",
	})

	// statesQueued counts states created in search graphs
	statesQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptalign_search_states_queued_total",
		Help: "Total search states created",
	})

	relaxations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptalign_search_relaxations_total",
		Help: "Total in-place cost relaxations of discovered states",
	})

	searchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptalign_search_failures_total",
		Help: "Total searches that ended without an alignment",
	})

	// searchDuration tracks time per trace alignment
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ptalign_search_duration_seconds",
		Help:    "Duration of one alignment search in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 16), // 50us to ~1.6s
	})
)
