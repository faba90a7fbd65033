package conformance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	variantsAligned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptalign_variants_aligned_total",
		Help: "Variants aligned by a search.",
	})

	variantCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptalign_variant_cache_hits_total",
		Help: "Variants answered from a cache, by tier (run, store).",
	}, []string{"tier"})

	treeReductions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptalign_tree_reductions_total",
		Help: "Distinct reduced trees built.",
	})

	variantFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptalign_variant_failures_total",
		Help: "Variants whose alignment failed.",
	})
)
