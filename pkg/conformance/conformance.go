// Package conformance aligns whole event logs against a process tree. Each
// distinct variant is aligned once, optionally against the tree reduced to
// the variant's activities, and the results are shared by every case that
// follows the variant.
package conformance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/logflow/ptalign/internal/pool"
	"github.com/logflow/ptalign/pkg/align"
	"github.com/logflow/ptalign/pkg/cache"
	"github.com/logflow/ptalign/pkg/errors"
	"github.com/logflow/ptalign/pkg/eventlog"
	"github.com/logflow/ptalign/pkg/ptree"
	"github.com/logflow/ptalign/pkg/telemetry"
)

// Aligner aligns traces against one tree and caches per-variant results
// and reduced trees for its lifetime. It is safe for concurrent use.
type Aligner struct {
	tree   *ptree.Tree
	opts   Options
	logger *slog.Logger

	// Full-tree searcher, also used for every variant when reduction is off.
	full *align.Searcher

	// labelIDs interns the tree's labels for reduction keys.
	labelIDs map[string]uint32

	bestWorstOnce sync.Once
	bestWorst     int
	bestWorstErr  error

	mu       sync.Mutex
	variants map[string]*align.Alignment
	reduced  map[string]*align.Searcher

	variantFlight   singleflight.Group
	reductionFlight singleflight.Group
}

// New validates opts and prepares an aligner for tree.
func New(tree *ptree.Tree, opts Options) (*Aligner, error) {
	if tree == nil {
		return nil, errors.InvalidTree("tree is nil", "")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	labels := tree.Labels()
	ids := make(map[string]uint32, len(labels))
	for i, l := range labels {
		ids[l] = uint32(i)
	}

	logger := opts.logger()
	return &Aligner{
		tree:     tree,
		opts:     opts,
		logger:   logger,
		full:     align.NewSearcher(tree, align.Options{MaxStates: opts.MaxStates, Logger: logger}),
		labelIDs: ids,
		variants: make(map[string]*align.Alignment),
		reduced:  make(map[string]*align.Searcher),
	}, nil
}

// Tree returns the unreduced tree.
func (a *Aligner) Tree() *ptree.Tree {
	return a.tree
}

// BestWorstCost is the cost of aligning the empty trace on the unreduced
// tree, the cheapest complete model run. It is computed once.
func (a *Aligner) BestWorstCost() (int, error) {
	a.bestWorstOnce.Do(func() {
		al, err := a.full.Align(nil)
		if err != nil {
			a.bestWorstErr = errors.Wrap(err, errors.CodeVariantFailed, "failed to align the empty trace")
			return
		}
		a.bestWorst = al.Cost
	})
	return a.bestWorst, a.bestWorstErr
}

// Fitness normalizes cost by the trace length plus the best-worst cost. A
// zero denominator gives zero.
func Fitness(cost, traceLen, bestWorst int) float64 {
	den := traceLen + bestWorst
	if den <= 0 {
		return 0
	}
	return 1 - float64(cost)/float64(den)
}

// AlignTrace aligns a single trace.
func (a *Aligner) AlignTrace(ctx context.Context, trace []string) (*align.Alignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeContextCanceled, "alignment canceled")
	}
	bwc, err := a.BestWorstCost()
	if err != nil {
		return nil, err
	}
	return a.alignVariant(ctx, trace, bwc)
}

// AlignVariants aligns every variant and returns the results keyed by
// eventlog.VariantKey. Failed variants are missing from the map and named
// in the returned error.
func (a *Aligner) AlignVariants(ctx context.Context, variants [][]string) (map[string]*align.Alignment, error) {
	results, err := a.alignAll(ctx, variants)
	out := make(map[string]*align.Alignment, len(variants))
	for i, v := range variants {
		if results[i] != nil {
			out[eventlog.VariantKey(v)] = results[i]
		}
	}
	return out, err
}

// AlignLog aligns every trace of l projected on the activity key. The
// result has one entry per trace in log order; entries of failed variants
// are nil and the returned error names them. Traces of the same variant
// share one *align.Alignment: treat entries as read-only, or Clone one
// before changing it.
func (a *Aligner) AlignLog(ctx context.Context, l *eventlog.Log) ([]*align.Alignment, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "conformance.AlignLog",
		oteltrace.WithAttributes(
			attribute.Int("traces", len(l.Traces)),
			attribute.String("activity_key", a.opts.ActivityKey),
		))
	defer span.End()

	start := time.Now()
	variants := eventlog.LogVariants(l, a.opts.ActivityKey)
	span.SetAttributes(attribute.Int("variants", len(variants)))

	sequences := make([][]string, len(variants))
	for i, v := range variants {
		sequences[i] = v.Activities
	}
	results, err := a.alignAll(ctx, sequences)

	out := make([]*align.Alignment, len(l.Traces))
	for i, v := range variants {
		for _, c := range v.Cases {
			out[c] = results[i]
		}
	}

	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	a.logger.Info("log aligned",
		"traces", len(l.Traces),
		"variants", len(variants),
		"failed", failedCount(results),
		"duration", time.Since(start))
	return out, err
}

// alignAll aligns variants on the pool. results[i] is nil when variant i
// failed.
func (a *Aligner) alignAll(ctx context.Context, variants [][]string) ([]*align.Alignment, error) {
	results := make([]*align.Alignment, len(variants))
	bwc, err := a.BestWorstCost()
	if err != nil {
		return results, err
	}

	report, finish := a.opts.progressFunc(len(variants))
	p := pool.New(a.opts.Cores)
	if report != nil {
		p.OnProgress(report)
	}

	errs := p.Run(ctx, len(variants), func(ctx context.Context, i int) error {
		al, err := a.alignVariant(ctx, variants[i], bwc)
		if err != nil {
			return err
		}
		results[i] = al
		return nil
	})
	finish()

	var merr errors.MultiError
	for i, err := range errs {
		if err == nil {
			continue
		}
		variantFailures.Inc()
		merr.Add(errors.Wrap(err, errors.CodeVariantFailed, "variant alignment failed").
			WithContext("variant", variants[i]))
	}
	return results, merr.Combined()
}

// alignVariant returns the alignment of one variant, searching at most once
// per variant and aligner.
func (a *Aligner) alignVariant(ctx context.Context, variant []string, bwc int) (*align.Alignment, error) {
	key := eventlog.VariantKey(variant)

	a.mu.Lock()
	if al, ok := a.variants[key]; ok {
		a.mu.Unlock()
		variantCacheHits.WithLabelValues("run").Inc()
		return al, nil
	}
	a.mu.Unlock()

	v, err, _ := a.variantFlight.Do(key, func() (interface{}, error) {
		a.mu.Lock()
		if al, ok := a.variants[key]; ok {
			a.mu.Unlock()
			return al, nil
		}
		a.mu.Unlock()

		al, err := a.computeVariant(ctx, variant, key, bwc)
		if err != nil {
			return nil, err
		}

		a.mu.Lock()
		a.variants[key] = al
		a.mu.Unlock()
		return al, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*align.Alignment), nil
}

func (a *Aligner) computeVariant(ctx context.Context, variant []string, key string, bwc int) (*align.Alignment, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "conformance.variant",
		oteltrace.WithAttributes(attribute.Int("length", len(variant))))
	defer span.End()

	searcher, err := a.searcherFor(variant)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	var storeKey string
	if a.opts.Store != nil {
		storeKey = cache.Key(searcher.Tree().String(), key)
		if al := a.load(ctx, searcher.Tree(), storeKey); al != nil {
			variantCacheHits.WithLabelValues("store").Inc()
			span.SetAttributes(attribute.Bool("cached", true))
			al.Fitness = Fitness(al.Cost, len(variant), bwc)
			return al, nil
		}
	}

	al, err := searcher.Align(variant)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	variantsAligned.Inc()
	al.Fitness = Fitness(al.Cost, len(variant), bwc)
	span.SetAttributes(
		attribute.Int("cost", al.Cost),
		attribute.Int("visited_states", al.VisitedStates))

	if a.opts.Store != nil {
		if err := a.opts.Store.Put(ctx, storeKey, al.ToRecord()); err != nil {
			a.logger.Warn("failed to store alignment", "error", err)
		}
	}
	return al, nil
}

// load reads a stored alignment. Store failures are logged and treated as
// misses.
func (a *Aligner) load(ctx context.Context, tree *ptree.Tree, key string) *align.Alignment {
	rec, ok, err := a.opts.Store.Get(ctx, key)
	if err != nil {
		a.logger.Warn("failed to read stored alignment", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	al, err := align.FromRecord(rec, tree)
	if err != nil {
		a.logger.Warn("discarding stored alignment", "error", err)
		return nil
	}
	return al
}

// searcherFor returns the searcher for variant: the full tree, or the tree
// reduced to the variant's activities. Reduced trees are shared by all
// variants over the same set of model labels.
func (a *Aligner) searcherFor(variant []string) (*align.Searcher, error) {
	if !a.opts.EnableReduction {
		return a.full, nil
	}

	bm := roaring.New()
	for _, act := range variant {
		if id, ok := a.labelIDs[act]; ok {
			bm.Add(id)
		}
	}
	raw, err := bm.ToBytes()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to encode activity set")
	}
	key := string(raw)

	a.mu.Lock()
	if s, ok := a.reduced[key]; ok {
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	v, err, _ := a.reductionFlight.Do(key, func() (interface{}, error) {
		a.mu.Lock()
		if s, ok := a.reduced[key]; ok {
			a.mu.Unlock()
			return s, nil
		}
		a.mu.Unlock()

		reducedTree, _ := ptree.Reduce(a.tree, ptree.ActivitySet(variant))
		s := align.NewSearcher(reducedTree, align.Options{MaxStates: a.opts.MaxStates, Logger: a.logger})
		treeReductions.Inc()

		a.mu.Lock()
		a.reduced[key] = s
		a.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*align.Searcher), nil
}

func failedCount(results []*align.Alignment) int {
	n := 0
	for _, r := range results {
		if r == nil {
			n++
		}
	}
	return n
}

// AlignTrace aligns one trace against tree.
func AlignTrace(ctx context.Context, tree *ptree.Tree, trace []string, opts Options) (*align.Alignment, error) {
	a, err := New(tree, opts)
	if err != nil {
		return nil, err
	}
	return a.AlignTrace(ctx, trace)
}

// AlignLog aligns every trace of l against tree. Entries are shared between
// traces of the same variant, as with Aligner.AlignLog.
func AlignLog(ctx context.Context, tree *ptree.Tree, l *eventlog.Log, opts Options) ([]*align.Alignment, error) {
	a, err := New(tree, opts)
	if err != nil {
		return nil, err
	}
	return a.AlignLog(ctx, l)
}

// AlignVariants aligns each variant against tree, keyed by
// eventlog.VariantKey.
func AlignVariants(ctx context.Context, tree *ptree.Tree, variants [][]string, opts Options) (map[string]*align.Alignment, error) {
	a, err := New(tree, opts)
	if err != nil {
		return nil, err
	}
	return a.AlignVariants(ctx, variants)
}
