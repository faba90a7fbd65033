package align

import (
	"container/heap"
	"log/slog"
	"time"

	"github.com/logflow/ptalign/pkg/errors"
	"github.com/logflow/ptalign/pkg/ptree"
	"github.com/logflow/ptalign/pkg/replay"
)

// Options bounds a single search.
type Options struct {
	// MaxStates caps the number of states the search graph may hold.
	// 0 means unlimited.
	MaxStates int

	Logger *slog.Logger
}

// Searcher aligns traces against one tree. A Searcher holds no per-search
// state and may be shared between goroutines; every call to Align builds its
// own search graph.
type Searcher struct {
	tree   *ptree.Tree
	oracle *replay.Oracle
	opts   Options
	logger *slog.Logger
}

// NewSearcher prepares a searcher for tree.
func NewSearcher(tree *ptree.Tree, opts Options) *Searcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		tree:   tree,
		oracle: replay.New(tree),
		opts:   opts,
		logger: logger,
	}
}

// Tree returns the tree the searcher aligns against.
func (s *Searcher) Tree() *ptree.Tree {
	return s.tree
}

// Align is shorthand for NewSearcher(tree, Options{}).Align(trace).
func Align(tree *ptree.Tree, trace []string) (*Alignment, error) {
	return NewSearcher(tree, Options{}).Align(trace)
}

// Align returns an optimal alignment of trace. Fitness is left at zero; it
// depends on the unreduced model and is filled in by the caller.
func (s *Searcher) Align(trace []string) (*Alignment, error) {
	start := time.Now()
	run := &search{
		Searcher: s,
		trace:    trace,
		g:        newGraph(),
	}

	a, err := run.loop()
	searchDuration.Observe(time.Since(start).Seconds())
	statesVisited.Add(float64(run.visited))
	statesQueued.Add(float64(len(run.g.states)))
	relaxations.Add(float64(run.g.relaxations))
	if err != nil {
		searchFailures.Inc()
		return nil, err
	}

	s.logger.Debug("alignment found",
		"trace_length", len(trace),
		"cost", a.Cost,
		"visited", a.VisitedStates,
		"queued", a.QueuedStates,
		"relaxations", a.Relaxations,
		"duration", time.Since(start))
	return a, nil
}

// search is the state of one Align call.
type search struct {
	*Searcher
	trace   []string
	g       *graph
	visited int
}

func (r *search) loop() (*Alignment, error) {
	r.g.add(searchState{
		state:  replay.Initial(r.tree),
		parent: -1,
		step:   stepStart,
	})
	return r.drain()
}

// drain pops states until a final one at the end of the trace is reached.
// Running out of states is an error, never an empty alignment.
func (r *search) drain() (*Alignment, error) {
	n := len(r.trace)
	for r.g.frontier.Len() > 0 {
		if r.opts.MaxStates > 0 && len(r.g.states) > r.opts.MaxStates {
			return nil, errors.Newf(errors.CodeSearchLimit,
				"search graph exceeded %d states", r.opts.MaxStates).
				WithContext("trace_length", n).
				WithContext("tree", r.tree.String())
		}

		id := heap.Pop(&r.g.frontier).(int)
		r.visited++
		cur := r.g.states[id]

		if cur.index == n {
			if cur.state.IsFinal(r.tree) {
				return r.reconstruct(id), nil
			}
			if err := r.expandFinish(id); err != nil {
				return nil, err
			}
			continue
		}
		r.expandSymbol(id)
	}

	return nil, errors.New(errors.CodeFrontierExhausted, "frontier exhausted before reaching a final state").
		WithContext("trace_length", n).
		WithContext("tree", r.tree.String())
}

// expandSymbol generates the successors that consume trace[cur.index]: one
// synchronous move per feasible leaf carrying the symbol and way of enabling
// it, and possibly a log move.
func (r *search) expandSymbol(id int) {
	cur := r.g.states[id]
	symbol := r.trace[cur.index]
	candidates := r.tree.LeavesLabelled(symbol)

	needLog := len(candidates) == 0
	for _, leaf := range candidates {
		enablings := r.oracle.PathsToEnable(leaf, cur.state)
		if len(enablings) == 0 {
			needLog = true
			continue
		}
		for _, e := range enablings {
			if !needLog {
				needLog = needsLogMove(r.tree, cur.state, e.State, e.Path)
			}

			closePath, closed, ok := r.oracle.ShortestPathToClose(leaf, e.State)
			if !ok {
				needLog = true
				continue
			}

			leaves := e.Path.Leaves(true)
			leaves = append(leaves, closePath.Leaves(true)...)
			r.g.add(searchState{
				cost:   cur.cost + e.Path.VisibleCount(),
				index:  cur.index + 1,
				state:  closed,
				leaves: leaves,
				step:   stepSync,
				parent: id,
			})
		}
	}

	if needLog {
		// The model does not move, so the snapshot is shared; snapshots are
		// never written after creation.
		r.g.add(searchState{
			cost:   cur.cost + 1,
			index:  cur.index + 1,
			state:  cur.state,
			step:   stepLog,
			parent: id,
		})
	}
}

// expandFinish closes the whole tree once the trace is consumed.
func (r *search) expandFinish(id int) error {
	cur := r.g.states[id]
	path, closed, ok := r.oracle.ShortestPathToClose(r.tree.Root, cur.state)
	if !ok {
		return errors.New(errors.CodeFrontierExhausted, "model cannot be completed from reached state").
			WithContext("state", cur.state.String())
	}
	r.g.add(searchState{
		cost:   cur.cost + path.VisibleCount(),
		index:  cur.index,
		state:  closed,
		leaves: path.Leaves(true),
		step:   stepFinish,
		parent: id,
	})
	return nil
}

// needsLogMove reports whether enabling a leaf had side effects that a log
// move must be able to avoid: a leaf was executed on the way, or a choice
// (an exclusive choice, or a loop deciding between its parts) was taken
// from a resting state.
func needsLogMove(t *ptree.Tree, before, after replay.State, enablePath replay.Path) bool {
	if len(enablePath.Leaves(true)) > 0 {
		return true
	}
	for _, n := range t.Nodes {
		switch n.Kind {
		case ptree.Xor:
			if changedFromRest(before, after, n) {
				return true
			}
		case ptree.Loop:
			for _, c := range n.Children {
				if changedFromRest(before, after, c) {
					return true
				}
			}
		}
	}
	return false
}

func changedFromRest(before, after replay.State, n *ptree.Node) bool {
	old := before.Of(n)
	return (old == replay.Future || old == replay.Closed) && old != after.Of(n)
}
