package align

import (
	"container/heap"
	"strconv"

	"github.com/logflow/ptalign/pkg/ptree"
	"github.com/logflow/ptalign/pkg/replay"
)

// step records how a search state was reached from its parent.
type step uint8

const (
	stepStart step = iota
	stepSync
	stepLog
	stepFinish
)

// searchState is one node of the search graph. States live in an arena and
// refer to each other by index; parent is -1 for the initial state.
type searchState struct {
	cost  int
	index int
	state replay.State

	// leaves passed through Open on the way here. For a synchronous step the
	// synchronized leaf is the last element.
	leaves []*ptree.Node
	step   step

	parent   int
	children map[int]struct{}

	// heapPos is the position in the frontier, -1 once popped.
	heapPos int
}

// graph is the arena plus the equivalence index and the frontier.
type graph struct {
	states   []searchState
	index    map[string]int
	frontier frontier

	relaxations int
}

func newGraph() *graph {
	g := &graph{index: make(map[string]int)}
	g.frontier.g = g
	return g
}

// equivalenceKey identifies states with the same trace position and the same
// model state.
func equivalenceKey(index int, state replay.State) string {
	return strconv.Itoa(index) + "|" + state.Key()
}

// add inserts cand, relaxes an equivalent state, or drops cand, following
// the deduplication rule: a cheaper candidate rewrites the existing state in
// place and shifts the cost of everything reached through it; an equal or
// more expensive candidate is discarded.
func (g *graph) add(cand searchState) {
	key := equivalenceKey(cand.index, cand.state)
	if id, ok := g.index[key]; ok {
		if cand.cost < g.states[id].cost {
			g.relax(id, cand)
		}
		return
	}

	id := len(g.states)
	cand.children = nil
	cand.heapPos = -1
	g.states = append(g.states, cand)
	g.index[key] = id
	g.link(cand.parent, id)
	heap.Push(&g.frontier, id)
}

func (g *graph) relax(id int, cand searchState) {
	g.relaxations++
	s := &g.states[id]
	delta := s.cost - cand.cost

	if s.parent >= 0 {
		delete(g.states[s.parent].children, id)
	}
	s.cost = cand.cost
	s.parent = cand.parent
	s.leaves = cand.leaves
	s.step = cand.step
	g.link(cand.parent, id)
	if s.heapPos >= 0 {
		heap.Fix(&g.frontier, s.heapPos)
	}

	// Descendants keep their edges, so their costs shift by the same delta.
	stack := g.childIDs(id)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cs := &g.states[c]
		cs.cost -= delta
		if cs.heapPos >= 0 {
			heap.Fix(&g.frontier, cs.heapPos)
		}
		stack = append(stack, g.childIDs(c)...)
	}
}

func (g *graph) link(parent, child int) {
	if parent < 0 {
		return
	}
	p := &g.states[parent]
	if p.children == nil {
		p.children = make(map[int]struct{})
	}
	p.children[child] = struct{}{}
}

func (g *graph) childIDs(id int) []int {
	children := g.states[id].children
	ids := make([]int, 0, len(children))
	for c := range children {
		ids = append(ids, c)
	}
	return ids
}

// frontier is a binary heap of arena indices that keeps each state's heap
// position current, so relaxed states can be fixed in place.
type frontier struct {
	g   *graph
	ids []int
}

func (f *frontier) Len() int { return len(f.ids) }

// Less orders by ascending cost, then by descending trace index so states
// that explain more of the trace come first, then by creation order.
func (f *frontier) Less(i, j int) bool {
	a, b := &f.g.states[f.ids[i]], &f.g.states[f.ids[j]]
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	if a.index != b.index {
		return a.index > b.index
	}
	return f.ids[i] < f.ids[j]
}

func (f *frontier) Swap(i, j int) {
	f.ids[i], f.ids[j] = f.ids[j], f.ids[i]
	f.g.states[f.ids[i]].heapPos = i
	f.g.states[f.ids[j]].heapPos = j
}

func (f *frontier) Push(x any) {
	id := x.(int)
	f.g.states[id].heapPos = len(f.ids)
	f.ids = append(f.ids, id)
}

func (f *frontier) Pop() any {
	n := len(f.ids) - 1
	id := f.ids[n]
	f.ids = f.ids[:n]
	f.g.states[id].heapPos = -1
	return id
}
