package replay

import (
	"sort"

	"github.com/logflow/ptalign/pkg/ptree"
)

// Oracle computes minimal transition paths over one tree. It keeps no
// per-call state and is safe for concurrent use.
type Oracle struct {
	tree *ptree.Tree

	// minCost[id] is the number of labelled leaves a fresh execution of the
	// subtree rooted at id needs at least.
	minCost []int
}

// New builds an oracle for t.
func New(t *ptree.Tree) *Oracle {
	o := &Oracle{tree: t, minCost: MinCosts(t)}
	return o
}

// Tree returns the tree the oracle replays.
func (o *Oracle) Tree() *ptree.Tree {
	return o.tree
}

// MinCost returns the cheapest number of labelled leaves executing n from
// scratch takes.
func (o *Oracle) MinCost(n *ptree.Node) int {
	return o.minCost[n.ID]
}

// MinCosts computes, per node ID, the minimal number of labelled leaves a
// complete execution of the subtree needs. A loop runs its body once.
func MinCosts(t *ptree.Tree) []int {
	costs := make([]int, t.Size())
	// Children always carry larger IDs than their parent (pre-order), so a
	// reverse sweep sees every child before its parent.
	for id := t.Size() - 1; id >= 0; id-- {
		n := t.Node(id)
		switch n.Kind {
		case ptree.Leaf:
			costs[id] = 1
		case ptree.Silent:
			costs[id] = 0
		case ptree.Sequence, ptree.Parallel:
			sum := 0
			for _, c := range n.Children {
				sum += costs[c.ID]
			}
			costs[id] = sum
		case ptree.Xor, ptree.Or:
			best := costs[n.Children[0].ID]
			for _, c := range n.Children[1:] {
				if costs[c.ID] < best {
					best = costs[c.ID]
				}
			}
			costs[id] = best
		case ptree.Loop:
			costs[id] = costs[n.Children[0].ID]
		}
	}
	return costs
}

// Enabling is one way of bringing a leaf to Enabled.
type Enabling struct {
	Path  Path
	State State
}

// PathsToEnable returns every distinct way of bringing leaf to Enabled from
// state. Paths differ where an enclosing loop may be cycled first: a node
// that already ran can be re-entered through any open loop around it, and a
// leaf that could join the running pass may instead start the next one. For
// each
// resulting state the path with the fewest labelled leaves is kept; the
// result is ordered by that count. An empty result means the leaf cannot be
// enabled, e.g. an exclusive choice already committed to a sibling with no
// loop around it. The input state is not modified.
func (o *Oracle) PathsToEnable(leaf *ptree.Node, state State) []Enabling {
	var out []Enabling
	index := make(map[string]int)

	var choices []int
	for {
		w := o.walk(state)
		w.choices = choices
		if w.restart(leaf) && w.enable(leaf) {
			key := w.st.Key()
			if i, ok := index[key]; !ok {
				index[key] = len(out)
				out = append(out, Enabling{Path: w.path, State: w.st})
			} else if w.path.VisibleCount() < out[i].Path.VisibleCount() {
				out[i] = Enabling{Path: w.path, State: w.st}
			}
		}
		if choices = w.nextChoices(); choices == nil {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Path.VisibleCount() < out[j].Path.VisibleCount()
	})
	return out
}

// ShortestPathToEnable returns the cheapest of PathsToEnable. ok is false
// when the leaf cannot be enabled.
func (o *Oracle) ShortestPathToEnable(leaf *ptree.Node, state State) (Path, State, bool) {
	all := o.PathsToEnable(leaf, state)
	if len(all) == 0 {
		return nil, nil, false
	}
	return all[0].Path, all[0].State, true
}

// ShortestPathToClose returns the transitions that bring node to Closed from
// state, executing as few labelled leaves as possible. The input state is
// not modified.
func (o *Oracle) ShortestPathToClose(node *ptree.Node, state State) (Path, State, bool) {
	w := o.walk(state)
	if !w.close(node) {
		return nil, nil, false
	}
	return w.path, w.st, true
}

func (o *Oracle) walk(state State) *walker {
	return &walker{o: o, st: state.Clone()}
}

// walker applies transitions to a private copy of a state and records them.
// Where several loops could be cycled it follows choices, recording the
// number of options at every choice point so the caller can enumerate the
// remaining combinations.
type walker struct {
	o    *Oracle
	st   State
	path Path

	choices []int
	arity   []int
}

// choose returns the option to take at the next choice point out of n.
func (w *walker) choose(n int) int {
	pos := len(w.arity)
	w.arity = append(w.arity, n)
	if pos < len(w.choices) {
		return w.choices[pos]
	}
	return 0
}

// nextChoices returns the choice sequence following the one this walker
// took, or nil when all combinations have been tried.
func (w *walker) nextChoices() []int {
	taken := make([]int, len(w.arity))
	copy(taken, w.choices)
	for i := len(taken) - 1; i >= 0; i-- {
		if taken[i]+1 < w.arity[i] {
			next := taken[:i+1]
			next[i]++
			return next
		}
	}
	return nil
}

func (w *walker) set(n *ptree.Node, to NodeState) {
	w.st[n.ID] = to
	w.path = append(w.path, Transition{Node: n, To: to})
}

// reset moves every non-future node of the subtree back to Future.
func (w *walker) reset(n *ptree.Node) {
	if w.st[n.ID] == Future {
		return
	}
	w.set(n, Future)
	for _, c := range n.Children {
		w.reset(c)
	}
}

func (w *walker) enable(n *ptree.Node) bool {
	switch w.st[n.ID] {
	case Enabled:
		return true
	case Open:
		return false
	case Closed:
		if !w.refresh(n) {
			return false
		}
	}

	p := n.Parent
	if p == nil {
		w.set(n, Enabled)
		return true
	}
	if !w.open(p) {
		return false
	}
	if committed(w.st, p, n) {
		// The running pass through p ruled n out; start a new one.
		if !w.refresh(p) || !w.open(p) {
			return false
		}
	}
	if !w.admit(p, n) {
		return false
	}
	w.set(n, Enabled)
	return true
}

// committed reports whether the open node p already took a course that
// excludes its future child n.
func committed(st State, p, n *ptree.Node) bool {
	switch p.Kind {
	case ptree.Sequence:
		for _, later := range p.Children[childIndex(p, n)+1:] {
			if st[later.ID] != Future {
				return true
			}
		}
	case ptree.Xor:
		for _, sib := range p.Children {
			if sib != n && st[sib.ID] != Future {
				return true
			}
		}
	}
	return false
}

func (w *walker) open(n *ptree.Node) bool {
	switch w.st[n.ID] {
	case Open:
		return true
	case Enabled:
	default:
		if !w.enable(n) {
			return false
		}
	}
	w.set(n, Open)
	return true
}

// admit applies the operator rule of the open node p for enabling its future
// child n.
func (w *walker) admit(p, n *ptree.Node) bool {
	switch p.Kind {
	case ptree.Sequence:
		idx := childIndex(p, n)
		for _, later := range p.Children[idx+1:] {
			if w.st[later.ID] != Future {
				return false
			}
		}
		for _, earlier := range p.Children[:idx] {
			if !w.close(earlier) {
				return false
			}
		}
	case ptree.Xor:
		for _, sib := range p.Children {
			if sib != n && w.st[sib.ID] != Future {
				return false
			}
		}
	case ptree.Parallel, ptree.Or:
	case ptree.Loop:
		do, redo := p.Children[0], p.Children[1]
		if n == do {
			switch w.st[redo.ID] {
			case Enabled, Open:
				if !w.close(redo) {
					return false
				}
			case Closed:
				w.reset(redo)
			}
		} else if w.st[do.ID] != Closed {
			if !w.close(do) {
				return false
			}
		}
	default:
		return false
	}
	return true
}

func (w *walker) close(n *ptree.Node) bool {
	switch w.st[n.ID] {
	case Closed:
		return true
	case Future:
		if !w.enable(n) {
			return false
		}
		w.set(n, Open)
	case Enabled:
		w.set(n, Open)
	}

	if !n.IsLeaf() {
		if !w.closeChildren(n) {
			return false
		}
	}
	w.set(n, Closed)

	// Finishing a redo part rewinds the loop body for the next iteration.
	if p := n.Parent; p != nil && p.Kind == ptree.Loop && p.Children[1] == n {
		w.reset(p.Children[0])
	}
	return true
}

func (w *walker) closeChildren(n *ptree.Node) bool {
	switch n.Kind {
	case ptree.Sequence, ptree.Parallel:
		for _, c := range n.Children {
			if !w.close(c) {
				return false
			}
		}
	case ptree.Xor, ptree.Or:
		started := false
		for _, c := range n.Children {
			if w.st[c.ID] != Future {
				started = true
				if !w.close(c) {
					return false
				}
			}
		}
		if !started {
			return w.close(w.cheapest(n))
		}
	case ptree.Loop:
		do, redo := n.Children[0], n.Children[1]
		if s := w.st[redo.ID]; s == Enabled || s == Open {
			if !w.close(redo) {
				return false
			}
		}
		if w.st[do.ID] != Closed {
			return w.close(do)
		}
	}
	return true
}

// refresh brings a node that already left Future back to Future, together
// with its subtree, by cycling an open loop that encloses it. Every open
// enclosing loop is a choice point. Fails when there is none.
func (w *walker) refresh(n *ptree.Node) bool {
	if w.st[n.ID] == Future {
		return true
	}

	var loops, parts []*ptree.Node
	part := n
	for l := n.Parent; l != nil; part, l = l, l.Parent {
		if l.Kind == ptree.Loop && w.st[l.ID] == Open {
			loops = append(loops, l)
			parts = append(parts, part)
		}
	}
	switch len(loops) {
	case 0:
		return false
	case 1:
		return w.cycle(loops[0], parts[0])
	}
	i := w.choose(len(loops))
	return w.cycle(loops[i], parts[i])
}

// restart optionally ends the running pass a future leaf would join. The
// leaf attaches to its nearest started ancestor; when an open loop encloses
// that ancestor, one option cycles the loop before the leaf is enabled.
func (w *walker) restart(leaf *ptree.Node) bool {
	if w.st[leaf.ID] != Future {
		return true
	}
	at := leaf.Parent
	for at != nil && w.st[at.ID] == Future {
		at = at.Parent
	}
	if at == nil || w.st[at.ID] == Closed || !w.insideOpenLoop(at) {
		return true
	}
	if w.choose(2) == 0 {
		return true
	}
	return w.refresh(at)
}

func (w *walker) insideOpenLoop(n *ptree.Node) bool {
	for l := n.Parent; l != nil; l = l.Parent {
		if l.Kind == ptree.Loop && w.st[l.ID] == Open {
			return true
		}
	}
	return false
}

// cycle finishes the running pass through part of the open loop l and
// leaves part in Future, ready for the next pass.
func (w *walker) cycle(l, part *ptree.Node) bool {
	do, redo := l.Children[0], l.Children[1]
	if part == do {
		// Closing redo rewinds do.
		return w.close(do) && w.close(redo)
	}
	if !w.close(redo) || !w.close(do) {
		return false
	}
	w.reset(redo)
	return true
}

func (w *walker) cheapest(n *ptree.Node) *ptree.Node {
	best := n.Children[0]
	for _, c := range n.Children[1:] {
		if w.o.minCost[c.ID] < w.o.minCost[best.ID] {
			best = c
		}
	}
	return best
}

func childIndex(p, n *ptree.Node) int {
	for i, c := range p.Children {
		if c == n {
			return i
		}
	}
	return -1
}
