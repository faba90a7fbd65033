// Package replay implements the replay semantics of process trees: per-node
// lifecycle states, global state snapshots, and the minimal transition paths
// that enable a leaf or close a node.
package replay

import (
	"strconv"
	"strings"

	"github.com/logflow/ptalign/pkg/ptree"
)

// NodeState is the lifecycle state of a single tree node.
type NodeState uint8

const (
	Future NodeState = iota
	Enabled
	Open
	Closed
)

// String returns the state name.
func (s NodeState) String() string {
	switch s {
	case Future:
		return "future"
	case Enabled:
		return "enabled"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is a global state snapshot: one NodeState per node ID. A State is
// a value; the oracle never mutates the snapshot it is given.
type State []NodeState

// Initial returns the initial state of t: every node, the root included, in
// the future. The first path out of it enables the root, so a choice at the
// root is taken from rest like a choice anywhere else.
func Initial(t *ptree.Tree) State {
	return make(State, t.Size())
}

// Of returns the state of n.
func (s State) Of(n *ptree.Node) NodeState {
	return s[n.ID]
}

// Clone returns an independent copy.
func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// Equal reports whether two snapshots assign the same state to every node.
func (s State) Equal(o State) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Key returns a compact string usable as a map key.
func (s State) Key() string {
	b := make([]byte, len(s))
	for i, v := range s {
		b[i] = byte('0' + v)
	}
	return string(b)
}

// IsFinal reports whether the whole tree has been closed.
func (s State) IsFinal(t *ptree.Tree) bool {
	return s[t.Root.ID] == Closed
}

// String renders the non-future nodes, for debugging.
func (s State) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	for id, v := range s {
		if v == Future {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(strconv.Itoa(id))
		sb.WriteByte(':')
		sb.WriteString(v.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Transition records one node moving to a new state.
type Transition struct {
	Node *ptree.Node
	To   NodeState
}

// Path is an ordered sequence of transitions.
type Path []Transition

// Leaves returns the leaves passed through Open, in order. Silent leaves are
// included only when includeSilent is set.
func (p Path) Leaves(includeSilent bool) []*ptree.Node {
	var leaves []*ptree.Node
	for _, tr := range p {
		if tr.To != Open {
			continue
		}
		switch tr.Node.Kind {
		case ptree.Leaf:
			leaves = append(leaves, tr.Node)
		case ptree.Silent:
			if includeSilent {
				leaves = append(leaves, tr.Node)
			}
		}
	}
	return leaves
}

// VisibleCount returns the number of labelled leaves passed through Open.
func (p Path) VisibleCount() int {
	n := 0
	for _, tr := range p {
		if tr.To == Open && tr.Node.Kind == ptree.Leaf {
			n++
		}
	}
	return n
}
