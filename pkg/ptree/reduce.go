package ptree

// Reduce returns a copy of t in which every subtree that can complete without
// executing a labelled leaf, and whose labels are all absent from activities,
// is replaced by a silent leaf. Such subtrees can never take part in a
// synchronous move for a trace over activities, and skipping them is free, so
// alignment costs are preserved. The second result is the leaf set of the
// reduced tree.
func Reduce(t *Tree, activities map[string]struct{}) (*Tree, []*Node) {
	r := &reducer{activities: activities}
	root := r.reduce(t.Root)
	reduced := MustTree(root)
	return reduced, reduced.Leaves()
}

type reducer struct {
	activities map[string]struct{}
}

func (r *reducer) reduce(n *Node) *Node {
	if n.Kind != Leaf && Skippable(n) && !r.touches(n) {
		return NewSilent()
	}
	switch n.Kind {
	case Leaf:
		return NewLeaf(n.Label)
	case Silent:
		return NewSilent()
	}
	children := make([]*Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = r.reduce(c)
	}
	return NewOperator(n.Kind, children...)
}

// touches reports whether any labelled leaf under n is in the activity set.
func (r *reducer) touches(n *Node) bool {
	if n.Kind == Leaf {
		_, ok := r.activities[n.Label]
		return ok
	}
	for _, c := range n.Children {
		if r.touches(c) {
			return true
		}
	}
	return false
}

// Skippable reports whether the subtree rooted at n has a complete execution
// that runs no labelled leaf.
func Skippable(n *Node) bool {
	switch n.Kind {
	case Silent:
		return true
	case Leaf:
		return false
	case Sequence, Parallel:
		for _, c := range n.Children {
			if !Skippable(c) {
				return false
			}
		}
		return true
	case Xor, Or:
		for _, c := range n.Children {
			if Skippable(c) {
				return true
			}
		}
		return false
	case Loop:
		return Skippable(n.Children[0])
	}
	return false
}

// ActivitySet collects the distinct labels of traces.
func ActivitySet(traces ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tr := range traces {
		for _, a := range tr {
			set[a] = struct{}{}
		}
	}
	return set
}
