// Package ptree implements immutable process trees: operator nodes
// (sequence, exclusive choice, parallel, loop, inclusive choice) over
// labelled or silent leaves.
//
// Node identity is positional. Every node of a built Tree carries an ID equal
// to its pre-order index, and replay states are addressed by that ID, so two
// leaves sharing a label are still distinct model elements.
package ptree

import (
	"sort"
	"strings"

	"github.com/logflow/ptalign/pkg/errors"
)

// Kind is the closed set of node kinds.
type Kind uint8

const (
	Sequence Kind = iota
	Xor
	Parallel
	Loop
	Or
	Leaf
	Silent
)

// String returns the operator symbol used by the textual notation.
func (k Kind) String() string {
	switch k {
	case Sequence:
		return "->"
	case Xor:
		return "X"
	case Parallel:
		return "+"
	case Loop:
		return "*"
	case Or:
		return "O"
	case Leaf:
		return "leaf"
	case Silent:
		return "tau"
	default:
		return "unknown"
	}
}

// IsOperator reports whether nodes of this kind have children.
func (k Kind) IsOperator() bool {
	return k <= Or
}

// Node is a process tree node. Fields must not be modified after the node
// has been passed to NewTree.
type Node struct {
	Kind     Kind
	Label    string
	Children []*Node
	Parent   *Node
	ID       int
}

// NewLeaf creates a visible leaf.
func NewLeaf(label string) *Node {
	return &Node{Kind: Leaf, Label: label, ID: -1}
}

// NewSilent creates a silent (tau) leaf.
func NewSilent() *Node {
	return &Node{Kind: Silent, ID: -1}
}

// NewOperator creates an operator node over children.
func NewOperator(kind Kind, children ...*Node) *Node {
	return &Node{Kind: kind, Children: children, ID: -1}
}

// Seq, Choice, Par, LoopOf and OrOf are shorthands for NewOperator.
func Seq(children ...*Node) *Node    { return NewOperator(Sequence, children...) }
func Choice(children ...*Node) *Node { return NewOperator(Xor, children...) }
func Par(children ...*Node) *Node    { return NewOperator(Parallel, children...) }
func LoopOf(do, redo *Node) *Node    { return NewOperator(Loop, do, redo) }
func OrOf(children ...*Node) *Node   { return NewOperator(Or, children...) }

// IsLeaf reports whether n is a visible or silent leaf.
func (n *Node) IsLeaf() bool {
	return n.Kind == Leaf || n.Kind == Silent
}

// IsVisible reports whether n is a labelled leaf.
func (n *Node) IsVisible() bool {
	return n.Kind == Leaf
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// String renders the subtree in textual notation.
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	switch n.Kind {
	case Leaf:
		sb.WriteByte('\'')
		sb.WriteString(labelEscaper.Replace(n.Label))
		sb.WriteByte('\'')
	case Silent:
		sb.WriteString("tau")
	default:
		sb.WriteString(n.Kind.String())
		sb.WriteString("( ")
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			c.write(sb)
		}
		sb.WriteString(" )")
	}
}

// Tree is a validated process tree with an ID index over its nodes.
type Tree struct {
	Root  *Node
	Nodes []*Node

	leaves []*Node
	byName map[string][]*Node
	str    string
}

// NewTree validates root and assigns IDs and parent links. Nodes may not be
// shared between trees; NewTree copies the structure so the caller's nodes
// are left untouched.
func NewTree(root *Node) (*Tree, error) {
	if root == nil {
		return nil, errors.InvalidTree("empty tree", "<nil>")
	}
	if err := Validate(root); err != nil {
		return nil, err
	}

	t := &Tree{byName: make(map[string][]*Node)}
	t.Root = t.copyNode(root, nil)
	t.str = t.Root.String()
	return t, nil
}

// MustTree is NewTree for statically known trees; it panics on error.
func MustTree(root *Node) *Tree {
	t, err := NewTree(root)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Tree) copyNode(n *Node, parent *Node) *Node {
	c := &Node{
		Kind:   n.Kind,
		Label:  n.Label,
		Parent: parent,
		ID:     len(t.Nodes),
	}
	t.Nodes = append(t.Nodes, c)
	if c.IsLeaf() {
		t.leaves = append(t.leaves, c)
		if c.Kind == Leaf {
			t.byName[c.Label] = append(t.byName[c.Label], c)
		}
		return c
	}
	c.Children = make([]*Node, len(n.Children))
	for i, child := range n.Children {
		c.Children[i] = t.copyNode(child, c)
	}
	return c
}

// Validate checks the structural rules: operators need children (a loop
// exactly two), visible leaves need a label.
func Validate(root *Node) error {
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			return errors.InvalidTree("nil child", "<nil>")
		}

		switch n.Kind {
		case Leaf:
			if n.Label == "" {
				return errors.InvalidTree("leaf without label that is not silent", n.String())
			}
		case Silent:
		case Loop:
			if len(n.Children) != 2 {
				return errors.InvalidTree("loop requires exactly two children (do, redo)", n.Kind.String()).
					WithContext("children", len(n.Children))
			}
		case Sequence, Xor, Parallel, Or:
			if len(n.Children) == 0 {
				return errors.InvalidTree("operator without children", n.Kind.String())
			}
		default:
			return errors.InvalidTree("unknown node kind", n.Kind.String())
		}
		stack = append(stack, n.Children...)
	}
	return nil
}

// Size returns the number of nodes.
func (t *Tree) Size() int {
	return len(t.Nodes)
}

// Node returns the node with the given ID.
func (t *Tree) Node(id int) *Node {
	return t.Nodes[id]
}

// Leaves returns all leaves (visible and silent) in pre-order.
func (t *Tree) Leaves() []*Node {
	return t.leaves
}

// LeavesLabelled returns the visible leaves carrying label, in pre-order.
func (t *Tree) LeavesLabelled(label string) []*Node {
	return t.byName[label]
}

// Labels returns the sorted distinct labels of the visible leaves.
func (t *Tree) Labels() []string {
	labels := make([]string, 0, len(t.byName))
	for l := range t.byName {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// String renders the tree in textual notation. The result is stable and is
// used as a cache key.
func (t *Tree) String() string {
	return t.str
}

// IsAncestor reports whether a is a (non-strict) ancestor of n.
func IsAncestor(a, n *Node) bool {
	for ; n != nil; n = n.Parent {
		if n == a {
			return true
		}
	}
	return false
}
