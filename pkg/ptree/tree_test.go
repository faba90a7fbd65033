package ptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/ptalign/pkg/errors"
)

func TestNewTreeAssignsPreOrderIDs(t *testing.T) {
	tree, err := NewTree(Seq(NewLeaf("A"), Choice(NewLeaf("B"), NewSilent()), NewLeaf("C")))
	require.NoError(t, err)

	require.Equal(t, 6, tree.Size())
	for id, n := range tree.Nodes {
		assert.Equal(t, id, n.ID)
	}
	assert.Nil(t, tree.Root.Parent)
	assert.Equal(t, Xor, tree.Node(2).Kind)
	assert.Same(t, tree.Node(2), tree.Node(3).Parent)
	assert.Same(t, tree.Node(2), tree.Node(4).Parent)
	assert.Equal(t, "C", tree.Node(5).Label)
}

func TestNewTreeCopiesNodes(t *testing.T) {
	a := NewLeaf("A")
	root := Seq(a, NewLeaf("B"))
	tree := MustTree(root)

	assert.Equal(t, -1, a.ID)
	assert.Nil(t, a.Parent)
	assert.NotSame(t, a, tree.Node(1))
}

func TestLeaves(t *testing.T) {
	tree := MustParse("->( 'A', X( 'B', tau ), +( 'A', 'C' ) )")

	leaves := tree.Leaves()
	require.Len(t, leaves, 5)
	assert.Equal(t, Silent, leaves[2].Kind)

	as := tree.LeavesLabelled("A")
	require.Len(t, as, 2)
	assert.NotEqual(t, as[0].ID, as[1].ID)
	assert.Empty(t, tree.LeavesLabelled("Z"))

	assert.Equal(t, []string{"A", "B", "C"}, tree.Labels())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		root *Node
	}{
		{"empty sequence", Seq()},
		{"empty xor", Choice()},
		{"loop with nil redo", LoopOf(NewLeaf("A"), nil)},
		{"loop with three children", NewOperator(Loop, NewLeaf("A"), NewLeaf("B"), NewLeaf("C"))},
		{"unlabelled leaf", Seq(NewLeaf(""))},
		{"nested empty parallel", Seq(NewLeaf("A"), Par())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTree(tt.root)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeInvalidTree), "got %v", err)
		})
	}

	_, err := NewTree(nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidTree))
}

func TestParseRoundTrip(t *testing.T) {
	inputs := []string{
		"'A'",
		"tau",
		"->( 'A', 'B', 'C' )",
		"X( 'A', tau )",
		"*( 'A', 'B' )",
		"O( 'A', +( 'B', 'C' ) )",
		"->( 'A', X( 'B', tau ), *( 'C', 'D' ), +( 'E', 'F' ), O( 'G', 'H' ) )",
		`->( 'it\'s', 'back\\slash' )`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			tree, err := Parse(in)
			require.NoError(t, err)
			assert.Equal(t, in, tree.String())
		})
	}
}

func TestParseTolerantWhitespaceAndQuotes(t *testing.T) {
	tree, err := Parse("->(\"A\",X('B',tau))")
	require.NoError(t, err)
	assert.Equal(t, "->( 'A', X( 'B', tau ) )", tree.String())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in   string
		code errors.Code
	}{
		{"", errors.CodeParseFailed},
		{"->( 'A'", errors.CodeParseFailed},
		{"->( 'A' 'B' )", errors.CodeParseFailed},
		{"'A", errors.CodeParseFailed},
		{"'A' 'B'", errors.CodeParseFailed},
		{"Q( 'A' )", errors.CodeParseFailed},
		{"->( )", errors.CodeInvalidTree},
		{"*( 'A' )", errors.CodeInvalidTree},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestIsAncestor(t *testing.T) {
	tree := MustParse("->( X( 'A', 'B' ), 'C' )")
	xor, a, c := tree.Node(1), tree.Node(2), tree.Node(4)

	assert.True(t, IsAncestor(tree.Root, a))
	assert.True(t, IsAncestor(xor, a))
	assert.True(t, IsAncestor(a, a))
	assert.False(t, IsAncestor(xor, c))
}
