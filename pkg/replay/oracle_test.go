package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/ptalign/pkg/ptree"
)

func labels(nodes []*ptree.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		if n.Kind == ptree.Silent {
			out[i] = "tau"
			continue
		}
		out[i] = n.Label
	}
	return out
}

// execute enables and closes the first leaf labelled label, failing the test
// when that is not possible.
func execute(t *testing.T, o *Oracle, s State, label string) State {
	t.Helper()
	leaf := o.Tree().LeavesLabelled(label)[0]
	_, enabled, ok := o.ShortestPathToEnable(leaf, s)
	require.True(t, ok, "enable %s from %s", label, s)
	_, closed, ok := o.ShortestPathToClose(leaf, enabled)
	require.True(t, ok, "close %s", label)
	return closed
}

func TestInitialState(t *testing.T) {
	tree := ptree.MustParse("->( 'A', 'B' )")
	s := Initial(tree)

	assert.Equal(t, Future, s.Of(tree.Root))
	assert.Equal(t, Future, s.Of(tree.Node(1)))
	assert.False(t, s.IsFinal(tree))
	assert.Equal(t, "000", s.Key())
}

func TestMinCosts(t *testing.T) {
	tree := ptree.MustParse("->( 'A', X( 'B', tau ), +( 'C', 'D' ), *( 'E', 'F' ), O( 'G', ->( 'H', 'I' ) ) )")
	costs := MinCosts(tree)

	assert.Equal(t, 5, costs[tree.Root.ID])
	o := New(tree)
	for _, n := range tree.Root.Children {
		switch n.Kind {
		case ptree.Leaf:
			assert.Equal(t, 1, o.MinCost(n))
		case ptree.Xor:
			assert.Equal(t, 0, o.MinCost(n))
		case ptree.Parallel:
			assert.Equal(t, 2, o.MinCost(n))
		case ptree.Loop:
			assert.Equal(t, 1, o.MinCost(n))
		case ptree.Or:
			assert.Equal(t, 1, o.MinCost(n))
		}
	}
}

func TestEnableInSequenceClosesEarlierSiblings(t *testing.T) {
	tree := ptree.MustParse("->( 'A', 'B', 'C' )")
	o := New(tree)
	start := Initial(tree)

	path, s, ok := o.ShortestPathToEnable(tree.LeavesLabelled("C")[0], start)
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, labels(path.Leaves(true)))
	assert.Equal(t, 2, path.VisibleCount())
	assert.Equal(t, Enabled, s.Of(tree.Node(3)))
	assert.Equal(t, Closed, s.Of(tree.Node(1)))

	// The input snapshot is left untouched.
	assert.Equal(t, "0000", start.Key())
}

func TestEnableInSequenceAfterLaterSiblingIsInfeasible(t *testing.T) {
	tree := ptree.MustParse("->( 'A', 'B' )")
	o := New(tree)
	s := execute(t, o, Initial(tree), "B")

	_, _, ok := o.ShortestPathToEnable(tree.LeavesLabelled("A")[0], s)
	assert.False(t, ok)
}

func TestXorCommitsToOneChild(t *testing.T) {
	tree := ptree.MustParse("X( 'A', 'B' )")
	o := New(tree)
	s := execute(t, o, Initial(tree), "A")

	_, _, ok := o.ShortestPathToEnable(tree.LeavesLabelled("B")[0], s)
	assert.False(t, ok)

	path, final, ok := o.ShortestPathToClose(tree.Root, s)
	require.True(t, ok)
	assert.Empty(t, path.Leaves(true))
	assert.True(t, final.IsFinal(tree))
}

func TestParallelInterleaves(t *testing.T) {
	tree := ptree.MustParse("+( 'A', 'B' )")
	o := New(tree)
	s := execute(t, o, Initial(tree), "B")
	s = execute(t, o, s, "A")

	path, final, ok := o.ShortestPathToClose(tree.Root, s)
	require.True(t, ok)
	assert.Zero(t, path.VisibleCount())
	assert.True(t, final.IsFinal(tree))
}

func TestLoopCyclesThroughRedo(t *testing.T) {
	tree := ptree.MustParse("*( 'A', 'B' )")
	o := New(tree)
	a := tree.LeavesLabelled("A")[0]
	s := execute(t, o, Initial(tree), "A")

	path, enabled, ok := o.ShortestPathToEnable(a, s)
	require.True(t, ok)
	assert.Equal(t, []string{"B"}, labels(path.Leaves(true)))
	assert.Equal(t, Enabled, enabled.Of(a))
	assert.Equal(t, Future, enabled.Of(tree.LeavesLabelled("B")[0]))
}

func TestLoopRedoAfterBody(t *testing.T) {
	tree := ptree.MustParse("*( 'A', 'B' )")
	o := New(tree)

	path, _, ok := o.ShortestPathToEnable(tree.LeavesLabelled("B")[0], Initial(tree))
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, labels(path.Leaves(true)))

	s := execute(t, o, Initial(tree), "A")
	s = execute(t, o, s, "B")
	s = execute(t, o, s, "A")
	_, final, ok := o.ShortestPathToClose(tree.Root, s)
	require.True(t, ok)
	assert.True(t, final.IsFinal(tree))
}

func TestReenterWithoutLoopIsInfeasible(t *testing.T) {
	tree := ptree.MustParse("->( 'A', 'B' )")
	o := New(tree)
	s := execute(t, o, Initial(tree), "A")

	_, _, ok := o.ShortestPathToEnable(tree.LeavesLabelled("A")[0], s)
	assert.False(t, ok)
}

func TestFirstPathEnablesRoot(t *testing.T) {
	tree := ptree.MustParse("X( 'A', 'B' )")
	o := New(tree)

	path, s, ok := o.ShortestPathToEnable(tree.LeavesLabelled("B")[0], Initial(tree))
	require.True(t, ok)
	require.NotEmpty(t, path)
	assert.Equal(t, Transition{Node: tree.Root, To: Enabled}, path[0])
	assert.Equal(t, Open, s.Of(tree.Root))
}

func TestXorInsideLoopIsReentered(t *testing.T) {
	tree := ptree.MustParse("*( X( 'A', 'B' ), tau )")
	o := New(tree)
	a, b := tree.LeavesLabelled("A")[0], tree.LeavesLabelled("B")[0]
	s := execute(t, o, Initial(tree), "A")

	path, enabled, ok := o.ShortestPathToEnable(b, s)
	require.True(t, ok)
	assert.Equal(t, []string{"tau"}, labels(path.Leaves(true)))
	assert.Zero(t, path.VisibleCount())
	assert.Equal(t, Enabled, enabled.Of(b))
	assert.Equal(t, Future, enabled.Of(a))
}

func TestXorInsideLoopRedoIsReentered(t *testing.T) {
	tree := ptree.MustParse("*( tau, X( 'B', 'C', 'A' ) )")
	o := New(tree)
	s := execute(t, o, Initial(tree), "C")

	path, _, ok := o.ShortestPathToEnable(tree.LeavesLabelled("A")[0], s)
	require.True(t, ok)
	assert.Equal(t, []string{"tau"}, labels(path.Leaves(true)))
	assert.Zero(t, path.VisibleCount())
}

func TestReentryPicksCheapestEnclosingLoop(t *testing.T) {
	tree := ptree.MustParse("*( *( 'A', 'X' ), tau )")
	o := New(tree)
	a := tree.LeavesLabelled("A")[0]
	s := execute(t, o, Initial(tree), "A")

	// Cycling the inner loop runs X; cycling the outer one is free and
	// reaches the same state.
	all := o.PathsToEnable(a, s)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"tau"}, labels(all[0].Path.Leaves(true)))
	assert.Zero(t, all[0].Path.VisibleCount())
}

func TestReentryOffersEveryEnclosingLoop(t *testing.T) {
	tree := ptree.MustParse("*( +( *( 'A', tau ), 'B' ), tau )")
	o := New(tree)
	a, b := tree.LeavesLabelled("A")[0], tree.LeavesLabelled("B")[0]
	s := execute(t, o, Initial(tree), "A")
	s = execute(t, o, s, "B")

	all := o.PathsToEnable(a, s)
	require.Len(t, all, 2)
	// Nearest loop first: the inner cycle keeps B done, the outer one
	// starts a fresh pass.
	assert.Equal(t, Closed, all[0].State.Of(b))
	assert.Equal(t, Future, all[1].State.Of(b))
	for _, e := range all {
		assert.Zero(t, e.Path.VisibleCount())
		assert.Equal(t, Enabled, e.State.Of(a))
	}
}

func TestFutureLeafMayStartNextPass(t *testing.T) {
	tree := ptree.MustParse("*( +( O( 'A', 'B' ), 'C' ), tau )")
	o := New(tree)
	b, c := tree.LeavesLabelled("B")[0], tree.LeavesLabelled("C")[0]
	s := execute(t, o, Initial(tree), "A")
	s = execute(t, o, s, "C")

	all := o.PathsToEnable(b, s)
	require.Len(t, all, 2)
	assert.Empty(t, all[0].Path.Leaves(true), "joining the running pass")
	assert.Equal(t, Closed, all[0].State.Of(c))
	assert.Equal(t, []string{"tau"}, labels(all[1].Path.Leaves(true)))
	assert.Equal(t, Future, all[1].State.Of(c))
}

func TestCloseExecutesCheapestChoice(t *testing.T) {
	tree := ptree.MustParse("->( 'A', X( ->( 'B', 'C' ), 'D', tau ) )")
	o := New(tree)

	path, final, ok := o.ShortestPathToClose(tree.Root, Initial(tree))
	require.True(t, ok)
	assert.Equal(t, []string{"A", "tau"}, labels(path.Leaves(true)))
	assert.Equal(t, []string{"A"}, labels(path.Leaves(false)))
	assert.Equal(t, 1, path.VisibleCount())
	assert.True(t, final.IsFinal(tree))
}

func TestCloseFinishesStartedOrChildrenOnly(t *testing.T) {
	tree := ptree.MustParse("O( 'A', 'B', 'C' )")
	o := New(tree)
	s := execute(t, o, Initial(tree), "B")

	path, final, ok := o.ShortestPathToClose(tree.Root, s)
	require.True(t, ok)
	assert.Empty(t, path.Leaves(true))
	assert.True(t, final.IsFinal(tree))
}

func TestClosedRootCannotBeReentered(t *testing.T) {
	tree := ptree.MustParse("'A'")
	o := New(tree)
	s := execute(t, o, Initial(tree), "A")
	require.True(t, s.IsFinal(tree))

	_, _, ok := o.ShortestPathToEnable(tree.Root, s)
	assert.False(t, ok)
}

func TestStateHelpers(t *testing.T) {
	s := State{Enabled, Future, Closed}
	c := s.Clone()
	c[1] = Open

	assert.False(t, s.Equal(c))
	assert.True(t, s.Equal(s.Clone()))
	assert.Equal(t, "{0:enabled, 2:closed}", s.String())
	assert.Equal(t, "open", Open.String())
}
