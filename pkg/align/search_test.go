package align

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/ptalign/pkg/errors"
	"github.com/logflow/ptalign/pkg/ptree"
	"github.com/logflow/ptalign/pkg/replay"
)

type pair struct{ log, model string }

func pairs(a *Alignment) []pair {
	out := make([]pair, len(a.Moves))
	for i, m := range a.Moves {
		model := m.ModelLabel()
		if m.IsSilent() {
			model = "tau"
		}
		out[i] = pair{m.Log, model}
	}
	return out
}

// moveCost prices each move: visible model moves and log moves cost one.
func moveCost(a *Alignment) int {
	cost := 0
	for _, m := range a.Moves {
		if m.IsLogMove() || (m.IsModelMove() && !m.IsSilent()) {
			cost++
		}
	}
	return cost
}

func logProjection(a *Alignment) []string {
	out := []string{}
	for _, m := range a.Moves {
		if m.Log != Skip {
			out = append(out, m.Log)
		}
	}
	return out
}

var costCases = []struct {
	name  string
	tree  string
	trace []string
	cost  int
}{
	{"sequence fits", "->( 'A', 'B', 'C' )", []string{"A", "B", "C"}, 0},
	{"sequence empty trace", "->( 'A', 'B', 'C' )", []string{}, 3},
	{"sequence swapped", "->( 'A', 'B' )", []string{"B", "A"}, 2},
	{"sequence repeated", "->( 'A', 'B' )", []string{"A", "A", "B"}, 1},
	{"unknown activity", "->( 'A', 'B' )", []string{"A", "Z", "B"}, 1},
	{"xor both branches", "X( 'A', 'B' )", []string{"A", "B"}, 1},
	{"xor single branch", "X( 'A', 'B' )", []string{"B"}, 0},
	{"parallel any order", "+( 'A', 'B' )", []string{"B", "A"}, 0},
	{"loop twice", "*( 'A', 'B' )", []string{"A", "B", "A"}, 0},
	{"loop missing redo", "*( 'A', 'B' )", []string{"A", "A"}, 1},
	{"loop empty trace", "*( 'A', 'B' )", []string{}, 1},
	{"loop redo only", "*( 'A', 'B' )", []string{"B"}, 2},
	{"silent skip", "->( 'A', X( 'B', tau ), 'C' )", []string{"A", "C"}, 0},
	{"or subset", "O( 'A', 'B' )", []string{"B"}, 0},
	{"or all", "O( 'A', 'B' )", []string{"A", "B"}, 0},
	{"duplicate labels", "X( 'A', ->( 'A', 'B' ) )", []string{"A", "B"}, 0},
	{"single leaf", "'A'", []string{"A"}, 0},
	{"root choice", "X( 'a', ->( 'b', 'c' ) )", []string{"a", "b", "c"}, 1},
	{"choice under sequence", "->( 'z', X( 'a', ->( 'b', 'c' ) ) )", []string{"z", "a", "b", "c"}, 1},
	{"choice of or branches", "X( 'a', ->( O( 'b' ), O( 'b', 'c' ) ) )", []string{"a", "b", "a", "c"}, 2},
	{"choice inside loop", "*( X( 'a', 'b' ), tau )", []string{"a", "b"}, 0},
	{"choice inside loop redo", "*( tau, X( 'b', 'c', 'a' ) )", []string{"c", "a"}, 0},
	{"choice branch inside loop", "*( X( 'a', ->( 'b', 'c' ) ), tau )", []string{"a", "b", "c", "a"}, 0},
	{"or inside loop", "*( O( 'a', 'b' ), tau )", []string{"b", "a", "a"}, 0},
	{"sequence inside loop", "*( ->( 'a', 'b' ), tau )", []string{"a", "b", "a", "b"}, 0},
	{"parallel inside loop", "*( +( 'a', 'b' ), tau )", []string{"a", "b", "b", "a"}, 0},
	{"or restarts inside loop", "*( +( O( 'a', 'b' ), 'c' ), tau )", []string{"a", "c", "b", "c"}, 0},
	{"outer loop cycles", "*( *( 'a', 'x' ), tau )", []string{"a", "a"}, 0},
	{"inner loop cycles", "*( ->( *( 'a', tau ), 'b' ), tau )", []string{"a", "a", "b"}, 0},
	{"silent root", "tau", []string{"A"}, 1},
	{
		"nested",
		"->( 'a', +( X( 'b', 'c' ), 'd' ), *( 'e', 'f' ), 'g' )",
		[]string{"a", "d", "c", "e", "f", "e", "g"},
		0,
	},
	{
		"nested with noise",
		"->( 'a', +( X( 'b', 'c' ), 'd' ), *( 'e', 'f' ), 'g' )",
		[]string{"a", "b", "c", "e", "e", "x"},
		5,
	},
}

func TestAlignCosts(t *testing.T) {
	for _, tc := range costCases {
		t.Run(tc.name, func(t *testing.T) {
			tree := ptree.MustParse(tc.tree)
			a, err := Align(tree, tc.trace)
			require.NoError(t, err)

			assert.Equal(t, tc.cost, a.Cost, "alignment %s", a)
			assert.True(t, a.Optimal)
			assert.Equal(t, a.Cost, moveCost(a), "cost must equal the priced moves")
			assert.Equal(t, tc.trace, logProjection(a))
		})
	}
}

func TestAlignWorkedExamples(t *testing.T) {
	tests := []struct {
		name  string
		tree  string
		trace []string
		moves []pair
	}{
		{
			name:  "perfect sequence",
			tree:  "->( 'A', 'B', 'C' )",
			trace: []string{"A", "B", "C"},
			moves: []pair{{"A", "A"}, {"B", "B"}, {"C", "C"}},
		},
		{
			name:  "empty trace",
			tree:  "->( 'A', 'B' )",
			trace: []string{},
			moves: []pair{{Skip, "A"}, {Skip, "B"}},
		},
		{
			name:  "exclusive choice",
			tree:  "X( 'A', 'B' )",
			trace: []string{"A", "B"},
			moves: []pair{{"A", "A"}, {"B", Skip}},
		},
		{
			name:  "loop needs redo",
			tree:  "*( 'A', 'B' )",
			trace: []string{"A", "A"},
			moves: []pair{{"A", "A"}, {Skip, "B"}, {"A", "A"}},
		},
		{
			name:  "silent leaf reported",
			tree:  "->( 'A', X( 'B', tau ), 'C' )",
			trace: []string{"A", "C"},
			moves: []pair{{"A", "A"}, {Skip, "tau"}, {"C", "C"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Align(ptree.MustParse(tt.tree), tt.trace)
			require.NoError(t, err)
			assert.Equal(t, tt.moves, pairs(a))
		})
	}
}

func TestZeroCostMeansOnlySynchronousMoves(t *testing.T) {
	for _, tc := range costCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := Align(ptree.MustParse(tc.tree), tc.trace)
			require.NoError(t, err)

			clean := true
			for _, m := range a.Moves {
				if !m.IsSync() && !m.IsSilent() {
					clean = false
				}
			}
			assert.Equal(t, a.Cost == 0, clean, "alignment %s", a)
		})
	}
}

func TestModelProjectionReplays(t *testing.T) {
	for _, tc := range costCases {
		t.Run(tc.name, func(t *testing.T) {
			tree := ptree.MustParse(tc.tree)
			a, err := Align(tree, tc.trace)
			require.NoError(t, err)

			// Every listed model move must be reachable without executing
			// an unlisted labelled leaf. Re-entries may cycle different
			// loops, so all zero-cost successors are kept.
			o := replay.New(tree)
			states := []replay.State{replay.Initial(tree)}
			for _, m := range a.Moves {
				if m.Model == nil {
					continue
				}
				var next []replay.State
				seen := make(map[string]bool)
				for _, s := range states {
					for _, e := range o.PathsToEnable(m.Model, s) {
						if e.Path.VisibleCount() > 0 {
							continue
						}
						_, closed, ok := o.ShortestPathToClose(m.Model, e.State)
						if !ok || seen[closed.Key()] {
							continue
						}
						seen[closed.Key()] = true
						next = append(next, closed)
					}
				}
				require.NotEmpty(t, next, "leaf %s not reachable in %s", m.Model, a)
				states = next
			}

			finished := false
			for _, s := range states {
				path, final, ok := o.ShortestPathToClose(tree.Root, s)
				if ok && path.VisibleCount() == 0 && final.IsFinal(tree) {
					finished = true
				}
			}
			assert.True(t, finished, "alignment %s leaves the model unfinished", a)
		})
	}
}

func TestChoiceCostsTheSameAtRootAndNested(t *testing.T) {
	root, err := Align(ptree.MustParse("X( 'a', ->( 'b', 'c' ) )"), []string{"a", "b", "c"})
	require.NoError(t, err)
	nested, err := Align(ptree.MustParse("->( 'z', X( 'a', ->( 'b', 'c' ) ) )"), []string{"z", "a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, 1, root.Cost, "alignment %s", root)
	assert.Equal(t, root.Cost, nested.Cost, "alignment %s", nested)
	assert.Equal(t, pair{"a", Skip}, pairs(root)[0])
}

func TestAppendingUnknownActivityCostsMore(t *testing.T) {
	for _, tc := range costCases {
		t.Run(tc.name, func(t *testing.T) {
			tree := ptree.MustParse(tc.tree)
			base, err := Align(tree, tc.trace)
			require.NoError(t, err)

			longer := append(append([]string{}, tc.trace...), "not-in-model")
			more, err := Align(tree, longer)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, more.Cost, base.Cost+1)
		})
	}
}

func TestAlignIsDeterministic(t *testing.T) {
	tree := ptree.MustParse("->( 'a', +( X( 'b', 'c' ), 'd' ), *( 'e', 'f' ), 'g' )")
	trace := []string{"a", "c", "b", "d", "f", "e", "g", "g"}
	s := NewSearcher(tree, Options{})

	first, err := s.Align(trace)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := s.Align(trace)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSearchLimit(t *testing.T) {
	tree := ptree.MustParse("->( 'A', 'B' )")
	_, err := NewSearcher(tree, Options{MaxStates: 1}).Align([]string{"A", "B"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeSearchLimit))
}

func TestMoveJSON(t *testing.T) {
	tree := ptree.MustParse("->( 'A', tau )")
	a, err := Align(tree, []string{"A", "Z"})
	require.NoError(t, err)

	b, err := json.Marshal(a)
	require.NoError(t, err)

	var decoded struct {
		Cost      int              `json:"cost"`
		Alignment [][2]interface{} `json:"alignment"`
		Optimal   bool             `json:"optimal"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, 1, decoded.Cost)
	assert.True(t, decoded.Optimal)
	assert.Contains(t, decoded.Alignment, [2]interface{}{"A", "A"})
	assert.Contains(t, decoded.Alignment, [2]interface{}{"Z", Skip})
	assert.Contains(t, decoded.Alignment, [2]interface{}{Skip, nil})
}

func TestCloneIsIndependent(t *testing.T) {
	a, err := Align(ptree.MustParse("->( 'A', 'B' )"), []string{"A", "Z", "B"})
	require.NoError(t, err)

	c := a.Clone()
	assert.Equal(t, a, c)
	c.Moves[0].Log = "changed"
	c.Cost++
	assert.Equal(t, "A", a.Moves[0].Log)
	assert.Equal(t, 1, a.Cost)

	var none *Alignment
	assert.Nil(t, none.Clone())
}

func TestRecordRoundTrip(t *testing.T) {
	tree := ptree.MustParse("->( 'A', X( 'B', tau ), 'C' )")
	a, err := Align(tree, []string{"A", "Q", "C"})
	require.NoError(t, err)

	raw, err := json.Marshal(a.ToRecord())
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(raw, &rec))

	back, err := FromRecord(&rec, tree)
	require.NoError(t, err)
	assert.Equal(t, a, back)

	rec.Moves[0].NodeID = tree.Root.ID
	_, err = FromRecord(&rec, tree)
	assert.True(t, errors.IsCode(err, errors.CodeCacheFailed))
}
