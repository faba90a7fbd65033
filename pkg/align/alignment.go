// Package align computes optimal alignments between a trace and a process
// tree with a uniform-cost search over (trace position, model state) pairs.
package align

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/logflow/ptalign/pkg/errors"
	"github.com/logflow/ptalign/pkg/ptree"
)

// Skip is the symbol standing for "no move" on either side of an alignment.
const Skip = ">>"

// Move is one step of an alignment. Log is an activity label or Skip; Model
// is the leaf executed by the model, or nil when the model does not move.
type Move struct {
	Log   string
	Model *ptree.Node
}

// IsSync reports whether the log and the model move together.
func (m Move) IsSync() bool {
	return m.Log != Skip && m.Model != nil
}

// IsLogMove reports whether only the log moves.
func (m Move) IsLogMove() bool {
	return m.Model == nil
}

// IsModelMove reports whether only the model moves.
func (m Move) IsModelMove() bool {
	return m.Log == Skip && m.Model != nil
}

// IsSilent reports whether the move executes a silent leaf.
func (m Move) IsSilent() bool {
	return m.Model != nil && m.Model.Kind == ptree.Silent
}

// ModelLabel returns the label on the model side: Skip for a log move and
// the empty string for a silent leaf.
func (m Move) ModelLabel() string {
	if m.Model == nil {
		return Skip
	}
	return m.Model.Label
}

// String renders the move as (log, model).
func (m Move) String() string {
	model := m.ModelLabel()
	if m.IsSilent() {
		model = "tau"
	}
	return "(" + m.Log + ", " + model + ")"
}

// MarshalJSON renders the move as a [log, model] pair with null for a
// silent model leaf.
func (m Move) MarshalJSON() ([]byte, error) {
	if m.IsSilent() {
		return json.Marshal([2]interface{}{m.Log, nil})
	}
	return json.Marshal([2]string{m.Log, m.ModelLabel()})
}

// Alignment is the optimal explanation of one variant.
type Alignment struct {
	Cost    int     `json:"cost"`
	Moves   []Move  `json:"alignment"`
	Optimal bool    `json:"optimal"`
	Fitness float64 `json:"fitness"`

	VisitedStates int `json:"visited_states"`
	QueuedStates  int `json:"queued_states"`
	Relaxations   int `json:"relaxations"`
}

// Clone returns a copy that shares no moves with a.
func (a *Alignment) Clone() *Alignment {
	if a == nil {
		return nil
	}
	c := *a
	c.Moves = append([]Move(nil), a.Moves...)
	return &c
}

// String renders the moves compactly.
func (a *Alignment) String() string {
	parts := make([]string, len(a.Moves))
	for i, m := range a.Moves {
		parts[i] = m.String()
	}
	return fmt.Sprintf("cost=%d [%s]", a.Cost, strings.Join(parts, " "))
}

// Record is the storable form of an Alignment. Model leaves are referenced
// by node ID in the tree the alignment was computed against.
type Record struct {
	Cost          int          `json:"cost"`
	Moves         []RecordMove `json:"moves"`
	Optimal       bool         `json:"optimal"`
	Fitness       float64      `json:"fitness"`
	VisitedStates int          `json:"visited_states"`
	QueuedStates  int          `json:"queued_states"`
	Relaxations   int          `json:"relaxations"`
}

// RecordMove is a Move with the model leaf replaced by its node ID (-1 for
// no model move).
type RecordMove struct {
	Log    string `json:"log"`
	NodeID int    `json:"node"`
}

// ToRecord converts a to its storable form.
func (a *Alignment) ToRecord() *Record {
	rec := &Record{
		Cost:          a.Cost,
		Moves:         make([]RecordMove, len(a.Moves)),
		Optimal:       a.Optimal,
		Fitness:       a.Fitness,
		VisitedStates: a.VisitedStates,
		QueuedStates:  a.QueuedStates,
		Relaxations:   a.Relaxations,
	}
	for i, m := range a.Moves {
		id := -1
		if m.Model != nil {
			id = m.Model.ID
		}
		rec.Moves[i] = RecordMove{Log: m.Log, NodeID: id}
	}
	return rec
}

// FromRecord rebuilds an Alignment against tree, which must be the tree the
// record was computed on.
func FromRecord(rec *Record, tree *ptree.Tree) (*Alignment, error) {
	a := &Alignment{
		Cost:          rec.Cost,
		Moves:         make([]Move, len(rec.Moves)),
		Optimal:       rec.Optimal,
		Fitness:       rec.Fitness,
		VisitedStates: rec.VisitedStates,
		QueuedStates:  rec.QueuedStates,
		Relaxations:   rec.Relaxations,
	}
	for i, m := range rec.Moves {
		var leaf *ptree.Node
		if m.NodeID >= 0 {
			if m.NodeID >= tree.Size() || !tree.Node(m.NodeID).IsLeaf() {
				return nil, errors.New(errors.CodeCacheFailed, "stored move does not reference a leaf of the tree").
					WithContext("node", m.NodeID)
			}
			leaf = tree.Node(m.NodeID)
		}
		a.Moves[i] = Move{Log: m.Log, Model: leaf}
	}
	return a, nil
}
