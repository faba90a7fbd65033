package align

// reconstruct walks parent links from the terminal state back to the root
// and emits the moves of every step, then reverses them once.
func (r *search) reconstruct(terminal int) *Alignment {
	var moves []Move
	for id := terminal; r.g.states[id].parent >= 0; id = r.g.states[id].parent {
		st := &r.g.states[id]
		parent := &r.g.states[st.parent]

		switch st.step {
		case stepSync:
			last := len(st.leaves) - 1
			moves = append(moves, Move{Log: r.trace[parent.index], Model: st.leaves[last]})
			for i := last - 1; i >= 0; i-- {
				moves = append(moves, Move{Log: Skip, Model: st.leaves[i]})
			}
		case stepLog:
			moves = append(moves, Move{Log: r.trace[parent.index]})
		case stepFinish:
			for i := len(st.leaves) - 1; i >= 0; i-- {
				moves = append(moves, Move{Log: Skip, Model: st.leaves[i]})
			}
		}
	}

	for i, j := 0, len(moves)-1; i < j; i, j = i+1, j-1 {
		moves[i], moves[j] = moves[j], moves[i]
	}

	return &Alignment{
		Cost:          r.g.states[terminal].cost,
		Moves:         moves,
		Optimal:       true,
		VisitedStates: r.visited,
		QueuedStates:  len(r.g.states),
		Relaxations:   r.g.relaxations,
	}
}
