// Package history keeps a bounded stack of board snapshots for linear undo.
package history

import "taskboard/internal/board"

// DefaultDepth is the undo cap applied when the configuration does not set
// one.
const DefaultDepth = 100

// History is a single-direction undo stack. Snapshots are taken before each
// mutation; once the depth bound is reached the oldest entry is dropped.
// There is no redo.
type History struct {
	depth  int
	states []board.Board
}

func New(depth int) *History {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &History{depth: depth, states: make([]board.Board, 0, depth)}
}

// Push records a snapshot of b. The stored copy shares no memory with b.
func (h *History) Push(b board.Board) {
	if len(h.states) >= h.depth {
		h.states = h.states[1:]
	}
	h.states = append(h.states, b.Clone())
}

// Pop removes and returns the most recent snapshot. The second return is
// false when the stack is empty.
func (h *History) Pop() (board.Board, bool) {
	if len(h.states) == 0 {
		return board.Board{}, false
	}
	last := h.states[len(h.states)-1]
	h.states = h.states[:len(h.states)-1]
	return last, true
}

// Len reports how many snapshots are currently retained.
func (h *History) Len() int {
	return len(h.states)
}
