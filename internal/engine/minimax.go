// Package engine picks moves by exhaustive minimax over the 3x3 board.
package engine

import (
	"fmt"
	"math"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/domain"
)

// Scores are seen from the side to move.
const (
	Loss = -1
	Draw = 0
	Win  = 1
)

// ChooseMove returns the best cell for mover on b and its minimax score.
// Candidates are tried in ascending order, so among equally scored cells the
// lowest index wins.
func ChooseMove(b domain.Board, mover domain.Mark) (cell, score int, err error) {
	if _, err := legalCells(b, mover); err != nil {
		return -1, 0, err
	}
	w := walker{}
	cell, score = w.best(b, mover)
	return cell, score, nil
}

// legalCells checks the search preconditions and returns the free cells.
func legalCells(b domain.Board, mover domain.Mark) ([]int, error) {
	if !mover.IsPlayer() {
		return nil, fmt.Errorf("mover %v: %w", mover, domain.ErrInvariantViolation)
	}
	cells := b.EmptyCells()
	if len(cells) == 0 {
		return nil, fmt.Errorf("board %s: %w", b, domain.ErrNoLegalMove)
	}
	w, err := b.Winner()
	if err != nil {
		return nil, err
	}
	if w != domain.Empty {
		return nil, fmt.Errorf("board %s already won by %v: %w", b, w, domain.ErrGameOver)
	}
	return cells, nil
}

// walker carries per-search state; it is never shared between goroutines.
type walker struct {
	order func([]int)
	nodes int64
}

func (w *walker) best(b domain.Board, mover domain.Mark) (int, int) {
	cells := b.EmptyCells()
	if w.order != nil {
		w.order(cells)
	}
	bestCell, bestScore := -1, math.MinInt
	for _, c := range cells {
		s := w.score(b, c, mover)
		if s == Win {
			return c, s
		}
		if s > bestScore {
			bestCell, bestScore = c, s
		}
	}
	return bestCell, bestScore
}

// score plays mover at cell on a copy of b and values the result for mover.
func (w *walker) score(b domain.Board, cell int, mover domain.Mark) int {
	w.nodes++
	next := b
	next[cell] = mover
	opp := mover.Opponent()
	switch {
	case next.HasWon(mover):
		return Win
	case next.HasWon(opp):
		// unreachable after a single legal placement
		return Loss
	case next.IsFull():
		return Draw
	}
	_, s := w.best(next, opp)
	return -s
}
