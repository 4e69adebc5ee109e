package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Mark is the content of a board cell.
type Mark uint8

const (
	Empty Mark = iota
	X
	O
)

// Cells is the number of cells on the board.
const Cells = 9

// Board is a fixed 3x3 board stored row-major (0 = top-left, 8 = bottom-right).
// It is a value; assigning it copies all cells.
type Board [Cells]Mark

// WinLines lists every row, column and diagonal.
var WinLines = [8][3]int{
	// rows
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	// cols
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	// diags
	{0, 4, 8}, {2, 4, 6},
}

// Errors returned by domain operations.
var (
	ErrInvalidMove        = errors.New("invalid move")
	ErrNoLegalMove        = errors.New("no legal move")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrGameOver           = errors.New("game over")
)

// IsPlayer reports whether m is X or O.
func (m Mark) IsPlayer() bool { return m == X || m == O }

// Opponent returns the other player's mark. Empty maps to Empty.
func (m Mark) Opponent() Mark {
	switch m {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

func (m Mark) String() string {
	switch m {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return ""
	}
}

// ParseMark accepts "X" or "O" in either case.
func ParseMark(s string) (Mark, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X":
		return X, nil
	case "O":
		return O, nil
	}
	return Empty, fmt.Errorf("mark %q: %w", s, ErrInvariantViolation)
}

// CellAt maps a grid coordinate to a cell index.
func CellAt(r, c int) (int, error) {
	if r < 0 || r > 2 || c < 0 || c > 2 {
		return -1, fmt.Errorf("row %d col %d out of bounds: %w", r, c, ErrInvalidMove)
	}
	return r*3 + c, nil
}

// IsEmpty reports whether cell is on the board and holds no mark.
func (b Board) IsEmpty(cell int) bool {
	return cell >= 0 && cell < Cells && b[cell] == Empty
}

// Place returns a copy of b with m at cell. b itself is left untouched.
func (b Board) Place(cell int, m Mark) (Board, error) {
	if !m.IsPlayer() {
		return b, fmt.Errorf("place %v: %w: %w", m, ErrInvalidMove, ErrInvariantViolation)
	}
	if cell < 0 || cell >= Cells {
		return b, fmt.Errorf("cell %d out of range: %w", cell, ErrInvalidMove)
	}
	if b[cell] != Empty {
		return b, fmt.Errorf("cell %d occupied: %w", cell, ErrInvalidMove)
	}
	b[cell] = m
	return b, nil
}

// EmptyCells returns the free cell indices in ascending order.
func (b Board) EmptyCells() []int {
	out := make([]int, 0, Cells)
	for i, m := range b {
		if m == Empty {
			out = append(out, i)
		}
	}
	return out
}

// HasWon reports whether m holds any complete line.
func (b Board) HasWon(m Mark) bool {
	for _, ln := range WinLines {
		if b[ln[0]] == m && b[ln[1]] == m && b[ln[2]] == m {
			return true
		}
	}
	return false
}

// IsFull reports whether no cell is empty.
func (b Board) IsFull() bool {
	for _, m := range b {
		if m == Empty {
			return false
		}
	}
	return true
}

// Moves counts the marks on the board.
func (b Board) Moves() int {
	n := 0
	for _, m := range b {
		if m != Empty {
			n++
		}
	}
	return n
}

// Winner returns the mark holding a complete line, or Empty.
// Both players holding a line can't happen under legal play and is reported
// as ErrInvariantViolation.
func (b Board) Winner() (Mark, error) {
	x, o := b.HasWon(X), b.HasWon(O)
	switch {
	case x && o:
		return Empty, fmt.Errorf("both X and O complete a line on %s: %w", b, ErrInvariantViolation)
	case x:
		return X, nil
	case o:
		return O, nil
	}
	return Empty, nil
}

// IsTerminal reports whether either side has won or the board is full.
func (b Board) IsTerminal() bool {
	return b.HasWon(X) || b.HasWon(O) || b.IsFull()
}

// String renders the board as nine characters, '.' for empty cells.
func (b Board) String() string {
	var sb strings.Builder
	sb.Grow(Cells)
	for _, m := range b {
		if m == Empty {
			sb.WriteByte('.')
			continue
		}
		sb.WriteString(m.String())
	}
	return sb.String()
}

// ParseBoard reads the form produced by String. '.', '-', '_' and ' ' are
// accepted as empty cells.
func ParseBoard(s string) (Board, error) {
	var b Board
	if len(s) != Cells {
		return b, fmt.Errorf("board %q: want %d cells, got %d: %w", s, Cells, len(s), ErrInvalidMove)
	}
	for i := 0; i < Cells; i++ {
		switch s[i] {
		case 'X', 'x':
			b[i] = X
		case 'O', 'o':
			b[i] = O
		case '.', '-', '_', ' ':
			b[i] = Empty
		default:
			return b, fmt.Errorf("board %q: bad cell %q at %d: %w", s, s[i], i, ErrInvalidMove)
		}
	}
	return b, nil
}
