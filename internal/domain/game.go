package domain

import "fmt"

// Outcome is the result of a round from the human's side of the table.
type Outcome uint8

const (
	InProgress Outcome = iota
	HumanWin
	BotWin
	Tie
)

func (o Outcome) String() string {
	switch o {
	case HumanWin:
		return "human_win"
	case BotWin:
		return "bot_win"
	case Tie:
		return "tie"
	default:
		return "in_progress"
	}
}

// Round holds one game between the human and the bot.
type Round struct {
	Board   Board
	Human   Mark
	Bot     Mark
	Turn    Mark
	Outcome Outcome
}

// NewRound returns an empty round with first to move.
func NewRound(human, first Mark) Round {
	return Round{Human: human, Bot: human.Opponent(), Turn: first}
}

// Over reports whether the round reached a terminal state.
func (r Round) Over() bool { return r.Outcome != InProgress }

// Apply places the mark of the side to move at cell.
func (r *Round) Apply(cell int, m Mark) error {
	if r.Over() {
		return ErrGameOver
	}
	if m != r.Turn {
		return fmt.Errorf("%v is not to move: %w", m, ErrInvalidMove)
	}
	next, err := r.Board.Place(cell, m)
	if err != nil {
		return err
	}
	out, err := OutcomeFor(next, r.Human)
	if err != nil {
		return err
	}
	r.Board = next
	r.Outcome = out
	if out == InProgress {
		r.Turn = m.Opponent()
	}
	return nil
}

// OutcomeFor derives the round outcome for board b with human playing human.
func OutcomeFor(b Board, human Mark) (Outcome, error) {
	if !human.IsPlayer() {
		return InProgress, fmt.Errorf("human mark %v: %w", human, ErrInvariantViolation)
	}
	w, err := b.Winner()
	if err != nil {
		return InProgress, err
	}
	switch {
	case w == human:
		return HumanWin, nil
	case w == human.Opponent():
		return BotWin, nil
	case b.IsFull():
		return Tie, nil
	}
	return InProgress, nil
}
