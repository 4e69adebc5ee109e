package app

import (
	"fmt"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/domain"
)

// Headline is the line shown above the board.
func Headline(ss Session) string {
	switch ss.Round.Outcome {
	case domain.HumanWin:
		return "YOU WIN!"
	case domain.BotWin:
		return "BOT WINS!"
	case domain.Tie:
		return "TIE GAME"
	}
	if ss.Round.Turn == ss.Round.Human {
		return "Your turn"
	}
	return "Bot's turn"
}

// StatsLine renders the scoreboard.
func StatsLine(t Tally) string {
	return fmt.Sprintf("PLAYER: %d   TIES: %d   BOT: %d", t.HumanWins, t.Ties, t.BotWins)
}

// BotLine describes the last bot move, or "" if the bot has not moved this round.
// Cells are numbered from zero.
func BotLine(ss Session) string {
	if ss.LastBot == nil {
		return ""
	}
	return fmt.Sprintf("Bot marks cell %d (minimax score %d)", ss.LastBot.Cell, ss.LastBot.Score)
}
