// Package console plays rounds against the bot over a line-oriented terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/muesli/termenv"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/app"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/domain"
)

// Option configures a Client.
type Option func(*Client)

// WithZeroBased numbers cells 0-8 instead of 1-9.
func WithZeroBased(zero bool) Option {
	return func(c *Client) {
		if zero {
			c.base = 0
		} else {
			c.base = 1
		}
	}
}

// WithProfile forces a colour profile instead of detecting one from out.
func WithProfile(p termenv.Profile) Option {
	return func(c *Client) { c.profile = &p }
}

// Client reads cell numbers from in and draws the board to out.
type Client struct {
	svc     *app.Service
	in      io.Reader
	out     *termenv.Output
	base    int
	profile *termenv.Profile
}

// New builds a client around svc.
func New(svc *app.Service, in io.Reader, out io.Writer, opts ...Option) *Client {
	c := &Client{svc: svc, in: in, base: 1}
	for _, o := range opts {
		o(c)
	}
	if c.profile != nil {
		c.out = termenv.NewOutput(out, termenv.WithProfile(*c.profile))
	} else {
		c.out = termenv.NewOutput(out)
	}
	return c
}

// Run starts a session for player and plays until in is exhausted or ctx ends.
// A finished round waits for one line before the next round starts.
func (c *Client) Run(ctx context.Context, player string) error {
	ss, err := c.svc.CreateSession(ctx, player)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	c.draw(ss, "", false)

	lines, readErr := c.readLines(ctx)
	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return <-readErr
			}
			line = strings.TrimSpace(l)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if ss.Round.Over() {
			next, err := c.svc.NewRound(ctx, ss.ID)
			if err != nil {
				return c.afterAbort(ss, err)
			}
			ss = next
			c.draw(ss, "", ss.LastBot != nil)
			continue
		}
		if line == "" {
			c.prompt(ss)
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			c.draw(ss, "Invalid move", false)
			continue
		}
		next, err := c.svc.Play(ctx, ss.ID, n-c.base)
		if err != nil {
			if errors.Is(err, app.ErrRoundAborted) {
				if cur, ok := c.svc.Get(ss.ID); ok {
					ss = cur
				}
			}
			c.draw(ss, message(err), false)
			continue
		}
		botMoved := next.LastBot != nil && next.LastBot != ss.LastBot
		ss = next
		c.draw(ss, "", botMoved)
	}
}

// readLines scans in on its own goroutine so Run can give up on ctx while a
// read is pending. The scanner goroutine stays parked until in returns.
func (c *Client) readLines(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		errc <- sc.Err()
	}()
	return lines, errc
}

func (c *Client) afterAbort(ss *app.Session, err error) error {
	if errors.Is(err, app.ErrRoundAborted) {
		if cur, ok := c.svc.Get(ss.ID); ok {
			c.draw(cur, message(err), false)
			return nil
		}
	}
	return err
}

func message(err error) string {
	switch {
	case errors.Is(err, app.ErrRoundAborted):
		return "Round aborted, starting over"
	case errors.Is(err, app.ErrNotYourTurn):
		return "Not your turn"
	case errors.Is(err, domain.ErrGameOver):
		return "Round is over"
	case errors.Is(err, domain.ErrInvalidMove):
		return "Invalid move"
	}
	return err.Error()
}

func (c *Client) mark(m domain.Mark) string {
	switch m {
	case domain.X:
		return c.out.String("X").Foreground(c.out.Convert(termenv.ANSIBlue)).Bold().String()
	case domain.O:
		return c.out.String("O").Foreground(c.out.Convert(termenv.ANSIRed)).Bold().String()
	}
	return " "
}

// draw prints the board; botMoved adds the bot's latest choice.
func (c *Client) draw(ss *app.Session, errMsg string, botMoved bool) {
	b := ss.Round.Board
	fmt.Fprintln(c.out)
	for row := 0; row < 3; row++ {
		cells := make([]string, 3)
		for col := 0; col < 3; col++ {
			i := row*3 + col
			if b[i] == domain.Empty {
				cells[col] = c.out.String(strconv.Itoa(i + c.base)).Faint().String()
			} else {
				cells[col] = c.mark(b[i])
			}
		}
		fmt.Fprintf(c.out, " %s | %s | %s\n", cells[0], cells[1], cells[2])
		if row < 2 {
			fmt.Fprintln(c.out, "---+---+---")
		}
	}
	fmt.Fprintln(c.out)
	if d := ss.LastBot; botMoved && d != nil {
		fmt.Fprintf(c.out, "Bot marks section %d (minimax score %d)\n", d.Cell+c.base, d.Score)
	}
	if errMsg != "" {
		fmt.Fprintln(c.out, c.out.String(errMsg).Foreground(c.out.Convert(termenv.ANSIYellow)).String())
	}
	if ss.Round.Over() {
		fmt.Fprintln(c.out, c.out.String(app.Headline(*ss)).Bold().String())
		fmt.Fprintln(c.out, app.StatsLine(ss.Tally))
	}
	c.prompt(ss)
}

func (c *Client) prompt(ss *app.Session) {
	if ss.Round.Over() {
		fmt.Fprint(c.out, "Press Enter for the next round: ")
		return
	}
	fmt.Fprintf(c.out, "Your move (%d-%d): ", c.base, c.base+domain.Cells-1)
}
