package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/domain"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/engine"
)

// minimal renderer for tests: encode moves count as bytes
func testRenderer(ss Session) []byte {
	return []byte(fmt.Sprintf("moves=%d", ss.Round.Board.Moves()))
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{WithRenderer(testRenderer), WithLogger(zaptest.NewLogger(t))}
	return NewService(append(base, opts...)...)
}

// playOut plays the lowest free cell for the human until the round ends.
func playOut(t *testing.T, s *Service, id string) *Session {
	t.Helper()
	for {
		ss, ok := s.Get(id)
		if !ok {
			t.Fatalf("session %s missing", id)
		}
		if ss.Round.Over() {
			return ss
		}
		cell := ss.Round.Board.EmptyCells()[0]
		if _, err := s.Play(context.Background(), id, cell); err != nil {
			t.Fatalf("play %d on %s: %v", cell, ss.Round.Board, err)
		}
	}
}

type failingScores struct{}

func (failingScores) Load(context.Context, string) (Tally, error) {
	return Tally{}, errors.New("store down")
}

func (failingScores) Record(context.Context, string, domain.Outcome) (Tally, error) {
	return Tally{}, errors.New("store down")
}

func TestCreateAndGet(t *testing.T) {
	s := newTestService(t)
	ss, err := s.CreateSession(context.Background(), "p1")
	if err != nil {
		t.Fatalf("CreateSession error: %v", err)
	}
	if ss.ID == "" || ss.Player != "p1" {
		t.Fatalf("unexpected session %+v", ss)
	}
	if ss.Round.Turn != HumanMark || ss.First != HumanMark {
		t.Fatalf("expected human to move first")
	}
	if ss.Created.IsZero() || ss.Updated.IsZero() {
		t.Fatalf("expected timestamps to be set")
	}
	got, ok := s.Get(ss.ID)
	if !ok || got.ID != ss.ID {
		t.Fatalf("Get should find created session")
	}
	if _, ok := s.Get("missing"); ok {
		t.Fatalf("Get should miss unknown id")
	}
}

func TestCreateWithoutPlayerUsesSessionID(t *testing.T) {
	s := newTestService(t)
	ss, _ := s.CreateSession(context.Background(), "")
	if ss.Player != ss.ID {
		t.Fatalf("expected player key %q, got %q", ss.ID, ss.Player)
	}
}

func TestPlayAppliesHumanAndBotMoves(t *testing.T) {
	s := newTestService(t)
	ss, _ := s.CreateSession(context.Background(), "p1")

	st, err := s.Play(context.Background(), ss.ID, 4)
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if st.Round.Board[4] != HumanMark {
		t.Fatalf("expected X at 4, got %v", st.Round.Board[4])
	}
	if st.Round.Board.Moves() != 2 || st.Round.Turn != HumanMark {
		t.Fatalf("expected bot reply; moves=%d turn=%v", st.Round.Board.Moves(), st.Round.Turn)
	}
	if st.LastBot == nil || st.Round.Board[st.LastBot.Cell] != BotMark {
		t.Fatalf("expected bot decision recorded, got %+v", st.LastBot)
	}
	if st.LastBot.Score != engine.Draw {
		t.Fatalf("centre opening is a draw, bot reported %d", st.LastBot.Score)
	}
}

func TestPlayRejectsInvalidMoves(t *testing.T) {
	s := newTestService(t)
	ss, _ := s.CreateSession(context.Background(), "p1")
	st, _ := s.Play(context.Background(), ss.ID, 0)
	botCell := st.LastBot.Cell

	for _, cell := range []int{0, botCell, -1, 9} {
		if _, err := s.Play(context.Background(), ss.ID, cell); !errors.Is(err, domain.ErrInvalidMove) {
			t.Fatalf("expected ErrInvalidMove for %d, got %v", cell, err)
		}
	}
	latest, _ := s.Get(ss.ID)
	if latest.Round.Board != st.Round.Board {
		t.Fatalf("invalid moves changed the board: %s -> %s", st.Round.Board, latest.Round.Board)
	}
	if _, err := s.Play(context.Background(), "missing", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHumanNeverWins(t *testing.T) {
	s := newTestService(t)
	ss, _ := s.CreateSession(context.Background(), "p1")
	for round := 0; round < 4; round++ {
		end := playOut(t, s, ss.ID)
		if end.Round.Outcome == domain.HumanWin {
			t.Fatalf("bot lost round %d: %s", round, end.Round.Board)
		}
		if end.Tally.Total() != round+1 || end.Tally.HumanWins != 0 {
			t.Fatalf("unexpected tally after round %d: %+v", round, end.Tally)
		}
		if _, err := s.Play(context.Background(), ss.ID, 0); !errors.Is(err, domain.ErrGameOver) {
			t.Fatalf("expected ErrGameOver, got %v", err)
		}
		if _, err := s.NewRound(context.Background(), ss.ID); err != nil {
			t.Fatalf("NewRound: %v", err)
		}
	}
}

func TestNewRoundAlternatesFirstMover(t *testing.T) {
	s := newTestService(t)
	ss, _ := s.CreateSession(context.Background(), "p1")
	if _, err := s.NewRound(context.Background(), ss.ID); !errors.Is(err, ErrRoundInProgress) {
		t.Fatalf("expected ErrRoundInProgress, got %v", err)
	}
	playOut(t, s, ss.ID)

	st, err := s.NewRound(context.Background(), ss.ID)
	if err != nil {
		t.Fatalf("NewRound: %v", err)
	}
	if st.First != BotMark {
		t.Fatalf("expected bot to move first, got %v", st.First)
	}
	if st.Round.Board.Moves() != 1 || st.Round.Turn != HumanMark || st.LastBot == nil {
		t.Fatalf("expected bot opening; board=%s turn=%v", st.Round.Board, st.Round.Turn)
	}
	if st.LastBot.Score != engine.Draw {
		t.Fatalf("opening score should be 0, got %d", st.LastBot.Score)
	}

	playOut(t, s, ss.ID)
	st, err = s.NewRound(context.Background(), ss.ID)
	if err != nil {
		t.Fatalf("NewRound: %v", err)
	}
	if st.First != HumanMark || st.Round.Board.Moves() != 0 {
		t.Fatalf("expected human first on empty board, got first=%v board=%s", st.First, st.Round.Board)
	}
	if _, err := s.NewRound(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchFailureAbortsRound(t *testing.T) {
	s := newTestService(t, WithSearcher(engine.New(engine.WithParallel(true))))
	ss, _ := s.CreateSession(context.Background(), "p1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Play(ctx, ss.ID, 4)
	if !errors.Is(err, ErrRoundAborted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrRoundAborted wrapping context.Canceled, got %v", err)
	}
	latest, _ := s.Get(ss.ID)
	if latest.Round.Board.Moves() != 0 || latest.Round.Turn != HumanMark || latest.Round.Over() {
		t.Fatalf("expected a fresh round, got %s turn=%v", latest.Round.Board, latest.Round.Turn)
	}
	if latest.Tally.Total() != 0 {
		t.Fatalf("aborted round must not be counted: %+v", latest.Tally)
	}
	if _, err := s.Play(context.Background(), ss.ID, 4); err != nil {
		t.Fatalf("play after abort: %v", err)
	}
}

func TestTallyFollowsPlayerAcrossSessions(t *testing.T) {
	store := NewMemoryScores()
	s := newTestService(t, WithScores(store))
	first, _ := s.CreateSession(context.Background(), "p1")
	end := playOut(t, s, first.ID)

	second, _ := s.CreateSession(context.Background(), "p1")
	if second.Tally != end.Tally || second.Tally.Total() != 1 {
		t.Fatalf("expected tally %+v carried over, got %+v", end.Tally, second.Tally)
	}
	other, _ := s.CreateSession(context.Background(), "p2")
	if other.Tally.Total() != 0 {
		t.Fatalf("p2 should start clean, got %+v", other.Tally)
	}
}

func TestScoreStoreFailureStillCounts(t *testing.T) {
	s := newTestService(t, WithScores(failingScores{}))
	ss, err := s.CreateSession(context.Background(), "p1")
	if err != nil {
		t.Fatalf("CreateSession should tolerate store errors: %v", err)
	}
	end := playOut(t, s, ss.ID)
	if end.Tally.Total() != 1 {
		t.Fatalf("expected local tally of 1, got %+v", end.Tally)
	}
}

func TestSubscribeAndBroadcast(t *testing.T) {
	s := newTestService(t)
	ss, _ := s.CreateSession(context.Background(), "p1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
	defer cancel()
	ch, unsub := s.Subscribe(ctx, ss.ID)
	defer unsub()

	if _, err := s.Play(context.Background(), ss.ID, 0); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	select {
	case b, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed unexpectedly")
		}
		if string(b) != "moves=2" {
			t.Fatalf("unexpected broadcast payload: %q", string(b))
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for broadcast")
	}
}

func TestDropSlowSubscriber(t *testing.T) {
	s := newTestService(t)
	ss, _ := s.CreateSession(context.Background(), "p1")

	// Slow subscriber: never read
	ctxSlow, cancelSlow := context.WithCancel(context.Background())
	defer cancelSlow()
	slowCh, _ := s.Subscribe(ctxSlow, ss.ID)

	ctxFast, cancelFast := context.WithTimeout(context.Background(), time.Second*2)
	defer cancelFast()
	fastCh, unsubFast := s.Subscribe(ctxFast, ss.ID)
	defer unsubFast()

	if _, err := s.Play(context.Background(), ss.ID, 0); err != nil {
		t.Fatalf("play1: %v", err)
	}
	select {
	case <-fastCh:
	case <-ctxFast.Done():
		t.Fatalf("fast subscriber did not receive first update")
	}
	st, _ := s.Get(ss.ID)
	if _, err := s.Play(context.Background(), ss.ID, st.Round.Board.EmptyCells()[0]); err != nil {
		t.Fatalf("play2: %v", err)
	}
	select {
	case <-fastCh:
	case <-ctxFast.Done():
		t.Fatalf("fast subscriber did not receive second update")
	}

	// slow channel holds the first payload and was closed on the second
	if _, ok := <-slowCh; !ok {
		t.Fatalf("expected buffered payload before close")
	}
	if _, ok := <-slowCh; ok {
		t.Fatalf("expected slow subscriber to be closed")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := newTestService(t)
	ss, _ := s.CreateSession(context.Background(), "p1")
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := s.Subscribe(ctx, ss.ID)
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestBusySessionDoesNotBlockOthers(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	a, _ := s.CreateSession(ctx, "a")
	b, _ := s.CreateSession(ctx, "b")

	// hold a's lock the way a running bot search does
	e, ok := s.lookup(a.ID)
	if !ok {
		t.Fatalf("session %s missing", a.ID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		if _, err := s.Play(ctx, b.ID, 4); err != nil {
			done <- err
			return
		}
		if _, ok := s.Get(b.ID); !ok {
			done <- ErrNotFound
			return
		}
		_, err := s.CreateSession(ctx, "c")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("other session failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("other sessions blocked behind a busy session")
	}
}
