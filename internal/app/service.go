package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/domain"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/engine"
)

// Errors exposed by the service layer.
var (
	ErrNotFound        = errors.New("game not found")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrRoundInProgress = errors.New("round in progress")
	ErrRoundAborted    = errors.New("round aborted")
)

// The human always plays X and the bot O; who moves first alternates.
const (
	HumanMark = domain.X
	BotMark   = domain.O
)

// Session is the in-memory state of one player's series of rounds.
type Session struct {
	ID      string
	Player  string
	Round   domain.Round
	First   domain.Mark
	Tally   Tally
	LastBot *engine.Decision
	Created time.Time
	Updated time.Time

	recorded bool
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// send delivers b without blocking; a full buffer closes the subscriber.
func (s *subscriber) send(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- b:
		return true
	default:
		s.closed = true
		close(s.ch)
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// entry guards one session; a bot search holds only its own session's lock.
type entry struct {
	mu sync.Mutex
	ss *Session
}

// Service manages sessions, runs the bot and fans out updates.
// Lock order is entry.mu before Service.mu.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*entry
	subs     map[string]map[*subscriber]struct{}
	render   func(Session) []byte
	search   *engine.Searcher
	scores   ScoreStore
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRenderer sets the broadcast payload renderer.
func WithRenderer(renderer func(Session) []byte) Option {
	return func(s *Service) { s.render = renderer }
}

// WithSearcher sets the engine used for bot moves.
func WithSearcher(se *engine.Searcher) Option {
	return func(s *Service) { s.search = se }
}

// WithScores sets the scoreboard store.
func WithScores(store ScoreStore) Option {
	return func(s *Service) { s.scores = store }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a service with in-memory scores and an ascending-order searcher.
func NewService(opts ...Option) *Service {
	s := &Service{
		sessions: make(map[string]*entry),
		subs:     make(map[string]map[*subscriber]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.render == nil {
		s.render = func(Session) []byte { return nil }
	}
	if s.search == nil {
		s.search = engine.New()
	}
	if s.scores == nil {
		s.scores = NewMemoryScores()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// SetRenderer replaces the broadcast renderer function.
func (s *Service) SetRenderer(renderer func(Session) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if renderer == nil {
		s.render = func(Session) []byte { return nil }
		return
	}
	s.render = renderer
}

// CreateSession starts a series for player with the human moving first.
// An empty player gets the session id as its score key.
func (s *Service) CreateSession(ctx context.Context, player string) (*Session, error) {
	id := uuid.NewString()
	if player == "" {
		player = id
	}
	tally, err := s.scores.Load(ctx, player)
	if err != nil {
		s.log.Warn("load score failed", zap.String("player", player), zap.Error(err))
	}
	now := time.Now()
	ss := &Session{
		ID:      id,
		Player:  player,
		Round:   domain.NewRound(HumanMark, HumanMark),
		First:   HumanMark,
		Tally:   tally,
		Created: now,
		Updated: now,
	}
	s.mu.Lock()
	s.sessions[id] = &entry{ss: ss}
	cp := *ss
	s.mu.Unlock()
	s.log.Info("session created", zap.String("session", id), zap.String("player", player))
	return &cp, nil
}

// Get returns a copy of the session if present.
func (s *Service) Get(id string) (*Session, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *e.ss
	return &cp, true
}

func (s *Service) lookup(id string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	return e, ok
}

// Play applies the human move at cell and, if the round goes on, the bot reply.
// Domain errors leave the session untouched. A failing search resets the
// round and returns ErrRoundAborted.
func (s *Service) Play(ctx context.Context, id string, cell int) (*Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	ss := e.ss
	if ss.Round.Over() {
		e.mu.Unlock()
		return nil, domain.ErrGameOver
	}
	if ss.Round.Turn != ss.Round.Human {
		e.mu.Unlock()
		return nil, ErrNotYourTurn
	}
	if err := ss.Round.Apply(cell, ss.Round.Human); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	s.log.Debug("human move", zap.String("session", id), zap.Int("cell", cell))
	if !ss.Round.Over() {
		if err := s.botMoveLocked(ctx, ss); err != nil {
			s.abortLocked(ss)
			e.mu.Unlock()
			s.log.Error("round aborted", zap.String("session", id), zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrRoundAborted, err)
		}
	}
	s.finishLocked(ctx, ss)
	ss.Updated = time.Now()
	cp, subs, payload := s.snapshot(ss)
	e.mu.Unlock()

	s.publish(id, subs, payload)
	return &cp, nil
}

// NewRound starts the next round once the current one is over. The first
// mover alternates; when it is the bot's turn it moves straight away.
func (s *Service) NewRound(ctx context.Context, id string) (*Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	ss := e.ss
	if !ss.Round.Over() {
		e.mu.Unlock()
		return nil, ErrRoundInProgress
	}
	ss.First = ss.First.Opponent()
	ss.Round = domain.NewRound(HumanMark, ss.First)
	ss.LastBot = nil
	ss.recorded = false
	if ss.First == ss.Round.Bot {
		if err := s.botMoveLocked(ctx, ss); err != nil {
			s.abortLocked(ss)
			e.mu.Unlock()
			s.log.Error("round aborted", zap.String("session", id), zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrRoundAborted, err)
		}
	}
	ss.Updated = time.Now()
	cp, subs, payload := s.snapshot(ss)
	e.mu.Unlock()

	s.publish(id, subs, payload)
	return &cp, nil
}

func (s *Service) botMoveLocked(ctx context.Context, ss *Session) error {
	d, err := s.search.Choose(ctx, ss.Round.Board, ss.Round.Bot)
	if err != nil {
		return err
	}
	if err := ss.Round.Apply(d.Cell, ss.Round.Bot); err != nil {
		return err
	}
	ss.LastBot = &d
	s.log.Info("bot move",
		zap.String("session", ss.ID),
		zap.Int("cell", d.Cell),
		zap.Int("score", d.Score),
		zap.Int64("nodes", d.Nodes),
		zap.Duration("elapsed", d.Elapsed),
	)
	return nil
}

// abortLocked discards the current round and hands the fresh one to the human.
func (s *Service) abortLocked(ss *Session) {
	ss.First = HumanMark
	ss.Round = domain.NewRound(HumanMark, HumanMark)
	ss.LastBot = nil
	ss.recorded = false
	ss.Updated = time.Now()
}

// finishLocked counts a finished round exactly once.
func (s *Service) finishLocked(ctx context.Context, ss *Session) {
	if !ss.Round.Over() || ss.recorded {
		return
	}
	ss.recorded = true
	out := ss.Round.Outcome
	tally, err := s.scores.Record(ctx, ss.Player, out)
	if err != nil {
		s.log.Warn("record score failed", zap.String("player", ss.Player), zap.Error(err))
		tally = ss.Tally.Add(out)
	}
	ss.Tally = tally
	s.log.Info("round over",
		zap.String("session", ss.ID),
		zap.Stringer("outcome", out),
		zap.Int("human_wins", tally.HumanWins),
		zap.Int("ties", tally.Ties),
		zap.Int("bot_wins", tally.BotWins),
	)
}

// snapshot copies ss, which the caller has locked, with its subscribers and payload.
func (s *Service) snapshot(ss *Session) (Session, map[*subscriber]struct{}, []byte) {
	cp := *ss
	s.mu.Lock()
	subs := s.copySubsLocked(ss.ID)
	render := s.render
	s.mu.Unlock()
	return cp, subs, render(cp)
}

// publish fans out payload; slow subscribers are closed and dropped.
func (s *Service) publish(id string, subs map[*subscriber]struct{}, payload []byte) {
	var toDrop []*subscriber
	for sub := range subs {
		if !sub.send(payload) {
			toDrop = append(toDrop, sub)
		}
	}
	if len(toDrop) > 0 {
		s.mu.Lock()
		for _, sub := range toDrop {
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
			}
		}
		s.mu.Unlock()
		s.log.Debug("dropped slow subscribers", zap.String("session", id), zap.Int("count", len(toDrop)))
	}
}

// Subscribe registers a subscriber for a session. Returns a channel and an unsubscribe func.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan []byte, 1)}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(s.subs, id)
				}
			}
			s.mu.Unlock()
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub
}

func (s *Service) copySubsLocked(id string) map[*subscriber]struct{} {
	out := make(map[*subscriber]struct{})
	if set, ok := s.subs[id]; ok {
		for k := range set {
			out[k] = struct{}{}
		}
	}
	return out
}
