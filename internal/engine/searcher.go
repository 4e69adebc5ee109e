package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/domain"
)

// Order selects how candidate cells are visited, which decides the choice
// among equally scored moves.
type Order int

const (
	OrderAscending Order = iota
	OrderShuffled
)

func (o Order) String() string {
	if o == OrderShuffled {
		return "shuffled"
	}
	return "ascending"
}

// ParseOrder accepts "ascending" or "shuffled".
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ascending", "asc":
		return OrderAscending, nil
	case "shuffled", "random":
		return OrderShuffled, nil
	}
	return OrderAscending, fmt.Errorf("unknown search order %q", s)
}

// Decision is the outcome of one bot search.
type Decision struct {
	Mover   domain.Mark
	Cell    int
	Score   int
	Nodes   int64
	Elapsed time.Duration
}

// Candidate is a root cell with its exact minimax value.
type Candidate struct {
	Cell  int
	Score int
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithOrder sets the candidate order.
func WithOrder(o Order) Option { return func(s *Searcher) { s.order = o } }

// WithParallel evaluates root candidates concurrently.
func WithParallel(on bool) Option { return func(s *Searcher) { s.parallel = on } }

// WithRand sets the source used by OrderShuffled.
func WithRand(r *rand.Rand) Option {
	return func(s *Searcher) {
		if r != nil {
			s.rng = r
		}
	}
}

// Searcher wraps the minimax walk with ordering, concurrency and stats.
// It is safe for concurrent use.
type Searcher struct {
	order    Order
	parallel bool

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Searcher; by default it is sequential with ascending order.
func New(opts ...Option) *Searcher {
	s := &Searcher{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Order returns the configured candidate order.
func (s *Searcher) Order() Order { return s.order }

// Parallel reports whether root candidates run concurrently.
func (s *Searcher) Parallel() bool { return s.parallel }

// newWalker gives each walk its own shuffle source so walks never share a rand.Rand.
func (s *Searcher) newWalker() *walker {
	if s.order != OrderShuffled {
		return &walker{}
	}
	s.mu.Lock()
	r := rand.New(rand.NewPCG(s.rng.Uint64(), s.rng.Uint64()))
	s.mu.Unlock()
	return &walker{order: func(cells []int) {
		r.Shuffle(len(cells), func(i, j int) { cells[i], cells[j] = cells[j], cells[i] })
	}}
}

// Choose searches b for mover and returns the chosen cell and its score.
func (s *Searcher) Choose(ctx context.Context, b domain.Board, mover domain.Mark) (Decision, error) {
	start := time.Now()
	if _, err := legalCells(b, mover); err != nil {
		return Decision{}, err
	}
	d := Decision{Mover: mover}
	if !s.parallel {
		w := s.newWalker()
		d.Cell, d.Score = w.best(b, mover)
		d.Nodes = w.nodes
		d.Elapsed = time.Since(start)
		return d, nil
	}

	root := s.newWalker()
	cells := b.EmptyCells()
	if root.order != nil {
		root.order(cells)
	}
	results, nodes, err := s.scoreAll(ctx, b, mover, cells)
	if err != nil {
		return Decision{}, err
	}
	// first maximal in candidate order, same pick as the sequential walk
	d.Cell, d.Score = -1, math.MinInt
	for i, sc := range results {
		if sc > d.Score {
			d.Cell, d.Score = cells[i], sc
		}
	}
	d.Nodes = nodes
	d.Elapsed = time.Since(start)
	return d, nil
}

// Evaluate returns the exact value of every legal cell for mover, in
// ascending cell order.
func (s *Searcher) Evaluate(ctx context.Context, b domain.Board, mover domain.Mark) ([]Candidate, error) {
	cells, err := legalCells(b, mover)
	if err != nil {
		return nil, err
	}
	var scores []int
	if s.parallel {
		scores, _, err = s.scoreAll(ctx, b, mover, cells)
		if err != nil {
			return nil, err
		}
	} else {
		scores = make([]int, len(cells))
		for i, c := range cells {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			scores[i] = s.newWalker().score(b, c, mover)
		}
	}
	out := make([]Candidate, len(cells))
	for i, c := range cells {
		out[i] = Candidate{Cell: c, Score: scores[i]}
	}
	return out, nil
}

func (s *Searcher) scoreAll(ctx context.Context, b domain.Board, mover domain.Mark, cells []int) ([]int, int64, error) {
	scores := make([]int, len(cells))
	walkers := make([]*walker, len(cells))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range cells {
		w := s.newWalker()
		walkers[i] = w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[i] = w.score(b, c, mover)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	var nodes int64
	for _, w := range walkers {
		nodes += w.nodes
	}
	return scores, nodes, nil
}
