package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/domain"
)

// Tally is the running scoreboard of one player against the bot.
type Tally struct {
	HumanWins int `json:"human_wins"`
	Ties      int `json:"ties"`
	BotWins   int `json:"bot_wins"`
}

// Add returns t with one more o counted.
func (t Tally) Add(o domain.Outcome) Tally {
	switch o {
	case domain.HumanWin:
		t.HumanWins++
	case domain.BotWin:
		t.BotWins++
	case domain.Tie:
		t.Ties++
	}
	return t
}

// Total is the number of finished rounds.
func (t Tally) Total() int { return t.HumanWins + t.Ties + t.BotWins }

// ScoreStore keeps per-player counters. Only counters are stored, never boards.
type ScoreStore interface {
	Load(ctx context.Context, player string) (Tally, error)
	Record(ctx context.Context, player string, o domain.Outcome) (Tally, error)
}

// MemoryScores keeps counters for the life of the process.
type MemoryScores struct {
	mu     sync.Mutex
	tallys map[string]Tally
}

func NewMemoryScores() *MemoryScores {
	return &MemoryScores{tallys: make(map[string]Tally)}
}

func (m *MemoryScores) Load(_ context.Context, player string) (Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tallys[player], nil
}

func (m *MemoryScores) Record(_ context.Context, player string, o domain.Outcome) (Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tallys[player].Add(o)
	m.tallys[player] = t
	return t, nil
}

const (
	fieldHumanWins = "human_wins"
	fieldTies      = "ties"
	fieldBotWins   = "bot_wins"
)

// RedisScores keeps counters in one hash per player.
type RedisScores struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisScores stores hashes under "ttt:score:<player>". A zero ttl keeps
// them forever.
func NewRedisScores(client *redis.Client, ttl time.Duration) *RedisScores {
	return &RedisScores{client: client, prefix: "ttt:score:", ttl: ttl}
}

func (r *RedisScores) key(player string) string { return r.prefix + player }

func (r *RedisScores) Load(ctx context.Context, player string) (Tally, error) {
	m, err := r.client.HGetAll(ctx, r.key(player)).Result()
	if err != nil {
		return Tally{}, fmt.Errorf("load score %s: %w", player, err)
	}
	return tallyFromHash(m)
}

func (r *RedisScores) Record(ctx context.Context, player string, o domain.Outcome) (Tally, error) {
	field, ok := outcomeField(o)
	if !ok {
		return Tally{}, fmt.Errorf("record %v: %w", o, domain.ErrInvariantViolation)
	}
	key := r.key(player)
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	all := pipe.HGetAll(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Tally{}, fmt.Errorf("record score %s: %w", player, err)
	}
	return tallyFromHash(all.Val())
}

func outcomeField(o domain.Outcome) (string, bool) {
	switch o {
	case domain.HumanWin:
		return fieldHumanWins, true
	case domain.Tie:
		return fieldTies, true
	case domain.BotWin:
		return fieldBotWins, true
	}
	return "", false
}

func tallyFromHash(m map[string]string) (Tally, error) {
	var t Tally
	for field, dst := range map[string]*int{
		fieldHumanWins: &t.HumanWins,
		fieldTies:      &t.Ties,
		fieldBotWins:   &t.BotWins,
	} {
		v, ok := m[field]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Tally{}, fmt.Errorf("score field %s=%q: %w", field, v, err)
		}
		*dst = n
	}
	return t, nil
}
