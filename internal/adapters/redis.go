package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type AdapterRedis struct {
	client *redis.Client
	url    string
	log    *zap.Logger
}

func NewAdapterRedis(url string, log *zap.Logger) *AdapterRedis {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdapterRedis{url: url, log: log}
}

// Init connects using a redis:// URL and pings the server.
func (a *AdapterRedis) Init(ctx context.Context) error {
	opts, err := redis.ParseURL(a.url)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	a.client = redis.NewClient(opts)

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.client.Ping(ctxPing).Err(); err != nil {
		_ = a.client.Close()
		a.client = nil
		return fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}

	a.log.Info("connected to redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return nil
}

func (a *AdapterRedis) GetClient() *redis.Client {
	return a.client
}

func (a *AdapterRedis) Close(ctx context.Context) error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}
