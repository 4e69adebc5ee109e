package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/adapters"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/app"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/config"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/web"
)

func main() {
	cfgPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, logger)

	scores, closeScores := initScores(ctx, logger, *cfg)
	defer closeScores()

	searcher, err := cfg.Searcher()
	if err != nil {
		logger.Fatal("init searcher", zap.Error(err))
	}
	svc := app.NewService(
		app.WithSearcher(searcher),
		app.WithScores(scores),
		app.WithLogger(logger.Named("match")),
	)
	handler := web.NewServer(svc,
		web.WithLogger(logger.Named("http")),
		web.WithSearcher(searcher),
		web.WithHeartbeat(cfg.SSEHeartbeat),
	)

	srv := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.Addr), zap.Error(err))
	}
	logger.Info("server is running",
		zap.String("addr", ln.Addr().String()),
		zap.Stringer("order", searcher.Order()),
		zap.Bool("parallel", searcher.Parallel()),
	)
	if err := serve(ctx, srv, ln, 5*time.Second); err != nil {
		logger.Error("server", zap.Error(err))
	}
	logger.Info("server stopped")
}

// serve runs srv on ln until ctx ends, then waits for in-flight requests to
// drain before returning.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, drain time.Duration) error {
	drained := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		drained <- srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-drained; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// initScores uses Redis when a URL is configured and falls back to memory.
func initScores(ctx context.Context, logger *zap.Logger, cfg config.Config) (app.ScoreStore, func()) {
	if cfg.RedisURL == "" {
		return app.NewMemoryScores(), func() {}
	}
	redisAdapter := adapters.NewAdapterRedis(cfg.RedisURL, logger.Named("redis"))
	if err := redisAdapter.Init(ctx); err != nil {
		logger.Warn("redis unavailable, keeping scores in memory", zap.Error(err))
		return app.NewMemoryScores(), func() {}
	}
	return app.NewRedisScores(redisAdapter.GetClient(), cfg.ScoreTTL), func() {
		if err := redisAdapter.Close(context.Background()); err != nil {
			logger.Warn("close redis", zap.Error(err))
		}
	}
}

func handleShutdown(cancel context.CancelFunc, logger *zap.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info("received shutdown signal")
	cancel()
}
