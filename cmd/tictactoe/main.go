package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/app"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/config"
	"github.com/jaminalder/unbeatable-tic-tac-toe/internal/console"
)

func main() {
	cfgPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	zero := flag.Bool("zero", false, "number cells 0-8 instead of 1-9")
	verbose := flag.Bool("v", false, "log to stderr")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := zap.NewNop()
	if *verbose {
		if logger, err = cfg.NewLogger(); err != nil {
			fmt.Fprintln(os.Stderr, "init logger:", err)
			os.Exit(1)
		}
	}
	defer func() { _ = logger.Sync() }()

	searcher, err := cfg.Searcher()
	if err != nil {
		fmt.Fprintln(os.Stderr, "init searcher:", err)
		os.Exit(1)
	}
	svc := app.NewService(app.WithSearcher(searcher), app.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := console.New(svc, os.Stdin, os.Stdout, console.WithZeroBased(*zero))
	if err := c.Run(ctx, "console"); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println()
}
