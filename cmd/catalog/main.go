package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgo/catalog/internal/config"
	"github.com/forgo/catalog/internal/database"
	_ "github.com/forgo/catalog/internal/model" // registers the catalog kinds
)

const usage = `usage: catalog [flags] <command> [args]

commands:
  kinds                        list registered kinds
  count  <kind> [filter-json]  count entities matching filter
  export <kind> [filter-json]  write matching entities as a JSON array
  import <kind> <file|->       save every object of a JSON array
  get    <kind> <id>           print one entity
  remove <kind> <id>           delete one entity

flags:
`

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall command timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logger := slog.New(cfg.Log.Handler(os.Stderr))
	slog.SetDefault(logger)

	mgr, err := database.NewManager(cfg.Store(), database.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create database manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, *timeout)

	a := &app{db: mgr, in: os.Stdin, out: os.Stdout, log: logger}
	runErr := a.run(ctx, flag.Args())

	cancel()
	stop()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := mgr.Close(closeCtx); err != nil {
		slog.Warn("failed to close database manager", slog.String("error", err.Error()))
	}
	closeCancel()

	if runErr != nil {
		slog.Error("command failed",
			slog.String("command", flag.Arg(0)),
			slog.String("error", runErr.Error()))
		os.Exit(1)
	}
}
