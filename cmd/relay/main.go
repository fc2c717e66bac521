package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/donkeithross3-commits/ma-tracker-relay/internal"
	"github.com/donkeithross3-commits/ma-tracker-relay/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := internal.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresConnStr())
	if err != nil {
		return fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.PostgresPoolMaxConn)
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging postgres: %w", err)
	}

	repos := repository.NewPostgresFactory(db)

	relay, err := internal.New(ctx, cfg, repos)
	if err != nil {
		return fmt.Errorf("initializing relay: %w", err)
	}

	if err := relay.Start(); err != nil {
		return fmt.Errorf("starting relay: %w", err)
	}

	<-ctx.Done()

	return relay.Shutdown()
}
