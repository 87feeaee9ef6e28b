package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"anisync/internal/config"
	"anisync/internal/schedule"
	"anisync/internal/scheduler"
	"anisync/internal/store"
	"anisync/pkg/anilist"
	"anisync/pkg/logging"
	"anisync/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildScheduler(cfg *config.Config, db *store.SQLStore) *scheduler.Scheduler {
	client := anilist.New(anilist.Config{
		URL:       cfg.AniList.URL,
		PerPage:   cfg.AniList.PerPage,
		Formats:   cfg.AniList.Formats,
		UserAgent: cfg.AniList.UserAgent,
	})
	selector := schedule.NewSelector(db, cfg.Schedule.ParseLookahead())
	return scheduler.New(client, db, selector, cfg.Schedule.ParseInterval())
}

func runDaemon() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := buildScheduler(cfg, db)
	srv := server.New(db, cfg.Server.Addr)

	logger.Info().Str("interval", cfg.Schedule.Interval).Msg("Starting sync daemon")

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return sched.Run(ctx) })
	group.Go(func() error { return srv.Run(ctx) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runOnce() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Setup(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	sched := buildScheduler(cfg, db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return sched.RunCycle(ctx)
}
