package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/itamarsh/listcast/config"
	"github.com/itamarsh/listcast/delivery"
	"github.com/itamarsh/listcast/models"
	"github.com/itamarsh/listcast/sites"
	"github.com/itamarsh/listcast/snapshot"
)

const (
	runCooldown   = 30 * time.Second
	errorCooldown = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.GetLogLevel(),
	})))

	feeds, err := config.LoadLists(cfg.Listcast.ListsPath)
	if err != nil {
		slog.Error("Failed to load lists config", slog.Any("error", err))
		os.Exit(1)
	}
	var active []models.FeedConfig
	for _, f := range feeds {
		if f.Active {
			active = append(active, f)
		}
	}
	if len(active) == 0 {
		slog.Error("No active feeds configured")
		os.Exit(1)
	}
	slog.Info("Loaded feed config",
		slog.Int("feeds", len(feeds)), slog.Int("active", len(active)))

	for _, dir := range []string{cfg.Listcast.SnapshotDir, cfg.Listcast.ArtifactDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("Failed to create data directory",
				slog.String("dir", dir), slog.Any("error", err))
			os.Exit(1)
		}
	}

	store := snapshot.NewStore(cfg.Listcast.SnapshotDir)

	channels := []delivery.Channel{delivery.NewTelegram(cfg.Telegram.Token)}
	if cfg.Pushover.Token != "" {
		channels = append(channels, delivery.NewPushover(cfg.Pushover.Token))
	}
	dispatcher := delivery.NewDispatcher(store, channels...)

	site := sites.NewXCom()
	ctx := context.Background()

	// The pipeline is expected to fall over occasionally (browser crashes,
	// network loss). The supervisor just starts a fresh run after a cooldown.
	for {
		start := time.Now()
		if err := runPipeline(ctx, cfg, active, site, store, dispatcher); err != nil {
			slog.Error("Run failed", slog.Any("error", err))
			time.Sleep(errorCooldown)
			continue
		}
		slog.Info("Run finished", slog.Duration("took", time.Since(start)))
		time.Sleep(runCooldown)
	}
}
