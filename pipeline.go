package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/itamarsh/listcast/browser"
	"github.com/itamarsh/listcast/capture"
	"github.com/itamarsh/listcast/config"
	"github.com/itamarsh/listcast/delivery"
	"github.com/itamarsh/listcast/feed"
	"github.com/itamarsh/listcast/models"
	"github.com/itamarsh/listcast/sites"
	"github.com/itamarsh/listcast/snapshot"
)

// tabRotationInterval keeps every feed tab periodically focused so the
// renderer keeps laying out all of them.
const tabRotationInterval = 5 * time.Second

// runPipeline executes one full cycle over every active feed against a
// single shared browser process. The browser is torn down before returning,
// success or not.
func runPipeline(ctx context.Context, cfg config.Config, feeds []models.FeedConfig, site sites.Adapter, store *snapshot.Store, dispatcher *delivery.Dispatcher) error {
	pool, err := browser.NewPool(browser.PoolConfig{
		Headless:    cfg.Browser.Headless,
		CookiesPath: cfg.Browser.CookiesPath,
		Origin:      site.Origin(),
		LoginProbe:  site.LoginProbe(),
	})
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	defer pool.Close()

	tabs := make(map[string]browser.Tab, len(feeds))
	for _, f := range feeds {
		tab, err := pool.OpenTab(f.Key)
		if err != nil {
			return fmt.Errorf("opening tab for %s: %w", f.Key, err)
		}
		tabs[f.Key] = tab
	}
	pool.StartRotation(tabRotationInterval)

	var wg sync.WaitGroup
	for _, f := range feeds {
		wg.Add(1)
		go func(f models.FeedConfig) {
			defer wg.Done()
			log := slog.With(slog.String("feed", f.Key))
			defer func() {
				if r := recover(); r != nil {
					log.Error("feed task panicked",
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())))
				}
			}()
			if err := processFeed(ctx, cfg, f, tabs[f.Key], site, store, dispatcher); err != nil {
				log.Error("feed task failed", slog.Any("error", err))
			}
		}(f)
	}
	wg.Wait()
	return nil
}

// processFeed runs one feed end to end: extract new items, register them
// in the snapshot, then capture and deliver everything still pending.
func processFeed(ctx context.Context, cfg config.Config, f models.FeedConfig, tab browser.Tab, site sites.Adapter, store *snapshot.Store, dispatcher *delivery.Dispatcher) error {
	log := slog.With(slog.String("feed", f.Key))

	records := store.Load(f.DBBasename)

	result, err := feed.New(tab, site).Run(f.URL, records)
	if err != nil {
		return fmt.Errorf("extracting feed: %w", err)
	}
	log.Info("extraction finished",
		slog.String("reason", string(result.Reason)),
		slog.Int("items", len(result.Items)))

	channels := f.Channels()
	if _, err := store.Register(f.DBBasename, records, result.Items, channels); err != nil {
		return fmt.Errorf("registering items: %w", err)
	}

	engine := capture.New(tab, site, store, cfg.Listcast.ArtifactDir, cfg.Listcast.WatermarkPath)

	for _, rec := range dispatcher.Pending(records, channels) {
		if rec.ArtifactPath == "" {
			if _, err := engine.Capture(f.DBBasename, rec, records); err != nil {
				if errors.Is(err, capture.ErrTimeout) {
					log.Warn("capture timed out", slog.String("item", rec.Key))
				} else {
					log.Error("capture failed", slog.String("item", rec.Key), slog.Any("error", err))
				}
				continue
			}
		}
		for _, ch := range channels {
			if !rec.PendingFor(ch) {
				continue
			}
			if err := dispatcher.Send(ctx, f, records, rec, ch); err != nil {
				log.Warn("delivery failed, leaving pending",
					slog.String("item", rec.Key),
					slog.String("channel", ch),
					slog.Any("error", err))
			}
		}
	}
	return nil
}
