// Package capture turns one item's live permalink view into a bounded
// bitmap artifact on disk.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/itamarsh/listcast/browser"
	"github.com/itamarsh/listcast/models"
	"github.com/itamarsh/listcast/sites"
	"github.com/itamarsh/listcast/snapshot"
)

// MaxTimeouts is the number of consecutive presence-wait failures after
// which an item is permanently excluded from capture attempts.
const MaxTimeouts = 2

// ErrTimeout is returned when the target item never rendered within budget.
// The record's timeout counter has already been incremented and persisted.
var ErrTimeout = errors.New("capture: target item not found in time")

// Engine captures one item at a time on a tab it does not own.
type Engine struct {
	Tab   browser.Tab
	Site  sites.Adapter
	Store *snapshot.Store

	// Dir is where artifacts land.
	Dir string
	// WatermarkPath is the overlay image stamped onto every artifact.
	// Empty disables watermarking.
	WatermarkPath string

	NavTimeout      time.Duration
	PresenceTimeout time.Duration
	SettleDelay     time.Duration

	sleep func(time.Duration)
}

func New(tab browser.Tab, site sites.Adapter, store *snapshot.Store, dir, watermarkPath string) *Engine {
	return &Engine{
		Tab:             tab,
		Site:            site,
		Store:           store,
		Dir:             dir,
		WatermarkPath:   watermarkPath,
		NavTimeout:      30 * time.Second,
		PresenceTimeout: 30 * time.Second,
		SettleDelay:     300 * time.Millisecond,
		sleep:           time.Sleep,
	}
}

// Capture navigates to rec's permalink and produces its artifact, updating
// rec and persisting through the snapshot store. Returns ErrTimeout when the
// item never rendered; the caller decides whether to keep going.
func (e *Engine) Capture(basename string, rec *models.ItemRecord, records map[string]*models.ItemRecord) (string, error) {
	log := slog.With(slog.String("item", rec.Key))

	url := e.Site.PermalinkURL(rec.Href)
	navCtx, cancel := context.WithTimeout(context.Background(), e.NavTimeout)
	defer cancel()
	if err := e.Tab.Navigate(navCtx, url); err != nil {
		return "", fmt.Errorf("capture navigation: %w", err)
	}

	if err := e.waitReady(rec.ID); err != nil {
		rec.CaptureTimeouts++
		log.Warn("target item never rendered",
			slog.Int("timeouts", rec.CaptureTimeouts), slog.Any("error", err))
		if saveErr := e.Store.Save(basename, records); saveErr != nil {
			log.Error("failed to persist timeout counter", slog.Any("error", saveErr))
		}
		return "", ErrTimeout
	}
	rec.CaptureTimeouts = 0

	if err := e.Tab.Evaluate(context.Background(), e.Site.FontPatch(), nil); err != nil {
		log.Warn("font patch failed", slog.Any("error", err))
	}

	path := filepath.Join(e.Dir, rec.ArtifactFilename())
	if _, err := os.Stat(path); err == nil {
		log.Info("artifact already exists, skipping capture", slog.String("path", path))
		rec.ArtifactPath = path
		return path, e.Store.Save(basename, records)
	}

	region, err := e.measure(rec.ID)
	if err != nil {
		return "", err
	}

	// Re-pin the scroll position the region was measured at.
	if err := e.Tab.Evaluate(context.Background(), fmt.Sprintf("window.scrollTo(0, %d)", region.Y), nil); err != nil {
		log.Warn("region scroll failed", slog.Any("error", err))
	}
	e.sleep(e.SettleDelay)

	if err := e.Tab.Evaluate(context.Background(), e.Site.HideChrome(), nil); err != nil {
		log.Warn("chrome strip failed", slog.Any("error", err))
	}
	if rec.Reshare {
		if err := e.Tab.Evaluate(context.Background(), e.Site.ReshareBanner(rec.ResharerName), nil); err != nil {
			log.Warn("reshare banner injection failed", slog.Any("error", err))
		}
	}

	img, err := e.Tab.Screenshot(context.Background(), *region)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating artifact dir: %w", err)
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	log.Info("artifact captured", slog.String("path", path))

	rec.ArtifactPath = path
	if err := e.Store.Save(basename, records); err != nil {
		return "", err
	}

	if e.WatermarkPath != "" {
		// The artifact stays valid even when the overlay fails.
		if err := Watermark(path, e.WatermarkPath, 0.3); err != nil {
			log.Warn("watermark failed", slog.Any("error", err))
		}
	}

	return path, nil
}

// waitReady blocks until the item is present and fully rendered (fonts and
// images decoded) so the measured geometry is final.
func (e *Engine) waitReady(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.PresenceTimeout)
	defer cancel()

	if err := e.Tab.WaitFor(ctx, e.Site.ItemPresent(id)); err != nil {
		return err
	}
	return e.Tab.Evaluate(ctx, e.Site.ForceRender(id), nil)
}

// measure computes the capture region. A null region is a structural
// absence, not a crash: the item stays pending without an artifact.
func (e *Engine) measure(id string) (*browser.Region, error) {
	var region *browser.Region
	if err := e.Tab.Evaluate(context.Background(), e.Site.CaptureRegion(id), &region); err != nil {
		return nil, fmt.Errorf("measuring capture region: %w", err)
	}
	if region == nil || region.Width <= 0 || region.Height <= 0 {
		return nil, fmt.Errorf("capture region unavailable for item %s", id)
	}
	return region, nil
}

// Excluded reports whether a record has timed out often enough to be
// dropped from all future capture attempts.
func Excluded(rec *models.ItemRecord) bool {
	return rec.CaptureTimeouts >= MaxTimeouts
}
