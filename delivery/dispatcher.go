package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/itamarsh/listcast/capture"
	"github.com/itamarsh/listcast/models"
	"github.com/itamarsh/listcast/snapshot"
)

// maxAttempts bounds one item/channel send: the first try plus two
// rate-limit retries.
const maxAttempts = 3

// Dispatcher owns the channel sessions and the delivery policy. One
// instance is constructed at startup and shared by all feed tasks.
type Dispatcher struct {
	store    *snapshot.Store
	channels map[string]Channel

	sleep func(time.Duration)
}

func NewDispatcher(store *snapshot.Store, channels ...Channel) *Dispatcher {
	byID := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ID()] = ch
	}
	return &Dispatcher{store: store, channels: byID, sleep: time.Sleep}
}

// Pending selects the records still awaiting delivery on at least one of
// the given channels, excluding capture-timeout casualties, oldest first.
// Discovery order is newest-first; delivery order must be chronological.
func (d *Dispatcher) Pending(records map[string]*models.ItemRecord, channels []string) []*models.ItemRecord {
	var pending []*models.ItemRecord
	for _, rec := range records {
		if capture.Excluded(rec) {
			continue
		}
		for _, ch := range channels {
			if rec.PendingFor(ch) {
				pending = append(pending, rec)
				break
			}
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		ti, tj := pending[i].ObservedAt(), pending[j].ObservedAt()
		if ti.Equal(tj) {
			return pending[i].Key < pending[j].Key
		}
		return ti.Before(tj)
	})
	return pending
}

// Send delivers rec's artifact on one channel and persists the delivered
// flag on confirmed success. A missing artifact is a skip, not a retry. A
// rate-limit response waits out the hint and retries, at most twice; any
// other failure leaves the item pending for a future run.
func (d *Dispatcher) Send(ctx context.Context, feed models.FeedConfig, records map[string]*models.ItemRecord, rec *models.ItemRecord, channelID string) error {
	log := slog.With(slog.String("feed", feed.Key), slog.String("item", rec.Key), slog.String("channel", channelID))

	ch, ok := d.channels[channelID]
	if !ok {
		log.Error("unknown delivery channel")
		return nil
	}
	if rec.ArtifactPath == "" {
		log.Warn("no artifact yet, skipping delivery")
		return nil
	}

	target := feed.ChannelTarget(channelID)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := ch.SendPhoto(ctx, target, rec.ArtifactPath, rec.Caption())
		if err == nil {
			rec.Delivered[channelID] = true
			if saveErr := d.store.Save(feed.DBBasename, records); saveErr != nil {
				log.Error("failed to persist delivery state", slog.Any("error", saveErr))
				return saveErr
			}
			log.Info("delivered", slog.Int("attempt", attempt))
			return nil
		}

		var rl *RateLimitError
		if errors.As(err, &rl) && attempt < maxAttempts {
			log.Warn("rate limited, backing off",
				slog.Int("retry_after_seconds", rl.RetryAfter), slog.Int("attempt", attempt))
			d.sleep(time.Duration(rl.RetryAfter) * time.Second)
			continue
		}

		// Leave the item pending; the next run will pick it up again.
		log.Warn("delivery failed", slog.Int("attempt", attempt), slog.Any("error", err))
		return err
	}
	return nil
}
