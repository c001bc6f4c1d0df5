// Package feed turns a live, continuously-mutating list view into a stable
// ordered batch of newly observed items. The loop is a small state machine:
// scanning extracts and advances the scroll, recovering tries to scroll a
// lost anchor back into the DOM, and every exit carries an explicit
// termination reason.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/itamarsh/listcast/browser"
	"github.com/itamarsh/listcast/models"
	"github.com/itamarsh/listcast/sites"
)

// Reason says why an extraction run ended.
type Reason string

const (
	// ReasonNoContent: the feed never rendered a content anchor.
	ReasonNoContent Reason = "no_content"
	// ReasonCapReached: the item cap was hit.
	ReasonCapReached Reason = "cap_reached"
	// ReasonBudget: the wall-clock budget ran out.
	ReasonBudget Reason = "budget_exceeded"
	// ReasonAnchorKnown: the anchor is already in the snapshot, confirming
	// contiguity with prior runs.
	ReasonAnchorKnown Reason = "anchor_known"
	// ReasonAnchorLost: recovery scrolling could not bring the anchor back.
	ReasonAnchorLost Reason = "anchor_lost"
	// ReasonEvalTimeout: an extraction pass timed out; the batch is truncated.
	ReasonEvalTimeout Reason = "eval_timeout"
)

// Result is one bounded batch of newly observed items, oldest last.
type Result struct {
	Items  []models.Item
	Reason Reason
}

type state int

const (
	stateScanning state = iota
	stateRecovering
)

// Extractor pages through one feed on one tab.
type Extractor struct {
	Tab  browser.Tab
	Site sites.Adapter

	MaxItems     int
	Budget       time.Duration
	NavTimeout   time.Duration
	InitTimeout  time.Duration
	PollInterval time.Duration
	EvalTimeout  time.Duration
	RecoverWait  time.Duration
	ScrollWait   time.Duration
	ScrollStep   int
	MaxRecovery  int

	sleep func(time.Duration)
}

func New(tab browser.Tab, site sites.Adapter) *Extractor {
	return &Extractor{
		Tab:          tab,
		Site:         site,
		MaxItems:     10,
		Budget:       150 * time.Second,
		NavTimeout:   30 * time.Second,
		InitTimeout:  30 * time.Second,
		PollInterval: 5 * time.Second,
		EvalTimeout:  10 * time.Second,
		RecoverWait:  2500 * time.Millisecond,
		ScrollWait:   3 * time.Second,
		ScrollStep:   2000,
		MaxRecovery:  3,
		sleep:        time.Sleep,
	}
}

// Run navigates to feedURL and accumulates newly rendered items until one of
// the termination conditions fires. Navigation failure is the only error;
// everything else degrades into a (possibly empty) Result.
func (e *Extractor) Run(feedURL string, known map[string]*models.ItemRecord) (Result, error) {
	log := slog.With(slog.String("feed_url", feedURL))

	navCtx, cancel := context.WithTimeout(context.Background(), e.NavTimeout)
	defer cancel()
	if err := e.Tab.Navigate(navCtx, feedURL); err != nil {
		return Result{}, fmt.Errorf("feed navigation: %w", err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), e.InitTimeout)
	defer cancel()
	if err := e.Tab.WaitFor(initCtx, e.Site.FeedReady()); err != nil {
		log.Warn("feed showed no content within init window")
		return Result{Reason: ReasonNoContent}, nil
	}

	start := time.Now()
	var items []models.Item
	anchor := ""
	st := stateScanning

	for {
		switch st {
		case stateScanning:
			if len(items) >= e.MaxItems {
				return e.done(items, ReasonCapReached), nil
			}
			if time.Since(start) > e.Budget {
				log.Warn("extraction budget exceeded", slog.Int("items", len(items)))
				return e.done(items, ReasonBudget), nil
			}

			e.sleep(e.PollInterval)

			batch, err := e.extract()
			if err != nil {
				log.Warn("extraction pass timed out, truncating batch",
					slog.Int("items", len(items)), slog.Any("error", err))
				return e.done(items, ReasonEvalTimeout), nil
			}

			if anchor != "" && !containsID(batch, anchor) {
				st = stateRecovering
				continue
			}

			items = appendNew(items, batch)
			anchor = lastStableAnchor(items)

			if anchor != "" {
				if _, ok := known[anchor]; ok {
					log.Info("anchor already known, feed is contiguous",
						slog.String("anchor", anchor), slog.Int("items", len(items)))
					return e.done(items, ReasonAnchorKnown), nil
				}
			}

			if err := e.Tab.Evaluate(context.Background(), e.Site.ScrollBy(e.ScrollStep), nil); err != nil {
				log.Warn("forward scroll failed", slog.Any("error", err))
			}
			e.sleep(e.ScrollWait)

		case stateRecovering:
			if e.recoverAnchor(anchor, log) {
				st = stateScanning
				continue
			}
			log.Warn("unrecoverable overscroll", slog.String("anchor", anchor))
			return e.done(items, ReasonAnchorLost), nil
		}
	}
}

// extract runs one guarded extraction pass.
func (e *Extractor) extract() ([]models.Item, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.EvalTimeout)
	defer cancel()

	var batch []models.Item
	if err := e.Tab.Evaluate(ctx, e.Site.Items(), &batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// recoverAnchor scrolls backward up to MaxRecovery times looking for the
// anchor item to reappear.
func (e *Extractor) recoverAnchor(anchor string, log *slog.Logger) bool {
	for attempt := 1; attempt <= e.MaxRecovery; attempt++ {
		log.Warn("anchor missing, scrolling back",
			slog.String("anchor", anchor),
			slog.Int("attempt", attempt), slog.Int("max", e.MaxRecovery))

		if err := e.Tab.Evaluate(context.Background(), e.Site.ScrollBy(-e.ScrollStep), nil); err != nil {
			log.Warn("recovery scroll failed", slog.Any("error", err))
		}
		e.sleep(e.RecoverWait)

		var found bool
		if err := e.Tab.Evaluate(context.Background(), e.Site.AnchorPresent(anchor), &found); err != nil {
			log.Warn("anchor probe failed", slog.Any("error", err))
			continue
		}
		if found {
			log.Info("anchor reappeared", slog.String("anchor", anchor))
			return true
		}
	}
	return false
}

func (e *Extractor) done(items []models.Item, reason Reason) Result {
	if len(items) > e.MaxItems {
		items = items[:e.MaxItems]
	}
	return Result{Items: items, Reason: reason}
}

// lastStableAnchor returns the id of the oldest accumulated non-reshared
// item. Reshares make poor anchors: their feed position tracks the reshare
// event, not the item itself.
func lastStableAnchor(items []models.Item) string {
	for i := len(items) - 1; i >= 0; i-- {
		if !items[i].Reshare {
			return items[i].ID
		}
	}
	return ""
}

func containsID(items []models.Item, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// appendNew appends items from batch whose id has not been accumulated yet.
func appendNew(items []models.Item, batch []models.Item) []models.Item {
	for _, candidate := range batch {
		if candidate.ID == "" {
			continue
		}
		if !containsID(items, candidate.ID) {
			items = append(items, candidate)
		}
	}
	return items
}
