package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Region is a capture clip in page coordinates.
type Region struct {
	X      int64 `json:"x"`
	Y      int64 `json:"y"`
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Tab is the capability surface the pipeline needs from one live browser
// tab. The feed extractor and capture engine only ever see this interface,
// so both can run against a fake in tests.
type Tab interface {
	// Navigate loads url and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// WaitFor polls the JS predicate until it is truthy or ctx expires.
	WaitFor(ctx context.Context, pred string) error
	// Evaluate runs the expression in the page, awaiting promises, and
	// unmarshals the result into out (which may be nil).
	Evaluate(ctx context.Context, expr string, out any) error
	// Screenshot captures exactly the given page region as PNG bytes.
	Screenshot(ctx context.Context, clip Region) ([]byte, error)
	// BringToFront gives the tab rendering focus.
	BringToFront(ctx context.Context) error
}

// chromeTab drives one chromedp tab context. Tab operations honor the
// caller's deadline by deriving a child of the tab's own context.
type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (t *chromeTab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := t.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(t.ctx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (t *chromeTab) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (t *chromeTab) WaitFor(ctx context.Context, pred string) error {
	return t.run(ctx, chromedp.Poll(pred, nil))
}

func (t *chromeTab) Evaluate(ctx context.Context, expr string, out any) error {
	return t.run(ctx, chromedp.Evaluate(expr, out,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
}

func (t *chromeTab) Screenshot(ctx context.Context, clip Region) ([]byte, error) {
	var buf []byte
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithClip(&page.Viewport{
				X:      float64(clip.X),
				Y:      float64(clip.Y),
				Width:  float64(clip.Width),
				Height: float64(clip.Height),
				Scale:  1,
			}).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (t *chromeTab) BringToFront(ctx context.Context) error {
	return t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}
