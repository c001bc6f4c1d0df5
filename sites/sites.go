// Package sites isolates everything that depends on the remote site's
// markup. The pipeline only ever talks to a live page through the browser
// capability interface, feeding it script text obtained here, so when the
// site shuffles its DOM around the blast radius is exactly one adapter.
package sites

// Adapter supplies the page-side scripts for one site. Scripts that take an
// argument must embed it safely (ids are digits-only, names are injected as
// JSON strings).
type Adapter interface {
	// FeedReady is a predicate: the feed view has rendered at least one
	// content anchor.
	FeedReady() string
	// Items evaluates to an array of item objects matching models.Item.
	Items() string
	// AnchorPresent is a predicate: the item with this id is still in the DOM.
	AnchorPresent(id string) string
	// ItemPresent is a predicate: the permalink view shows the item.
	ItemPresent(id string) string
	// ForceRender resolves once fonts and images inside the target item have
	// finished decoding, so geometry measured afterwards is final.
	ForceRender(id string) string
	// CaptureRegion resolves to {x,y,width,height} in page coordinates for
	// the item (including a preceding sibling when present) down through its
	// engagement controls, or null when it cannot be computed.
	CaptureRegion(id string) string
	// HideChrome strips transient UI (pinned overlay banner, follow prompts,
	// translation and secondary-action controls) before capturing.
	HideChrome() string
	// ReshareBanner injects a synthetic reshare attribution for the given
	// display name.
	ReshareBanner(name string) string
	// FontPatch pins the text size used in captures.
	FontPatch() string
	// ScrollBy scrolls the view vertically by the given pixel delta.
	ScrollBy(pixels int) string
	// LoginProbe is a predicate: the session cookie produced a logged-in view.
	LoginProbe() string
	// PermalinkURL resolves an item href to an absolute URL.
	PermalinkURL(href string) string
	// Origin is the site origin cookies are set against.
	Origin() string
}
