package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itamarsh/listcast/browser"
	"github.com/itamarsh/listcast/models"
	"github.com/itamarsh/listcast/snapshot"
)

type fakeSite struct{}

func (fakeSite) FeedReady() string                { return "feed-ready" }
func (fakeSite) Items() string                    { return "items" }
func (fakeSite) AnchorPresent(id string) string   { return "anchor:" + id }
func (fakeSite) ItemPresent(id string) string     { return "present:" + id }
func (fakeSite) ForceRender(id string) string     { return "render:" + id }
func (fakeSite) CaptureRegion(id string) string   { return "region:" + id }
func (fakeSite) HideChrome() string               { return "hide-chrome" }
func (fakeSite) ReshareBanner(name string) string { return "banner:" + name }
func (fakeSite) FontPatch() string                { return "font-patch" }
func (fakeSite) ScrollBy(pixels int) string       { return fmt.Sprintf("scroll:%d", pixels) }
func (fakeSite) LoginProbe() string               { return "login" }
func (fakeSite) PermalinkURL(href string) string  { return "https://example.test" + href }
func (fakeSite) Origin() string                   { return "https://example.test" }

type fakeTab struct {
	presenceErr error
	region      *browser.Region
	shot        []byte
	shotErr     error

	screenshots int
	evaluated   []string
}

func (f *fakeTab) Navigate(ctx context.Context, url string) error { return nil }

func (f *fakeTab) WaitFor(ctx context.Context, pred string) error {
	if strings.HasPrefix(pred, "present:") {
		return f.presenceErr
	}
	return nil
}

func (f *fakeTab) Evaluate(ctx context.Context, expr string, out any) error {
	f.evaluated = append(f.evaluated, expr)
	if strings.HasPrefix(expr, "region:") {
		*out.(**browser.Region) = f.region
	}
	return nil
}

func (f *fakeTab) Screenshot(ctx context.Context, clip browser.Region) ([]byte, error) {
	f.screenshots++
	return f.shot, f.shotErr
}

func (f *fakeTab) BringToFront(ctx context.Context) error { return nil }

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testEngine(t *testing.T, tab *fakeTab) (*Engine, *snapshot.Store) {
	t.Helper()
	store := snapshot.NewStore(t.TempDir())
	e := New(tab, fakeSite{}, store, t.TempDir(), "")
	e.sleep = func(time.Duration) {}
	return e, store
}

func testRecord() (*models.ItemRecord, map[string]*models.ItemRecord) {
	rec := models.NewRecord(models.Item{
		ID: "42", Username: "author", Href: "/author/status/42",
		AuthorName: "Author", Timestamp: "2025-07-30T10:00:00",
	}, []string{models.ChannelTelegram})
	return rec, map[string]*models.ItemRecord{rec.Key: rec}
}

func TestCaptureSuccess(t *testing.T) {
	tab := &fakeTab{
		region: &browser.Region{X: 0, Y: 120, Width: 650, Height: 900},
		shot:   pngBytes(t, 10, 10, color.White),
	}
	e, store := testEngine(t, tab)
	rec, records := testRecord()

	path, err := e.Capture("feed", rec, records)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.Dir, "tweet_author_42.png"), path)
	assert.FileExists(t, path)
	assert.Equal(t, path, rec.ArtifactPath)
	assert.Equal(t, 0, rec.CaptureTimeouts)

	persisted := store.Load("feed")
	assert.Equal(t, path, persisted["42"].ArtifactPath)
}

func TestCaptureTimeoutIncrementsAndPersists(t *testing.T) {
	tab := &fakeTab{presenceErr: errors.New("polling timed out")}
	e, store := testEngine(t, tab)
	rec, records := testRecord()

	_, err := e.Capture("feed", rec, records)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, rec.CaptureTimeouts)
	assert.Empty(t, rec.ArtifactPath)

	persisted := store.Load("feed")
	assert.Equal(t, 1, persisted["42"].CaptureTimeouts)
	assert.False(t, Excluded(rec))

	_, err = e.Capture("feed", rec, records)
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, Excluded(rec), "two consecutive timeouts exclude the item")
}

func TestCaptureTimeoutCounterResetsOnSuccess(t *testing.T) {
	tab := &fakeTab{
		region: &browser.Region{Width: 650, Height: 400},
		shot:   pngBytes(t, 10, 10, color.White),
	}
	e, _ := testEngine(t, tab)
	rec, records := testRecord()
	rec.CaptureTimeouts = 1

	_, err := e.Capture("feed", rec, records)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.CaptureTimeouts)
}

func TestCaptureSkipsWhenArtifactExists(t *testing.T) {
	tab := &fakeTab{region: &browser.Region{Width: 650, Height: 400}}
	e, _ := testEngine(t, tab)
	rec, records := testRecord()

	existing := filepath.Join(e.Dir, rec.ArtifactFilename())
	require.NoError(t, os.WriteFile(existing, []byte("already here"), 0o644))

	path, err := e.Capture("feed", rec, records)
	require.NoError(t, err)
	assert.Equal(t, existing, path)
	assert.Equal(t, existing, rec.ArtifactPath)
	assert.Equal(t, 0, tab.screenshots, "must not recapture an existing artifact")
}

func TestCaptureFailsWhenRegionUnavailable(t *testing.T) {
	tab := &fakeTab{region: nil}
	e, _ := testEngine(t, tab)
	rec, records := testRecord()

	_, err := e.Capture("feed", rec, records)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Empty(t, rec.ArtifactPath)
}

func TestCaptureInjectsReshareBanner(t *testing.T) {
	tab := &fakeTab{
		region: &browser.Region{Width: 650, Height: 400},
		shot:   pngBytes(t, 10, 10, color.White),
	}
	e, _ := testEngine(t, tab)

	rec := models.NewRecord(models.Item{
		ID: "7", Username: "author", Href: "/author/status/7",
		Reshare: true, ResharerName: "Re Sharer", ResharerUsername: "rs",
	}, nil)
	records := map[string]*models.ItemRecord{rec.Key: rec}

	_, err := e.Capture("feed", rec, records)
	require.NoError(t, err)
	assert.Contains(t, tab.evaluated, "banner:Re Sharer")
}

func TestCaptureWatermarkFailureIsNotFatal(t *testing.T) {
	tab := &fakeTab{
		region: &browser.Region{Width: 650, Height: 400},
		shot:   pngBytes(t, 10, 10, color.White),
	}
	e, _ := testEngine(t, tab)
	e.WatermarkPath = filepath.Join(t.TempDir(), "missing.png")
	rec, records := testRecord()

	path, err := e.Capture("feed", rec, records)
	require.NoError(t, err)
	assert.FileExists(t, path)
}
