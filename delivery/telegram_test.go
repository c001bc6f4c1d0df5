package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func artifactFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tweet_author_42.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o644))
	return path
}

func TestSendPhotoSuccess(t *testing.T) {
	var gotChatID, gotCaption, gotFilename string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotChatID = r.FormValue("chat_id")
		gotCaption = r.FormValue("caption")
		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename

		assert.Equal(t, "/bottest-token/sendPhoto", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	tg := NewTelegram("test-token")
	tg.BaseURL = ts.URL

	err := tg.SendPhoto(context.Background(), "-100123", artifactFixture(t), "Some Author")
	require.NoError(t, err)
	assert.Equal(t, "-100123", gotChatID)
	assert.Equal(t, "Some Author", gotCaption)
	assert.Equal(t, "tweet_author_42.png", gotFilename)
}

func TestSendPhotoRateLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5","parameters":{"retry_after":5}}`))
	}))
	defer ts.Close()

	tg := NewTelegram("test-token")
	tg.BaseURL = ts.URL

	err := tg.SendPhoto(context.Background(), "-100123", artifactFixture(t), "caption")
	require.Error(t, err)

	rl, ok := err.(*RateLimitError)
	require.True(t, ok, "expected *RateLimitError, got %T", err)
	assert.Equal(t, 5, rl.RetryAfter)
}

func TestSendPhotoOtherFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer ts.Close()

	tg := NewTelegram("test-token")
	tg.BaseURL = ts.URL

	err := tg.SendPhoto(context.Background(), "-100123", artifactFixture(t), "caption")
	require.Error(t, err)
	_, isRateLimit := err.(*RateLimitError)
	assert.False(t, isRateLimit)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestSendPhotoMissingArtifact(t *testing.T) {
	tg := NewTelegram("test-token")
	err := tg.SendPhoto(context.Background(), "-100123", "/nope/missing.png", "caption")
	assert.Error(t, err)
}
