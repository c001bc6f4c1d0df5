package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/itamarsh/listcast/models"
)

// Telegram delivers artifacts as bot photo uploads. One instance is shared
// by every feed task; the underlying HTTP session is created once, on first
// use.
type Telegram struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client

	initOnce sync.Once
}

func NewTelegram(token string) *Telegram {
	return &Telegram{
		Token:   token,
		BaseURL: "https://api.telegram.org",
	}
}

func (t *Telegram) ID() string { return models.ChannelTelegram }

// apiResponse is the error shape of the Bot API: a 429 carries the
// retry-after hint under parameters.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// SendPhoto uploads the image as a multipart sendPhoto call. A rate-limit
// response surfaces as *RateLimitError so the dispatcher can back off.
func (t *Telegram) SendPhoto(ctx context.Context, chatID, path, caption string) error {
	t.initOnce.Do(func() {
		if t.HTTPClient == nil {
			t.HTTPClient = &http.Client{Timeout: 90 * time.Second}
		}
	})

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("chat_id", chatID); err != nil {
		return err
	}
	if err := form.WriteField("caption", caption); err != nil {
		return err
	}
	part, err := form.CreateFormFile("photo", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	if err := form.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", t.BaseURL, t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	res, err := t.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending photo: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	raw, _ := io.ReadAll(res.Body)
	var apiRes apiResponse
	if err := json.Unmarshal(raw, &apiRes); err == nil &&
		apiRes.ErrorCode == http.StatusTooManyRequests && apiRes.Parameters.RetryAfter > 0 {
		return &RateLimitError{RetryAfter: apiRes.Parameters.RetryAfter, Description: apiRes.Description}
	}
	return fmt.Errorf("telegram status %d: %s", res.StatusCode, string(raw))
}
