// Package delivery sends captured artifacts to notification channels and
// records per-channel delivery state, honoring rate-limit signaling with
// bounded retry.
package delivery

import (
	"context"
	"fmt"
)

// Channel is one delivery destination kind.
type Channel interface {
	// ID is the stable channel identifier used in delivered flags and
	// feed configuration.
	ID() string
	// SendPhoto delivers the image at path with a caption to target
	// (a chat id or recipient key, depending on the channel).
	SendPhoto(ctx context.Context, target, path, caption string) error
}

// RateLimitError is a channel response telling us to back off for a number
// of seconds before retrying.
type RateLimitError struct {
	RetryAfter  int
	Description string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds: %s", e.RetryAfter, e.Description)
}
