package models

import (
	"fmt"
	"time"
)

// Item is one post as observed live in a feed view. The JSON tags line up
// with the objects emitted by the site adapter's extraction script.
type Item struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Href             string `json:"href"`
	Reshare          bool   `json:"reshare"`
	ResharerName     string `json:"resharerName"`
	ResharerUsername string `json:"resharerUsername"`
	AuthorName       string `json:"authorName"`
	Timestamp        string `json:"timestamp"`
}

// Key returns the record identity for this item. A reshare is keyed by the
// source id plus the resharer's username so that the original post and each
// distinct reshare of it live side by side in the record set.
func (i Item) Key() string {
	if i.Reshare {
		return i.ID + "_" + i.ResharerUsername
	}
	return i.ID
}

// ItemRecord is the persisted form of an item. Identity-defining fields
// never change after creation; only ArtifactPath, Delivered and
// CaptureTimeouts are mutated by later pipeline stages.
type ItemRecord struct {
	Key              string          `json:"key"`
	ID               string          `json:"id"`
	Href             string          `json:"href"`
	Reshare          bool            `json:"reshare"`
	ResharerName     string          `json:"resharer_name,omitempty"`
	ResharerUsername string          `json:"resharer_username,omitempty"`
	Username         string          `json:"username"`
	AuthorName       string          `json:"author_name"`
	Timestamp        string          `json:"timestamp"`
	Delivered        map[string]bool `json:"delivered"`
	ArtifactPath     string          `json:"artifact_path,omitempty"`
	CaptureTimeouts  int             `json:"capture_timeouts,omitempty"`
}

// NewRecord creates the persisted record for a freshly observed item with
// every configured channel marked undelivered.
func NewRecord(item Item, channels []string) *ItemRecord {
	delivered := make(map[string]bool, len(channels))
	for _, ch := range channels {
		delivered[ch] = false
	}
	return &ItemRecord{
		Key:              item.Key(),
		ID:               item.ID,
		Href:             item.Href,
		Reshare:          item.Reshare,
		ResharerName:     item.ResharerName,
		ResharerUsername: item.ResharerUsername,
		Username:         item.Username,
		AuthorName:       item.AuthorName,
		Timestamp:        item.Timestamp,
		Delivered:        delivered,
	}
}

// Caption builds the delivery caption: resharer then original author for
// reshares, otherwise just the author.
func (r *ItemRecord) Caption() string {
	if r.Reshare {
		return fmt.Sprintf("%s ↰↳ %s", r.ResharerName, r.AuthorName)
	}
	return r.AuthorName
}

// ArtifactFilename is the deterministic image name for this record.
func (r *ItemRecord) ArtifactFilename() string {
	base := r.Username
	if r.Reshare {
		base = fmt.Sprintf("%s_RT_of_%s", r.ResharerUsername, r.Username)
	}
	return fmt.Sprintf("tweet_%s_%s.png", base, r.ID)
}

// ObservedAt parses the stored feed timestamp for chronological ordering.
// Unparseable timestamps sort first.
func (r *ItemRecord) ObservedAt() time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, r.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// PendingFor reports whether the record still awaits delivery on the given
// channel.
func (r *ItemRecord) PendingFor(channel string) bool {
	return !r.Delivered[channel]
}
