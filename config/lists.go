package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/itamarsh/listcast/models"
)

var listURLPattern = regexp.MustCompile(`^https://x\.com/i/lists/\d+`)
var digitsOnly = regexp.MustCompile(`^\d+$`)

// requiredListFields must all be present, as strings, on every entry.
var requiredListFields = []string{"key", "name", "list_id", "url", "db_basename", "telegram_chat_id"}

// LoadLists reads and validates the feed list config. Entries are decoded
// loosely so that a missing or mistyped field can be reported by name and
// index rather than silently zeroed.
func LoadLists(path string) ([]models.FeedConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lists config: %w", err)
	}

	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s must be a non-empty array", path)
	}

	seen := make(map[string]bool, len(entries))
	feeds := make([]models.FeedConfig, 0, len(entries))
	for i, entry := range entries {
		feed, err := validateEntry(entry, i)
		if err != nil {
			return nil, err
		}
		if seen[feed.Key] {
			return nil, fmt.Errorf("duplicate key: %s", feed.Key)
		}
		seen[feed.Key] = true
		feeds = append(feeds, feed)
	}
	return feeds, nil
}

func validateEntry(entry map[string]any, i int) (models.FeedConfig, error) {
	fields := make(map[string]string, len(requiredListFields))
	for _, f := range requiredListFields {
		v, ok := entry[f]
		if !ok {
			return models.FeedConfig{}, fmt.Errorf("lists[%d] missing required field: %s", i, f)
		}
		s, ok := v.(string)
		if !ok {
			return models.FeedConfig{}, fmt.Errorf("lists[%d].%s must be string", i, f)
		}
		fields[f] = strings.TrimSpace(s)
	}
	if !listURLPattern.MatchString(fields["url"]) {
		return models.FeedConfig{}, fmt.Errorf("lists[%d].url must look like https://x.com/i/lists/<ID>", i)
	}
	if !digitsOnly.MatchString(fields["list_id"]) {
		return models.FeedConfig{}, fmt.Errorf("lists[%d].list_id must be digits only", i)
	}

	feed := models.FeedConfig{
		Key:            fields["key"],
		Name:           fields["name"],
		ListID:         fields["list_id"],
		URL:            stripMembersSuffix(fields["url"]),
		DBBasename:     fields["db_basename"],
		TelegramChatID: fields["telegram_chat_id"],
		Active:         true,
	}
	if v, ok := entry["active"].(bool); ok {
		feed.Active = v
	}
	if v, ok := entry["pushover_target"].(string); ok {
		feed.PushoverTarget = strings.TrimSpace(v)
	}
	if v, ok := entry["last_seen_tweet_id"].(string); ok {
		feed.LastSeenID = strings.TrimSpace(v)
	}
	return feed, nil
}

// stripMembersSuffix normalizes a list members URL to the list feed URL.
func stripMembersSuffix(url string) string {
	url = strings.TrimSuffix(url, "/")
	return strings.TrimSuffix(url, "/members")
}
