package models

// Channel identifiers understood by the delivery dispatcher.
const (
	ChannelTelegram = "telegram"
	ChannelPushover = "pushover"
)

// FeedConfig describes one curated list feed to poll. Loaded once at
// startup from lists.json and immutable for the lifetime of a run.
type FeedConfig struct {
	Key            string
	Name           string
	ListID         string
	URL            string
	DBBasename     string
	TelegramChatID string
	PushoverTarget string
	LastSeenID     string
	Active         bool
}

// Channels returns the delivery channel identifiers configured for this
// feed, in dispatch order. Telegram is always present; Pushover only when
// a recipient key was configured.
func (f FeedConfig) Channels() []string {
	channels := []string{ChannelTelegram}
	if f.PushoverTarget != "" {
		channels = append(channels, ChannelPushover)
	}
	return channels
}

// ChannelTarget maps a channel identifier to its per-feed destination
// (chat id, recipient key). Unknown channels return an empty target.
func (f FeedConfig) ChannelTarget(channel string) string {
	switch channel {
	case ChannelTelegram:
		return f.TelegramChatID
	case ChannelPushover:
		return f.PushoverTarget
	}
	return ""
}
