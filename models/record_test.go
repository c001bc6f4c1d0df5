package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemKey(t *testing.T) {
	original := Item{ID: "1950516132617539722", Username: "someauthor"}
	assert.Equal(t, "1950516132617539722", original.Key())

	reshareA := Item{ID: "1950516132617539722", Username: "someauthor", Reshare: true, ResharerUsername: "alice"}
	reshareB := Item{ID: "1950516132617539722", Username: "someauthor", Reshare: true, ResharerUsername: "bob"}
	assert.Equal(t, "1950516132617539722_alice", reshareA.Key())
	assert.Equal(t, "1950516132617539722_bob", reshareB.Key())
	assert.NotEqual(t, reshareA.Key(), reshareB.Key())

	// The same item reshared twice by the same user collapses to one identity.
	assert.Equal(t, reshareA.Key(), Item{ID: "1950516132617539722", Reshare: true, ResharerUsername: "alice"}.Key())
}

func TestCaption(t *testing.T) {
	plain := NewRecord(Item{ID: "1", AuthorName: "Some Author"}, []string{ChannelTelegram})
	assert.Equal(t, "Some Author", plain.Caption())

	reshare := NewRecord(Item{ID: "1", Reshare: true, ResharerName: "Re Sharer", ResharerUsername: "rs", AuthorName: "Some Author"}, []string{ChannelTelegram})
	assert.Equal(t, "Re Sharer ↰↳ Some Author", reshare.Caption())
}

func TestArtifactFilename(t *testing.T) {
	plain := NewRecord(Item{ID: "42", Username: "author"}, nil)
	assert.Equal(t, "tweet_author_42.png", plain.ArtifactFilename())

	reshare := NewRecord(Item{ID: "42", Username: "author", Reshare: true, ResharerUsername: "rs"}, nil)
	assert.Equal(t, "tweet_rs_RT_of_author_42.png", reshare.ArtifactFilename())
}

func TestNewRecordChannels(t *testing.T) {
	rec := NewRecord(Item{ID: "7"}, []string{ChannelTelegram, ChannelPushover})
	assert.Len(t, rec.Delivered, 2)
	assert.True(t, rec.PendingFor(ChannelTelegram))
	assert.True(t, rec.PendingFor(ChannelPushover))
}

func TestFeedConfigChannels(t *testing.T) {
	feed := FeedConfig{TelegramChatID: "-100123"}
	assert.Equal(t, []string{ChannelTelegram}, feed.Channels())
	assert.Equal(t, "-100123", feed.ChannelTarget(ChannelTelegram))
	assert.Equal(t, "", feed.ChannelTarget("bogus"))

	feed.PushoverTarget = "ukey"
	assert.Equal(t, []string{ChannelTelegram, ChannelPushover}, feed.Channels())
	assert.Equal(t, "ukey", feed.ChannelTarget(ChannelPushover))
}

func TestObservedAtOrdering(t *testing.T) {
	older := ItemRecord{Timestamp: "2025-07-30T09:00:00"}
	newer := ItemRecord{Timestamp: "2025-07-30T10:15:00"}
	assert.True(t, older.ObservedAt().Before(newer.ObservedAt()))

	broken := ItemRecord{Timestamp: "not-a-time"}
	assert.True(t, broken.ObservedAt().IsZero())
}
