package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var got []string
	b.Subscribe(NameNewMention, func(Event) { got = append(got, "first") })
	b.Subscribe(NameNewMention, func(Event) { got = append(got, "second") })
	b.Subscribe(NamePollError, func(Event) { got = append(got, "other") })

	b.Publish(NewMention{TweetID: "1"})
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestUnsubscribeRemovesOnlyThatHandler(t *testing.T) {
	b := NewBus()
	var a, c int
	unsubA := b.Subscribe(NameNewMention, func(Event) { a++ })
	b.Subscribe(NameNewMention, func(Event) { c++ })

	unsubA()
	unsubA()
	b.Publish(NewMention{})
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, c)
	assert.Equal(t, 1, b.Count(NameNewMention))
}

func TestClearReleasesAllHandlers(t *testing.T) {
	b := NewBus()
	calls := 0
	b.Subscribe(NameNewMention, func(Event) { calls++ })
	b.Subscribe(NameRateLimitWarning, func(Event) { calls++ })
	b.Clear()

	b.Publish(NewMention{})
	b.Publish(RateLimitWarning{})
	assert.Zero(t, calls)
	assert.Zero(t, b.Count(NameNewMention))
	assert.Zero(t, b.Count(NameRateLimitWarning))
}

func TestHandlerMayUnsubscribeDuringPublish(t *testing.T) {
	b := NewBus()
	calls := 0
	var unsub func()
	unsub = b.Subscribe(NamePollError, func(Event) {
		calls++
		unsub()
	})
	b.Publish(PollError{})
	b.Publish(PollError{})
	assert.Equal(t, 1, calls)
}

func TestTypedSubscriptions(t *testing.T) {
	b := NewBus()
	var mentions []NewMention
	var searchErrs []TweetError
	On(b, func(e NewMention) { mentions = append(mentions, e) })
	OnName(b, NameSearchError, func(e TweetError) { searchErrs = append(searchErrs, e) })

	boom := errors.New("boom")
	b.Publish(NewMention{ThreadID: "c", UserID: "u", TweetID: "1", Message: "hi"})
	b.Publish(TweetError{Name: NameSearchError, Message: "q", Err: boom})
	b.Publish(TweetError{Message: "plain"})

	require.Len(t, mentions, 1)
	assert.Equal(t, "hi", mentions[0].Message)
	require.Len(t, searchErrs, 1)
	assert.ErrorIs(t, searchErrs[0].Err, boom)
}

func TestTweetErrorDefaultName(t *testing.T) {
	assert.Equal(t, NameTweetError, TweetError{}.EventName())
	assert.Equal(t, NameDeleteError, TweetError{Name: NameDeleteError}.EventName())
}
