package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentionwatch/internal/events"
	"mentionwatch/internal/logging"
	"mentionwatch/internal/model"
	"mentionwatch/internal/threads"
	"mentionwatch/internal/xclient"
)

type fakeClient struct {
	mu       sync.Mutex
	me       model.User
	meErr    error
	whoCalls int
	batches  []model.SearchResult
	errs     []error
	queries  []string
	since    []string
}

func (f *fakeClient) WhoAmI(ctx context.Context) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.whoCalls++
	return f.me, f.meErr
}

func (f *fakeClient) Search(ctx context.Context, query string, opts xclient.SearchOptions) (model.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.since = append(f.since, opts.SinceID)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return model.SearchResult{}, err
		}
	}
	if len(f.batches) == 0 {
		return model.SearchResult{}, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

type memCursors struct {
	vals    map[string]string
	saveErr error
}

func (m *memCursors) LoadCursor(ctx context.Context, key string) (string, error) {
	return m.vals[key], nil
}

func (m *memCursors) SaveCursor(ctx context.Context, key, value string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.vals[key] = value
	return nil
}

type throttled struct{ reset time.Time }

func (throttled) Error() string { return "too many requests" }
func (throttled) RateLimited() bool { return true }
func (t throttled) ResetAt() (time.Time, bool) { return t.reset, !t.reset.IsZero() }

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func tw(id, author, convo, text string) model.Tweet {
	return model.Tweet{ID: id, AuthorID: author, ConversationID: convo, Text: text}
}

func newIngestor(c *fakeClient, opts Options) (*Ingestor, *threads.Store, *events.Bus) {
	store := threads.New(50)
	bus := events.NewBus()
	opts.Logger = logging.Nop()
	opts.Now = func() time.Time { return fixedNow }
	return New(c, store, bus, opts), store, bus
}

func collectMentions(bus *events.Bus) *[]events.NewMention {
	var got []events.NewMention
	events.On(bus, func(e events.NewMention) { got = append(got, e) })
	return &got
}

func TestPollReplaysBatchOldestFirst(t *testing.T) {
	c := &fakeClient{
		me: model.User{ID: "42", Username: "watcher"},
		batches: []model.SearchResult{{Tweets: []model.Tweet{
			tw("3", "a", "c1", "third"),
			tw("2", "b", "c1", "second"),
			tw("1", "a", "c2", "first"),
		}}},
	}
	in, store, bus := newIngestor(c, Options{})
	got := collectMentions(bus)

	require.NoError(t, in.Poll(context.Background()))

	assert.Equal(t, "3", in.Cursor())
	require.Len(t, *got, 3)
	assert.Equal(t, "1", (*got)[0].TweetID)
	assert.Equal(t, "2", (*got)[1].TweetID)
	assert.Equal(t, "3", (*got)[2].TweetID)
	assert.Equal(t, events.NewMention{ThreadID: "c2", UserID: "a", TweetID: "1", Message: "first"}, (*got)[0])

	h := store.History("c1")
	require.Len(t, h, 2)
	assert.Equal(t, "second", h[0].Content)
	assert.Equal(t, "third", h[1].Content)
	assert.Equal(t, fixedNow, h[1].Timestamp)
	assert.Equal(t, []string{"@watcher"}, c.queries)
	assert.Equal(t, StateIdle, in.State())
}

func TestPollEmptyBatchChangesNothing(t *testing.T) {
	c := &fakeClient{me: model.User{ID: "42", Username: "watcher"}}
	in, store, bus := newIngestor(c, Options{SinceID: "100"})
	got := collectMentions(bus)

	require.NoError(t, in.Poll(context.Background()))

	assert.Equal(t, "", in.Cursor())
	assert.Empty(t, *got)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, []string{"100"}, c.since)
}

func TestCursorAdvancesBeforeMentionsAreProcessed(t *testing.T) {
	c := &fakeClient{
		me: model.User{ID: "42", Username: "watcher"},
		batches: []model.SearchResult{{Tweets: []model.Tweet{
			tw("9", "a", "c", "b"),
			tw("8", "a", "c", "a"),
		}}},
	}
	in, _, bus := newIngestor(c, Options{})
	var seen []string
	events.On(bus, func(e events.NewMention) { seen = append(seen, in.Cursor()) })

	require.NoError(t, in.Poll(context.Background()))
	assert.Equal(t, []string{"9", "9"}, seen)
}

func TestPollSkipsOwnMentionsUnlessIncluded(t *testing.T) {
	batch := model.SearchResult{Tweets: []model.Tweet{
		tw("5", "42", "c", "self"),
		tw("4", "7", "c", "other"),
	}}

	c := &fakeClient{me: model.User{ID: "42", Username: "watcher"}, batches: []model.SearchResult{batch}}
	in, _, bus := newIngestor(c, Options{})
	got := collectMentions(bus)
	require.NoError(t, in.Poll(context.Background()))
	require.Len(t, *got, 1)
	assert.Equal(t, "4", (*got)[0].TweetID)
	assert.Equal(t, "5", in.Cursor())

	c = &fakeClient{me: model.User{ID: "42", Username: "watcher"}, batches: []model.SearchResult{batch}}
	in, _, bus = newIngestor(c, Options{IncludeOwnTweets: true})
	got = collectMentions(bus)
	require.NoError(t, in.Poll(context.Background()))
	assert.Len(t, *got, 2)
}

func TestPollUsesCursorOnNextPass(t *testing.T) {
	c := &fakeClient{
		me: model.User{ID: "42", Username: "watcher"},
		batches: []model.SearchResult{
			{Tweets: []model.Tweet{tw("10", "a", "c", "x")}},
			{},
		},
	}
	in, store, bus := newIngestor(c, Options{SinceID: "5"})
	got := collectMentions(bus)

	require.NoError(t, in.Poll(context.Background()))
	require.NoError(t, in.Poll(context.Background()))

	assert.Equal(t, []string{"5", "10"}, c.since)
	assert.Equal(t, "10", in.Cursor())
	assert.Len(t, *got, 1)
	assert.Len(t, store.History("c"), 1)
	assert.Equal(t, 1, c.whoCalls)
}

func TestSeedZeroMeansUnset(t *testing.T) {
	c := &fakeClient{me: model.User{ID: "42", Username: "watcher"}}
	in, _, _ := newIngestor(c, Options{SinceID: "0"})
	require.NoError(t, in.Poll(context.Background()))
	assert.Equal(t, []string{""}, c.since)
}

func TestRateLimitedFetchPublishesWarning(t *testing.T) {
	c := &fakeClient{
		me:   model.User{ID: "42", Username: "watcher"},
		errs: []error{throttled{}},
	}
	in, _, bus := newIngestor(c, Options{SinceID: "7"})
	var warns []events.RateLimitWarning
	var pollErrs []events.PollError
	events.On(bus, func(e events.RateLimitWarning) { warns = append(warns, e) })
	events.On(bus, func(e events.PollError) { pollErrs = append(pollErrs, e) })

	require.NoError(t, in.Poll(context.Background()))

	require.Len(t, warns, 1)
	assert.Empty(t, warns[0].TweetID)
	assert.NotEmpty(t, warns[0].Message)
	assert.Empty(t, pollErrs)
	assert.Equal(t, "", in.Cursor())
}

func TestGenericFetchErrorPublishesPollError(t *testing.T) {
	boom := errors.New("boom")
	c := &fakeClient{
		me:   model.User{ID: "42", Username: "watcher"},
		errs: []error{boom},
	}
	in, _, bus := newIngestor(c, Options{})
	var pollErrs []events.PollError
	var warns int
	events.On(bus, func(e events.PollError) { pollErrs = append(pollErrs, e) })
	events.On(bus, func(events.RateLimitWarning) { warns++ })

	require.NoError(t, in.Poll(context.Background()))

	require.Len(t, pollErrs, 1)
	assert.ErrorIs(t, pollErrs[0].Err, boom)
	assert.Zero(t, warns)
}

func TestCancelledFetchIsSilent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &fakeClient{
		me:   model.User{ID: "42", Username: "watcher"},
		errs: []error{context.Canceled},
	}
	in, _, bus := newIngestor(c, Options{})
	var n int
	events.On(bus, func(events.PollError) { n++ })

	require.NoError(t, in.Poll(ctx))
	assert.Zero(t, n)
}

func TestIdentityFailureIsReturned(t *testing.T) {
	c := &fakeClient{meErr: errors.New("unauthorized")}
	in, _, _ := newIngestor(c, Options{})

	err := in.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
	assert.Empty(t, c.queries)
	_, ok := in.Identity()
	assert.False(t, ok)
}

func TestIdentityWithoutUsernameIsRejected(t *testing.T) {
	c := &fakeClient{me: model.User{ID: "42"}}
	in, _, _ := newIngestor(c, Options{})
	_, err := in.ResolveIdentity(context.Background())
	assert.Error(t, err)
}

func TestPersistedCursorSeedsAndIsUpdated(t *testing.T) {
	cur := &memCursors{vals: map[string]string{CursorKey: "200"}}
	c := &fakeClient{
		me:      model.User{ID: "42", Username: "watcher"},
		batches: []model.SearchResult{{Tweets: []model.Tweet{tw("300", "a", "c", "x")}}},
	}
	in, _, _ := newIngestor(c, Options{SinceID: "5", Cursors: cur})

	require.NoError(t, in.RestoreCursor(context.Background()))
	assert.Equal(t, "200", in.Cursor())
	require.NoError(t, in.Poll(context.Background()))

	assert.Equal(t, []string{"200"}, c.since)
	assert.Equal(t, "300", cur.vals[CursorKey])
}

func TestCursorSaveFailureDoesNotStopPass(t *testing.T) {
	cur := &memCursors{vals: map[string]string{}, saveErr: errors.New("disk full")}
	c := &fakeClient{
		me:      model.User{ID: "42", Username: "watcher"},
		batches: []model.SearchResult{{Tweets: []model.Tweet{tw("1", "a", "c", "x")}}},
	}
	in, _, bus := newIngestor(c, Options{Cursors: cur})
	got := collectMentions(bus)

	require.NoError(t, in.Poll(context.Background()))
	assert.Equal(t, "1", in.Cursor())
	assert.Len(t, *got, 1)
}

func TestRecordsWithoutIDAreDropped(t *testing.T) {
	c := &fakeClient{
		me: model.User{ID: "42", Username: "watcher"},
		batches: []model.SearchResult{{
			NewestID: "12",
			Tweets: []model.Tweet{
				{Text: "no id"},
				tw("11", "a", "c", "kept"),
			},
		}},
	}
	in, _, bus := newIngestor(c, Options{})
	got := collectMentions(bus)

	require.NoError(t, in.Poll(context.Background()))
	require.Len(t, *got, 1)
	assert.Equal(t, "11", (*got)[0].TweetID)
	assert.Equal(t, "12", in.Cursor())
}

func TestNormalizeDefaults(t *testing.T) {
	m, ok := Normalize(model.Tweet{ID: "77"}, fixedNow)
	require.True(t, ok)
	assert.Equal(t, model.Mention{
		ID:             "77",
		Text:           "",
		ConversationID: "77",
		AuthorID:       UnknownAuthor,
		CreatedAt:      fixedNow,
	}, m)

	created := fixedNow.Add(-time.Hour)
	m, ok = Normalize(model.Tweet{ID: "78", Text: "hi", AuthorID: "9", ConversationID: "70", CreatedAt: created}, fixedNow)
	require.True(t, ok)
	assert.Equal(t, "70", m.ConversationID)
	assert.Equal(t, "9", m.AuthorID)
	assert.Equal(t, created, m.CreatedAt)

	_, ok = Normalize(model.Tweet{Text: "orphan"}, fixedNow)
	assert.False(t, ok)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "resolving_identity", StateResolvingIdentity.String())
	assert.Equal(t, "polling", StatePolling.String())
}

func TestSelfFilterChangesInclusionNotOrder(t *testing.T) {
	batch := model.SearchResult{Tweets: []model.Tweet{
		tw("6", "7", "c", "f"),
		tw("5", "42", "c", "e"),
		tw("4", "8", "c", "d"),
		tw("3", "42", "c", "c"),
		tw("2", "7", "c", "b"),
	}}
	ids := func(include bool) []string {
		c := &fakeClient{me: model.User{ID: "42", Username: "watcher"}, batches: []model.SearchResult{batch}}
		in, _, bus := newIngestor(c, Options{IncludeOwnTweets: include})
		got := collectMentions(bus)
		require.NoError(t, in.Poll(context.Background()))
		var out []string
		for _, e := range *got {
			out = append(out, e.TweetID)
		}
		return out
	}

	all := ids(true)
	others := ids(false)
	assert.Equal(t, []string{"2", "3", "4", "5", "6"}, all)
	assert.Equal(t, []string{"2", "4", "6"}, others)

	var filtered []string
	for _, id := range all {
		if id != "3" && id != "5" {
			filtered = append(filtered, id)
		}
	}
	assert.Equal(t, filtered, others)
}
