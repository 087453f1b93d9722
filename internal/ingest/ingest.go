// Package ingest polls the platform for mentions of the authenticated
// account and replays them, oldest first, into thread history and the bus.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mentionwatch/internal/events"
	"mentionwatch/internal/logging"
	"mentionwatch/internal/metrics"
	"mentionwatch/internal/model"
	"mentionwatch/internal/ratelimit"
	"mentionwatch/internal/threads"
	"mentionwatch/internal/util"
	"mentionwatch/internal/xclient"
)

const (
	// CursorKey names the persisted since-id cursor.
	CursorKey = "mentions:since_id"
	// MaxResults is the page size requested per poll.
	MaxResults = 100
)

// Client is the slice of the platform API the ingestor needs.
type Client interface {
	WhoAmI(ctx context.Context) (model.User, error)
	Search(ctx context.Context, query string, opts xclient.SearchOptions) (model.SearchResult, error)
}

// CursorStore persists the since-id between runs.
type CursorStore interface {
	LoadCursor(ctx context.Context, key string) (string, error)
	SaveCursor(ctx context.Context, key, value string) error
}

// State is the ingestor's position in a pass.
type State int32

const (
	StateIdle State = iota
	StateResolvingIdentity
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateResolvingIdentity:
		return "resolving_identity"
	case StatePolling:
		return "polling"
	default:
		return "idle"
	}
}

// Options configures an Ingestor. Zero values are usable.
type Options struct {
	// SinceID seeds the cursor; "0" means unset.
	SinceID          string
	IncludeOwnTweets bool
	Policy           ratelimit.Policy
	Cursors          CursorStore
	Logger           *logging.Logger
	Now              func() time.Time
}

// Ingestor owns the since-id cursor and the cached account identity.
// Passes are serialized; concurrent Poll calls wait for each other.
type Ingestor struct {
	client  Client
	threads *threads.Store
	bus     *events.Bus
	opts    Options
	log     *logging.Logger

	pass  sync.Mutex
	state atomic.Int32

	mu       sync.RWMutex
	cursor   string
	identity model.User
}

func New(client Client, store *threads.Store, bus *events.Bus, opts Options) *Ingestor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Policy.MaxRetries == 0 && opts.Policy.BaseDelay == 0 {
		opts.Policy = ratelimit.Default()
	}
	if opts.SinceID == "0" {
		opts.SinceID = ""
	}
	log := opts.Logger
	if log == nil {
		log = logging.Named("ingest")
	}
	return &Ingestor{client: client, threads: store, bus: bus, opts: opts, log: log}
}

// Cursor returns the newest mention id seen so far, or "".
func (in *Ingestor) Cursor() string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.cursor
}

// State returns the current pass state.
func (in *Ingestor) State() State { return State(in.state.Load()) }

// Identity returns the cached account, if resolved.
func (in *Ingestor) Identity() (model.User, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.identity, in.identity.ID != "" && in.identity.Username != ""
}

// RestoreCursor loads the persisted cursor when none is held in memory.
func (in *Ingestor) RestoreCursor(ctx context.Context) error {
	if in.opts.Cursors == nil {
		return nil
	}
	v, err := in.opts.Cursors.LoadCursor(ctx, CursorKey)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cursor == "" && v != "" {
		in.cursor = v
	}
	return nil
}

// ResolveIdentity looks up the account once and caches it.
func (in *Ingestor) ResolveIdentity(ctx context.Context) (model.User, error) {
	if me, ok := in.Identity(); ok {
		return me, nil
	}
	prev := in.State()
	in.state.Store(int32(StateResolvingIdentity))
	defer in.state.Store(int32(prev))

	me, err := in.client.WhoAmI(ctx)
	if err != nil {
		return model.User{}, err
	}
	if me.ID == "" || me.Username == "" {
		return model.User{}, errors.New("identity lookup returned no account")
	}
	in.mu.Lock()
	in.identity = me
	in.mu.Unlock()
	in.log.Info().Str("account_id", me.ID).Str("username", me.Username).Msg("identity_resolved")
	return me, nil
}

// sinceID picks the in-memory cursor, then the configured seed.
func (in *Ingestor) sinceID() string {
	if c := in.Cursor(); c != "" {
		return c
	}
	return in.opts.SinceID
}

// Poll runs one ingestion pass. Only an identity failure is returned;
// fetch failures are published as events and the pass ends quietly.
func (in *Ingestor) Poll(ctx context.Context) error {
	in.pass.Lock()
	defer in.pass.Unlock()
	defer in.state.Store(int32(StateIdle))

	me, err := in.ResolveIdentity(ctx)
	if err != nil {
		metrics.IncPollError("identity")
		return fmt.Errorf("resolve identity: %w", err)
	}

	in.state.Store(int32(StatePolling))
	start := time.Now()
	metrics.PollRuns.Inc()
	defer metrics.ObservePollDuration(start)

	log := in.log.With().Str("pass_id", uuid.NewString()).Logger()
	since := in.sinceID()
	res, err := in.client.Search(ctx, "@"+me.Username, xclient.SearchOptions{
		SinceID:    since,
		MaxResults: MaxResults,
		Fields:     xclient.DefaultTweetFields,
	})
	if err != nil {
		in.fetchFailed(ctx, &log, err)
		return nil
	}
	if len(res.Tweets) == 0 {
		log.Debug().Str("since_id", since).Msg("poll_empty")
		return nil
	}

	newest := res.Tweets[0].ID
	if newest == "" {
		newest = res.NewestID
	}
	in.advance(ctx, &log, newest)

	now := in.opts.Now()
	emitted := 0
	for i := len(res.Tweets) - 1; i >= 0; i-- {
		m, ok := Normalize(res.Tweets[i], now)
		if !ok {
			metrics.IncSkipped("no_id")
			log.Warn().Str("text", util.Truncate(res.Tweets[i].Text, 60)).Msg("mention_dropped_without_id")
			continue
		}
		if m.AuthorID == me.ID && !in.opts.IncludeOwnTweets {
			metrics.IncSkipped("own")
			continue
		}
		in.emit(m, now)
		emitted++
	}
	log.Info().Int("fetched", len(res.Tweets)).Int("emitted", emitted).Str("cursor", in.Cursor()).Msg("poll_ok")
	return nil
}

// advance moves the cursor to id before any mention is processed, so a
// failure mid-batch cannot refetch the same newest mention.
func (in *Ingestor) advance(ctx context.Context, log *logging.Logger, id string) {
	if id == "" {
		return
	}
	in.mu.Lock()
	in.cursor = id
	in.mu.Unlock()
	if in.opts.Cursors == nil {
		return
	}
	if err := in.opts.Cursors.SaveCursor(ctx, CursorKey, id); err != nil {
		log.Error().Err(err).Str("cursor", id).Msg("cursor_persist_failed")
	}
}

func (in *Ingestor) emit(m model.Mention, now time.Time) {
	in.threads.Append(m.ConversationID, model.Message{SenderID: m.AuthorID, Timestamp: now, Content: m.Text})
	metrics.MentionsIngested.Inc()
	in.bus.Publish(events.NewMention{
		ThreadID: m.ConversationID,
		UserID:   m.AuthorID,
		TweetID:  m.ID,
		Message:  m.Text,
	})
}

// fetchFailed leaves the cursor untouched so the same window is retried on
// the next tick.
func (in *Ingestor) fetchFailed(ctx context.Context, log *logging.Logger, err error) {
	if ctx.Err() != nil {
		log.Debug().Err(err).Msg("poll_cancelled")
		return
	}
	d, _ := in.opts.Policy.Classify(err, 0)
	if d.RateLimited {
		metrics.IncPollError("rate_limited")
		log.Warn().Err(err).Dur("wait", d.Wait).Msg("poll_rate_limited")
		in.bus.Publish(events.RateLimitWarning{Message: "rate limited while polling mentions", Err: err})
		return
	}
	metrics.IncPollError("error")
	log.Error().Err(err).Msg("poll_error")
	in.bus.Publish(events.PollError{Err: err})
}
