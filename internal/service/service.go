// Package service is the public surface of mentionwatch: it owns the poll
// loop and wraps outbound operations with rate-limit aware error reporting.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mentionwatch/internal/config"
	"mentionwatch/internal/events"
	"mentionwatch/internal/ingest"
	"mentionwatch/internal/logging"
	"mentionwatch/internal/model"
	"mentionwatch/internal/ratelimit"
	"mentionwatch/internal/store/sqlite"
	"mentionwatch/internal/threads"
	"mentionwatch/internal/xclient"
)

// ErrAlreadyStarted is returned by Start on a running service.
var ErrAlreadyStarted = errors.New("service already started")

// Client is everything the service needs from the platform.
type Client interface {
	ingest.Client
	Post(ctx context.Context, text string, opts xclient.PostOptions) (model.Tweet, error)
	DeleteTweet(ctx context.Context, id string) (bool, error)
}

// Journal records ingested mentions.
type Journal interface {
	PutMention(ctx context.Context, e sqlite.JournalEntry) (bool, error)
}

type Option func(*Service)

// WithBus uses an existing bus instead of a fresh one.
func WithBus(b *events.Bus) Option { return func(s *Service) { s.bus = b } }

// WithCursorStore persists the since-id cursor across restarts.
func WithCursorStore(c ingest.CursorStore) Option { return func(s *Service) { s.cursors = c } }

// WithJournal writes every NewMention to j while the service runs.
func WithJournal(j Journal) Option { return func(s *Service) { s.journal = j } }

func WithPolicy(p ratelimit.Policy) Option { return func(s *Service) { s.policy = p } }

func WithLogger(l *logging.Logger) Option { return func(s *Service) { s.log = l } }

// Service ties the ingestor, thread store and bus to a poll ticker.
type Service struct {
	client   Client
	bus      *events.Bus
	threads  *threads.Store
	in       *ingest.Ingestor
	policy   ratelimit.Policy
	cursors  ingest.CursorStore
	journal  Journal
	log      *logging.Logger
	interval time.Duration

	life    sync.Mutex
	started bool
	gen     uint64
	run     *run
}

// run is one armed poll loop.
type run struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	// busy is set while the loop goroutine is inside a pass.
	busy atomic.Bool
}

func New(cfg config.Config, client Client, opts ...Option) *Service {
	cfg.ApplyDefaults()
	s := &Service{
		client:   client,
		policy:   ratelimit.Default(),
		interval: cfg.PollInterval(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.bus == nil {
		s.bus = events.NewBus()
	}
	ingestLog := logging.Named("ingest")
	if s.log == nil {
		s.log = logging.Named("service")
	} else {
		l := s.log.With().Str("component", "ingest").Logger()
		ingestLog = &l
	}
	s.threads = threads.New(cfg.ThreadHistoryLimit)
	s.in = ingest.New(client, s.threads, s.bus, ingest.Options{
		SinceID:          cfg.SeedSinceID(),
		IncludeOwnTweets: cfg.IncludeOwnTweets,
		Policy:           s.policy,
		Cursors:          s.cursors,
		Logger:           ingestLog,
	})
	return s
}

func (s *Service) Bus() *events.Bus { return s.bus }
func (s *Service) Threads() *threads.Store { return s.threads }
func (s *Service) Ingestor() *ingest.Ingestor { return s.in }

// Running reports whether Start has succeeded and Stop has not been called.
func (s *Service) Running() bool {
	s.life.Lock()
	defer s.life.Unlock()
	return s.started
}

// Start resolves the account, runs one poll pass and then polls on every
// interval tick until Stop. An identity failure leaves the service stopped.
// The lifecycle lock is not held during the first pass, so handlers may
// call Running or Stop.
func (s *Service) Start(ctx context.Context) error {
	s.life.Lock()
	if s.started {
		s.life.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.gen++
	gen := s.gen
	s.life.Unlock()

	if err := s.in.RestoreCursor(ctx); err != nil {
		s.log.Warn().Err(err).Msg("cursor_restore_failed")
	}
	me, err := s.in.ResolveIdentity(ctx)
	if err != nil {
		s.abortStart(gen)
		return fmt.Errorf("start: %w", err)
	}
	unsubscribe := s.subscribeJournal()

	if err := s.in.Poll(ctx); err != nil {
		unsubscribe()
		s.abortStart(gen)
		return fmt.Errorf("start: %w", err)
	}

	s.life.Lock()
	defer s.life.Unlock()
	if s.gen != gen {
		return nil
	}
	if !s.started {
		// stopped by a handler during the first pass
		s.clear()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{gen: gen, cancel: cancel, done: make(chan struct{})}
	s.run = r
	go s.loop(runCtx, r)

	s.log.Info().Str("username", me.Username).Dur("interval", s.interval).Str("cursor", s.in.Cursor()).Msg("service_started")
	return nil
}

func (s *Service) abortStart(gen uint64) {
	s.life.Lock()
	if s.gen == gen {
		s.started = false
	}
	s.life.Unlock()
}

func (s *Service) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer s.finish(r)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			r.busy.Store(true)
			err := s.in.Poll(ctx)
			r.busy.Store(false)
			if err != nil {
				s.log.Error().Err(err).Msg("poll_failed")
			}
		}
	}
}

// finish clears state once the loop has exited, unless a newer Start has
// already taken over.
func (s *Service) finish(r *run) {
	s.life.Lock()
	defer s.life.Unlock()
	if s.gen == r.gen && !s.started {
		s.clear()
	}
}

func (s *Service) clear() {
	s.bus.Clear()
	s.threads.Reset()
}

// Stop halts polling, then drops every subscription and all thread history.
// Calling it twice is a no-op. When no pass is running Stop waits for the
// loop to exit. Called from an event handler, or while a pass is in flight,
// it returns after cancelling: the current pass finishes and the loop clears
// state as it exits.
func (s *Service) Stop() {
	s.life.Lock()
	if !s.started {
		s.life.Unlock()
		return
	}
	s.started = false
	r := s.run
	s.run = nil
	if r == nil {
		// first pass still running inside Start
		s.clear()
		s.life.Unlock()
		s.log.Info().Msg("service_stopped")
		return
	}
	s.life.Unlock()

	r.cancel()
	if !r.busy.Load() {
		<-r.done
	}
	s.log.Info().Msg("service_stopped")
}

// subscribeJournal runs on every Start since Stop clears the bus.
func (s *Service) subscribeJournal() (unsubscribe func()) {
	if s.journal == nil {
		return func() {}
	}
	return events.On(s.bus, func(e events.NewMention) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := s.journal.PutMention(ctx, sqlite.JournalEntry{
			TweetID:    e.TweetID,
			ThreadID:   e.ThreadID,
			AuthorID:   e.UserID,
			Text:       e.Message,
			IngestedAt: time.Now(),
		})
		if err != nil {
			s.log.Error().Err(err).Str("tweet_id", e.TweetID).Msg("journal_write_failed")
		}
	})
}
