package service

import (
	"context"

	"mentionwatch/internal/events"
	"mentionwatch/internal/metrics"
	"mentionwatch/internal/model"
	"mentionwatch/internal/xclient"
)

// ReplyToTweet posts text as a reply to tweetID.
func (s *Service) ReplyToTweet(ctx context.Context, tweetID, text string) (model.Tweet, error) {
	t, err := s.client.Post(ctx, text, xclient.PostOptions{ReplyTo: tweetID})
	if err != nil {
		return t, s.report(events.NameTweetError, "reply", tweetID, text, err)
	}
	return t, nil
}

// Tweet posts a standalone status.
func (s *Service) Tweet(ctx context.Context, text string) (model.Tweet, error) {
	t, err := s.client.Post(ctx, text, xclient.PostOptions{})
	if err != nil {
		return t, s.report(events.NameTweetError, "tweet", "", text, err)
	}
	return t, nil
}

// SearchTweets runs a recent search with the default fields.
func (s *Service) SearchTweets(ctx context.Context, query string) (model.SearchResult, error) {
	res, err := s.client.Search(ctx, query, xclient.SearchOptions{Fields: xclient.DefaultTweetFields})
	if err != nil {
		return res, s.report(events.NameSearchError, "search", "", query, err)
	}
	return res, nil
}

// GetMyProfile returns the authenticated account.
func (s *Service) GetMyProfile(ctx context.Context) (model.User, error) {
	u, err := s.client.WhoAmI(ctx)
	if err != nil {
		return u, s.report(events.NameProfileError, "profile", "", "", err)
	}
	return u, nil
}

// DeleteTweet deletes one of the account's posts.
func (s *Service) DeleteTweet(ctx context.Context, tweetID string) (bool, error) {
	ok, err := s.client.DeleteTweet(ctx, tweetID)
	if err != nil {
		return ok, s.report(events.NameDeleteError, "delete", tweetID, "", err)
	}
	return ok, nil
}

// report publishes exactly one event for a failed operation and hands err
// back unchanged.
func (s *Service) report(name events.Name, op, tweetID, message string, err error) error {
	d, _ := s.policy.Classify(err, 0)
	if d.RateLimited {
		metrics.IncWriteError(op, "rate_limited")
		s.log.Warn().Err(err).Str("op", op).Str("tweet_id", tweetID).Dur("wait", d.Wait).Msg("rate_limited")
		s.bus.Publish(events.RateLimitWarning{TweetID: tweetID, Message: message, Err: err})
		return err
	}
	metrics.IncWriteError(op, "error")
	s.log.Error().Err(err).Str("op", op).Str("tweet_id", tweetID).Msg("operation_failed")
	s.bus.Publish(events.TweetError{Name: name, TweetID: tweetID, Message: message, Err: err})
	return err
}
