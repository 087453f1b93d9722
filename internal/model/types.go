package model

import "time"

// User represents the subset of X user fields the service reads.
type User struct {
	ID             string
	Username       string
	Name           string
	Description    string
	CreatedAt      time.Time
	FollowersCount int
	FollowingCount int
	TweetCount     int
	Verified       bool
}

// Tweet is a raw post as returned by the platform. Optional fields are
// left zero when the API omits them; Normalize turns a Tweet into a Mention.
type Tweet struct {
	ID             string
	Text           string
	AuthorID       string
	ConversationID string
	CreatedAt      time.Time
	Language       string
}

// SearchResult is one page of a recent search. Tweets are newest-first.
type SearchResult struct {
	Tweets      []Tweet
	NewestID    string
	ResultCount int
}

// Mention is a post referencing the authenticated account.
// ID, ConversationID and AuthorID are never empty.
type Mention struct {
	ID             string
	Text           string
	ConversationID string
	AuthorID       string
	CreatedAt      time.Time
}

// Message is a single entry of a conversation history.
type Message struct {
	SenderID  string
	Timestamp time.Time
	Content   string
}

// ThreadContext is the bounded history of one conversation.
type ThreadContext struct {
	ThreadID string
	History  []Message
}
