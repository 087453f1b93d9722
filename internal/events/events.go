package events

// Name identifies an event on the bus.
type Name string

const (
	NameNewMention       Name = "newMention"
	NameRateLimitWarning Name = "rateLimitWarning"
	NamePollError        Name = "pollError"
	NameTweetError       Name = "tweetError"
	NameSearchError      Name = "searchError"
	NameProfileError     Name = "profileError"
	NameDeleteError      Name = "deleteError"
)

// Event is anything that can be published on a Bus.
type Event interface {
	EventName() Name
}

// NewMention is published once per ingested mention, oldest first.
type NewMention struct {
	ThreadID string
	UserID   string
	TweetID  string
	Message  string
}

// RateLimitWarning is published when the platform throttles a call.
// TweetID is empty for polling.
type RateLimitWarning struct {
	TweetID string
	Message string
	Err     error
}

// PollError is published when a poll pass fails for any other reason.
type PollError struct {
	Err error
}

// TweetError is published when a facade operation fails. Name selects the
// per-operation event (tweetError, searchError, ...); empty means tweetError.
type TweetError struct {
	Name    Name
	TweetID string
	Message string
	Err     error
}

func (NewMention) EventName() Name       { return NameNewMention }
func (RateLimitWarning) EventName() Name { return NameRateLimitWarning }
func (PollError) EventName() Name        { return NamePollError }

func (e TweetError) EventName() Name {
	if e.Name == "" {
		return NameTweetError
	}
	return e.Name
}
