package config

import "errors"

// ErrNoCredentials is returned when neither app keys nor tokens are configured.
var ErrNoCredentials = errors.New("no platform credentials configured")

// Credentials is one of UserContext, Bearer or AppOnly.
type Credentials interface {
	Kind() string
}

// UserContext signs requests with OAuth 1.0a on behalf of the account.
type UserContext struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Bearer authenticates with an OAuth 2.0 bearer token.
type Bearer struct {
	Token string
}

// AppOnly exchanges the consumer key and secret for an app bearer token.
type AppOnly struct {
	ConsumerKey    string
	ConsumerSecret string
}

func (UserContext) Kind() string { return "user_context" }
func (Bearer) Kind() string      { return "bearer" }
func (AppOnly) Kind() string     { return "app_only" }

// ResolveCredentials picks the strongest configured credential:
// user context, then bearer token, then app-only.
func (c Config) ResolveCredentials() (Credentials, error) {
	switch {
	case c.AccessToken != "" && c.AccessTokenSecret != "":
		return UserContext{
			ConsumerKey:    c.APIKey,
			ConsumerSecret: c.APISecret,
			AccessToken:    c.AccessToken,
			AccessSecret:   c.AccessTokenSecret,
		}, nil
	case c.BearerToken != "":
		return Bearer{Token: c.BearerToken}, nil
	case c.APIKey != "" && c.APISecret != "":
		return AppOnly{ConsumerKey: c.APIKey, ConsumerSecret: c.APISecret}, nil
	default:
		return nil, ErrNoCredentials
	}
}
