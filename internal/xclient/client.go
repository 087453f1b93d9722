package xclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mentionwatch/internal/config"
	"mentionwatch/internal/metrics"
	"mentionwatch/internal/model"
)

// DefaultTweetFields are requested on every search.
const DefaultTweetFields = "created_at,author_id,conversation_id,lang"

// SearchOptions narrows a recent search.
type SearchOptions struct {
	SinceID    string
	MaxResults int
	Fields     string
}

// PostOptions configures a new post. ReplyTo makes it a reply.
type PostOptions struct {
	ReplyTo string
}

// HTTPClient talks to X API v2 with the configured credentials.
type HTTPClient struct {
	baseURL     string
	creds       config.Credentials
	signer      *oauth1Signer
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration

	mu       sync.Mutex
	appToken string
}

// NewHTTPClient builds a client for creds. Request signing is chosen once here.
func NewHTTPClient(creds config.Credentials, api config.APIConfig) *HTTPClient {
	c := &HTTPClient{
		baseURL:     strings.TrimRight(api.BaseURL, "/"),
		creds:       creds,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newLimiter(api.RPS, api.Burst),
		maxAttempts: api.MaxAttempts,
		baseBackoff: time.Duration(api.BaseBackoffMs) * time.Millisecond,
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	if uc, ok := creds.(config.UserContext); ok {
		c.signer = newOAuth1Signer(uc.ConsumerKey, uc.ConsumerSecret, uc.AccessToken, uc.AccessSecret)
	}
	return c
}

// WhoAmI returns the authenticated account.
func (c *HTTPClient) WhoAmI(ctx context.Context) (model.User, error) {
	var raw struct {
		Data userJSON `json:"data"`
	}
	q := url.Values{"user.fields": {"created_at,description,public_metrics,verified"}}
	if err := c.call(ctx, http.MethodGet, "/2/users/me", q, nil, &raw); err != nil {
		return model.User{}, err
	}
	if raw.Data.ID == "" {
		return model.User{}, errors.New("x api: empty identity in users/me response")
	}
	return raw.Data.toModel(), nil
}

// Search runs a recent search. Results are newest-first as returned by the API.
func (c *HTTPClient) Search(ctx context.Context, query string, opts SearchOptions) (model.SearchResult, error) {
	fields := opts.Fields
	if fields == "" {
		fields = DefaultTweetFields
	}
	q := url.Values{
		"query":        {query},
		"max_results":  {strconv.Itoa(clamp(opts.MaxResults, 10, 100))},
		"tweet.fields": {fields},
	}
	if opts.SinceID != "" {
		q.Set("since_id", opts.SinceID)
	}
	var raw struct {
		Data []tweetJSON `json:"data"`
		Meta struct {
			NewestID    string `json:"newest_id"`
			ResultCount int    `json:"result_count"`
		} `json:"meta"`
	}
	if err := c.call(ctx, http.MethodGet, "/2/tweets/search/recent", q, nil, &raw); err != nil {
		return model.SearchResult{}, err
	}
	out := model.SearchResult{
		Tweets:      make([]model.Tweet, 0, len(raw.Data)),
		NewestID:    raw.Meta.NewestID,
		ResultCount: raw.Meta.ResultCount,
	}
	for _, d := range raw.Data {
		out.Tweets = append(out.Tweets, d.toModel())
	}
	return out, nil
}

// Post creates a post, or a reply when opts.ReplyTo is set.
func (c *HTTPClient) Post(ctx context.Context, text string, opts PostOptions) (model.Tweet, error) {
	body := map[string]any{"text": text}
	if opts.ReplyTo != "" {
		body["reply"] = map[string]string{"in_reply_to_tweet_id": opts.ReplyTo}
	}
	var raw struct {
		Data tweetJSON `json:"data"`
	}
	if err := c.call(ctx, http.MethodPost, "/2/tweets", nil, body, &raw); err != nil {
		return model.Tweet{}, err
	}
	return raw.Data.toModel(), nil
}

// DeleteTweet deletes one of the account's posts.
func (c *HTTPClient) DeleteTweet(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("empty tweet id")
	}
	var raw struct {
		Data struct {
			Deleted bool `json:"deleted"`
		} `json:"data"`
	}
	if err := c.call(ctx, http.MethodDelete, "/2/tweets/"+url.PathEscape(id), nil, nil, &raw); err != nil {
		return false, err
	}
	return raw.Data.Deleted, nil
}

func (c *HTTPClient) call(ctx context.Context, method, path string, q url.Values, body any, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var req *http.Request
	var err error
	if body != nil {
		b, merr := json.Marshal(body)
		if merr != nil {
			return merr
		}
		req, err = http.NewRequestWithContext(ctx, method, u, bytes.NewReader(b))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return err
	}
	resp, err := c.doWithRetry(ctx, req, path, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) auth(ctx context.Context, req *http.Request) error {
	req.Header.Set("Accept", "application/json")
	switch cr := c.creds.(type) {
	case config.UserContext:
		c.signer.sign(req, nil)
	case config.Bearer:
		req.Header.Set("Authorization", "Bearer "+cr.Token)
	case config.AppOnly:
		tok, err := c.appBearer(ctx, cr)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	default:
		return config.ErrNoCredentials
	}
	return nil
}

// appBearer exchanges the consumer key/secret for an app-only token once.
func (c *HTTPClient) appBearer(ctx context.Context, cr config.AppOnly) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.appToken != "" {
		return c.appToken, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(url.QueryEscape(cr.ConsumerKey), url.QueryEscape(cr.ConsumerSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	resp, err := c.doWithRetry(ctx, req, "/oauth2/token", false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", decodeAPIError(resp)
	}
	var raw struct {
		TokenType   string `json:"token_type"`
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("decode app token: %w", err)
	}
	if raw.AccessToken == "" {
		return "", errors.New("x api: empty app-only token")
	}
	c.appToken = raw.AccessToken
	return c.appToken, nil
}

// doWithRetry retries transport errors and 5xx responses with doubling
// backoff. 429 is returned to the caller: throttling is classified by the
// ratelimit policy, not retried here. Every attempt takes a limiter token
// and, when authorize is set, is signed afresh so OAuth 1.0a nonces are
// never reused.
func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request, endpoint string, authorize bool) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncAPIRetry(endpoint)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
		r := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = body
		}
		if authorize {
			if err := c.auth(ctx, r); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(r)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && resp.StatusCode <= 599 && attempt < c.maxAttempts {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("x api status %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

type userJSON struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Username      string    `json:"username"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
	Verified      bool      `json:"verified"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
		FollowingCount int `json:"following_count"`
		TweetCount     int `json:"tweet_count"`
	} `json:"public_metrics"`
}

func (u userJSON) toModel() model.User {
	return model.User{
		ID:             u.ID,
		Username:       u.Username,
		Name:           u.Name,
		Description:    u.Description,
		CreatedAt:      u.CreatedAt,
		Verified:       u.Verified,
		FollowersCount: u.PublicMetrics.FollowersCount,
		FollowingCount: u.PublicMetrics.FollowingCount,
		TweetCount:     u.PublicMetrics.TweetCount,
	}
}

type tweetJSON struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	Lang           string    `json:"lang"`
}

func (t tweetJSON) toModel() model.Tweet {
	return model.Tweet{
		ID:             t.ID,
		Text:           t.Text,
		AuthorID:       t.AuthorID,
		ConversationID: t.ConversationID,
		CreatedAt:      t.CreatedAt,
		Language:       t.Lang,
	}
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
