package xclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status int
	Title  string
	Detail string
	// Reset is parsed from x-rate-limit-reset; zero when absent.
	Reset time.Time
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("x api status %d: %s", e.Status, msg)
}

// RateLimited reports whether the platform throttled the call.
func (e *APIError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

// ResetAt returns when the rate-limit window resets, if the platform said so.
func (e *APIError) ResetAt() (time.Time, bool) { return e.Reset, !e.Reset.IsZero() }

func decodeAPIError(resp *http.Response) *APIError {
	e := &APIError{Status: resp.StatusCode}
	if v := resp.Header.Get("x-rate-limit-reset"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			e.Reset = time.Unix(secs, 0).UTC()
		}
	}
	var body struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(b, &body) == nil {
		e.Title = body.Title
		e.Detail = body.Detail
		if e.Detail == "" && len(body.Errors) > 0 {
			e.Detail = body.Errors[0].Message
		}
	}
	return e
}
