// Package ratelimit decides whether a failed platform call was throttled
// and how long to wait before trying again.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"mentionwatch/internal/metrics"
)

// RateLimited is implemented by errors that carry the platform's
// "too many requests" marker.
type RateLimited interface {
	RateLimited() bool
}

// Resetter is implemented by errors that know when the window resets.
type Resetter interface {
	ResetAt() (time.Time, bool)
}

// Decision is the outcome of classifying a failed call.
type Decision struct {
	RateLimited bool
	Wait        time.Duration
}

// Policy computes waits. It never sleeps itself except inside Retry.
type Policy struct {
	BaseDelay    time.Duration
	MaxRetries   int
	SafetyMargin time.Duration
	Now          func() time.Time

	sleep func(ctx context.Context, d time.Duration) error
}

// Default is 1s exponential base, 5 retries, 5s margin on reset timestamps.
func Default() Policy {
	return Policy{BaseDelay: time.Second, MaxRetries: 5, SafetyMargin: 5 * time.Second, Now: time.Now}
}

// IsRateLimited reports whether err (or anything it wraps) is a throttling error.
func IsRateLimited(err error) bool {
	var rl RateLimited
	return errors.As(err, &rl) && rl.RateLimited()
}

// Classify decides how to handle err after retryCount previous retries.
// Errors that are not rate limits yield a zero Decision and nil. Once
// retryCount reaches MaxRetries the original err is returned unchanged.
func (p Policy) Classify(err error, retryCount int) (Decision, error) {
	if !IsRateLimited(err) {
		return Decision{}, nil
	}
	if retryCount >= p.MaxRetries {
		return Decision{RateLimited: true}, err
	}
	var rs Resetter
	if errors.As(err, &rs) {
		if reset, ok := rs.ResetAt(); ok {
			wait := reset.Sub(p.now())
			if wait < 0 {
				wait = 0
			}
			return Decision{RateLimited: true, Wait: wait + p.SafetyMargin}, nil
		}
	}
	return Decision{RateLimited: true, Wait: p.BaseDelay * time.Duration(1<<uint(retryCount))}, nil
}

// Retry calls fn until it succeeds, fails with a non rate-limit error, or
// the retry budget is spent, waiting as Classify says between attempts.
func (p Policy) Retry(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	for retry := 0; ; retry++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		d, cerr := p.Classify(err, retry)
		if cerr != nil || !d.RateLimited {
			return err
		}
		metrics.IncAPIRetry(endpoint)
		if serr := p.doSleep(ctx, d.Wait); serr != nil {
			return serr
		}
	}
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p Policy) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
