package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type throttled struct {
	reset time.Time
}

func (throttled) Error() string { return "too many requests" }
func (throttled) RateLimited() bool { return true }
func (t throttled) ResetAt() (time.Time, bool) { return t.reset, !t.reset.IsZero() }

func fixedNow() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }

func testPolicy() Policy {
	p := Default()
	p.Now = fixedNow
	return p
}

func TestClassifyGenericError(t *testing.T) {
	d, err := testPolicy().Classify(errors.New("boom"), 0)
	require.NoError(t, err)
	assert.False(t, d.RateLimited)
	assert.Zero(t, d.Wait)
}

func TestClassifyUsesResetPlusMargin(t *testing.T) {
	e := throttled{reset: fixedNow().Add(30 * time.Second)}
	d, err := testPolicy().Classify(fmt.Errorf("search: %w", e), 0)
	require.NoError(t, err)
	assert.True(t, d.RateLimited)
	assert.Equal(t, 35*time.Second, d.Wait)
}

func TestClassifyPastResetWaitsOnlyMargin(t *testing.T) {
	e := throttled{reset: fixedNow().Add(-time.Minute)}
	d, err := testPolicy().Classify(e, 2)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d.Wait)
}

func TestClassifyExponentialWithoutReset(t *testing.T) {
	p := testPolicy()
	for retry, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second} {
		d, err := p.Classify(throttled{}, retry)
		require.NoError(t, err)
		assert.Equal(t, want, d.Wait, "retry %d", retry)
	}
}

func TestClassifyExhaustedReturnsOriginalError(t *testing.T) {
	orig := throttled{}
	d, err := testPolicy().Classify(orig, 5)
	assert.True(t, d.RateLimited)
	assert.Equal(t, error(orig), err)
}

func TestRetryRecoversAfterThrottle(t *testing.T) {
	p := testPolicy()
	var waits []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error { waits = append(waits, d); return nil }

	calls := 0
	err := p.Retry(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return throttled{}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestRetryStopsOnGenericErrorAndBudget(t *testing.T) {
	p := testPolicy()
	p.MaxRetries = 2
	p.sleep = func(context.Context, time.Duration) error { return nil }

	boom := errors.New("boom")
	calls := 0
	err := p.Retry(context.Background(), "test", func(context.Context) error { calls++; return boom })
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = p.Retry(context.Background(), "test", func(context.Context) error { calls++; return throttled{} })
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, 3, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	p := testPolicy()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Retry(ctx, "test", func(context.Context) error { return throttled{} })
	assert.ErrorIs(t, err, context.Canceled)
}
