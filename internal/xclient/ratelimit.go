package xclient

import "golang.org/x/time/rate"

// newLimiter builds the client-side token bucket that paces outbound calls
// below the platform's windows. Non-positive values fall back to 2 rps / burst 10.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 10
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
