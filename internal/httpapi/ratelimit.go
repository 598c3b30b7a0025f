package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimiter configures one httprate window: limit requests per window,
// keyed by the resolved client address. The façade runs two of these —
// turn-credentials issuance and the /ws upgrade — each with its own
// budget, since an upgrade attempt is far rarer per client than a
// credential refresh.
type RateLimiter struct {
	limit  int
	window time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window}
}

// RateLimitMiddleware builds the chi middleware for one limiter. A nil
// ipResolver falls back to an untrusted-proxy resolver (keys on the raw
// peer address only).
func RateLimitMiddleware(limiter *RateLimiter, ipResolver *ClientIPResolver) func(http.Handler) http.Handler {
	if ipResolver == nil {
		ipResolver, _ = NewClientIPResolver(nil)
	}

	retryAfter := strconv.Itoa(retryAfterSeconds(limiter.window))

	return httprate.Limit(
		limiter.limit,
		limiter.window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ipResolver.Resolve(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "")
		}),
	)
}

// retryAfterSeconds rounds a window up to a whole positive second, since
// Retry-After is specified in seconds and a sub-second window would
// otherwise round to zero.
func retryAfterSeconds(window time.Duration) int {
	if seconds := int(math.Ceil(window.Seconds())); seconds >= 1 {
		return seconds
	}
	return 1
}
