package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"threads/internal/constants"
)

// rateLimit allows limit requests per window for each client IP. Rejected
// requests get a RATE_LIMITED error body and a Retry-After header.
func rateLimit(limit int, window time.Duration, resolver *ClientIPResolver) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(resolver.Key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(window)))
			writeError(w, http.StatusTooManyRequests, constants.ErrCodeRateLimited, "Too many requests, please try again later")
		}),
	)
}

func retryAfterSeconds(window time.Duration) int {
	if window <= 0 {
		return 1
	}
	seconds := int(math.Ceil(window.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
