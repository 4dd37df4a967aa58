package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/payment-bridge/internal/api/problem"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter limits merchant API requests per IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return ipRateLimiter(rps, "this IP")
}

// WebhookRateLimiter limits gateway notifications per source IP. The budget
// is separate from the merchant API so a webhook burst cannot starve it.
func WebhookRateLimiter(rps int) func(http.Handler) http.Handler {
	return ipRateLimiter(rps, "this webhook source")
}

func ipRateLimiter(rps int, scope string) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem.Write(
				w,
				r,
				http.StatusTooManyRequests,
				problem.Type("rate-limit-exceeded"),
				http.StatusText(http.StatusTooManyRequests),
				fmt.Sprintf("Rate limit of %d req/s exceeded for %s", rps, scope),
			)
		}),
	)
}
