package ratelimit

import (
	"net"
	"net/http"
	"strconv"

	"github.com/kuitang/frontpage-e2e/internal/obs"
)

// DefaultRetryAfterSeconds is sent in Retry-After on a 429.
const DefaultRetryAfterSeconds = 60

// ClientIP keys requests by remote address without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the client's budget with 429 Too Many
// Requests. Requests whose key is empty are not limited.
func Middleware(limiter *RateLimiter, clientKey func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientKey(r)
			if client == "" {
				next.ServeHTTP(w, r)
				return
			}

			bucket := limiter.GetLimiter(client)
			if !bucket.Allow() {
				obs.From(r.Context()).Warn("rate_limited",
					"pkg", "ratelimit",
					"client", client,
					"path", r.URL.Path,
					"tracked_clients", limiter.Len(),
				)
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte("Too Many Requests"))
				return
			}

			remaining := int(bucket.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}
