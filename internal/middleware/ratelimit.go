package middleware

import (
	"encoding/json"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

// RateLimiter applies a per-client token bucket. Authenticated requests are
// keyed by user ID, anonymous ones by remote address.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewRateLimiter creates a rate limiter allowing requestsPerSecond sustained
// with the given burst.
func NewRateLimiter(requestsPerSecond, burst int, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("middleware")
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		log:      log,
	}
}

// maxTrackedClients bounds the limiter table. Exceeding it resets the table,
// which at worst grants active clients one fresh burst.
const maxTrackedClients = 10000

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		if len(rl.limiters) >= maxTrackedClients {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if u, ok := CurrentUser(r.Context()); ok {
			key = u.ID
		}

		if !rl.getLimiter(key).Allow() {
			rl.log.WithField("key", key).
				WithField("path", r.URL.Path).
				Warn("rate limit exceeded")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
