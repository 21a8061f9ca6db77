package gateway

import (
	"chat-core/auth"
	"chat-core/errors"
	"log/slog"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const trackedCallers = 10_000

// RateLimiter hands out one token bucket per caller. Buckets of callers not
// seen for a while are evicted.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	log      *slog.Logger
	limiters *lru.Cache[string, *rate.Limiter]
}

func NewRateLimiter(perSecond float64, burst int, log *slog.Logger) (*RateLimiter, error) {
	limiters, err := lru.New[string, *rate.Limiter](trackedCallers)
	if err != nil {
		return nil, err
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limit: rate.Limit(perSecond), burst: burst, log: log, limiters: limiters}, nil
}

func (l *RateLimiter) Allow(caller string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(caller)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(caller, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Middleware rejects callers over their budget with 429. It must run after
// auth.Middleware.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ := auth.UserIDFromContext(r.Context())
		if !l.Allow(caller) {
			l.log.Debug("Rate limited", "user", caller, "path", r.URL.Path)
			writeError(w, errors.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
