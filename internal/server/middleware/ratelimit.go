package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Limiter decides whether subject may make one more request.
type Limiter interface {
	Allow(ctx context.Context, subject string) (bool, error)
}

// RateObserver receives every limiter decision.
type RateObserver interface {
	ObserveRateLimit(backend string, allowed bool)
}

type localEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LocalLimiter is a per-subject token bucket held in process memory.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	every    rate.Limit
	burst    int
}

// NewLocalLimiter allows requests per window with a burst of the same size.
// Entries idle for 30 minutes are swept every 10 minutes until ctx ends.
func NewLocalLimiter(ctx context.Context, requests int, window time.Duration) *LocalLimiter {
	l := &LocalLimiter{
		limiters: make(map[string]*localEntry),
		every:    rate.Limit(float64(requests) / window.Seconds()),
		burst:    requests,
	}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep(time.Now().Add(-30 * time.Minute))
			case <-ctx.Done():
				return
			}
		}
	}()

	return l
}

func (l *LocalLimiter) Allow(_ context.Context, subject string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.limiters[subject]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[subject] = e
	}
	e.lastAccess = time.Now()
	return e.limiter.Allow(), nil
}

func (l *LocalLimiter) sweep(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.limiters {
		if e.lastAccess.Before(cutoff) {
			delete(l.limiters, k)
		}
	}
}

// RateLimit applies lim per actor, or per client address for requests that
// reach it without an actor. Limiter errors fail open. obs may be nil.
func RateLimit(lim Limiter, backend string, window time.Duration, obs RateObserver) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := "ip:" + r.RemoteAddr
			if actor, ok := ActorFromContext(r.Context()); ok {
				subject = "actor:" + actor.ID.String()
			}

			allowed, err := lim.Allow(r.Context(), subject)
			if err != nil {
				log.Warn().Err(err).Str("backend", backend).Msg("middleware.RateLimit: limiter unavailable, allowing request")
				allowed = true
			}
			if obs != nil {
				obs.ObserveRateLimit(backend, allowed)
			}

			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
