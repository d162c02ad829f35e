// Package redis holds the go-redis backed fixed-window request counter the
// HTTP rate limiter uses when several API processes share one budget.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func New(ctx context.Context, addr, password string, db, limit int, window time.Duration) (*Limiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, fmt.Errorf("redis.New: limit and window must be positive (got %d, %s)", limit, window)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &Limiter{client: client, limit: int64(limit), window: window}, nil
}

func (l *Limiter) Close() error {
	if err := l.client.Close(); err != nil {
		return fmt.Errorf("redis.Limiter.Close: %w", err)
	}
	return nil
}

// Allow counts one request for subject in the current window and reports
// whether it is within the limit. On error the caller decides whether to
// fail open.
func (l *Limiter) Allow(ctx context.Context, subject string) (bool, error) {
	key := WindowKey(subject, l.window, time.Now())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis.Limiter.Allow: %w", err)
	}

	return incr.Val() <= l.limit, nil
}

// WindowKey returns the counter key for subject in the fixed window holding now:
// rl:<window seconds>:<window index>:<subject>.
func WindowKey(subject string, window time.Duration, now time.Time) string {
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	idx := now.Unix() / secs
	return "rl:" + strconv.FormatInt(secs, 10) + ":" + strconv.FormatInt(idx, 10) + ":" + subject
}
