// Package ratelimit provides fixed-window counters and dedup windows. Both are caches:
// losing them on restart only resets the windows.
package ratelimit

import (
	"context"
	"time"
)

type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	RetryAfter time.Duration
}

// Limiter counts hits per key inside a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Limit() int
	Window() time.Duration
}

// Deduper reports whether key was seen for the first time in the current window.
type Deduper interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
}
