// Package ratelimit provides the per-tool rate limiter the scheduler
// acquires a slot from before dispatching a task (spec §4.1 step 3, §5).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket configures one token-bucket's capacity and refill rate.
type Bucket struct {
	Requests int
	Per      time.Duration
}

// DefaultBucket matches the spec's default of 10 requests / 1000ms.
var DefaultBucket = Bucket{Requests: 10, Per: time.Second}

// Limiter is a process-wide, fair-queued rate limiter keyed by full tool
// id. Each key gets its own independent token bucket so a burst against
// one tool never starves another (spec §5 "guarded against thundering
// herd by fair-queue semantics per key").
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	fallback Bucket
}

// New creates a Limiter whose buckets default to fallback unless Configure
// overrides a specific tool id.
func New(fallback Bucket) *Limiter {
	if fallback.Requests <= 0 {
		fallback = DefaultBucket
	}
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		fallback: fallback,
	}
}

// Configure sets a bucket for a specific tool id, overriding the fallback.
func (l *Limiter) Configure(tool string, b Bucket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[tool] = l.newLimiter(b)
}

func (l *Limiter) newLimiter(b Bucket) *rate.Limiter {
	limit := rate.Every(b.Per / time.Duration(b.Requests))
	return rate.NewLimiter(limit, b.Requests)
}

func (l *Limiter) limiterFor(tool string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.buckets[tool]
	if !ok {
		lim = l.newLimiter(l.fallback)
		l.buckets[tool] = lim
	}
	return lim
}

// Acquire blocks until a slot is available for tool, or ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context, tool string) error {
	return l.limiterFor(tool).Wait(ctx)
}
