package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Buckets start out generous and learn their real limits from
// response headers; nothing is persisted across restarts.
const defaultBucketLimit = 5

type bucket struct {
	mu        sync.Mutex
	remaining int
	limit     int
	reset     time.Time
}

// Limiter tracks one quota window per route bucket plus the global
// cooldown. Requests sharing a bucket serialize their quota
// accounting: a permit is held for the duration of the request so
// header updates are applied in order.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	globalMu    sync.Mutex
	globalUntil time.Time

	log *slog.Logger
}

func NewLimiter(log *slog.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		log:     log,
	}
}

func (l *Limiter) bucket(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{remaining: defaultBucketLimit, limit: defaultBucketLimit}
		l.buckets[key] = b
	}
	return b
}

// Permit is held while a request on its bucket is in flight.
type Permit struct {
	b   *bucket
	key string
}

// Acquire blocks until the bucket has quota: either remaining is
// nonzero or the reset window has elapsed. Holders of a permit on
// the same bucket are serialized.
func (l *Limiter) Acquire(ctx context.Context, key string) (*Permit, error) {
	b := l.bucket(key)
	b.mu.Lock()

	for {
		if until := l.globalDeadline(); !until.IsZero() {
			l.log.Warn("waiting for global rate limit", "bucket", key, "until", until)
			if err := sleepUntil(ctx, until); err != nil {
				b.mu.Unlock()
				return nil, err
			}
			continue
		}
		now := time.Now()
		if now.After(b.reset) {
			b.remaining = b.limit
		}
		if b.remaining > 0 {
			b.remaining--
			return &Permit{b: b, key: key}, nil
		}
		l.log.Debug("bucket exhausted, waiting for reset", "bucket", key, "reset", b.reset)
		if err := sleepUntil(ctx, b.reset); err != nil {
			b.mu.Unlock()
			return nil, err
		}
	}
}

// Update corrects the bucket from rate-limit response headers.
func (p *Permit) Update(h http.Header) {
	if v := h.Get("X-RateLimit-Limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.b.limit = n
		}
	}
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.b.remaining = n
		}
	}
	if v := h.Get("X-RateLimit-Reset-After"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.b.reset = time.Now().Add(time.Duration(f * float64(time.Second)))
		}
	}
}

// Release ends the permit, letting the next request on the bucket
// proceed against the updated quota.
func (p *Permit) Release() {
	p.b.mu.Unlock()
}

// ApplyRetryAfter empties the bucket until the server-declared delay
// has passed. Called on a 429 while the permit is still held, so no
// further permit for this bucket is released before the cooldown.
func (l *Limiter) ApplyRetryAfter(p *Permit, d time.Duration, global bool) {
	p.b.remaining = 0
	p.b.reset = time.Now().Add(d)
	if global {
		l.globalMu.Lock()
		l.globalUntil = time.Now().Add(d)
		l.globalMu.Unlock()
	}
}

func (l *Limiter) globalDeadline() time.Time {
	l.globalMu.Lock()
	defer l.globalMu.Unlock()
	if time.Now().Before(l.globalUntil) {
		return l.globalUntil
	}
	return time.Time{}
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
