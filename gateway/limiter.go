package gateway

import (
	"context"
	"sync"
	"time"
)

// The gateway allows 120 outbound frames per minute. 110 leaves room
// for heartbeats, which bypass this limiter entirely.
const (
	sendLimit  = 110
	sendWindow = 60 * time.Second
)

type sendLimiter struct {
	mu        sync.Mutex
	max       int
	remaining int
	window    time.Time
	per       time.Duration
}

func newSendLimiter() *sendLimiter {
	return &sendLimiter{max: sendLimit, remaining: sendLimit, per: sendWindow}
}

func (l *sendLimiter) delay() time.Duration {
	now := time.Now()
	if now.After(l.window.Add(l.per)) {
		l.remaining = l.max
	}
	if l.remaining == l.max {
		l.window = now
	}
	if l.remaining == 0 {
		return l.per - now.Sub(l.window)
	}
	l.remaining--
	if l.remaining == 0 {
		l.window = now
	}
	return 0
}

func (l *sendLimiter) block(ctx context.Context) error {
	l.mu.Lock()
	d := l.delay()
	l.mu.Unlock()
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
