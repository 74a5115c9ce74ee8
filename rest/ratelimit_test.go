package rest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAcquireSerializesSameBucket(t *testing.T) {
	l := NewLimiter(discardLogger())
	ctx := context.Background()

	p1, err := l.Acquire(ctx, "b")
	require.NoError(t, err)

	acquired := make(chan *Permit)
	go func() {
		p2, err := l.Acquire(ctx, "b")
		require.NoError(t, err)
		acquired <- p2
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire completed while first permit was held")
	case <-time.After(50 * time.Millisecond):
	}

	p1.Release()
	select {
	case p2 := <-acquired:
		p2.Release()
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestExhaustedBucketWaitsForReset(t *testing.T) {
	l := NewLimiter(discardLogger())
	ctx := context.Background()

	p, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "5")
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset-After", "0.15")
	p.Update(h)
	p.Release()

	start := time.Now()
	p2, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	p2.Release()
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}

func TestDistinctBucketsDoNotBlockEachOther(t *testing.T) {
	l := NewLimiter(discardLogger())
	ctx := context.Background()

	p1, err := l.Acquire(ctx, "a")
	require.NoError(t, err)
	defer p1.Release()

	done := make(chan struct{})
	go func() {
		p2, err := l.Acquire(ctx, "b")
		require.NoError(t, err)
		p2.Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire on an unrelated bucket blocked")
	}
}

func TestGlobalCooldownGatesEveryBucket(t *testing.T) {
	l := NewLimiter(discardLogger())
	ctx := context.Background()

	p, err := l.Acquire(ctx, "a")
	require.NoError(t, err)
	l.ApplyRetryAfter(p, 120*time.Millisecond, true)
	p.Release()

	start := time.Now()
	p2, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	p2.Release()
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquireHonorsContext(t *testing.T) {
	l := NewLimiter(discardLogger())

	p, err := l.Acquire(context.Background(), "b")
	require.NoError(t, err)
	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset-After", "5")
	p.Update(h)
	p.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
