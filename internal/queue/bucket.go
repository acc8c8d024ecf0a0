package queue

import (
	"context"
	"sync"
	"time"
)

// tokenBucket paces deliveries. Tokens accrue continuously from elapsed
// time and never exceed capacity.
type tokenBucket struct {
	mu           sync.Mutex
	capacity     float64
	refillPerSec float64
	tokens       float64
	last         time.Time
}

func newTokenBucket(capacity, refillPerSec float64) *tokenBucket {
	if capacity <= 0 {
		capacity = 10
	}
	if refillPerSec <= 0 {
		refillPerSec = 10
	}
	return &tokenBucket{
		capacity:     capacity,
		refillPerSec: refillPerSec,
		tokens:       capacity,
		last:         time.Now(),
	}
}

// take consumes one token if available. Otherwise it returns the duration
// until the next token accrues.
func (b *tokenBucket) take() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.refillPerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return 0
	}
	deficit := 1 - b.tokens
	return time.Duration(deficit / b.refillPerSec * float64(time.Second))
}

// wait blocks until a token is consumed or the context is cancelled.
func (b *tokenBucket) wait(ctx context.Context) error {
	for {
		d := b.take()
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
