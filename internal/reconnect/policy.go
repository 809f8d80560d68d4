// Package reconnect implements the backoff policy used to re-establish lost
// connections: the realtime client after a transport close, and the startup
// dialers for Postgres and Redis.
package reconnect

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy describes how long to wait between attempts.
// Multiplier 1 gives a fixed delay; MaxAttempts 0 means retry forever.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int
	// Jitter adds up to Jitter*BaseDelay of random delay to each wait.
	Jitter float64
	// StableAfter resets the attempt counter once a connection has stayed up this long.
	StableAfter time.Duration
}

// Default mirrors the browser client: start at 1s, double up to 30s, never give up.
func Default() Policy {
	return Policy{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      0.5,
		StableAfter: time.Minute,
	}
}

// Fixed waits the same delay between every attempt.
func Fixed(delay time.Duration, maxAttempts int) Policy {
	return Policy{BaseDelay: delay, MaxDelay: delay, Multiplier: 1, MaxAttempts: maxAttempts}
}

func (p Policy) Backoff() *Backoff {
	return &Backoff{policy: p, now: time.Now, rand: rand.Float64}
}

// Backoff tracks attempts for one logical connection. Not safe for concurrent use.
type Backoff struct {
	policy      Policy
	attempt     int
	connectedAt time.Time
	now         func() time.Time
	rand        func() float64
}

func (b *Backoff) Attempt() int { return b.attempt }

// Connected records a successful connection.
func (b *Backoff) Connected() {
	b.connectedAt = b.now()
}

// Reset forgets previous failures.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.connectedAt = time.Time{}
}

// Next returns the delay before the next attempt, or false when attempts are exhausted.
func (b *Backoff) Next() (time.Duration, bool) {
	p := b.policy
	if p.StableAfter > 0 && !b.connectedAt.IsZero() && b.now().Sub(b.connectedAt) >= p.StableAfter {
		b.attempt = 0
	}
	b.connectedAt = time.Time{}
	if p.MaxAttempts > 0 && b.attempt >= p.MaxAttempts {
		return 0, false
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(b.attempt))
	if p.Jitter > 0 {
		delay += b.rand() * p.Jitter * float64(p.BaseDelay)
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	b.attempt++
	return time.Duration(delay), true
}

// Wait sleeps for the next delay. It returns false if attempts are exhausted or ctx is done.
func (b *Backoff) Wait(ctx context.Context) bool {
	d, ok := b.Next()
	if !ok {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Retry calls fn until it succeeds, the policy gives up, or ctx is done.
// onRetry is called with each failure and the delay before the next attempt.
func Retry(ctx context.Context, p Policy, fn func(context.Context) error, onRetry func(err error, next time.Duration)) error {
	b := p.Backoff()
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		d, ok := b.Next()
		if !ok {
			return err
		}
		if onRetry != nil {
			onRetry(err, d)
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
