package reconnect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delays(b *Backoff, n int) []time.Duration {
	out := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		d, ok := b.Next()
		if !ok {
			break
		}
		out = append(out, d)
	}
	return out
}

func TestExponentialCapped(t *testing.T) {
	b := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}.Backoff()
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond,
		800 * time.Millisecond, time.Second, time.Second,
	}, delays(b, 6))
}

func TestFixedWithMaxAttempts(t *testing.T) {
	b := Fixed(5*time.Second, 3).Backoff()
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, delays(b, 10))
	_, ok := b.Next()
	assert.False(t, ok)

	b.Reset()
	_, ok = b.Next()
	assert.True(t, ok)
}

func TestJitterBounded(t *testing.T) {
	b := Policy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, Jitter: 0.5}.Backoff()
	b.rand = func() float64 { return 1 }
	d, _ := b.Next()
	assert.Equal(t, 1500*time.Millisecond, d)
}

func TestStableConnectionResetsAttempts(t *testing.T) {
	now := time.Now()
	b := Policy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, StableAfter: time.Minute}.Backoff()
	b.now = func() time.Time { return now }

	delays(b, 3)
	assert.Equal(t, 3, b.Attempt())

	b.Connected()
	now = now.Add(2 * time.Minute)
	d, _ := b.Next()
	assert.Equal(t, time.Second, d)

	b.Connected()
	now = now.Add(time.Second)
	d, _ = b.Next()
	assert.Equal(t, 2*time.Second, d)
}

func TestRetry(t *testing.T) {
	calls := 0
	var retries []time.Duration
	err := Retry(context.Background(), Fixed(time.Millisecond, 5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("down")
		}
		return nil
	}, func(_ error, d time.Duration) { retries = append(retries, d) })
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, retries, 2)

	err = Retry(context.Background(), Fixed(time.Millisecond, 2), func(context.Context) error {
		return errors.New("always")
	}, nil)
	assert.EqualError(t, err, "always")
}

func TestWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Fixed(time.Hour, 0).Backoff().Wait(ctx))
}
