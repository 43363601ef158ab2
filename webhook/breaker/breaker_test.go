package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker() (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	b := New(Config{
		Threshold:   3,
		Window:      time.Minute,
		Cooldown:    30 * time.Second,
		MaxCooldown: 2 * time.Minute,
		Multiplier:  2,
		Now:         clock.Now,
	})
	return b, clock
}

func fail(b *Breaker, key string, n int) {
	for i := 0; i < n; i++ {
		b.RecordFailure(key)
	}
}

func TestBreakerTransitions(t *testing.T) {
	t.Run("closed until threshold is reached", func(t *testing.T) {
		b, _ := newTestBreaker()

		fail(b, "wh-1", 2)
		require.NoError(t, b.Allow("wh-1"))
		assert.Equal(t, Closed, b.Stats("wh-1").State)
		assert.Equal(t, 2, b.Stats("wh-1").Failures)

		b.RecordFailure("wh-1")
		assert.ErrorIs(t, b.Allow("wh-1"), ErrOpen)
		assert.Equal(t, Open, b.Stats("wh-1").State)
	})

	t.Run("destinations are independent", func(t *testing.T) {
		b, _ := newTestBreaker()

		fail(b, "wh-1", 3)
		assert.ErrorIs(t, b.Allow("wh-1"), ErrOpen)
		assert.NoError(t, b.Allow("wh-2"))
	})

	t.Run("failures outside the window do not count", func(t *testing.T) {
		b, clock := newTestBreaker()

		fail(b, "wh-1", 2)
		clock.Advance(61 * time.Second)
		b.RecordFailure("wh-1")

		assert.NoError(t, b.Allow("wh-1"))
		assert.Equal(t, 1, b.Stats("wh-1").Failures)
	})

	t.Run("rejects until cool-down elapses then allows exactly one probe", func(t *testing.T) {
		b, clock := newTestBreaker()
		fail(b, "wh-1", 3)

		stats := b.Stats("wh-1")
		assert.Equal(t, clock.now.Add(30*time.Second), stats.NextRetryAt)

		clock.Advance(29 * time.Second)
		assert.ErrorIs(t, b.Allow("wh-1"), ErrOpen)

		clock.Advance(time.Second)
		require.NoError(t, b.Allow("wh-1"))
		assert.Equal(t, HalfOpen, b.Stats("wh-1").State)
		assert.ErrorIs(t, b.Allow("wh-1"), ErrOpen)
	})

	t.Run("successful probe closes and resets the counter", func(t *testing.T) {
		b, clock := newTestBreaker()
		fail(b, "wh-1", 3)
		clock.Advance(30 * time.Second)
		require.NoError(t, b.Allow("wh-1"))

		b.RecordSuccess("wh-1")

		stats := b.Stats("wh-1")
		assert.Equal(t, Closed, stats.State)
		assert.Equal(t, 0, stats.Failures)
		assert.True(t, stats.NextRetryAt.IsZero())
		assert.NoError(t, b.Allow("wh-1"))
	})

	t.Run("failed probe re-opens with a longer cool-down", func(t *testing.T) {
		b, clock := newTestBreaker()
		fail(b, "wh-1", 3)
		clock.Advance(30 * time.Second)
		require.NoError(t, b.Allow("wh-1"))

		b.RecordFailure("wh-1")

		stats := b.Stats("wh-1")
		assert.Equal(t, Open, stats.State)
		assert.Equal(t, 2, stats.Opens)
		assert.Equal(t, clock.now.Add(time.Minute), stats.NextRetryAt)
	})

	t.Run("cool-down is capped", func(t *testing.T) {
		b, clock := newTestBreaker()
		fail(b, "wh-1", 3)

		for i := 0; i < 4; i++ {
			clock.Advance(10 * time.Minute)
			require.NoError(t, b.Allow("wh-1"))
			b.RecordFailure("wh-1")
		}

		stats := b.Stats("wh-1")
		assert.Equal(t, clock.now.Add(2*time.Minute), stats.NextRetryAt)
	})

	t.Run("abandoned probe is replaced after one cool-down", func(t *testing.T) {
		b, clock := newTestBreaker()
		fail(b, "wh-1", 3)
		clock.Advance(30 * time.Second)
		require.NoError(t, b.Allow("wh-1"))

		clock.Advance(30 * time.Second)
		assert.NoError(t, b.Allow("wh-1"))
	})
}

func TestAllStats(t *testing.T) {
	b, _ := newTestBreaker()
	b.RecordFailure("b")
	b.RecordFailure("a")
	fail(b, "c", 3)

	all := b.AllStats()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Key)
	assert.Equal(t, "b", all[1].Key)
	assert.Equal(t, "c", all[2].Key)
	assert.Equal(t, Open, all[2].State)
}

func TestStatsUnknownKey(t *testing.T) {
	b, _ := newTestBreaker()
	stats := b.Stats("missing")
	assert.Equal(t, Closed, stats.State)
	assert.Equal(t, 0, stats.Failures)
}
