package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New("relay", WithFailureThreshold(3), WithCooldown(time.Second), WithClock(clock.Now))

	for range 2 {
		assert.True(t, b.Allow())
		b.Failure()
	}
	assert.Equal(t, StateClosed, b.State())

	assert.True(t, b.Allow())
	b.Failure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := New("relay", WithFailureThreshold(2))
	b.Failure()
	b.Success()
	b.Failure()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAllowsOneProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var transitions []string
	b := New("relay",
		WithFailureThreshold(1),
		WithCooldown(time.Second),
		WithClock(clock.Now),
		WithStateChange(func(_ string, _, to State) { transitions = append(transitions, to.String()) }),
	)

	b.Failure()
	clock.Advance(time.Second)

	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "second caller must wait for the probe")
	assert.Equal(t, StateHalfOpen, b.State())

	b.Failure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	clock.Advance(time.Second)
	assert.True(t, b.Allow())
	b.Success()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())

	assert.Equal(t, []string{"open", "half_open", "open", "half_open", "closed"}, transitions)
}
