package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker(t *testing.T) {
	clock := time.Unix(0, 0)
	b := NewBreaker(3, time.Second)
	b.now = func() time.Time { return clock }

	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())

	b.Failure()
	b.Failure()
	assert.Equal(t, BreakerClosed, b.State())
	b.Failure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	clock = clock.Add(2 * time.Second)
	assert.True(t, b.Allow(), "trial call after cooldown")
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.False(t, b.Allow(), "only one trial call in flight")

	b.Failure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	clock = clock.Add(2 * time.Second)
	assert.True(t, b.Allow())
	b.Success()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
	assert.Equal(t, "closed", b.State().String())
}
