package remote

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	failing := func() (bool, error) { return true, errors.New("down") }
	healthy := func() (bool, error) { return false, nil }

	assert.Error(t, b.call(failing))
	assert.ErrorIs(t, b.call(healthy), ErrBreakerOpen)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, b.call(healthy), "probe after cooldown goes through")
	assert.False(t, b.open())

	assert.Error(t, b.call(failing))
	assert.True(t, b.open())
}

func TestBreaker_DisabledWithZeroThreshold(t *testing.T) {
	b := newBreaker(0, time.Minute)
	for i := 0; i < 10; i++ {
		assert.Error(t, b.call(func() (bool, error) { return true, errors.New("down") }))
	}
	assert.False(t, b.open())
}
