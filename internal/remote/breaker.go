package remote

import (
	"sync"
	"time"
)

type breakerState uint8

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// breaker opens after a run of consecutive failures and lets a single probe
// through once the cooldown has passed. A successful probe closes it again.
type breaker struct {
	mu        sync.Mutex
	state     breakerState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	now       func() time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// call runs fn unless the breaker is open. fn reports whether the attempt
// counts as a failure of the remote side; its error is returned unchanged.
func (b *breaker) call(fn func() (failed bool, err error)) error {
	if b == nil || b.threshold <= 0 {
		_, err := fn()
		return err
	}

	b.mu.Lock()
	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = stateHalfOpen
	case stateHalfOpen:
		// one probe at a time
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	b.mu.Unlock()

	failed, err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if !failed {
		b.state = stateClosed
		b.failures = 0
		return err
	}
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.threshold {
		b.state = stateOpen
		b.openedAt = b.now()
	}
	return err
}

func (b *breaker) open() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && b.now().Sub(b.openedAt) < b.cooldown
}
