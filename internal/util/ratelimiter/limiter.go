// Package ratelimiter throttles periodic side effects such as progress logs.
package ratelimiter

import (
	"sync"
	"time"
)

// Limiter allows one action per interval and is safe for concurrent use.
// A zero interval allows every action.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
	suppressed  int64
	now         func() time.Time
}

// New creates a limiter allowing at most one action per interval
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether an action may run now. When it may not, the
// remaining wait is returned and the call is counted as suppressed.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.lastAllowed)
	if l.lastAllowed.IsZero() || elapsed >= l.interval {
		l.lastAllowed = now
		return true, 0
	}
	l.suppressed++
	return false, l.interval - elapsed
}

// Do runs fn if an action is allowed now. fn receives the number of actions
// suppressed since the last one that ran.
func (l *Limiter) Do(fn func(suppressed int64)) bool {
	ok, _ := l.Allow()
	if !ok {
		return false
	}
	fn(l.takeSuppressed())
	return true
}

// Force runs fn regardless of the interval and restarts it. Used for the
// final action of a series so its last state is never dropped.
func (l *Limiter) Force(fn func(suppressed int64)) {
	l.mu.Lock()
	l.lastAllowed = l.now()
	l.mu.Unlock()
	fn(l.takeSuppressed())
}

func (l *Limiter) takeSuppressed() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.suppressed
	l.suppressed = 0
	return n
}

// Reset clears the limiter state, allowing the next action immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.lastAllowed = time.Time{}
	l.suppressed = 0
	l.mu.Unlock()
}

// Interval returns the configured interval
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
