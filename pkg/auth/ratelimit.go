package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether an authenticated caller may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// InProcessLimiter is a fixed-window limiter counting requests per subject
// per minute in memory.
type InProcessLimiter struct {
	perSubject map[string]int
	defaultRPM int
	now        func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a limiter allowing defaultRPM requests per
// minute to every subject, with per-subject overrides. A limit <= 0 means
// unlimited.
func NewInProcessLimiter(perSubject map[string]int, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		perSubject: perSubject,
		defaultRPM: defaultRPM,
		now:        time.Now,
		counters:   make(map[string]*counter),
	}
}

// Allow returns ErrTooManyRequests once the subject has used up the
// current window.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	rpm := l.defaultRPM
	if v, ok := l.perSubject[identity.Subject]; ok {
		rpm = v
	}
	if rpm <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[identity.Subject]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[identity.Subject] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count > rpm {
		return ErrTooManyRequests
	}
	return nil
}
