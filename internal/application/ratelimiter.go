package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RateLimiter = (*FixedWindowLimiter)(nil)

// Default admission limits: 100 actions per minute.
const (
	DefaultRateLimitWindow = 60 * time.Second
	DefaultRateLimitMax    = 100
)

// FixedWindowLimiter admits at most max actions per window. The window starts
// on the first check after the previous one elapsed. It is owned by the
// caller and shared by every pipeline invocation that uses it.
type FixedWindowLimiter struct {
	clock  clockwork.Clock
	window time.Duration
	max    int

	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// NewFixedWindowLimiter returns a *model.ConfigurationError when window or max
// is not positive. A nil clock uses the real clock.
func NewFixedWindowLimiter(window time.Duration, max int, clock clockwork.Clock) (*FixedWindowLimiter, error) {
	if window <= 0 {
		return nil, &model.ConfigurationError{Field: "rate_limit_window", Reason: fmt.Sprintf("must be positive, got %s", window)}
	}
	if max <= 0 {
		return nil, &model.ConfigurationError{Field: "rate_limit_max", Reason: fmt.Sprintf("must be positive, got %d", max)}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &FixedWindowLimiter{
		clock:       clock,
		window:      window,
		max:         max,
		windowStart: clock.Now(),
	}, nil
}

// TryAcquire counts one action and reports whether it was admitted. A denied
// attempt is not counted. It never blocks and never returns an error.
func (l *FixedWindowLimiter) TryAcquire(_ context.Context) (bool, error) {
	return l.Allow(), nil
}

// Allow is TryAcquire without the port signature.
func (l *FixedWindowLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if !now.Before(l.windowStart.Add(l.window)) {
		l.windowStart = now
		l.count = 0
	}

	if l.count >= l.max {
		return false
	}
	l.count++
	return true
}

// FixedWindowState is a snapshot of the limiter's counters.
type FixedWindowState struct {
	Count       int
	Max         int
	WindowStart time.Time
	Window      time.Duration
}

// State returns the current counters. The count is not rolled over by this
// call.
func (l *FixedWindowLimiter) State() FixedWindowState {
	l.mu.Lock()
	defer l.mu.Unlock()

	return FixedWindowState{
		Count:       l.count,
		Max:         l.max,
		WindowStart: l.windowStart,
		Window:      l.window,
	}
}
