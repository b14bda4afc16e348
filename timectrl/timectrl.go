package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source used for AFC expiry and notification
// timestamps. Components depend on it rather than on time.Now so tests can
// drive time explicitly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to. Listeners run on every change.
type ManualClock struct {
	mu        sync.RWMutex
	now       time.Time
	listeners []func(time.Time)
}

// NewManualClock constructs a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set jumps to t and notifies listeners.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	listeners := append([]func(time.Time){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
}

// Advance moves the clock forward by d and notifies listeners.
func (c *ManualClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// AddListener registers a callback invoked on every Set or Advance.
func (c *ManualClock) AddListener(fn func(time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Ticker periodically samples a clock and hands the reading to its
// listeners. It drives AFC expiry checks in long-running processes.
type Ticker struct {
	mu        sync.Mutex
	clock     Clock
	interval  time.Duration
	listeners []func(time.Time)
}

// NewTicker constructs a ticker over clock; a nil clock means SystemClock.
func NewTicker(clock Clock, interval time.Duration) *Ticker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ticker{clock: clock, interval: interval}
}

// AddListener registers a callback invoked on every tick.
func (t *Ticker) AddListener(fn func(time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Run ticks until ctx is done and returns ctx.Err().
func (t *Ticker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.fire()
		}
	}
}

func (t *Ticker) fire() {
	now := t.clock.Now()
	t.mu.Lock()
	listeners := append([]func(time.Time){}, t.listeners...)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
}
