package testutil

import (
	"sync"
	"time"

	"symver/internal/versioner"
)

// StubClock is a versioner.Clock that only moves when told to.
// Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ versioner.Clock = (*StubClock)(nil)

// NewStubClock creates a StubClock reading t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock reads 2024-01-15 10:30:00 UTC, i.e. version "20240115103000".
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock by d and returns the new reading.
func (c *StubClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set jumps to t, which may be in the past.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
