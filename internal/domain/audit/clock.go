package audit

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing UTC timestamps at microsecond resolution,
// which is what Postgres timestamptz keeps.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock creates a clock backed by time.Now
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Now returns a timestamp later than every previous one
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
