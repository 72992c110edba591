// Package clocktest provides a virtual Clock for deterministic timer-ordering
// tests: a test advances the clock explicitly instead of sleeping and hoping
// the scheduler runs things in the expected order.
package clocktest

import (
	"sort"
	"sync"
	"time"

	"github.com/joeycumines/go-coop"
)

var _ coop.Clock = (*Clock)(nil)

// Clock is a virtual, manually-advanced implementation of coop.Clock. The
// zero value is not usable; construct with New.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*timer
	seq     uint64
}

// New returns a Clock whose Now starts at start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the clock's current virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run, on the goroutine calling Advance, once the
// clock's virtual time reaches Now()+d.
func (c *Clock) AfterFunc(d time.Duration, f func()) coop.ClockTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{clock: c, at: c.now.Add(d), fn: f, seq: c.seq, active: true}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves the clock's virtual time forward by d, firing - in fire-time
// order, ties broken by scheduling order - every timer whose deadline falls
// at or before the new time. Each firing timer's callback runs synchronously
// on the calling goroutine, in order, before Advance returns.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	deadline := c.now
	var due []*timer
	remaining := c.pending[:0]
	for _, t := range c.pending {
		t.mu.Lock()
		fire := t.active && !t.at.After(deadline)
		if fire {
			t.active = false
		}
		t.mu.Unlock()
		if fire {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	c.pending = remaining
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	for _, t := range due {
		t.fn()
	}
}

// Len reports how many timers are still pending (not fired, not stopped).
func (c *Clock) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// timer implements coop.ClockTimer against the virtual clock.
type timer struct {
	clock *Clock
	mu    sync.Mutex
	at    time.Time
	fn    func()
	seq   uint64

	active bool
}

// Stop cancels the timer, reporting whether it was still pending.
func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	t.mu.Lock()
	was := t.active
	t.active = false
	t.mu.Unlock()

	if was {
		for i, p := range t.clock.pending {
			if p == t {
				t.clock.pending = append(t.clock.pending[:i], t.clock.pending[i+1:]...)
				break
			}
		}
	}
	return was
}

// Reset reschedules the timer to fire d after the clock's current time,
// reporting whether it was still pending before the reset.
func (t *timer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	t.mu.Lock()
	was := t.active
	t.active = true
	t.at = t.clock.now.Add(d)
	t.mu.Unlock()

	if !was {
		t.clock.pending = append(t.clock.pending, t)
	}
	return was
}
