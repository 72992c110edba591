package coop

import (
	"sync"
	"time"
)

// Timer is a one-shot deadline event built on a Loop's Clock. Its C channel
// receives the firing time exactly once, unless the Timer was built via
// AfterFunc, in which case firing spawns a task on the Loop instead of
// sending on C, and C is left nil.
type Timer struct {
	C *Channel[time.Time]

	mu     sync.Mutex
	clock  Clock
	timer  ClockTimer
	fn     func()
	active *bool // the cell belonging to the currently scheduled arm
}

// NewTimer returns a Timer that sends the current time on its C channel
// after d elapses, using loop's Clock.
func NewTimer(loop *Loop, d time.Duration) *Timer {
	t := &Timer{C: NewChannel[time.Time](1)}
	t.init(loop, d, func() {
		t.C.TrySend(t.clock.Now())
	})
	return t
}

// AfterFunc schedules fn to run as a task on loop after d elapses, and
// returns a Timer that can Stop or Reset it before it fires. Unlike
// NewTimer, fn runs via loop.Spawn rather than through a channel, so it may
// itself suspend on this package's primitives.
func AfterFunc(loop *Loop, d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.init(loop, d, func() {
		_, _ = loop.Spawn(fn)
	})
	return t
}

// After is shorthand for NewTimer(loop, d).C.
func After(loop *Loop, d time.Duration) *Channel[time.Time] {
	return NewTimer(loop, d).C
}

func (t *Timer) init(loop *Loop, d time.Duration, fn func()) {
	t.clock = loop.Clock()
	t.fn = fn
	t.arm(d)
}

// arm schedules a fresh firing with its own active cell, never the receiver's
// own field read at call time: an in-flight fire from a stopped or reset-away
// arm closes over the cell that belonged to *that* arm, so it can only ever
// observe and clear its own flag, never a later arm's.
func (t *Timer) arm(d time.Duration) {
	cell := new(bool)
	*cell = true
	t.active = cell
	t.timer = t.clock.AfterFunc(d, func() { t.fire(cell) })
}

func (t *Timer) fire(cell *bool) {
	t.mu.Lock()
	if !*cell {
		t.mu.Unlock()
		return
	}
	*cell = false
	t.mu.Unlock()
	if lg := log(); lg != nil {
		lg.Debug().Log("coop: timer fired")
	}
	t.fn()
}

// Stop prevents the Timer from firing, if it hasn't already. It returns
// true if this call stopped the timer, false if it had already fired or
// been stopped.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !*t.active {
		return false
	}
	*t.active = false
	t.timer.Stop()
	return true
}

// Reset changes the Timer to fire after d, starting from now. It returns
// true if the Timer was still pending (and so had to be stopped first),
// false if it had already fired or been stopped, mirroring the standard
// library's *time.Timer.Reset caveat that callers should drain C before
// reusing an expired timer. The new arm gets its own active cell, so a
// concurrent fire of the arm being replaced cannot be mistaken for the new
// one.
func (t *Timer) Reset(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := *t.active
	if wasActive {
		*t.active = false
		t.timer.Stop()
	}
	t.arm(d)
	return wasActive
}
