package coop

import "sync"

// WaitGroup is a counting barrier: Add/Done adjust the counter, Wait blocks
// until it reaches zero. Unlike sync.WaitGroup, waiting is exposed as a
// Channel (WaitChannel) so it can appear directly as a Select case.
type WaitGroup struct {
	mu      sync.Mutex
	count   int
	waiting *Channel[struct{}]
}

// NewWaitGroup returns a WaitGroup with the given initial counter.
func NewWaitGroup(initial int) *WaitGroup {
	if initial < 0 {
		panicProgrammingError("negative WaitGroup counter", nil)
	}
	return &WaitGroup{count: initial}
}

// Add adds delta (which may be negative) to the counter. If the counter
// becomes zero, every pending Wait is released. It is a programming error
// for the counter to go negative, or for a positive delta to race with a
// call to Wait that is already blocked (the same misuse sync.WaitGroup
// itself forbids).
func (wg *WaitGroup) Add(delta int) {
	wg.mu.Lock()
	defer wg.mu.Unlock()

	if delta > 0 && wg.waiting != nil {
		panicProgrammingError("WaitGroup misuse: Add called concurrently with Wait", nil)
	}
	wg.count += delta
	if wg.count < 0 {
		panicProgrammingError("negative WaitGroup counter", nil)
	}
	if wg.count == 0 && wg.waiting != nil {
		wg.waiting.Close()
		wg.waiting = nil
	}
}

// Done decrements the counter by one.
func (wg *WaitGroup) Done() { wg.Add(-1) }

// Wait blocks until the counter reaches zero.
func (wg *WaitGroup) Wait() {
	ch := wg.waitChannel()
	if ch == nil {
		return
	}
	ch.Recv()
}

// WaitChannel returns a Channel that closes the next time the counter
// reaches zero, or nil if the counter is already zero. It lets a Wait
// compose with Select, e.g. Select(Recv(wg.WaitChannel()), Recv(ctx.Done())).
func (wg *WaitGroup) WaitChannel() *Channel[struct{}] {
	return wg.waitChannel()
}

func (wg *WaitGroup) waitChannel() *Channel[struct{}] {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	if wg.count == 0 {
		return nil
	}
	if wg.waiting == nil {
		wg.waiting = NewChannel[struct{}](0)
	}
	return wg.waiting
}
