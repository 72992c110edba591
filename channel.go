package coop

import (
	"iter"
	"reflect"
	"sync"
)

// Channel is a generic, typed FIFO with optional buffering: capacity 0 is a
// synchronous rendezvous, capacity > 0 a bounded buffer. It is the
// concurrency-primitive analogue of Go's own native channel, but built from
// scratch on top of this package's own waiter lists and the dual-lock
// protocol Select needs (see select.go) — a native chan cannot be a Select
// case here because Select's fairness and close-cascade rules are this
// package's own contract, not the runtime's.
type Channel[T any] struct {
	mu       sync.Mutex
	capacity int
	q        queue[T]
	closed   bool
	readers  *list[*recvWaiter[T]]
	writers  *list[*sendWaiter[T]]
	isNil    bool
}

// recvWaiter is a parked receiver. groupLock/group/caseIdx are set only when
// the waiter was registered by Select; a plain Recv/TryRecv leaves them nil,
// and is fulfilled unconditionally the moment it is popped from the list
// (see attemptDeliver).
type recvWaiter[T any] struct {
	value T
	ok    bool

	groupLock *sync.Mutex
	group     *selectGroup
	caseIdx   int

	simpleDone chan struct{}
	node       *listNode[*recvWaiter[T]]
}

// sendWaiter is a parked sender, symmetric to recvWaiter.
type sendWaiter[T any] struct {
	item T
	err  error

	groupLock *sync.Mutex
	group     *selectGroup
	caseIdx   int

	simpleDone chan struct{}
	node       *listNode[*sendWaiter[T]]
}

// queue is a small slice-backed FIFO used for a Channel's buffer.
type queue[T any] struct {
	items []T
	head  int
}

func (q *queue[T]) len() int { return len(q.items) - q.head }

func (q *queue[T]) push(v T) { q.items = append(q.items, v) }

func (q *queue[T]) pop() (T, bool) {
	if q.len() == 0 {
		var zero T
		return zero, false
	}
	v := q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head > 16 && q.head*2 > len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return v, true
}

// NewChannel constructs a Channel with the given buffer capacity. capacity 0
// yields an unbuffered (rendezvous) channel.
func NewChannel[T any](capacity int) *Channel[T] {
	if capacity < 0 {
		panicProgrammingError("negative channel capacity", nil)
	}
	return &Channel[T]{
		capacity: capacity,
		readers:  newList[*recvWaiter[T]](),
		writers:  newList[*sendWaiter[T]](),
	}
}

var nilChannels sync.Map // map[reflect.Type]any, lazily holding one *Channel[T] per T

// NilChannel returns the process-wide sentinel nil channel for T: every
// operation on it blocks forever (Send, Recv), reports no progress
// (TrySend, TryRecv), and Close panics. It is the Go expression of "the
// sentinel nil channel", realized as a distinct always-empty variant rather
// than a literal nil *Channel[T] pointer, so it has a receiver to run its
// methods on.
func NilChannel[T any]() *Channel[T] {
	var zero T
	key := reflect.TypeOf(&zero).Elem()
	if v, ok := nilChannels.Load(key); ok {
		return v.(*Channel[T])
	}
	ch := &Channel[T]{
		isNil:   true,
		readers: newList[*recvWaiter[T]](),
		writers: newList[*sendWaiter[T]](),
	}
	actual, _ := nilChannels.LoadOrStore(key, ch)
	return actual.(*Channel[T])
}

// Cap returns the channel's buffer capacity.
func (c *Channel[T]) Cap() int { return c.capacity }

// Len returns the number of items currently buffered.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.len()
}

// Send suspends the calling goroutine until item is accepted by a parked
// receiver or the buffer, or the channel closes. It returns ErrChannelClosed
// if the channel is or becomes closed while waiting.
func (c *Channel[T]) Send(item T) error {
	if c.isNil {
		select {}
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.completeSend(nil, nil, 0, item) {
		c.mu.Unlock()
		return nil
	}
	w := &sendWaiter[T]{item: item, simpleDone: make(chan struct{})}
	w.node = c.writers.Append(w)
	c.mu.Unlock()

	<-w.simpleDone
	return w.err
}

// Recv suspends until a value is available or the channel is closed and
// drained, in which case it returns the zero value and ok=false.
func (c *Channel[T]) Recv() (T, bool) {
	if c.isNil {
		select {}
	}
	c.mu.Lock()
	if v, ok, done := c.completeRecv(nil, nil, 0); done {
		c.mu.Unlock()
		return v, ok
	}
	w := &recvWaiter[T]{simpleDone: make(chan struct{})}
	w.node = c.readers.Append(w)
	c.mu.Unlock()

	<-w.simpleDone
	return w.value, w.ok
}

// TrySend attempts a non-blocking send. It returns false (no error) if a
// blocking send would have to park, and ErrChannelClosed if the channel is
// closed.
func (c *Channel[T]) TrySend(item T) (bool, error) {
	if c.isNil {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrChannelClosed
	}
	return c.completeSend(nil, nil, 0, item), nil
}

// TryRecv attempts a non-blocking receive. progress=false means a blocking
// Recv would have parked; otherwise (value, ok) behave as in Recv.
func (c *Channel[T]) TryRecv() (progress bool, value T, ok bool) {
	if c.isNil {
		var zero T
		return false, zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok, done := c.completeRecv(nil, nil, 0)
	return done, v, ok
}

// Close marks the channel closed: every parked writer wakes with
// ErrChannelClosed, and every parked reader first drains any remaining
// buffered items (FIFO) before waking with (zero, false). Closing an
// already-closed channel, or the sentinel nil channel, is a programming
// error.
func (c *Channel[T]) Close() {
	if c.isNil {
		panicProgrammingError("cannot close the nil channel", nil)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		panicProgrammingError("channel closed twice", nil)
	}
	c.closed = true

	for n := c.writers.root.next; n != &c.writers.root; {
		next := n.next
		w := n.Value
		c.writers.Remove(n)
		c.wakeWriterClosed(w)
		n = next
	}

	for n := c.readers.root.next; n != &c.readers.root; {
		next := n.next
		w := n.Value
		c.readers.Remove(n)
		c.wakeReaderClosed(w)
		n = next
	}

	c.mu.Unlock()
}

// Range receives values until the channel closes and drains, or fn returns
// false.
func (c *Channel[T]) Range(fn func(T) bool) {
	for {
		v, ok := c.Recv()
		if !ok {
			return
		}
		if !fn(v) {
			return
		}
	}
}

// All returns a range-over-func iterator equivalent to Range, for use in a
// Go 1.23+ "for v := range ch.All()" loop.
func (c *Channel[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		c.Range(yield)
	}
}

// wakeWriterClosed delivers ErrChannelClosed to a writer unlinked by Close,
// honoring the discard check for select-registered waiters. c.mu is held by
// the caller throughout.
func (c *Channel[T]) wakeWriterClosed(w *sendWaiter[T]) {
	if w.groupLock == nil {
		w.err = ErrChannelClosed
		close(w.simpleDone)
		return
	}
	w.groupLock.Lock()
	defer w.groupLock.Unlock()
	if w.group.resultSet {
		return
	}
	w.err = ErrChannelClosed
	w.group.complete(w.caseIdx, ErrChannelClosed)
}

// wakeReaderClosed delivers the close outcome to a reader unlinked by
// Close: a drained buffer item if one remains, else (zero, false). The
// buffer pop happens only once the discard check passes, so a discarded
// select waiter never loses a buffered item.
func (c *Channel[T]) wakeReaderClosed(w *recvWaiter[T]) {
	deliver := func() {
		if v, has := c.q.pop(); has {
			w.value, w.ok = v, true
		} else {
			var zero T
			w.value, w.ok = zero, false
		}
	}
	if w.groupLock == nil {
		deliver()
		close(w.simpleDone)
		return
	}
	w.groupLock.Lock()
	defer w.groupLock.Unlock()
	if w.group.resultSet {
		return
	}
	deliver()
	w.group.complete(w.caseIdx, nil)
}

// completeSend attempts to complete a send of item without blocking: first
// against a parked reader, then against buffer room. ownerGroup/ownerLock
// are nil for a plain Send/TrySend; c.mu must already be held.
func (c *Channel[T]) completeSend(ownerGroup *selectGroup, ownerLock *sync.Mutex, ourCaseIdx int, item T) bool {
	if c.tryMatchReaderForSend(ownerGroup, ownerLock, ourCaseIdx, item) {
		return true
	}
	if c.q.len() < c.capacity {
		return attemptDeliver(ownerGroup, ownerLock, ourCaseIdx, nil, nil, 0,
			func() { c.q.push(item) }, func() {})
	}
	return false
}

// completeRecv is the receive-side counterpart of completeSend, including
// the buffer-swap-on-handoff rule: when both a buffered
// item and a parked writer are available, the buffer's head is returned and
// the writer's item takes its place at the tail, preserving arrival order
// across mixed direct/buffered handoffs.
func (c *Channel[T]) completeRecv(ownerGroup *selectGroup, ownerLock *sync.Mutex, ourCaseIdx int) (value T, ok bool, done bool) {
	if c.closed {
		if c.q.len() > 0 {
			var result T
			var resOk bool
			committed := attemptDeliver(ownerGroup, ownerLock, ourCaseIdx, nil, nil, 0,
				func() { v, _ := c.q.pop(); result, resOk = v, true }, func() {})
			if committed {
				return result, resOk, true
			}
			return value, false, false
		}
		committed := attemptDeliver(ownerGroup, ownerLock, ourCaseIdx, nil, nil, 0, func() {}, func() {})
		if committed {
			var zero T
			return zero, false, true
		}
		return value, false, false
	}

	if v, matched := c.tryMatchWriterForRecv(ownerGroup, ownerLock, ourCaseIdx); matched {
		return v, true, true
	}

	if c.q.len() > 0 {
		var result T
		var resOk bool
		committed := attemptDeliver(ownerGroup, ownerLock, ourCaseIdx, nil, nil, 0,
			func() { v, _ := c.q.pop(); result, resOk = v, true }, func() {})
		if committed {
			return result, resOk, true
		}
		return value, false, false
	}

	return value, false, false
}

// tryMatchReaderForSend scans parked readers front-to-back, skipping any
// belonging to the caller's own select group (the self-fulfillment rule),
// delivering item to the first one that is not discarded.
func (c *Channel[T]) tryMatchReaderForSend(ownerGroup *selectGroup, ownerLock *sync.Mutex, ourCaseIdx int, item T) bool {
	for n := c.readers.root.next; n != &c.readers.root; {
		next := n.next
		w := n.Value
		if ownerLock != nil && w.groupLock == ownerLock {
			n = next
			continue
		}
		c.readers.Remove(n)
		setTheirs := func() {
			w.value = item
			w.ok = true
			if w.groupLock == nil {
				close(w.simpleDone)
			}
		}
		if attemptDeliver(ownerGroup, ownerLock, ourCaseIdx, w.group, w.groupLock, w.caseIdx, func() {}, setTheirs) {
			return true
		}
		n = next
	}
	return false
}

// tryMatchWriterForRecv is the receive-side counterpart of
// tryMatchReaderForSend.
func (c *Channel[T]) tryMatchWriterForRecv(ownerGroup *selectGroup, ownerLock *sync.Mutex, ourCaseIdx int) (T, bool) {
	for n := c.writers.root.next; n != &c.writers.root; {
		next := n.next
		w := n.Value
		if ownerLock != nil && w.groupLock == ownerLock {
			n = next
			continue
		}
		c.writers.Remove(n)
		var result T
		var matched bool
		setUs := func() {
			if c.q.len() > 0 {
				v, _ := c.q.pop()
				result = v
				c.q.push(w.item)
			} else {
				result = w.item
			}
			matched = true
		}
		setTheirs := func() {
			w.err = nil
			if w.groupLock == nil {
				close(w.simpleDone)
			}
		}
		if attemptDeliver(ownerGroup, ownerLock, ourCaseIdx, w.group, w.groupLock, w.caseIdx, setUs, setTheirs) {
			return result, matched
		}
		n = next
	}
	var zero T
	return zero, false
}
