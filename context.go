package coop

import (
	"sync"
	"time"

	"github.com/joeycumines/go-coop/internal/xmap"
)

// Context carries a cancellation signal and a key/value bag down a call
// tree, the same contract as the standard library's context.Context but
// with Done expressed as this package's own Channel so it composes directly
// with Select.
type Context interface {
	// Deadline returns the Clock time at which this context will be
	// canceled, if any.
	Deadline() (deadline time.Time, ok bool)
	// Done returns a Channel that closes when this context is canceled or
	// times out. It returns NilChannel[struct{}]() for a context that is
	// never canceled (Background, TODO).
	Done() *Channel[struct{}]
	// Err returns ErrCanceled or ErrDeadlineExceeded once Done is closed,
	// nil before that.
	Err() error
	// Value looks up key in this context or any of its ancestors.
	Value(key any) any
}

type canceler interface {
	cancel(removeFromParent bool, err error)
	Done() *Channel[struct{}]
}

// emptyCtx is Background/TODO: never canceled, no deadline, no values.
type emptyCtx struct{ name string }

func (*emptyCtx) Deadline() (time.Time, bool) { return time.Time{}, false }
func (*emptyCtx) Done() *Channel[struct{}]    { return NilChannel[struct{}]() }
func (*emptyCtx) Err() error                  { return nil }
func (*emptyCtx) Value(any) any               { return nil }
func (c *emptyCtx) String() string            { return "coop." + c.name }

var (
	backgroundCtx Context = &emptyCtx{name: "Background"}
	todoCtx       Context = &emptyCtx{name: "TODO"}
)

// Background returns a non-nil, empty, never-canceled Context: the root of
// every context tree.
func Background() Context { return backgroundCtx }

// TODO returns a non-nil, empty Context used as a placeholder when it is
// unclear which Context to use, or one isn't yet available.
func TODO() Context { return todoCtx }

// CancelFunc cancels its associated Context. Calling it more than once is a
// no-op; the first call's error is what Err ends up reporting.
type CancelFunc func()

type cancelCtxKeyType struct{}

var cancelCtxKey cancelCtxKeyType

// cancelCtx is the Context returned by WithCancel, and the shared base of
// timerCtx.
type cancelCtx struct {
	Context

	mu       sync.Mutex
	done     *Channel[struct{}]
	err      error
	children *xmap.Set[canceler]
}

func (c *cancelCtx) Done() *Channel[struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		c.done = NewChannel[struct{}](0)
	}
	return c.done
}

func (c *cancelCtx) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *cancelCtx) Value(key any) any {
	if key == cancelCtxKey {
		return c
	}
	return value(c.Context, key)
}

// cancel closes c.done, sets c.err (first cancellation wins), and
// recursively cancels every child registered via propagateCancel. If
// removeFromParent, it also unregisters c from its nearest cancelCtx
// ancestor, so canceling a leaf context doesn't leak its slot in a
// long-lived parent's children set.
func (c *cancelCtx) cancel(removeFromParent bool, err error) {
	if err == nil {
		panicProgrammingError("context canceled with a nil error", nil)
	}

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = err
	if c.done == nil {
		c.done = closedDoneChannel()
	} else {
		c.done.Close()
	}
	children := c.children
	c.children = nil
	c.mu.Unlock()

	if lg := log(); lg != nil {
		lg.Debug().Err(err).Log("coop: context canceled")
	}

	if children != nil {
		for _, child := range children.Values() {
			child.cancel(false, err)
		}
	}

	if removeFromParent {
		removeChild(c.Context, c)
	}
}

// closedDoneChannel returns a fresh, already-closed Channel: used when a
// context is canceled before anything ever called Done, so no goroutine is
// left waiting to observe a channel that was never otherwise constructed.
func closedDoneChannel() *Channel[struct{}] {
	ch := NewChannel[struct{}](0)
	ch.Close()
	return ch
}

// WithCancel returns a copy of parent with a new Done channel, and a
// CancelFunc that closes it. Canceling this context also cancels every
// context derived from it.
func WithCancel(parent Context) (Context, CancelFunc) {
	if parent == nil {
		panicProgrammingError("cannot create context from a nil parent", nil)
	}
	c := &cancelCtx{Context: parent}
	propagateCancel(parent, c)
	return c, func() { c.cancel(true, ErrCanceled) }
}

// propagateCancel arranges for child to be canceled when parent is, either
// by registering it directly on parent's cancelCtx (the fast path) or, for
// a parent type this package doesn't know how to introspect, by spawning a
// goroutine that waits on both Done channels via Select.
func propagateCancel(parent Context, child canceler) {
	done := parent.Done()
	if done == NilChannel[struct{}]() {
		return
	}

	if progress, _, _ := done.TryRecv(); progress {
		child.cancel(false, parent.Err())
		return
	}

	if p, ok := parentCancelCtx(parent); ok {
		p.mu.Lock()
		if p.err != nil {
			p.mu.Unlock()
			child.cancel(false, p.err)
			return
		}
		if p.children == nil {
			p.children = xmap.NewSet[canceler]()
		}
		p.children.Add(child)
		p.mu.Unlock()
		return
	}

	go func() {
		idx, _, _, _ := Select(Recv(parent.Done()), Recv(child.Done()))
		if idx == 0 {
			child.cancel(false, parent.Err())
		}
	}()
}

// parentCancelCtx finds the nearest *cancelCtx ancestor of parent whose own
// Done channel is exactly the one parent.Done() returns, i.e. an ancestor
// that parent did not wrap with a differently-signaled Done (as WithValue
// never does, but a hypothetical custom Context implementation might).
func parentCancelCtx(parent Context) (*cancelCtx, bool) {
	done := parent.Done()
	if done == NilChannel[struct{}]() {
		return nil, false
	}
	v := parent.Value(cancelCtxKey)
	p, ok := v.(*cancelCtx)
	if !ok {
		return nil, false
	}
	p.mu.Lock()
	pdone := p.done
	p.mu.Unlock()
	if pdone != done {
		return nil, false
	}
	return p, true
}

func removeChild(parent Context, child canceler) {
	p, ok := parentCancelCtx(parent)
	if !ok {
		return
	}
	p.mu.Lock()
	if p.children != nil {
		p.children.Delete(child)
	}
	p.mu.Unlock()
}

// timerCtx is the Context returned by WithDeadline/WithTimeout: a cancelCtx
// plus a ClockTimer that fires the deadline cancellation.
type timerCtx struct {
	*cancelCtx
	clock    Clock
	deadline time.Time
	timer    ClockTimer
}

func (c *timerCtx) Deadline() (time.Time, bool) { return c.deadline, true }

func (c *timerCtx) cancel(removeFromParent bool, err error) {
	c.cancelCtx.cancel(false, err)
	if removeFromParent {
		removeChild(c.cancelCtx.Context, c)
	}
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
}

// WithDeadline returns a copy of parent canceled either when the CancelFunc
// is called, when the parent's own Done fires, or when clock reaches d,
// whichever comes first. It uses loop's Clock to schedule the deadline
// timer (see WithClock for substituting a virtual clock in tests).
func WithDeadline(loop *Loop, parent Context, d time.Time) (Context, CancelFunc) {
	if parent == nil {
		panicProgrammingError("cannot create context from a nil parent", nil)
	}
	if cur, ok := parent.Deadline(); ok && cur.Before(d) {
		return WithCancel(parent)
	}

	clock := loop.Clock()
	c := &timerCtx{
		cancelCtx: &cancelCtx{Context: parent},
		clock:     clock,
		deadline:  d,
	}
	propagateCancel(parent, c)

	dur := d.Sub(clock.Now())
	if dur <= 0 {
		c.cancel(true, ErrDeadlineExceeded)
		return c, func() { c.cancel(false, ErrCanceled) }
	}

	c.mu.Lock()
	if c.err == nil {
		c.timer = clock.AfterFunc(dur, func() {
			c.cancel(true, ErrDeadlineExceeded)
		})
	}
	c.mu.Unlock()

	return c, func() { c.cancel(true, ErrCanceled) }
}

// WithTimeout is shorthand for WithDeadline(loop, parent, loop.Clock().Now().Add(timeout)).
func WithTimeout(loop *Loop, parent Context, timeout time.Duration) (Context, CancelFunc) {
	return WithDeadline(loop, parent, loop.Clock().Now().Add(timeout))
}

// valueCtx carries a single key/value pair, delegating everything else to
// its parent.
type valueCtx struct {
	Context
	key, val any
}

// WithValue returns a copy of parent in which Value(key) reports val. key
// should be a comparable type distinct from the types used by other
// packages, conventionally an unexported struct type, to avoid collisions.
func WithValue(parent Context, key, val any) Context {
	if parent == nil {
		panicProgrammingError("cannot create context from a nil parent", nil)
	}
	if key == nil {
		panicProgrammingError("cannot use a nil context key", nil)
	}
	return &valueCtx{Context: parent, key: key, val: val}
}

func (c *valueCtx) Value(key any) any {
	if c.key == key {
		return c.val
	}
	return value(c.Context, key)
}

// value walks the context chain without recursing through interface
// dispatch, the same unrolled-loop trick the standard library's context
// package uses to keep long WithValue chains from costing one stack frame
// per ancestor.
func value(c Context, key any) any {
	for {
		switch ctx := c.(type) {
		case *valueCtx:
			if key == ctx.key {
				return ctx.val
			}
			c = ctx.Context
		case *cancelCtx:
			if key == cancelCtxKey {
				return ctx
			}
			c = ctx.Context
		case *timerCtx:
			if key == cancelCtxKey {
				return ctx.cancelCtx
			}
			c = ctx.cancelCtx.Context
		case *emptyCtx:
			return nil
		default:
			return c.Value(key)
		}
	}
}
