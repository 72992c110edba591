package coop

import (
	"sync"
	"unsafe"
)

// Case is one arm of a Select call, produced by Recv or Send. A Case value
// is single-use: it carries the per-call waiter state for exactly one
// Select/TrySelect invocation.
type Case interface {
	register(g *selectGroup, idx int) (immediate bool, value any, ok bool, err error)
	tryImmediate() (matched bool, value any, ok bool, err error)
	cleanup()
	outcome() (any, bool, error)
}

// selectGroup is the shared decision point for one Select call: exactly one
// case may ever call complete on it. Its mutex doubles as the "group lock" of
// the dual-lock protocol: the lock a parked waiter's owning Select holds,
// compared by identity against the lock of whichever Select is currently
// trying to fulfill it.
type selectGroup struct {
	mu        sync.Mutex
	done      chan struct{}
	resultSet bool
	resultIdx int
	err       error
}

func (g *selectGroup) hasResult() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resultSet
}

// complete must be called with g.mu already held by the caller.
func (g *selectGroup) complete(idx int, err error) {
	if g.resultSet {
		return
	}
	g.resultSet = true
	g.resultIdx = idx
	g.err = err
	close(g.done)
}

// lockGemini acquires two group locks in a deterministic order (by memory
// address) so that two concurrent Select calls racing to fulfill each other
// across the same pair of channels can never deadlock: this is the "gemini
// lock". a == b degenerates to a single lock/unlock, though the caller never
// actually presents the same group as both sides (same-group waiters are
// skipped before attemptDeliver is reached).
func lockGemini(a, b *sync.Mutex) func() {
	if a == b {
		a.Lock()
		return a.Unlock
	}
	if uintptr(unsafe.Pointer(a)) < uintptr(unsafe.Pointer(b)) {
		a.Lock()
		b.Lock()
		return func() { b.Unlock(); a.Unlock() }
	}
	b.Lock()
	a.Lock()
	return func() { a.Unlock(); b.Unlock() }
}

// attemptDeliver tries to commit a match between the caller's own operation
// ("us": a select registration, or a plain Send/Recv/TrySend/TryRecv when
// ownerGroup/ownerLock are nil) and a candidate peer found on the opposite
// waiter list ("them": a parked waiter, or nothing at all when theirGroup/
// theirLock are nil, e.g. committing straight to buffer space). It acquires
// whatever locks the two sides actually need (none, one, or a gemini pair),
// checks neither side's group has already decided, and only then runs
// setUs/setTheirs to copy the typed outcome into each side's waiter and
// marks any group(s) involved complete. Returns whether the match was
// committed.
func attemptDeliver(
	ownerGroup *selectGroup, ownerLock *sync.Mutex, ourCaseIdx int,
	theirGroup *selectGroup, theirLock *sync.Mutex, theirCaseIdx int,
	setUs, setTheirs func(),
) bool {
	switch {
	case ownerLock == nil && theirLock == nil:
		setUs()
		setTheirs()
		return true
	case ownerLock == nil:
		theirLock.Lock()
		defer theirLock.Unlock()
		if theirGroup.resultSet {
			return false
		}
		setTheirs()
		theirGroup.complete(theirCaseIdx, nil)
		setUs()
		return true
	case theirLock == nil:
		ownerLock.Lock()
		defer ownerLock.Unlock()
		if ownerGroup.resultSet {
			return false
		}
		setUs()
		ownerGroup.complete(ourCaseIdx, nil)
		setTheirs()
		return true
	default:
		unlock := lockGemini(ownerLock, theirLock)
		defer unlock()
		if ownerGroup.resultSet || theirGroup.resultSet {
			return false
		}
		setUs()
		setTheirs()
		ownerGroup.complete(ourCaseIdx, nil)
		theirGroup.complete(theirCaseIdx, nil)
		return true
	}
}

// caseRecv is the Case produced by Recv.
type caseRecv[T any] struct {
	ch        *Channel[T]
	waiter    *recvWaiter[T]
	immediate bool
	value     T
	ok        bool
}

// Recv builds a Select/TrySelect case that receives from ch.
func Recv[T any](ch *Channel[T]) Case {
	return &caseRecv[T]{ch: ch}
}

func (c *caseRecv[T]) register(g *selectGroup, idx int) (bool, any, bool, error) {
	ch := c.ch
	if ch.isNil {
		return false, nil, false, nil
	}
	ch.mu.Lock()
	v, ok, done := ch.completeRecv(g, &g.mu, idx)
	if done {
		ch.mu.Unlock()
		c.immediate = true
		c.value, c.ok = v, ok
		return true, v, ok, nil
	}
	w := &recvWaiter[T]{groupLock: &g.mu, group: g, caseIdx: idx}
	w.node = ch.readers.Append(w)
	c.waiter = w
	ch.mu.Unlock()
	return false, nil, false, nil
}

func (c *caseRecv[T]) tryImmediate() (bool, any, bool, error) {
	ch := c.ch
	if ch.isNil {
		return false, nil, false, nil
	}
	ch.mu.Lock()
	v, ok, done := ch.completeRecv(nil, nil, 0)
	ch.mu.Unlock()
	return done, v, ok, nil
}

func (c *caseRecv[T]) cleanup() {
	if c.waiter == nil {
		return
	}
	ch := c.ch
	ch.mu.Lock()
	ch.readers.Remove(c.waiter.node)
	ch.mu.Unlock()
}

func (c *caseRecv[T]) outcome() (any, bool, error) {
	if c.immediate {
		return c.value, c.ok, nil
	}
	if c.waiter == nil {
		return nil, false, nil
	}
	return c.waiter.value, c.waiter.ok, nil
}

// caseSend is the Case produced by Send.
type caseSend[T any] struct {
	ch        *Channel[T]
	item      T
	waiter    *sendWaiter[T]
	immediate bool
	ok        bool
}

// Send builds a Select/TrySelect case that sends item on ch.
func Send[T any](ch *Channel[T], item T) Case {
	return &caseSend[T]{ch: ch, item: item}
}

func (c *caseSend[T]) register(g *selectGroup, idx int) (bool, any, bool, error) {
	ch := c.ch
	if ch.isNil {
		return false, nil, false, nil
	}
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return true, c.item, false, ErrChannelClosed
	}
	done := ch.completeSend(g, &g.mu, idx, c.item)
	if done {
		ch.mu.Unlock()
		c.immediate = true
		c.ok = true
		return true, c.item, true, nil
	}
	w := &sendWaiter[T]{item: c.item, groupLock: &g.mu, group: g, caseIdx: idx}
	w.node = ch.writers.Append(w)
	c.waiter = w
	ch.mu.Unlock()
	return false, nil, false, nil
}

func (c *caseSend[T]) tryImmediate() (bool, any, bool, error) {
	ch := c.ch
	if ch.isNil {
		return false, nil, false, nil
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return true, c.item, false, ErrChannelClosed
	}
	if ch.completeSend(nil, nil, 0, c.item) {
		return true, c.item, true, nil
	}
	return false, nil, false, nil
}

func (c *caseSend[T]) cleanup() {
	if c.waiter == nil {
		return
	}
	ch := c.ch
	ch.mu.Lock()
	ch.writers.Remove(c.waiter.node)
	ch.mu.Unlock()
}

func (c *caseSend[T]) outcome() (any, bool, error) {
	return c.item, true, nil
}

// Select blocks until exactly one of cases completes, and reports which.
// value is the received item for a winning Recv case, or the sent item
// (echoed back) for a winning Send case; ok follows Channel.Recv's meaning
// for a Recv case and is always true for a Send case. If any Send case finds
// its channel already closed during registration and no case completes
// during registration, or the channel of a parked Send case is closed before
// another case completes, Select returns (-1, nil, false, ErrChannelClosed).
//
// Registration happens in argument order. The self-fulfillment rule means a
// Select never matches two of its own cases against each other: a send-case
// and a recv-case on the same channel within one Select call simply both
// park until an external operation fulfills one of them.
func Select(cases ...Case) (int, any, bool, error) {
	if len(cases) == 0 {
		panicProgrammingError("select called with no cases", nil)
	}

	g := &selectGroup{done: make(chan struct{})}
	var rememberedErr error

	for idx, c := range cases {
		if g.hasResult() {
			break
		}
		immediate, _, _, err := c.register(g, idx)
		if immediate && err != nil && rememberedErr == nil {
			rememberedErr = err
		}
	}

	if !g.hasResult() && rememberedErr != nil {
		g.mu.Lock()
		if !g.resultSet {
			g.resultSet = true
			g.resultIdx = -1
			g.err = rememberedErr
			close(g.done)
		}
		g.mu.Unlock()
	}

	<-g.done

	for _, c := range cases {
		c.cleanup()
	}

	g.mu.Lock()
	idx, err := g.resultIdx, g.err
	g.mu.Unlock()

	if err != nil {
		return -1, nil, false, err
	}
	value, ok, _ := cases[idx].outcome()
	return idx, value, ok, nil
}

// TrySelect attempts each case in order without blocking, committing to the
// first that can complete immediately. It returns (-1, nil, false, nil) if
// none could, or (-1, nil, false, ErrChannelClosed) if at least one case was
// a send on an already-closed channel and no case completed.
func TrySelect(cases ...Case) (int, any, bool, error) {
	if len(cases) == 0 {
		panicProgrammingError("select called with no cases", nil)
	}

	var rememberedErr error
	for idx, c := range cases {
		matched, value, ok, err := c.tryImmediate()
		if !matched {
			continue
		}
		if err != nil {
			if rememberedErr == nil {
				rememberedErr = err
			}
			continue
		}
		return idx, value, ok, nil
	}

	if rememberedErr != nil {
		return -1, nil, false, rememberedErr
	}
	return -1, nil, false, nil
}
