package coop

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of cooperative work: a function spawned onto a Loop that
// may call Channel.Send, Channel.Recv, Select, WaitGroup.Wait, or block on a
// Context's Done channel.
type Task func()

type loopState uint32

const (
	loopAwake loopState = iota
	loopTerminating
	loopTerminated
)

var loopIDCounter atomic.Uint64

// Loop is the cooperative executor. It does not itself run task bodies on a
// single OS thread: each Task spawned via [Loop.Spawn] gets its own
// goroutine, the natural Go equivalent of a suspended coroutine, but it
// does serialize the bookkeeping that would otherwise race: tracking
// in-flight tasks for shutdown, gating [Loop.DelegateBlocking] concurrency,
// and dispatching [Loop.ScheduleTimer] callbacks through a single [Clock].
type Loop struct {
	id   uint64
	opts *loopOptions

	mu    sync.Mutex
	state loopState
	done  chan struct{}

	tasksWg sync.WaitGroup

	delegateSem chan struct{}
	delegateWg  sync.WaitGroup

	// taskGoroutines tracks the goroutine IDs currently executing inside a
	// Task spawned by this Loop, so RunUntilComplete can refuse a reentrant
	// call from one of its own tasks: blocking the executor on itself is a
	// programming error.
	taskGoroutines sync.Map // map[uint64]struct{}

	closeOnce sync.Once
}

// NewLoop constructs a Loop ready to accept Spawn/RunUntilComplete/
// DelegateBlocking/ScheduleTimer calls.
func NewLoop(opts ...LoopOption) (*Loop, error) {
	cfg := resolveLoopOptions(opts)
	l := &Loop{
		id:   loopIDCounter.Add(1),
		opts: cfg,
		done: make(chan struct{}),
	}
	if cfg.tickBudget > 0 {
		l.delegateSem = make(chan struct{}, cfg.tickBudget)
	}
	if lg := log(); lg != nil {
		lg.Debug().Log("coop: loop started")
	}
	return l, nil
}

// Clock returns the Loop's time source, as configured by WithClock.
func (l *Loop) Clock() Clock {
	return l.opts.clock
}

// Spawn schedules task to run on a new goroutine tracked by the Loop, and
// returns a handle whose Done channel closes when task returns (whether
// normally or via panic). It returns ErrLoopTerminated if the Loop has been
// closed.
func (l *Loop) Spawn(task Task) (*TaskHandle, error) {
	if task == nil {
		return nil, nil
	}

	l.mu.Lock()
	if l.state != loopAwake {
		l.mu.Unlock()
		err := ErrLoopTerminated
		if lg := log(); lg != nil {
			lg.Warning().Log("coop: spawn rejected, loop is terminated")
		}
		if l.opts.onOverload != nil {
			l.opts.onOverload(err)
		}
		return nil, err
	}
	l.tasksWg.Add(1)
	l.mu.Unlock()

	h := &TaskHandle{done: NewChannel[struct{}](0)}

	go func() {
		defer l.tasksWg.Done()
		gid := goroutineID()
		l.taskGoroutines.Store(gid, struct{}{})
		defer l.taskGoroutines.Delete(gid)
		defer h.done.Close()
		h.recovered = l.runTask(task)
	}()

	return h, nil
}

// runTask executes task, recovering and logging any panic rather than
// letting it escape onto the goroutine Spawn created. The recovered value
// (nil if task returned normally) is handed back to the caller via
// TaskHandle.
func (l *Loop) runTask(task Task) (recovered any) {
	defer func() {
		recovered = recover()
		if recovered != nil {
			if lg := log(); lg != nil {
				lg.Err().Log("coop: task panicked")
			}
		}
	}()
	task()
	return nil
}

// TaskHandle is returned by Spawn. Its Done channel closes when the task
// returns; Recovered reports any panic value the task raised.
type TaskHandle struct {
	done      *Channel[struct{}]
	recovered any
}

// Done returns a channel closed once the spawned task has returned.
func (h *TaskHandle) Done() *Channel[struct{}] {
	return h.done
}

// Recovered returns the value passed to panic inside the task, or nil if
// the task returned normally (or hasn't finished yet).
func (h *TaskHandle) Recovered() any {
	return h.recovered
}

// isLoopTask reports whether the calling goroutine is currently executing a
// Task spawned by l.
func (l *Loop) isLoopTask() bool {
	_, ok := l.taskGoroutines.Load(goroutineID())
	return ok
}

// RunUntilComplete submits fn as a task, blocks the calling goroutine until
// it returns, and yields its result. It must be called from outside any of
// this Loop's own tasks; calling it from within one returns
// ErrReentrantRunUntilComplete. Unlike a literal single-thread scheduler,
// nothing structurally prevents the reentrant call from being made, so it
// is surfaced as an ordinary error rather than a deadlock; it is always a
// caller bug.
func RunUntilComplete[T any](l *Loop, fn func() T) (T, error) {
	var zero T
	if l.isLoopTask() {
		return zero, ErrReentrantRunUntilComplete
	}

	result := make(chan T, 1)
	_, err := l.Spawn(func() {
		result <- fn()
	})
	if err != nil {
		return zero, err
	}
	return <-result, nil
}

// DelegateBlocking runs fn on a goroutine from the Loop's delegate pool
// (bounded by WithTickBudget, unbounded by default) and blocks the calling
// goroutine until it returns, yielding fn's result. This is the sanctioned
// escape hatch for genuinely blocking work: fn must not itself call back
// into this Loop's Channel/Select/Context primitives in a way that would
// need to suspend, since it runs off any task's goroutine.
func DelegateBlocking[T any](l *Loop, fn func() T) (T, error) {
	var zero T

	l.mu.Lock()
	if l.state == loopTerminated {
		l.mu.Unlock()
		return zero, ErrLoopTerminated
	}
	l.delegateWg.Add(1)
	l.mu.Unlock()

	if l.delegateSem != nil {
		l.delegateSem <- struct{}{}
	}

	result := make(chan T, 1)
	go func() {
		defer l.delegateWg.Done()
		defer func() {
			if l.delegateSem != nil {
				<-l.delegateSem
			}
		}()
		result <- fn()
	}()

	return <-result, nil
}

// ScheduleTimer schedules fn to fire after delay elapses, via the Loop's
// Clock. fn runs directly on the clock's firing goroutine, not as a tracked
// Task; callers that need fn to run with Task semantics (so it may itself
// suspend on a channel operation) should have fn call l.Spawn, which is
// exactly what AfterFunc does.
func (l *Loop) ScheduleTimer(delay time.Duration, fn func()) ClockTimer {
	return l.opts.clock.AfterFunc(delay, fn)
}

// Close terminates the Loop immediately: further Spawn/DelegateBlocking
// calls fail with ErrLoopTerminated. It does not wait for in-flight tasks;
// call Wait afterward for a graceful drain.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.state = loopTerminated
		l.mu.Unlock()
		close(l.done)
		if lg := log(); lg != nil {
			lg.Debug().Log("coop: loop stopped")
		}
	})
	return nil
}

// Done returns a channel closed once Close has been called.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until every task and delegated call spawned by this Loop has
// returned. Typically called after Close to drain gracefully.
func (l *Loop) Wait() {
	l.tasksWg.Wait()
	l.delegateWg.Wait()
}

// goroutineID extracts the calling goroutine's runtime ID by parsing the
// "goroutine N [...]" header of a small runtime.Stack dump. This mirrors the
// teacher event loop's isLoopThread/getGoroutineID technique, repurposed
// here to detect reentrant RunUntilComplete calls instead of pinning I/O
// polling to one OS thread.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
