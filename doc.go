// Package coop ports Go's own CSP concurrency model (typed channels, fair
// multi-way select, cancellation contexts, timers, and wait groups) onto a
// cooperative task executor built from this package's own primitives. Tasks
// are not serialized onto a single loop: each spawned task runs on its own
// goroutine, and a task blocked in one of these primitives is parked by the
// goroutine scheduler.
//
// # Architecture
//
// A [Loop] is the cooperative executor: it owns task spawning,
// [Loop.DelegateBlocking] dispatch, and timer scheduling. A task handed to
// [Loop.Spawn] runs on its own goroutine, the same mapping Go itself uses
// for a blocked coroutine, so a task suspended in [Channel.Send],
// [Channel.Recv], or [Select] never stalls any other task. What the Loop
// itself coordinates is bookkeeping: it tracks in-flight tasks for shutdown
// draining, bounds delegate-pool concurrency with a semaphore, and schedules
// timers through its single [Clock]. Timer callbacks run on the Clock's own
// goroutine and are not serialized with anything else by the Loop.
// Everything below the Loop (channels, select, contexts) carries its own
// locking and does not depend on single-threaded execution for correctness.
//
// [Channel] is a generic, typed, optionally-buffered FIFO. [Select] performs
// an atomic multi-way rendezvous across any mix of send/receive cases,
// guaranteeing exactly one case completes. [Context] is a cancellation tree
// whose Done signal is itself a Channel, so cancellation composes naturally
// with Select. [Timer], [After] and [AfterFunc] are one-shot deadline events
// scheduled through the Loop's [Clock]. [WaitGroup] is a plain counting
// barrier.
//
// # Usage
//
//	loop, err := coop.NewLoop()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer loop.Close()
//
//	ch := coop.NewChannel[string](0)
//	loop.Spawn(func() {
//		ch.Send("hello")
//	})
//	v, ok := ch.Recv()
//
// # Error Types
//
//   - [ErrChannelClosed]: returned by Send/TrySend/Select on a closed channel.
//   - [ErrCanceled], [ErrDeadlineExceeded]: the two terminal Context errors.
//   - [ProgrammingError]: panics on invariant violations (double-close,
//     negative WaitGroup counter, nil context parent, ...).
//
// All error values support [errors.Is] and [errors.Unwrap].
package coop
