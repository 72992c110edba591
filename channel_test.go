package coop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannel_UnbufferedRendezvous(t *testing.T) {
	ch := NewChannel[int](0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, ch.Send(42))
	}()

	v, ok := ch.Recv()
	require.True(t, ok)
	require.Equal(t, 42, v)
	<-done
}

func TestChannel_BufferedDoesNotBlockUntilFull(t *testing.T) {
	ch := NewChannel[int](2)
	require.NoError(t, ch.Send(1))
	require.NoError(t, ch.Send(2))

	progress, err := ch.TrySend(3)
	require.NoError(t, err)
	require.False(t, progress)

	v, ok := ch.Recv()
	require.True(t, ok)
	require.Equal(t, 1, v)

	progress, err = ch.TrySend(3)
	require.NoError(t, err)
	require.True(t, progress)
}

func TestChannel_TryRecvOnEmptyReportsNoProgress(t *testing.T) {
	ch := NewChannel[int](1)
	progress, v, ok := ch.TryRecv()
	require.False(t, progress)
	require.False(t, ok)
	require.Zero(t, v)
}

func TestChannel_CloseDrainsBufferBeforeSignalingDone(t *testing.T) {
	ch := NewChannel[int](3)
	require.NoError(t, ch.Send(1))
	require.NoError(t, ch.Send(2))
	ch.Close()

	v, ok := ch.Recv()
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = ch.Recv()
	require.True(t, ok)
	require.Equal(t, 2, v)

	v, ok = ch.Recv()
	require.False(t, ok)
	require.Zero(t, v)
}

func TestChannel_CloseWakesParkedSenderWithError(t *testing.T) {
	ch := NewChannel[int](0)

	errc := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		errc <- ch.Send(1)
	}()
	<-started
	time.Sleep(10 * time.Millisecond) // let Send park
	ch.Close()

	require.ErrorIs(t, <-errc, ErrChannelClosed)
}

func TestChannel_CloseWakesParkedReaderWithZeroValue(t *testing.T) {
	ch := NewChannel[string](0)

	type result struct {
		v  string
		ok bool
	}
	resc := make(chan result, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		v, ok := ch.Recv()
		resc <- result{v, ok}
	}()
	<-started
	time.Sleep(10 * time.Millisecond)
	ch.Close()

	r := <-resc
	require.False(t, r.ok)
	require.Equal(t, "", r.v)
}

func TestChannel_DoubleCloseIsProgrammingError(t *testing.T) {
	ch := NewChannel[int](0)
	ch.Close()
	require.Panics(t, func() { ch.Close() })
}

func TestChannel_NegativeCapacityIsProgrammingError(t *testing.T) {
	require.Panics(t, func() { NewChannel[int](-1) })
}

func TestNilChannel_BlocksForeverAndTriesFail(t *testing.T) {
	ch := NilChannel[int]()

	progress, err := ch.TrySend(1)
	require.NoError(t, err)
	require.False(t, progress)

	progress, v, ok := ch.TryRecv()
	require.False(t, progress)
	require.False(t, ok)
	require.Zero(t, v)

	require.Panics(t, func() { ch.Close() })
}

func TestNilChannel_IsASingletonPerType(t *testing.T) {
	require.Same(t, NilChannel[int](), NilChannel[int]())
	require.NotSame(t, any(NilChannel[int]()), any(NilChannel[string]()))
}

func TestChannel_FIFOOrderingAmongParkedReaders(t *testing.T) {
	ch := NewChannel[int](0)
	const n = 5

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, _ := ch.Recv()
			mu.Lock()
			order = append(order, v)
			mu.Unlock()
		}()
		time.Sleep(time.Millisecond) // keep registration order deterministic
	}

	for i := 0; i < n; i++ {
		require.NoError(t, ch.Send(i))
	}
	wg.Wait()

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestChannel_BufferSwapOnHandoffPreservesFIFO(t *testing.T) {
	ch := NewChannel[int](1)
	require.NoError(t, ch.Send(1)) // buffered

	parked := make(chan struct{})
	go func() {
		close(parked)
		_ = ch.Send(2) // parks: buffer full
	}()
	<-parked
	time.Sleep(20 * time.Millisecond) // give the sender a chance to park behind the full buffer

	v, ok := ch.Recv()
	require.True(t, ok)
	require.Equal(t, 1, v, "buffer head must win, writer's item takes its place")

	v, ok = ch.Recv()
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestChannel_RangeStopsOnClose(t *testing.T) {
	ch := NewChannel[int](3)
	require.NoError(t, ch.Send(1))
	require.NoError(t, ch.Send(2))
	ch.Close()

	var got []int
	ch.Range(func(v int) bool {
		got = append(got, v)
		return true
	})
	require.Equal(t, []int{1, 2}, got)
}

func TestChannel_All_RangeOverFunc(t *testing.T) {
	ch := NewChannel[int](3)
	require.NoError(t, ch.Send(1))
	require.NoError(t, ch.Send(2))
	ch.Close()

	var got []int
	for v := range ch.All() {
		got = append(got, v)
	}
	require.Equal(t, []int{1, 2}, got)
}

func TestChannel_SendOnClosedReturnsError(t *testing.T) {
	ch := NewChannel[int](0)
	ch.Close()
	require.ErrorIs(t, ch.Send(1), ErrChannelClosed)

	progress, err := ch.TrySend(1)
	require.False(t, progress)
	require.ErrorIs(t, err, ErrChannelClosed)
}
