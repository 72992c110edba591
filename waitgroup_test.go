package coop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitGroup_WaitReturnsImmediatelyAtZero(t *testing.T) {
	wg := NewWaitGroup(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked with a zero counter")
	}
}

func TestWaitGroup_WaitBlocksUntilCounterReachesZero(t *testing.T) {
	wg := NewWaitGroup(2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Done was called enough times")
	case <-time.After(20 * time.Millisecond):
	}

	wg.Done()
	select {
	case <-done:
		t.Fatal("Wait returned before the counter reached zero")
	case <-time.After(20 * time.Millisecond):
	}

	wg.Done()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait never returned after the counter reached zero")
	}
}

func TestWaitGroup_NegativeInitialCounterPanics(t *testing.T) {
	require.Panics(t, func() { NewWaitGroup(-1) })
}

func TestWaitGroup_DoneBelowZeroPanics(t *testing.T) {
	wg := NewWaitGroup(0)
	require.Panics(t, func() { wg.Done() })
}

func TestWaitGroup_AddDuringPendingWaitPanics(t *testing.T) {
	wg := NewWaitGroup(1)
	started := make(chan struct{})
	go func() {
		close(started)
		wg.Wait()
	}()
	<-started
	// Ensure WaitChannel has actually been created before racing Add against it.
	for wg.WaitChannel() == nil {
		time.Sleep(time.Millisecond)
	}
	require.Panics(t, func() { wg.Add(1) })
	wg.Done()
}

func TestWaitGroup_WaitChannelNilWhenAlreadyZero(t *testing.T) {
	wg := NewWaitGroup(0)
	require.Nil(t, wg.WaitChannel())
}

func TestWaitGroup_WaitChannelComposesWithSelect(t *testing.T) {
	wg := NewWaitGroup(1)
	other := NewChannel[struct{}](0)
	waitCh := wg.WaitChannel()

	idx, _, _, err := TrySelect(Recv(waitCh), Recv(other))
	require.NoError(t, err)
	require.Equal(t, -1, idx)

	wg.Done()
	idx, _, ok, err := TrySelect(Recv(waitCh), Recv(other))
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	require.False(t, ok, "WaitGroup's channel closes, so Recv reports ok=false")
}
