package clocktest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClock_NowStartsAtGivenTimeAndAdvances(t *testing.T) {
	c := New(time.Unix(100, 0))
	require.Equal(t, time.Unix(100, 0), c.Now())
	c.Advance(5 * time.Second)
	require.Equal(t, time.Unix(105, 0), c.Now())
}

func TestClock_AfterFuncFiresOnAdvance(t *testing.T) {
	c := New(time.Unix(0, 0))
	fired := false
	c.AfterFunc(time.Second, func() { fired = true })

	c.Advance(500 * time.Millisecond)
	require.False(t, fired)

	c.Advance(500 * time.Millisecond)
	require.True(t, fired)
}

func TestClock_AfterFuncFiresInDeadlineOrderAcrossOneAdvance(t *testing.T) {
	c := New(time.Unix(0, 0))
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(3 * time.Second)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestClock_StopPreventsFiring(t *testing.T) {
	c := New(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())

	c.Advance(5 * time.Second)
	require.False(t, fired)
}

func TestClock_ResetReschedulesFromCurrentTime(t *testing.T) {
	c := New(time.Unix(0, 0))
	var fireTimes []time.Time
	timer := c.AfterFunc(time.Second, func() { fireTimes = append(fireTimes, c.Now()) })

	c.Advance(500 * time.Millisecond)
	wasActive := timer.Reset(2 * time.Second)
	require.True(t, wasActive)

	c.Advance(2 * time.Second)
	require.Equal(t, []time.Time{time.Unix(2, 500000000)}, fireTimes)
}

func TestClock_LenTracksPendingTimers(t *testing.T) {
	c := New(time.Unix(0, 0))
	require.Equal(t, 0, c.Len())
	c.AfterFunc(time.Second, func() {})
	require.Equal(t, 1, c.Len())
	c.Advance(time.Second)
	require.Equal(t, 0, c.Len())
}

func TestClock_ResetOfAlreadyFiredTimerReschedules(t *testing.T) {
	c := New(time.Unix(0, 0))
	count := 0
	timer := c.AfterFunc(time.Second, func() { count++ })
	c.Advance(time.Second)
	require.Equal(t, 1, count)

	wasActive := timer.Reset(time.Second)
	require.False(t, wasActive)
	c.Advance(time.Second)
	require.Equal(t, 2, count)
}
