package xmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet_AddIsIdempotentAndOrdered(t *testing.T) {
	s := NewSet[string]()
	s.Add("a")
	s.Add("b")
	s.Add("a")
	s.Add("c")

	require.Equal(t, 3, s.Len())
	require.Equal(t, []string{"a", "b", "c"}, s.Values())
}

func TestSet_Has(t *testing.T) {
	s := NewSet[int]()
	require.False(t, s.Has(1))
	s.Add(1)
	require.True(t, s.Has(1))
}

func TestSet_DeleteKeepsRemainingOrder(t *testing.T) {
	s := NewSet[int]()
	for _, v := range []int{1, 2, 3, 4} {
		s.Add(v)
	}
	s.Delete(2)
	require.Equal(t, []int{1, 3, 4}, s.Values())
	require.False(t, s.Has(2))
	require.Equal(t, 3, s.Len())

	s.Delete(99) // no-op
	require.Equal(t, 3, s.Len())
}

func TestSet_DeleteThenAddReappendsAtEnd(t *testing.T) {
	s := NewSet[int]()
	s.Add(1)
	s.Add(2)
	s.Delete(1)
	s.Add(1)
	require.Equal(t, []int{2, 1}, s.Values())
}

func TestSet_ValuesReturnsAnIndependentCopy(t *testing.T) {
	s := NewSet[int]()
	s.Add(1)
	vs := s.Values()
	vs[0] = 99
	require.Equal(t, []int{1}, s.Values())
}
