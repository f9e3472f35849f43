package stream

import (
	"context"
	"testing"

	"github.com/storemill/storemill/src/internal/errutil"
	"github.com/stretchr/testify/require"
)

type sliceIter[T any] struct {
	xs []T
}

func newSliceIter[T any](xs ...T) *sliceIter[T] {
	return &sliceIter[T]{xs: xs}
}

func (it *sliceIter[T]) Next(_ context.Context, dst *T) error {
	if len(it.xs) == 0 {
		return EOS()
	}
	*dst = it.xs[0]
	it.xs = it.xs[1:]
	return nil
}

func TestForEach(t *testing.T) {
	ctx := context.Background()
	var got []int
	require.NoError(t, ForEach(ctx, newSliceIter(1, 2, 3), func(x int) error {
		got = append(got, x)
		return nil
	}))
	require.Equal(t, []int{1, 2, 3}, got)

	// ErrBreak stops iteration without error.
	got = nil
	require.NoError(t, ForEach(ctx, newSliceIter(1, 2, 3), func(x int) error {
		got = append(got, x)
		if x == 2 {
			return errutil.ErrBreak
		}
		return nil
	}))
	require.Equal(t, []int{1, 2}, got)
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	xs, err := Collect(ctx, newSliceIter("a", "b"), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, xs)

	_, err = Collect(ctx, newSliceIter("a", "b", "c"), 2)
	require.Error(t, err)
}

func TestEOS(t *testing.T) {
	require.True(t, IsEOS(EOS()))
	require.False(t, IsEOS(context.Canceled))

	ctx := context.Background()
	it := newSliceIter(1)
	require.NoError(t, Skip(ctx, it))
	var x int
	require.True(t, IsEOS(it.Next(ctx, &x)))
}

func TestPeekable(t *testing.T) {
	ctx := context.Background()
	p := NewPeekable[int](newSliceIter(1, 2))

	var x int
	require.NoError(t, p.Peek(ctx, &x))
	require.Equal(t, 1, x)
	// Peeking again does not consume.
	require.NoError(t, p.Peek(ctx, &x))
	require.Equal(t, 1, x)

	require.NoError(t, p.Next(ctx, &x))
	require.Equal(t, 1, x)
	require.NoError(t, p.Next(ctx, &x))
	require.Equal(t, 2, x)
	require.True(t, IsEOS(p.Peek(ctx, &x)))
	require.True(t, IsEOS(p.Next(ctx, &x)))
}

func TestMerger(t *testing.T) {
	ctx := context.Background()
	mk := func(xs ...int) Peekable[int] {
		return NewPeekable[int](newSliceIter(xs...))
	}
	lt := func(a, b int) bool { return a < b }

	m := NewMerger([]Peekable[int]{mk(1, 4, 7), mk(2, 4, 8), mk(3, 4)}, lt)
	got, err := Collect[int](ctx, m, 100)
	require.NoError(t, err)
	// Every input element survives the merge, equal elements included.
	require.Equal(t, []int{1, 2, 3, 4, 4, 4, 7, 8}, got)

	// Empty inputs are fine.
	m = NewMerger([]Peekable[int]{mk(), mk(5), mk()}, lt)
	got, err = Collect[int](ctx, m, 100)
	require.NoError(t, err)
	require.Equal(t, []int{5}, got)

	m = NewMerger([]Peekable[int]{}, lt)
	got, err = Collect[int](ctx, m, 100)
	require.NoError(t, err)
	require.Empty(t, got)
}
