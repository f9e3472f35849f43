// Package stream provides generic iteration over ordered sequences.
package stream

import (
	"context"

	"github.com/storemill/storemill/src/internal/errors"
	"github.com/storemill/storemill/src/internal/errutil"
)

// Iterator is a stateful stream of elements of type T.
type Iterator[T any] interface {
	// Next advances the iterator and reads the next element into dst.
	// It returns an error satisfying IsEOS when the stream is exhausted.
	Next(ctx context.Context, dst *T) error
}

type endOfStream struct{}

func (endOfStream) Error() string {
	return "end of stream"
}

// EOS returns an end-of-stream error.  Each call returns a distinct error
// value; use IsEOS to test for it.
func EOS() error {
	return errors.EnsureStack(endOfStream{})
}

// IsEOS returns true if err is an end-of-stream error.
func IsEOS(err error) bool {
	return errors.As(err, &endOfStream{})
}

// ForEach calls fn for every element in it.  Returning errutil.ErrBreak from
// fn stops the iteration without error.
func ForEach[T any](ctx context.Context, it Iterator[T], fn func(t T) error) error {
	var x T
	for {
		if err := it.Next(ctx, &x); err != nil {
			if IsEOS(err) {
				return nil
			}
			return err
		}
		if err := fn(x); err != nil {
			if errors.Is(err, errutil.ErrBreak) {
				return nil
			}
			return err
		}
	}
}

// Collect reads everything from it into a slice, erroring if more than max
// elements are encountered.
func Collect[T any](ctx context.Context, it Iterator[T], max int) (ret []T, _ error) {
	err := ForEach(ctx, it, func(x T) error {
		if len(ret) >= max {
			return errors.Errorf("stream produced too many elements, max is %d", max)
		}
		ret = append(ret, x)
		return nil
	})
	return ret, err
}

// Skip discards the next element in the iterator.
func Skip[T any](ctx context.Context, it Iterator[T]) error {
	var x T
	return it.Next(ctx, &x)
}
