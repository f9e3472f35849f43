package errors

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureStack(t *testing.T) {
	// A bare stdlib error gains a stack exactly once.
	err := EnsureStack(io.EOF)
	require.True(t, Is(err, io.EOF))
	var st stackTracer
	require.True(t, As(err, &st))
	require.Equal(t, err, EnsureStack(err))

	require.NoError(t, EnsureStack(nil))
}

func TestWrapPreservesChain(t *testing.T) {
	base := New("base")
	wrapped := Wrapf(base, "context %d", 7)
	require.True(t, Is(wrapped, base))
	require.Contains(t, wrapped.Error(), "context 7")
	require.NoError(t, Wrap(nil, "ignored"))
}

func TestJoinInto(t *testing.T) {
	var dst error
	JoinInto(&dst, nil)
	require.NoError(t, dst)
	JoinInto(&dst, New("first"))
	JoinInto(&dst, New("second"))
	require.Contains(t, dst.Error(), "first")
	require.Contains(t, dst.Error(), "second")
}

type failingCloser struct{}

func (failingCloser) Close() error { return io.ErrClosedPipe }

func TestCloseAndInvoke(t *testing.T) {
	run := func() (retErr error) {
		defer Close(&retErr, failingCloser{}, "close %s", "stream")
		defer Invoke(&retErr, func() error { return New("cleanup failed") }, "cleanup")
		return nil
	}
	err := run()
	require.Error(t, err)
	require.True(t, Is(err, io.ErrClosedPipe))
	require.Contains(t, err.Error(), "close stream")
	require.Contains(t, err.Error(), "cleanup")
}

func TestForEachStackFrame(t *testing.T) {
	err := Wrap(New("inner"), "outer")
	var frames int
	ForEachStackFrame(err, func(Frame) { frames++ })
	require.Greater(t, frames, 0)
}
