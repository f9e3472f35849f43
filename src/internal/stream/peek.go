package stream

import "context"

// Peekable is an Iterator which can also return the next element without
// advancing.
type Peekable[T any] interface {
	Iterator[T]
	// Peek reads the next element into dst without advancing.
	Peek(ctx context.Context, dst *T) error
}

type peekable[T any] struct {
	inner   Iterator[T]
	peek    T
	hasPeek bool
}

// NewPeekable wraps it to support peeking.  If it is already Peekable it is
// returned unchanged.
func NewPeekable[T any](it Iterator[T]) Peekable[T] {
	if p, ok := it.(Peekable[T]); ok {
		return p
	}
	return &peekable[T]{inner: it}
}

func (p *peekable[T]) Next(ctx context.Context, dst *T) error {
	if p.hasPeek {
		*dst = p.peek
		p.hasPeek = false
		return nil
	}
	return p.inner.Next(ctx, dst)
}

func (p *peekable[T]) Peek(ctx context.Context, dst *T) error {
	if !p.hasPeek {
		if err := p.inner.Next(ctx, &p.peek); err != nil {
			return err
		}
		p.hasPeek = true
	}
	*dst = p.peek
	return nil
}
