package stream

import (
	"container/heap"
	"context"
)

var _ Iterator[struct{}] = &Merger[struct{}]{}

type mergeEntry[T any] struct {
	it       Peekable[T]
	priority int // lower is more important, breaks ties between iterators

	peek T
}

// Merger merges the entries from its inputs into a single iterator.  The
// entries come out in ascending order.  Unlike a layered merge, every entry
// from every input is emitted; equal entries are ordered by input priority
// (earlier inputs first).
type Merger[T any] struct {
	heap mergeHeap[T]

	its     []Peekable[T]
	isSetup bool
}

// NewMerger creates an iterator which merges the entries from its into a
// single ascending stream, ordered by lt.
func NewMerger[T any](its []Peekable[T], lt func(a, b T) bool) *Merger[T] {
	return &Merger[T]{
		its:  its,
		heap: mergeHeap[T]{lt: lt},
	}
}

func (m *Merger[T]) setup(ctx context.Context) error {
	for i := range m.its {
		me := &mergeEntry[T]{
			it:       m.its[i],
			priority: i,
		}
		if err := m.its[i].Peek(ctx, &me.peek); err != nil {
			if IsEOS(err) {
				continue
			}
			return err
		}
		m.heap.entries = append(m.heap.entries, me)
	}
	heap.Init(&m.heap)
	m.isSetup = true
	return nil
}

func (m *Merger[T]) Next(ctx context.Context, dst *T) error {
	if !m.isSetup {
		if err := m.setup(ctx); err != nil {
			return err
		}
	}
	if m.heap.Len() == 0 {
		return EOS()
	}
	me := m.heap.entries[0]
	if err := me.it.Next(ctx, dst); err != nil {
		return err // cannot be EOS, the entry was peeked.
	}
	if err := me.it.Peek(ctx, &me.peek); err != nil {
		if !IsEOS(err) {
			return err
		}
		heap.Pop(&m.heap)
		return nil
	}
	heap.Fix(&m.heap, 0)
	return nil
}

type mergeHeap[T any] struct {
	entries []*mergeEntry[T]
	lt      func(a, b T) bool
}

func (h *mergeHeap[T]) Len() int { return len(h.entries) }

func (h *mergeHeap[T]) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if h.lt(a.peek, b.peek) {
		return true
	}
	if h.lt(b.peek, a.peek) {
		return false
	}
	return a.priority < b.priority
}

func (h *mergeHeap[T]) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
}

func (h *mergeHeap[T]) Push(x any) {
	h.entries = append(h.entries, x.(*mergeEntry[T]))
}

func (h *mergeHeap[T]) Pop() any {
	x := h.entries[len(h.entries)-1]
	h.entries = h.entries[:len(h.entries)-1]
	return x
}
