// Package sortrun reads and writes sorted runs, the on-disk hand-off between
// the upstream sort/shuffle stage and the chunk builder.
//
// A run is a stream of (digest, record) entries in ascending digest order.
// Framing per entry: the fixed-width digest, a big-endian uint32 record
// length, then the record in its wire form (see chunk.MarshalRecord).
// Multiple runs are combined with a k-way merge; adjacent entries with equal
// digests form one key group.
package sortrun

import (
	"bytes"

	"github.com/storemill/storemill/src/internal/stream"
)

// Entry is one (digest, record) pair of a sorted run.
type Entry struct {
	Digest []byte
	Record []byte // wire form; decoded lazily by the grouper
}

func entryLess(a, b Entry) bool {
	return bytes.Compare(a.Digest, b.Digest) < 0
}

// Merge combines sorted runs into a single ascending iterator.  Entries with
// equal digests are all emitted, ordered by input position, so the grouper
// downstream sees every record of a collision group contiguously.
func Merge(its []stream.Iterator[Entry]) stream.Iterator[Entry] {
	if len(its) == 1 {
		return its[0]
	}
	peekables := make([]stream.Peekable[Entry], len(its))
	for i := range its {
		peekables[i] = stream.NewPeekable(its[i])
	}
	return stream.NewMerger(peekables, entryLess)
}
