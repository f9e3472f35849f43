package sortrun

import (
	"bytes"
	"context"

	"github.com/storemill/storemill/src/internal/storage/chunk"
	"github.com/storemill/storemill/src/internal/stream"
)

var _ stream.Iterator[chunk.KeyGroup] = &Grouper{}

// Grouper folds adjacent equal-digest entries of a merged run stream into key
// groups.  Collection of one group is capped just above the representable
// group size, which is enough to trip the builder's collision-overflow check
// without buffering an arbitrarily large group.
type Grouper struct {
	retainKeys bool
	entries    stream.Peekable[Entry]
}

// NewGrouper creates a group iterator over entries, which must be in
// ascending digest order.
func NewGrouper(entries stream.Iterator[Entry], retainKeys bool) *Grouper {
	return &Grouper{
		retainKeys: retainKeys,
		entries:    stream.NewPeekable(entries),
	}
}

// Next collects the next key group into dst.
func (g *Grouper) Next(ctx context.Context, dst *chunk.KeyGroup) error {
	var entry Entry
	if err := g.entries.Next(ctx, &entry); err != nil {
		return err
	}
	rec, err := chunk.UnmarshalRecord(g.retainKeys, entry.Record)
	if err != nil {
		return err
	}
	// Each group gets a fresh backing array; consumers may retain groups
	// across Next calls.
	dst.Digest = entry.Digest
	dst.Records = []chunk.Record{rec}
	for len(dst.Records) <= chunk.MaxGroupSize {
		var peek Entry
		if err := g.entries.Peek(ctx, &peek); err != nil {
			if stream.IsEOS(err) {
				return nil
			}
			return err
		}
		if !bytes.Equal(peek.Digest, dst.Digest) {
			return nil
		}
		if err := g.entries.Next(ctx, &entry); err != nil {
			return err
		}
		rec, err := chunk.UnmarshalRecord(g.retainKeys, entry.Record)
		if err != nil {
			return err
		}
		dst.Records = append(dst.Records, rec)
	}
	return nil
}
