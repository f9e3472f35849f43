package sortrun

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"

	"github.com/storemill/storemill/src/internal/errors"
	"github.com/storemill/storemill/src/internal/stream"
)

var _ stream.Iterator[Entry] = &Reader{}

// Reader iterates one sorted run.
type Reader struct {
	digestBytes int
	r           *bufio.Reader
}

// NewReader creates a run reader for digests of the given width.
func NewReader(r io.Reader, digestBytes int) *Reader {
	return &Reader{
		digestBytes: digestBytes,
		r:           bufio.NewReader(r),
	}
}

// Next reads the next entry of the run into dst.
func (r *Reader) Next(ctx context.Context, dst *Entry) error {
	digest := make([]byte, r.digestBytes)
	if _, err := io.ReadFull(r.r, digest); err != nil {
		if errors.Is(err, io.EOF) {
			return stream.EOS()
		}
		return errors.Wrap(err, "read run digest")
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		return errors.Wrap(err, "read run record length")
	}
	record := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r.r, record); err != nil {
		return errors.Wrap(err, "read run record")
	}
	dst.Digest = digest
	dst.Record = record
	return nil
}
