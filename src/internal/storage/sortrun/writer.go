package sortrun

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/storemill/storemill/src/internal/errors"
)

// Writer writes one sorted run.  Entries must be written in non-decreasing
// digest order; Writer enforces this so that a bad producer is caught when
// the run is written, not when a chunk build fails downstream.
type Writer struct {
	digestBytes int
	w           *bufio.Writer
	lastDigest  []byte
}

// NewWriter creates a run writer for digests of the given width.
func NewWriter(w io.Writer, digestBytes int) *Writer {
	return &Writer{
		digestBytes: digestBytes,
		w:           bufio.NewWriter(w),
	}
}

// Write appends one entry to the run.
func (w *Writer) Write(digest, record []byte) error {
	if len(digest) != w.digestBytes {
		return errors.Errorf("digest is %d bytes, want %d", len(digest), w.digestBytes)
	}
	if w.lastDigest != nil && bytes.Compare(digest, w.lastDigest) < 0 {
		return errors.Errorf("out of order write: digest %x is below %x", digest, w.lastDigest)
	}
	w.lastDigest = append(w.lastDigest[:0], digest...)
	if _, err := w.w.Write(digest); err != nil {
		return errors.EnsureStack(err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(record)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return errors.EnsureStack(err)
	}
	_, err := w.w.Write(record)
	return errors.EnsureStack(err)
}

// Flush flushes buffered entries to the underlying writer.
func (w *Writer) Flush() error {
	return errors.EnsureStack(w.w.Flush())
}
