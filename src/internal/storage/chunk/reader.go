package chunk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"path"

	"github.com/storemill/storemill/src/internal/errors"
	"github.com/storemill/storemill/src/internal/errutil"
	"github.com/storemill/storemill/src/internal/log"
	"github.com/storemill/storemill/src/internal/promutil"
	"go.uber.org/zap"
)

// Entry is one key group read back from a published index/data pair.
type Entry struct {
	Digest   []byte
	Position uint32
	// Tuples holds the decoded key/value pairs when keys are retained.
	Tuples []Tuple
	// Value holds the single raw value when keys are discarded.
	Value []byte
}

// Reader sequentially reads a chunk's index/data pair, validating the pairing
// as it goes: digests must be strictly ascending and every index position
// must match the true byte offset of the group's data entry.
type Reader struct {
	retainKeys bool
	index      *bufio.Reader
	data       *bufio.Reader

	offset     uint64
	lastDigest []byte
}

// NewReader reads a chunk from the given index and data streams.
func NewReader(retainKeys bool, index, data io.Reader) *Reader {
	return &Reader{
		retainKeys: retainKeys,
		index:      bufio.NewReader(index),
		data:       bufio.NewReader(data),
	}
}

// Next reads the next entry.  It returns io.EOF when both streams are
// exhausted.
func (r *Reader) Next(dst *Entry) error {
	digest := make([]byte, DigestBytes(r.retainKeys))
	if _, err := io.ReadFull(r.index, digest); err != nil {
		if errors.Is(err, io.EOF) {
			// The index is done; the data stream must be done too.
			if _, err := r.data.ReadByte(); err == nil {
				return errors.New("data file has bytes beyond the last indexed entry")
			}
			return io.EOF
		}
		return errors.Wrap(err, "read index digest")
	}
	if r.lastDigest != nil && bytes.Compare(digest, r.lastDigest) <= 0 {
		return errors.Errorf("index digest %x is not above its predecessor %x", digest, r.lastDigest)
	}
	r.lastDigest = digest

	var posBuf [positionBytes]byte
	if _, err := io.ReadFull(r.index, posBuf[:]); err != nil {
		return errors.Wrap(err, "read index position")
	}
	position := binary.BigEndian.Uint32(posBuf[:])
	if uint64(position) != r.offset {
		return errors.Errorf("index position %d does not match data offset %d", position, r.offset)
	}

	dst.Digest = digest
	dst.Position = position
	dst.Tuples = nil
	dst.Value = nil
	if r.retainKeys {
		return r.readTuples(dst)
	}
	return r.readValue(dst)
}

func (r *Reader) readTuples(dst *Entry) error {
	var countBuf [groupCountBytes]byte
	if _, err := io.ReadFull(r.data, countBuf[:]); err != nil {
		return errors.Wrap(err, "read group count")
	}
	r.offset += groupCountBytes
	count := int(binary.BigEndian.Uint16(countBuf[:]))
	for i := 0; i < count; i++ {
		var header [8]byte
		if _, err := io.ReadFull(r.data, header[:]); err != nil {
			return errors.Wrapf(err, "read tuple %d header", i)
		}
		keyLen := binary.BigEndian.Uint32(header[0:4])
		valueLen := binary.BigEndian.Uint32(header[4:8])
		kv := make([]byte, keyLen+valueLen)
		if _, err := io.ReadFull(r.data, kv); err != nil {
			return errors.Wrapf(err, "read tuple %d", i)
		}
		dst.Tuples = append(dst.Tuples, Tuple{
			Key:   kv[:keyLen],
			Value: kv[keyLen:],
		})
		r.offset += 8 + uint64(keyLen) + uint64(valueLen)
	}
	return nil
}

func (r *Reader) readValue(dst *Entry) error {
	var lenBuf [recordLenBytes]byte
	if _, err := io.ReadFull(r.data, lenBuf[:]); err != nil {
		return errors.Wrap(err, "read value length")
	}
	valueLen := binary.BigEndian.Uint32(lenBuf[:])
	dst.Value = make([]byte, valueLen)
	if _, err := io.ReadFull(r.data, dst.Value); err != nil {
		return errors.Wrap(err, "read value")
	}
	r.offset += recordLenBytes + uint64(valueLen)
	return nil
}

// VerifyResult summarizes a verified chunk.
type VerifyResult struct {
	Groups    int
	DataBytes uint64
	IndexSum  []byte
	DataSum   []byte
}

// Verify reads back a published chunk pair, checking index ordering, offset
// pairing, and (when alg is not none) the checksum side files.
func Verify(ctx context.Context, store fileOpener, retainKeys bool, alg ChecksumAlgorithm, nodeDir, prefix string) (_ *VerifyResult, retErr error) {
	end := log.Span(ctx, "verifyChunk", zap.String("prefix", prefix))
	defer end(log.Errorp(&retErr))

	indexSum, err := NewChecksum(alg)
	if err != nil {
		return nil, err
	}
	dataSum, err := NewChecksum(alg)
	if err != nil {
		return nil, err
	}
	indexFile, err := store.Open(ctx, path.Join(nodeDir, prefix+".index"))
	if err != nil {
		return nil, errors.Wrap(err, "open index file")
	}
	defer errors.Close(&retErr, indexFile, "close index file")
	dataFile, err := store.Open(ctx, path.Join(nodeDir, prefix+".data"))
	if err != nil {
		return nil, errors.Wrap(err, "open data file")
	}
	defer errors.Close(&retErr, dataFile, "close data file")

	r := NewReader(retainKeys,
		io.TeeReader(&promutil.CountingReader{Reader: indexFile, Counter: bytesReadMetric.WithLabelValues("index")}, indexSum),
		io.TeeReader(&promutil.CountingReader{Reader: dataFile, Counter: bytesReadMetric.WithLabelValues("data")}, dataSum))
	res := &VerifyResult{}
	var entry Entry
	for {
		if err := r.Next(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		res.Groups++
	}
	res.DataBytes = r.offset

	if alg != ChecksumNone {
		res.IndexSum = indexSum.Sum()
		res.DataSum = dataSum.Sum()
		for _, side := range []struct {
			name string
			want []byte
		}{
			{prefix + ".index.checksum", res.IndexSum},
			{prefix + ".data.checksum", res.DataSum},
		} {
			got, err := readAll(ctx, store, path.Join(nodeDir, side.name))
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(got, side.want) {
				return nil, errors.Errorf("%s does not match the recomputed digest", side.name)
			}
		}
	}
	return res, nil
}

// fileOpener is the subset of the file store Verify needs.
type fileOpener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

func readAll(ctx context.Context, store fileOpener, name string) (_ []byte, retErr error) {
	f, err := store.Open(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	defer errors.Close(&retErr, f, "close %s", name)
	data, err := io.ReadAll(f)
	return data, errors.EnsureStack(err)
}

// ForEachEntry reads every entry of a chunk from the given streams.
// Returning errutil.ErrBreak from cb stops the iteration without error.
func ForEachEntry(retainKeys bool, index, data io.Reader, cb func(Entry) error) error {
	r := NewReader(retainKeys, index, data)
	var entry Entry
	for {
		if err := r.Next(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := cb(entry); err != nil {
			if errors.Is(err, errutil.ErrBreak) {
				return nil
			}
			return err
		}
	}
}
