// Package chunk builds the immutable index/data file pairs that make up a
// read-only store.
//
// A worker owns one Builder for its lifetime.  The upstream sort stage hands
// the Builder key groups in ascending digest order; the Builder appends one
// fixed-width entry per group to the index stream and one variable-width entry
// to the data stream, keeping a running byte offset and streaming checksums as
// it goes.  When the input is exhausted, Close validates the chunk metadata,
// writes the checksum side files, and atomically renames the scratch files to
// their final names in the shared output namespace.
//
// Digest widths depend on the key mode: when original keys are discarded the
// digest is the full 16-byte key hash; when keys are retained only the first 8
// bytes are used (the retained keys disambiguate collisions at read time).
package chunk

import (
	"encoding/binary"
	"math"
)

const (
	// DigestBytesKeysDiscarded is the digest width when original keys are not
	// stored in the data file.
	DigestBytesKeysDiscarded = 16
	// DigestBytesKeysRetained is the digest width when original keys are
	// stored alongside the values.
	DigestBytesKeysRetained = 8

	// MaxGroupSize is the largest number of records one key group can hold;
	// the group count prefix in the data file is a uint16.
	MaxGroupSize = math.MaxUint16

	// MaxChunkBytes is the largest valid running offset into a chunk's data
	// file; index entries encode positions as 32-bit values.
	MaxChunkBytes = math.MaxInt32

	positionBytes   = 4
	groupCountBytes = 2
	recordLenBytes  = 4
)

// DigestBytes returns the digest width for the given key mode.
func DigestBytes(retainKeys bool) int {
	if retainKeys {
		return DigestBytesKeysRetained
	}
	return DigestBytesKeysDiscarded
}

// IndexEntryBytes returns the fixed width of one index entry for the given
// key mode.
func IndexEntryBytes(retainKeys bool) int {
	return DigestBytes(retainKeys) + positionBytes
}

// Record is one value emitted by the upstream mapping stage for a key digest.
// ReplicaType is meaningful only when original keys are retained.
//
// When keys are retained, Payload is a self-describing
// (keyLen, valueLen, key, value) tuple; otherwise it is the raw value bytes.
type Record struct {
	NodeID      uint32
	PartitionID uint32
	ReplicaType uint8
	Payload     []byte
}

// KeyGroup is all records sharing one key digest, delivered contiguously by
// the upstream sort.
type KeyGroup struct {
	Digest  []byte
	Records []Record
}

// MarshalRecord encodes a record in its wire form: nodeID and partitionID as
// big-endian uint32s, the replica type byte when keys are retained, then the
// payload.
func MarshalRecord(retainKeys bool, r Record) []byte {
	size := 8 + len(r.Payload)
	if retainKeys {
		size++
	}
	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, r.NodeID)
	buf = binary.BigEndian.AppendUint32(buf, r.PartitionID)
	if retainKeys {
		buf = append(buf, r.ReplicaType)
	}
	return append(buf, r.Payload...)
}

// UnmarshalRecord decodes a record from its wire form.
func UnmarshalRecord(retainKeys bool, data []byte) (Record, error) {
	header := 8
	if retainKeys {
		header++
	}
	if len(data) < header {
		return Record{}, errTruncatedRecord(len(data), header)
	}
	r := Record{
		NodeID:      binary.BigEndian.Uint32(data[0:4]),
		PartitionID: binary.BigEndian.Uint32(data[4:8]),
	}
	if retainKeys {
		r.ReplicaType = data[8]
	}
	r.Payload = data[header:]
	return r, nil
}

// MakeTuplePayload builds the retained-keys payload for one key/value pair:
// (keyLen, valueLen, key, value), lengths big-endian.
func MakeTuplePayload(key, value []byte) []byte {
	buf := make([]byte, 0, 8+len(key)+len(value))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(key)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(value)))
	buf = append(buf, key...)
	return append(buf, value...)
}

// Tuple is one decoded key/value pair from a retained-keys data entry.
type Tuple struct {
	Key   []byte
	Value []byte
}

// ParseTuple decodes one (keyLen, valueLen, key, value) tuple from the front
// of data and returns the number of bytes consumed.
func ParseTuple(data []byte) (Tuple, int, error) {
	if len(data) < 8 {
		return Tuple{}, 0, errTruncatedRecord(len(data), 8)
	}
	keyLen := int(binary.BigEndian.Uint32(data[0:4]))
	valueLen := int(binary.BigEndian.Uint32(data[4:8]))
	n := 8 + keyLen + valueLen
	if len(data) < n {
		return Tuple{}, 0, errTruncatedRecord(len(data), n)
	}
	return Tuple{
		Key:   data[8 : 8+keyLen],
		Value: data[8+keyLen : n],
	}, n, nil
}

// ChunkForDigest routes a digest to a chunk id: the first four digest bytes
// read as a big-endian integer, sign bit cleared, modulo the chunk count.
func ChunkForDigest(digest []byte, chunkCount uint32) uint32 {
	return (binary.BigEndian.Uint32(digest[:4]) & math.MaxInt32) % chunkCount
}
