package chunk

import (
	"encoding/hex"
	"fmt"

	"github.com/storemill/storemill/src/internal/errors"
)

// All build errors are fatal to the worker that hits them; nothing here is
// retried internally.  The execution framework may retry by starting a fresh
// worker.

// DuplicateKeyError reports more than one record under a single digest while
// original keys are discarded.  Without retained keys the values cannot be
// disambiguated at read time, so the chunk cannot be built.  A digest
// collision between two genuinely different source keys is indistinguishable
// from a true duplicate here and fails the same way.
type DuplicateKeyError struct {
	Digest []byte
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate keys detected for digest %s", hex.EncodeToString(e.Digest))
}

// CollisionOverflowError reports a key group too large for the 16-bit group
// count encoding.
type CollisionOverflowError struct {
	ChunkID   uint32
	GroupSize int
}

func (e *CollisionOverflowError) Error() string {
	return fmt.Sprintf("too many collisions: chunk %d has a group of %d records, exceeding %d", e.ChunkID, e.GroupSize, MaxGroupSize)
}

// ChunkOffsetOverflowError reports a data file that has grown past the 32-bit
// positive offset range.  The chunk must be split upstream; the worker stops
// before writing the entry that would overflow.
type ChunkOffsetOverflowError struct {
	ChunkID uint32
	Offset  uint64
}

func (e *ChunkOffsetOverflowError) Error() string {
	return fmt.Sprintf("chunk overflow: chunk %d would exceed %d bytes (offset %d)", e.ChunkID, uint64(MaxChunkBytes), e.Offset)
}

// InconsistentMetadataError reports a finalize with keys retained but no
// replica type observed, despite other metadata being set.
type InconsistentMetadataError struct {
	NodeID      uint32
	PartitionID uint32
}

func (e *InconsistentMetadataError) Error() string {
	return fmt.Sprintf("could not read the replica type for node %d (partition %d)", e.NodeID, e.PartitionID)
}

// ChecksumUnavailableError reports a missing checksum accumulator at finalize
// time while a checksum algorithm was configured.
type ChecksumUnavailableError struct {
	NodeID      uint32
	PartitionID uint32
	ChunkID     uint32
}

func (e *ChecksumUnavailableError) Error() string {
	return fmt.Sprintf("checksum digest unavailable for node %d (partition %d, chunk %d)", e.NodeID, e.PartitionID, e.ChunkID)
}

func errTruncatedRecord(have, want int) error {
	return errors.Errorf("truncated record: have %d bytes, want at least %d", have, want)
}
