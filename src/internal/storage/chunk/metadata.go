package chunk

import "fmt"

// Metadata identifies the chunk a worker is building.  It is resolved from
// the first record the worker sees and is invariant for the worker's
// lifetime.
//
// The resolver does not verify that later records agree with the frozen
// values; the upstream sort/group stage is trusted to deliver only records
// for this worker's partition.
type Metadata struct {
	NodeID      uint32
	PartitionID uint32
	ChunkID     uint32
	// ReplicaType is set only when original keys are retained.
	ReplicaType uint8
}

// ArtifactPrefix returns the shared name prefix for the chunk's final
// artifacts: "{partition}_{replicaType}_{chunk}" when keys are retained,
// "{partition}_{chunk}" otherwise.
func (md Metadata) ArtifactPrefix(retainKeys bool) string {
	if retainKeys {
		return fmt.Sprintf("%d_%d_%d", md.PartitionID, md.ReplicaType, md.ChunkID)
	}
	return fmt.Sprintf("%d_%d", md.PartitionID, md.ChunkID)
}

// NodeDir returns the per-node output directory name for the chunk.
func (md Metadata) NodeDir() string {
	return fmt.Sprintf("node-%d", md.NodeID)
}

// metadataResolver freezes chunk metadata on first touch.  The absent state
// doubles as the empty-partition signal at finalize time, so no sentinel
// values are used.
type metadataResolver struct {
	retainKeys bool
	chunkCount uint32

	md             *Metadata
	replicaTypeSet bool
}

// resolve returns the frozen metadata, deriving it from rec and digest on the
// first call.
func (r *metadataResolver) resolve(rec Record, digest []byte) Metadata {
	if r.md == nil {
		r.md = &Metadata{
			NodeID:      rec.NodeID,
			PartitionID: rec.PartitionID,
			ChunkID:     ChunkForDigest(digest, r.chunkCount),
		}
		if r.retainKeys {
			r.md.ReplicaType = rec.ReplicaType
			r.replicaTypeSet = true
		}
	}
	return *r.md
}

// current returns the frozen metadata, or ok=false if no record has been
// processed.
func (r *metadataResolver) current() (Metadata, bool) {
	if r.md == nil {
		return Metadata{}, false
	}
	return *r.md, true
}
