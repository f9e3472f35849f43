package chunk

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"path"

	"github.com/storemill/storemill/src/internal/errors"
	"github.com/storemill/storemill/src/internal/log"
	"github.com/storemill/storemill/src/internal/promutil"
	"github.com/storemill/storemill/src/internal/storage/filestore"
	"github.com/storemill/storemill/src/internal/uuid"
	"go.uber.org/zap"
)

// defaultMaxGroupBytes caps the in-memory buffer holding one key group's data
// entry before it is flushed.  The 16-bit group count already bounds the
// record count; this bounds the bytes.
const defaultMaxGroupBytes = 256 << 20

// BuilderConfig configures one worker's chunk build.
type BuilderConfig struct {
	// RetainKeys selects the key mode: when true, original keys are stored
	// with the values and digests are 8 bytes wide; when false only values
	// are stored and digests are 16 bytes wide.
	RetainKeys bool
	// Checksum selects the digest streamed over the index and data files.
	Checksum ChecksumAlgorithm
	// ChunkCount is the number of chunks each partition is divided into.
	ChunkCount uint32
	// StoreName names the store being built; scratch files are named
	// "{StoreName}.{attemptID}.index" / ".data".
	StoreName string
	// ScratchDir is the store directory the worker builds its scratch files
	// in before publishing.
	ScratchDir string
	// MaxGroupBytes overrides the per-group buffer cap.  Zero means the
	// default.
	MaxGroupBytes int64
}

// Builder consumes one partition's sorted key-group stream and emits an
// index/data file pair.  It is owned by a single worker and is not safe for
// concurrent use.
type Builder struct {
	cfg   BuilderConfig
	store filestore.Client
	stats *CollisionStats

	resolver          metadataResolver
	indexSum, dataSum *Checksum

	scratchIndex, scratchData string
	indexFile, dataFile       io.WriteCloser
	indexW, dataW             io.Writer

	offset        uint64
	groupBuf      bytes.Buffer
	streamsClosed bool
}

// NewBuilder opens scratch streams for a new chunk build.  Every Builder must
// be finished with Close (publish) or Discard (abandon); both release the
// scratch streams.
func NewBuilder(ctx context.Context, store filestore.Client, cfg BuilderConfig, stats *CollisionStats) (*Builder, error) {
	if cfg.ChunkCount == 0 {
		return nil, errors.New("chunk count must be at least 1")
	}
	if cfg.MaxGroupBytes == 0 {
		cfg.MaxGroupBytes = defaultMaxGroupBytes
	}
	if stats == nil {
		stats = &CollisionStats{}
	}
	indexSum, err := NewChecksum(cfg.Checksum)
	if err != nil {
		return nil, err
	}
	dataSum, err := NewChecksum(cfg.Checksum)
	if err != nil {
		return nil, err
	}
	b := &Builder{
		cfg:      cfg,
		store:    store,
		stats:    stats,
		indexSum: indexSum,
		dataSum:  dataSum,
		resolver: metadataResolver{
			retainKeys: cfg.RetainKeys,
			chunkCount: cfg.ChunkCount,
		},
	}
	attemptID := uuid.NewWithoutDashes()
	b.scratchIndex = path.Join(cfg.ScratchDir, cfg.StoreName+"."+attemptID+".index")
	b.scratchData = path.Join(cfg.ScratchDir, cfg.StoreName+"."+attemptID+".data")
	if b.indexFile, err = store.Create(ctx, b.scratchIndex); err != nil {
		return nil, errors.Wrap(err, "create scratch index stream")
	}
	if b.dataFile, err = store.Create(ctx, b.scratchData); err != nil {
		errors.JoinInto(&err, b.indexFile.Close())
		return nil, errors.Wrap(err, "create scratch data stream")
	}
	b.indexW = io.MultiWriter(
		&promutil.CountingWriter{Writer: b.indexFile, Counter: bytesWrittenMetric.WithLabelValues("index")},
		b.indexSum,
	)
	b.dataW = io.MultiWriter(
		&promutil.CountingWriter{Writer: b.dataFile, Counter: bytesWrittenMetric.WithLabelValues("data")},
		b.dataSum,
	)
	log.Info(ctx, "opened scratch streams for writing",
		zap.String("index", b.scratchIndex), zap.String("data", b.scratchData))
	return b, nil
}

// Metadata returns the chunk metadata, or ok=false if no record has been
// processed yet.
func (b *Builder) Metadata() (Metadata, bool) {
	return b.resolver.current()
}

// ProcessGroup appends one index entry and one data entry for a key group.
// Groups must arrive in ascending digest order across the whole stream; the
// index is written in final sorted order with no buffering or re-sort.
func (b *Builder) ProcessGroup(ctx context.Context, group KeyGroup) error {
	if b.streamsClosed {
		return errors.New("builder is closed")
	}
	if len(group.Digest) != DigestBytes(b.cfg.RetainKeys) {
		return errors.Errorf("digest is %d bytes, want %d", len(group.Digest), DigestBytes(b.cfg.RetainKeys))
	}

	// The index entry records the data-file offset at which this group's
	// entry will begin.
	entry := make([]byte, 0, len(group.Digest)+positionBytes)
	entry = append(entry, group.Digest...)
	entry = binary.BigEndian.AppendUint32(entry, uint32(b.offset))
	if _, err := b.indexW.Write(entry); err != nil {
		return errors.Wrap(err, "write index entry")
	}

	b.groupBuf.Reset()
	groupSize := 0
	for _, rec := range group.Records {
		b.resolver.resolve(rec, group.Digest)
		if b.cfg.RetainKeys {
			b.groupBuf.Write(rec.Payload)
		} else {
			var lenPrefix [recordLenBytes]byte
			binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(rec.Payload)))
			b.groupBuf.Write(lenPrefix[:])
			b.groupBuf.Write(rec.Payload)
		}
		groupSize++
		if !b.cfg.RetainKeys && groupSize > 1 {
			// Either the data has duplicate keys, or two different source
			// keys hashed to the same digest; without retained keys the two
			// cases cannot be told apart and neither is representable.
			return &DuplicateKeyError{Digest: group.Digest}
		}
		if groupSize > MaxGroupSize {
			md, _ := b.resolver.current()
			return &CollisionOverflowError{ChunkID: md.ChunkID, GroupSize: len(group.Records)}
		}
		if int64(b.groupBuf.Len()) > b.cfg.MaxGroupBytes {
			return errors.Errorf("key group for digest %x exceeds the %d byte group buffer cap", group.Digest, b.cfg.MaxGroupBytes)
		}
	}
	b.stats.Observe(groupSize)

	delta := uint64(b.groupBuf.Len())
	if b.cfg.RetainKeys {
		delta += groupCountBytes
	}
	if b.offset+delta > MaxChunkBytes {
		// Stop before the write: the data file never holds an entry whose
		// offset cannot be encoded.
		md, _ := b.resolver.current()
		return &ChunkOffsetOverflowError{ChunkID: md.ChunkID, Offset: b.offset + delta}
	}

	if b.cfg.RetainKeys {
		var count [groupCountBytes]byte
		binary.BigEndian.PutUint16(count[:], uint16(groupSize))
		if _, err := b.dataW.Write(count[:]); err != nil {
			return errors.Wrap(err, "write group count")
		}
	}
	if _, err := b.dataW.Write(b.groupBuf.Bytes()); err != nil {
		return errors.Wrap(err, "write data entry")
	}
	b.offset += delta
	return nil
}

// Close finalizes the build: it closes the scratch streams, writes the
// checksum side files, and atomically installs the index and data files under
// their final names.  A worker that processed no records publishes nothing
// and returns successfully.
func (b *Builder) Close(ctx context.Context) (retErr error) {
	end := log.Span(ctx, "publishChunk")
	defer end(log.Errorp(&retErr))

	if err := b.closeStreams(); err != nil {
		return err
	}

	md, ok := b.resolver.current()
	if !ok {
		// Empty partition: no data was processed, so no output is created.
		log.Info(ctx, "no records processed, not creating any output")
		return nil
	}
	if b.cfg.RetainKeys && !b.resolver.replicaTypeSet {
		return &InconsistentMetadataError{NodeID: md.NodeID, PartitionID: md.PartitionID}
	}

	nodeDir := md.NodeDir()
	prefix := md.ArtifactPrefix(b.cfg.RetainKeys)
	if err := b.store.MkdirAll(ctx, nodeDir); err != nil {
		return errors.Wrapf(err, "create node directory %s", nodeDir)
	}

	if b.cfg.Checksum != ChecksumNone {
		if !b.indexSum.Enabled() || !b.dataSum.Enabled() {
			return &ChecksumUnavailableError{NodeID: md.NodeID, PartitionID: md.PartitionID, ChunkID: md.ChunkID}
		}
		if err := b.writeChecksumFile(ctx, path.Join(nodeDir, prefix+".index.checksum"), b.indexSum.Sum()); err != nil {
			return err
		}
		if err := b.writeChecksumFile(ctx, path.Join(nodeDir, prefix+".data.checksum"), b.dataSum.Sum()); err != nil {
			return err
		}
	}

	// Rename is the publish: the final names are shared by every attempt at
	// this chunk and the last successful rename wins.
	indexName := path.Join(nodeDir, prefix+".index")
	dataName := path.Join(nodeDir, prefix+".data")
	log.Info(ctx, "moving scratch index file to final location",
		zap.String("src", b.scratchIndex), zap.String("dst", indexName))
	if err := b.store.Rename(ctx, b.scratchIndex, indexName); err != nil {
		return errors.Wrap(err, "install index file")
	}
	log.Info(ctx, "moving scratch data file to final location",
		zap.String("src", b.scratchData), zap.String("dst", dataName))
	if err := b.store.Rename(ctx, b.scratchData, dataName); err != nil {
		return errors.Wrap(err, "install data file")
	}
	return nil
}

// Discard releases the scratch streams without publishing.  Scratch files are
// left behind for an external reaper; they are never visible under the final
// names.
func (b *Builder) Discard(ctx context.Context) error {
	log.Info(ctx, "discarding chunk build",
		zap.String("index", b.scratchIndex), zap.String("data", b.scratchData))
	return b.closeStreams()
}

func (b *Builder) closeStreams() (retErr error) {
	if b.streamsClosed {
		return nil
	}
	b.streamsClosed = true
	errors.Close(&retErr, b.indexFile, "close scratch index stream")
	errors.Close(&retErr, b.dataFile, "close scratch data stream")
	return retErr
}

func (b *Builder) writeChecksumFile(ctx context.Context, name string, sum []byte) (retErr error) {
	w, err := b.store.Create(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "create checksum file %s", name)
	}
	defer errors.Close(&retErr, w, "close checksum file %s", name)
	_, err = w.Write(sum)
	return errors.Wrapf(err, "write checksum file %s", name)
}
