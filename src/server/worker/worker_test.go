package worker

import (
	"context"
	"encoding/binary"
	"fmt"
	"path"
	"sort"
	"testing"

	"github.com/storemill/storemill/src/internal/pctx"
	"github.com/storemill/storemill/src/internal/storage/chunk"
	"github.com/storemill/storemill/src/internal/storage/filestore"
	"github.com/storemill/storemill/src/internal/storage/sortrun"
	"github.com/storemill/storemill/src/internal/stream"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) filestore.Client {
	t.Helper()
	store, err := filestore.NewLocalClient(t.TempDir())
	require.NoError(t, err)
	return store
}

func testCfg(retainKeys bool) chunk.BuilderConfig {
	return chunk.BuilderConfig{
		RetainKeys: retainKeys,
		Checksum:   chunk.ChecksumMD5,
		ChunkCount: 1,
		StoreName:  "teststore",
		ScratchDir: "_scratch",
	}
}

func digest(retainKeys bool, i uint32) []byte {
	d := make([]byte, chunk.DigestBytes(retainKeys))
	binary.BigEndian.PutUint32(d[len(d)-4:], i)
	return d
}

// writeRun writes one sorted run file into the store and returns its name.
func writeRun(t *testing.T, store filestore.Client, retainKeys bool, name string, entries map[uint32]string) string {
	t.Helper()
	ctx := pctx.TestContext(t)
	f, err := store.Create(ctx, name)
	require.NoError(t, err)
	w := sortrun.NewWriter(f, chunk.DigestBytes(retainKeys))
	var keys []uint32
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		rec := chunk.Record{NodeID: 0, PartitionID: 0, ReplicaType: 1}
		if retainKeys {
			rec.Payload = chunk.MakeTuplePayload([]byte(fmt.Sprintf("key-%d", k)), []byte(entries[k]))
		} else {
			rec.Payload = []byte(entries[k])
		}
		require.NoError(t, w.Write(digest(retainKeys, k), chunk.MarshalRecord(retainKeys, rec)))
	}
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())
	return name
}

func readChunk(t *testing.T, store filestore.Client, retainKeys bool) map[uint32]string {
	t.Helper()
	ctx := pctx.TestContext(t)
	md := chunk.Metadata{NodeID: 0, PartitionID: 0, ChunkID: 0, ReplicaType: 1}
	prefix := md.ArtifactPrefix(retainKeys)
	index, err := store.Open(ctx, path.Join(md.NodeDir(), prefix+".index"))
	require.NoError(t, err)
	defer index.Close()
	data, err := store.Open(ctx, path.Join(md.NodeDir(), prefix+".data"))
	require.NoError(t, err)
	defer data.Close()

	got := map[uint32]string{}
	require.NoError(t, chunk.ForEachEntry(retainKeys, index, data, func(e chunk.Entry) error {
		k := binary.BigEndian.Uint32(e.Digest[len(e.Digest)-4:])
		if retainKeys {
			require.Len(t, e.Tuples, 1)
			got[k] = string(e.Tuples[0].Value)
		} else {
			got[k] = string(e.Value)
		}
		return nil
	}))
	return got
}

func TestWorkerRun(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := testStore(t)
	name := writeRun(t, store, false, "runs/r0", map[uint32]string{
		1: "one", 2: "two", 3: "three",
	})

	f, err := store.Open(ctx, name)
	require.NoError(t, err)
	defer f.Close()
	groups := sortrun.NewGrouper(
		sortrun.NewReader(f, chunk.DigestBytesKeysDiscarded), false)

	w := New(store, testCfg(false))
	require.NoError(t, w.Run(ctx, groups))
	require.Equal(t, map[uint32]string{1: "one", 2: "two", 3: "three"}, readChunk(t, store, false))
	require.Equal(t, uint64(0), w.Stats().Events())
}

func TestWorkerRunFailureDoesNotPublish(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := testStore(t)

	// Two records for one digest without retained keys is a duplicate key.
	groups := stream.Iterator[chunk.KeyGroup](&sliceGroups{groups: []chunk.KeyGroup{{
		Digest: digest(false, 1),
		Records: []chunk.Record{
			{Payload: []byte("one")},
			{Payload: []byte("two")},
		},
	}}})
	w := New(store, testCfg(false))
	err := w.Run(ctx, groups)
	var dup *chunk.DuplicateKeyError
	require.ErrorAs(t, err, &dup)

	ok, err := store.Exists(ctx, "node-0")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDriverMergesRuns(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := testStore(t)
	r0 := writeRun(t, store, true, "runs/r0", map[uint32]string{1: "a", 3: "c"})
	r1 := writeRun(t, store, true, "runs/r1", map[uint32]string{2: "b", 3: "c-again"})

	d := NewDriver(store, testCfg(true), 2, 1)
	stats, err := d.Build(ctx, []Task{{Runs: []string{r0, r1}}})
	require.NoError(t, err)
	// Digest 3 appears in both runs, so it is one collision group of two.
	require.Equal(t, uint64(1), stats.Events())
	require.Equal(t, 2, stats.MaxGroupSize())

	res, err := chunk.Verify(ctx, store, true, chunk.ChecksumMD5, "node-0", "0_1_0")
	require.NoError(t, err)
	require.Equal(t, 3, res.Groups)
}

func TestDriverSpeculativeAttempts(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := testStore(t)
	r0 := writeRun(t, store, false, "runs/r0", map[uint32]string{1: "one", 2: "two"})

	// Three concurrent attempts race to the same final names; whichever lands
	// last must leave a complete, verifiable chunk.
	d := NewDriver(store, testCfg(false), 4, 3)
	stats, err := d.Build(ctx, []Task{{Runs: []string{r0}}})
	require.NoError(t, err)
	require.Equal(t, uint64(0), stats.Events())

	require.Equal(t, map[uint32]string{1: "one", 2: "two"}, readChunk(t, store, false))
	_, err = chunk.Verify(ctx, store, false, chunk.ChecksumMD5, "node-0", "0_0")
	require.NoError(t, err)
}

func TestDriverFailureCancels(t *testing.T) {
	ctx := pctx.TestContext(t)
	store := testStore(t)
	r0 := writeRun(t, store, false, "runs/r0", map[uint32]string{1: "one"})

	d := NewDriver(store, testCfg(false), 2, 1)
	_, err := d.Build(ctx, []Task{
		{Runs: []string{r0}},
		{Runs: []string{"runs/missing"}},
	})
	require.Error(t, err)
}

type sliceGroups struct {
	groups []chunk.KeyGroup
}

func (s *sliceGroups) Next(_ context.Context, dst *chunk.KeyGroup) error {
	if len(s.groups) == 0 {
		return stream.EOS()
	}
	*dst = s.groups[0]
	s.groups = s.groups[1:]
	return nil
}
