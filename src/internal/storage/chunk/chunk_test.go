package chunk

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkForDigest(t *testing.T) {
	// The sign bit of the leading 32 bits is cleared before the modulo.
	require.Equal(t, uint32(1), ChunkForDigest([]byte{0x80, 0, 0, 1}, 10))
	require.Equal(t, uint32(1), ChunkForDigest([]byte{0, 0, 0, 1}, 10))
	require.Equal(t, uint32(0), ChunkForDigest([]byte{0, 0, 0, 30}, 10))
	// Only the first four bytes participate.
	d := testDigest(false, 7)
	d[0], d[1], d[2], d[3] = 0, 0, 0, 5
	require.Equal(t, uint32(5), ChunkForDigest(d, 100))
}

func TestParseChecksumAlgorithm(t *testing.T) {
	for in, want := range map[string]ChecksumAlgorithm{
		"":        ChecksumNone,
		"none":    ChecksumNone,
		"crc32":   ChecksumCRC32,
		"adler32": ChecksumAdler32,
		"md5":     ChecksumMD5,
		"blake2b": ChecksumBlake2b,
	} {
		got, err := ParseChecksumAlgorithm(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseChecksumAlgorithm("sha1")
	require.Error(t, err)
}

func TestChecksumAccumulates(t *testing.T) {
	c, err := NewChecksum(ChecksumCRC32)
	require.NoError(t, err)
	require.True(t, c.Enabled())
	_, err = c.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = c.Write([]byte("world"))
	require.NoError(t, err)
	want := crc32.ChecksumIEEE([]byte("hello world"))
	sum := c.Sum()
	require.Len(t, sum, 4)
	require.Equal(t, want, uint32(sum[0])<<24|uint32(sum[1])<<16|uint32(sum[2])<<8|uint32(sum[3]))

	none, err := NewChecksum(ChecksumNone)
	require.NoError(t, err)
	require.False(t, none.Enabled())
	_, err = none.Write([]byte("ignored"))
	require.NoError(t, err)
	require.Nil(t, none.Sum())
}

func TestCollisionStatsMerge(t *testing.T) {
	var a, b CollisionStats
	a.Observe(1) // not a collision
	a.Observe(3)
	b.Observe(2)
	b.Observe(7)
	a.Merge(&b)
	require.Equal(t, uint64(3), a.Events())
	require.Equal(t, 7, a.MaxGroupSize())
}

func TestRecordWireForm(t *testing.T) {
	r := Record{NodeID: 12, PartitionID: 34, ReplicaType: 2, Payload: []byte("payload")}

	data := MarshalRecord(true, r)
	got, err := UnmarshalRecord(true, data)
	require.NoError(t, err)
	require.Equal(t, r, got)

	// Without retained keys the replica type is not on the wire.
	data = MarshalRecord(false, r)
	got, err = UnmarshalRecord(false, data)
	require.NoError(t, err)
	require.Equal(t, uint8(0), got.ReplicaType)
	require.Equal(t, r.Payload, got.Payload)

	_, err = UnmarshalRecord(true, data[:5])
	require.Error(t, err)
}

func TestParseTuple(t *testing.T) {
	payload := MakeTuplePayload([]byte("key"), []byte("value"))
	tuple, n, err := ParseTuple(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, []byte("key"), tuple.Key)
	require.Equal(t, []byte("value"), tuple.Value)

	_, _, err = ParseTuple(payload[:len(payload)-1])
	require.Error(t, err)
}
