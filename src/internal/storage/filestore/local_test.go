package filestore

import (
	"io"
	"math/rand"
	"sort"
	"testing"

	"github.com/docker/go-units"
	"github.com/storemill/storemill/src/internal/pctx"
	"github.com/storemill/storemill/src/internal/randutil"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) Client {
	t.Helper()
	c, err := NewLocalClient(t.TempDir())
	require.NoError(t, err)
	return c
}

func writeFile(t *testing.T, c Client, name, content string) {
	t.Helper()
	ctx := pctx.TestContext(t)
	w, err := c.Create(ctx, name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readFile(t *testing.T, c Client, name string) string {
	t.Helper()
	ctx := pctx.TestContext(t)
	r, err := c.Open(ctx, name)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestCreateOpen(t *testing.T) {
	c := newTestClient(t)
	writeFile(t, c, "dir/file", "hello")
	require.Equal(t, "hello", readFile(t, c, "dir/file"))

	// Create truncates an existing file.
	writeFile(t, c, "dir/file", "shorter")
	require.Equal(t, "shorter", readFile(t, c, "dir/file"))
}

func TestCreateStreamsLargeFile(t *testing.T) {
	ctx := pctx.TestContext(t)
	c := newTestClient(t)
	random := rand.New(rand.NewSource(7))
	w, err := c.Create(ctx, "scratch/big")
	require.NoError(t, err)
	n, err := io.Copy(w, randutil.NewBytesReader(random, 4*units.MiB))
	require.NoError(t, err)
	require.Equal(t, int64(4*units.MiB), n)
	require.NoError(t, w.Close())

	r, err := c.Open(ctx, "scratch/big")
	require.NoError(t, err)
	defer r.Close()
	m, err := io.Copy(io.Discard, r)
	require.NoError(t, err)
	require.Equal(t, n, m)
}

func TestOpenMissing(t *testing.T) {
	ctx := pctx.TestContext(t)
	c := newTestClient(t)
	_, err := c.Open(ctx, "nope")
	require.Error(t, err)
	require.True(t, IsNotExist(err))
}

func TestRename(t *testing.T) {
	ctx := pctx.TestContext(t)
	c := newTestClient(t)
	writeFile(t, c, "scratch/a", "first")
	require.NoError(t, c.MkdirAll(ctx, "final"))
	require.NoError(t, c.Rename(ctx, "scratch/a", "final/a"))
	require.Equal(t, "first", readFile(t, c, "final/a"))
	ok, err := c.Exists(ctx, "scratch/a")
	require.NoError(t, err)
	require.False(t, ok)

	// Rename replaces an existing destination.
	writeFile(t, c, "scratch/b", "second")
	require.NoError(t, c.Rename(ctx, "scratch/b", "final/a"))
	require.Equal(t, "second", readFile(t, c, "final/a"))

	require.Error(t, c.Rename(ctx, "scratch/missing", "final/x"))
}

func TestMkdirAllIdempotent(t *testing.T) {
	ctx := pctx.TestContext(t)
	c := newTestClient(t)
	require.NoError(t, c.MkdirAll(ctx, "a/b/c"))
	require.NoError(t, c.MkdirAll(ctx, "a/b/c"))
}

func TestDelete(t *testing.T) {
	ctx := pctx.TestContext(t)
	c := newTestClient(t)
	writeFile(t, c, "f", "x")
	require.NoError(t, c.Delete(ctx, "f"))
	ok, err := c.Exists(ctx, "f")
	require.NoError(t, err)
	require.False(t, ok)
	// Deleting a missing file is not an error.
	require.NoError(t, c.Delete(ctx, "f"))
}

func TestWalk(t *testing.T) {
	ctx := pctx.TestContext(t)
	c := newTestClient(t)
	writeFile(t, c, "node-0/1_0.index", "i")
	writeFile(t, c, "node-0/1_0.data", "d")
	writeFile(t, c, "node-1/2_0.index", "i")

	var names []string
	require.NoError(t, c.Walk(ctx, "node-0", func(name string) error {
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	require.Equal(t, []string{"node-0/1_0.data", "node-0/1_0.index"}, names)
}

func TestPathEscapes(t *testing.T) {
	ctx := pctx.TestContext(t)
	c := newTestClient(t)
	for _, name := range []string{"../outside", "/abs", "a/../../outside"} {
		_, err := c.Create(ctx, name)
		require.Error(t, err, "name %q must be rejected", name)
	}
	// Dot segments that stay inside the root are fine.
	writeFile(t, c, "a/../inside", "ok")
	require.Equal(t, "ok", readFile(t, c, "inside"))
}

func TestRefusedRoots(t *testing.T) {
	for _, root := range []string{"", "/", "."} {
		_, err := NewLocalClient(root)
		require.Error(t, err, "root %q must be refused", root)
	}
}
