package p2l

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fsidx/engine/internal/cache"
	"github.com/fsidx/engine/internal/metrics"
	"github.com/fsidx/engine/internal/protoindex"
)

func buildAndOpen(t *testing.T, pageSize uint64, finalRevision uint64, write func(w *protoindex.P2LWriter)) *Reader {
	t.Helper()
	dir := t.TempDir()
	protoPath := filepath.Join(dir, "p2l.proto")
	outPath := filepath.Join(dir, "p2l.idx")

	w, err := protoindex.CreateP2LWriter(protoPath)
	require.NoError(t, err)
	write(w)
	require.NoError(t, w.Close())

	b := NewBuilder(protoPath, outPath, 0, finalRevision, pageSize, dir, nil, nil, nil)
	require.NoError(t, b.Build())

	headerCache, err := cache.NewLRUCache(cache.P2LHeader, 8, nil, nil)
	require.NoError(t, err)
	pageCache, err := cache.NewLRUCache(cache.P2LPage, 64, nil, nil)
	require.NoError(t, err)
	return NewReader(outPath, 0, false, 4096, headerCache, pageCache, nil, nil)
}

func TestBuilderSingleClusterLookup(t *testing.T) {
	r := buildAndOpen(t, 20, 0, func(w *protoindex.P2LWriter) {
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 0, Size: 8, Type: 1, Revision: 0, ItemNumber: 1, Checksum: 0xaa}))
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 8, Size: 4, Type: 2, Revision: 0, ItemNumber: 2, Checksum: 0xbb}))
	})

	entries, err := r.IndexLookup(0, 5)
	require.NoError(t, err)
	require.Len(t, entries, 3) // includes the synthetic end-of-cluster padding entry
	assert.Equal(t, int64(0), entries[0].Offset)
	assert.Equal(t, int64(8), entries[1].Offset)
	assert.Equal(t, uint8(0), entries[2].Type)
}

func TestBuilderStraddlingEntryIncludedInOwningPage(t *testing.T) {
	r := buildAndOpen(t, 20, 0, func(w *protoindex.P2LWriter) {
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 0, Size: 15, Type: 1, Revision: 0, ItemNumber: 1, Checksum: 1}))
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 15, Size: 10, Type: 2, Revision: 0, ItemNumber: 2, Checksum: 2}))
	})

	entries, err := r.IndexLookup(0, 18)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(15), entries[1].Offset)
	assert.Equal(t, int64(25), entries[1].End())
}

func TestBuilderEmptyClusterFetchesNextPageEntry(t *testing.T) {
	r := buildAndOpen(t, 20, 0, func(w *protoindex.P2LWriter) {
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 0, Size: 15, Type: 1, Revision: 0, ItemNumber: 1, Checksum: 1}))
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 15, Size: 10, Type: 2, Revision: 0, ItemNumber: 2, Checksum: 2}))
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 25, Size: 10, Type: 3, Revision: 0, ItemNumber: 3, Checksum: 3}))
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 35, Size: 30, Type: 4, Revision: 0, ItemNumber: 4, Checksum: 4}))
	})

	entries, err := r.IndexLookup(0, 45)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(65), entries[0].Offset)

	maxOffset, err := r.GetMaxOffset(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), maxOffset)
}

func TestBuilderSyntheticPaddingEntryAtEOF(t *testing.T) {
	r := buildAndOpen(t, 20, 0, func(w *protoindex.P2LWriter) {
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 0, Size: 7, Type: 1, Revision: 0, ItemNumber: 1, Checksum: 1}))
	})

	e, found, err := r.EntryLookup(0, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint8(0), e.Type)
	assert.Equal(t, int64(13), int64(e.Size))

	maxOffset, err := r.GetMaxOffset(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), maxOffset)
}

func TestBuilderRevisionInvalidRewrittenToFinalRevision(t *testing.T) {
	r := buildAndOpen(t, 20, 9, func(w *protoindex.P2LWriter) {
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 0, Size: 5, Type: 1, Revision: protoindex.RevisionInvalid, ItemNumber: 1, Checksum: 1}))
	})

	e, found, err := r.EntryLookup(9, 0)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(9), e.Revision)
}

func TestBuilderRecordsBuilderBytesWrittenMetric(t *testing.T) {
	dir := t.TempDir()
	protoPath := filepath.Join(dir, "p2l.proto")
	outPath := filepath.Join(dir, "p2l.idx")

	w, err := protoindex.CreateP2LWriter(protoPath)
	require.NoError(t, err)
	require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 0, Size: 5, Type: 1, Revision: 0, ItemNumber: 1, Checksum: 1}))
	require.NoError(t, w.Close())

	mc := metrics.New("fsidx_test_p2l_builder")
	b := NewBuilder(protoPath, outPath, 0, 0, 20, dir, nil, mc, nil)
	require.NoError(t, b.Build())

	assert.Greater(t, testutil.ToFloat64(mc.BuilderBytesWritten.WithLabelValues("p2l")), float64(0))
	assert.Equal(t, float64(1), testutil.ToFloat64(mc.BuilderPagesWritten.WithLabelValues("p2l")))
}

func TestBuilderEntryLookupMissReturnsNotFound(t *testing.T) {
	r := buildAndOpen(t, 20, 0, func(w *protoindex.P2LWriter) {
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 0, Size: 5, Type: 1, Revision: 0, ItemNumber: 1, Checksum: 1}))
	})

	_, found, err := r.EntryLookup(0, 3)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBuilderOffsetPastFileOverflows(t *testing.T) {
	r := buildAndOpen(t, 20, 0, func(w *protoindex.P2LWriter) {
		require.NoError(t, w.Append(protoindex.P2LRecord{Offset: 0, Size: 5, Type: 1, Revision: 0, ItemNumber: 1, Checksum: 1}))
	})

	_, err := r.IndexLookup(0, 999)
	require.Error(t, err)
}
