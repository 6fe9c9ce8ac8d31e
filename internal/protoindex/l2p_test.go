package protoindex

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL2PWriterReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l2p.proto")
	w, err := CreateL2PWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(101, 0))
	require.NoError(t, w.Append(201, 1))
	require.NoError(t, w.EndRevision())
	require.NoError(t, w.Close())

	r, err := OpenL2PProtoReader(path)
	require.NoError(t, err)
	defer r.Close()

	rec1, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(101), rec1.OffsetPlusOne)
	assert.Equal(t, uint64(0), rec1.ItemIndex)
	assert.False(t, rec1.IsEndOfRevision())

	rec2, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(201), rec2.OffsetPlusOne)

	sentinel, err := r.Next()
	require.NoError(t, err)
	assert.True(t, sentinel.IsEndOfRevision())

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLookupItemOffsetFindsMostRecentBeforeEndOfRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l2p.proto")
	w, err := CreateL2PWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(51, 3))
	require.NoError(t, w.Append(151, 3)) // overwritten within the same open revision
	require.NoError(t, w.EndRevision())
	require.NoError(t, w.Append(999, 3)) // past the sentinel, must not be seen
	require.NoError(t, w.Close())

	off, found, err := LookupItemOffset(path, 3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(150), off)
}

func TestLookupItemOffsetNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l2p.proto")
	w, err := CreateL2PWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(10, 0))
	require.NoError(t, w.Close())

	_, found, err := LookupItemOffset(path, 999)
	require.NoError(t, err)
	assert.False(t, found)
}
