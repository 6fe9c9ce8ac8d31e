package protoindex

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestP2LWriterReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p2l.proto")
	w, err := CreateP2LWriter(path)
	require.NoError(t, err)

	in := P2LRecord{Offset: 128, Size: 64, Type: 2, Revision: 5, ItemNumber: 9, Checksum: 0xabcd}
	require.NoError(t, w.Append(in))
	require.NoError(t, w.Close())

	r, err := OpenP2LProtoReader(path)
	require.NoError(t, err)
	defer r.Close()

	out, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, int64(192), out.End())
	assert.Equal(t, int64(9*8+2), out.Compound())

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestP2LRecordRevisionInvalidSentinel(t *testing.T) {
	rec := P2LRecord{Revision: RevisionInvalid}
	assert.Equal(t, ^uint64(0), rec.Revision)
}
